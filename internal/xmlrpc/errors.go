package xmlrpc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransport marks failures to reach the endpoint at all (DNS, connect,
// timeout, truncated body)
var ErrTransport = errors.New("xmlrpc: transport failure")

// DecodeError reports a response that is not valid XML-RPC. Path names the
// element at fault; Line and Offset locate malformed XML in the input.
type DecodeError struct {
	Path    string
	Message string
	Line    int
	Offset  int
	Cause   error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("xmlrpc decode")
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	b.WriteString(": " + e.Message)
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d, offset %d", e.Line, e.Offset)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (%v)", e.Cause)
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func newDecodeError(path, message string, cause error) *DecodeError {
	return &DecodeError{Path: path, Message: message, Cause: cause}
}

// Fault is a protocol-level error returned by the server in place of a result
type Fault struct {
	Code    int
	HasCode bool
	Message string
}

func (f *Fault) Error() string {
	if f.HasCode {
		return fmt.Sprintf("xmlrpc fault %d: %s", f.Code, f.Message)
	}
	return fmt.Sprintf("xmlrpc fault: %s", f.Message)
}

// HTTPError is a non-2xx response. The body is kept verbatim for
// diagnostics and never decoded.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("xmlrpc %s at %s failed: status=%d body=%q", e.Method, e.URL, e.StatusCode, truncate(e.Body, 512))
}

// AuthenticationError means the ERP rejected the service credentials
type AuthenticationError struct {
	Database string
	Username string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("xmlrpc: authentication rejected for %q on database %q", e.Username, e.Database)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
