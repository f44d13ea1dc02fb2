package xmlrpc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single call; the ERP is a third party
	DefaultTimeout = 30 * time.Second

	// maxResponseSize is the largest response body read from the ERP (16MB)
	maxResponseSize = 16 * 1024 * 1024
)

// Observer is notified after every call with its outcome
type Observer func(method string, duration time.Duration, err error)

// Transport posts methodCall envelopes over HTTP
type Transport struct {
	httpClient *http.Client
	observer   Observer
	userAgent  string
}

// TransportOption configures a Transport
type TransportOption func(*Transport)

// WithTimeout sets the HTTP timeout of the default client
func WithTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) {
		if timeout > 0 {
			t.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithHTTPClient replaces the HTTP client entirely
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithObserver installs a call observer (metrics, tracing)
func WithObserver(o Observer) TransportOption {
	return func(t *Transport) {
		t.observer = o
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) TransportOption {
	return func(t *Transport) {
		t.userAgent = ua
	}
}

// NewTransport creates a transport with a bounded default timeout
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  "erp-invoicer/xmlrpc",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Call issues one blocking POST and decodes the response. There are no
// retries; a fault comes back as *Fault, a non-2xx status as *HTTPError.
func (t *Transport) Call(ctx context.Context, endpoint, method string, params ...Value) (result Value, err error) {
	if t.observer != nil {
		start := time.Now()
		defer func() {
			t.observer(method, time.Since(start), err)
		}()
	}

	body := EncodeCall(method, params...)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return Value{}, fmt.Errorf("xmlrpc: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("Accept", "text/xml")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Value{}, fmt.Errorf("%w: reading %s response: %v", ErrTransport, method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Value{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        endpoint,
			Body:       string(respBody),
		}
	}

	return DecodeResponse(respBody)
}
