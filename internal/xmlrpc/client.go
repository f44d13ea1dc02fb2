package xmlrpc

import (
	"context"
	"strings"
)

// Well-known endpoint paths of the ERP's XML-RPC API
const (
	CommonPath = "/xmlrpc/2/common"
	ObjectPath = "/xmlrpc/2/object"
)

// Client exposes authenticate and execute_kw. It owns no retry logic.
type Client struct {
	baseURL   string
	transport *Transport
}

// NewClient creates a client for the ERP at baseURL
func NewClient(baseURL string, opts ...TransportOption) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: NewTransport(opts...),
	}
}

// CommonEndpoint is the URL used for authenticate
func (c *Client) CommonEndpoint() string { return c.baseURL + CommonPath }

// ObjectEndpoint is the URL used for execute_kw
func (c *Client) ObjectEndpoint() string { return c.baseURL + ObjectPath }

// Authenticate returns the uid for the given credentials. A false or zero
// result is an *AuthenticationError.
func (c *Client) Authenticate(ctx context.Context, db, username, apiKey string) (int64, error) {
	result, err := c.transport.Call(ctx, c.CommonEndpoint(), "authenticate",
		String(db), String(username), String(apiKey), StructValue(nil))
	if err != nil {
		return 0, err
	}
	uid, ok := result.AsInt()
	if !ok || uid <= 0 {
		return 0, &AuthenticationError{Database: db, Username: username}
	}
	return uid, nil
}

// Execute dispatches model.method through execute_kw. A non-positive uid is
// refused before anything is sent.
func (c *Client) Execute(ctx context.Context, db string, uid int64, apiKey, model, method string, args []Value, kwargs Struct) (Value, error) {
	if uid <= 0 {
		return Value{}, &AuthenticationError{Database: db}
	}
	return c.transport.Call(ctx, c.ObjectEndpoint(), "execute_kw",
		String(db),
		Int(uid),
		String(apiKey),
		String(model),
		String(method),
		Array(args...),
		StructValue(kwargs),
	)
}
