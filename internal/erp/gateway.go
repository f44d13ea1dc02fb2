// Package erp implements the ERP-side operations of invoice issuance on top
// of the XML-RPC client: partner and product resolution, invoice creation,
// posting and read-back.
package erp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rezonia/erp-invoicer/internal/xmlrpc"
)

// Executor dispatches one execute_kw call on an authenticated session
type Executor interface {
	Execute(ctx context.Context, model, method string, args []xmlrpc.Value, kwargs xmlrpc.Struct) (xmlrpc.Value, error)
}

// Credentials identify the service account used against the ERP
type Credentials struct {
	URL      string
	Database string
	Username string
	APIKey   string
}

// Gateway authenticates against one ERP database
type Gateway struct {
	client *xmlrpc.Client
	creds  Credentials
	logger *zap.Logger
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger
func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway creates a gateway. Transport options (timeout, observer) are
// passed through to the XML-RPC client.
func NewGateway(creds Credentials, transportOpts []xmlrpc.TransportOption, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		client: xmlrpc.NewClient(creds.URL, transportOpts...),
		creds:  creds,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open authenticates and returns a session bound to the resulting uid
func (g *Gateway) Open(ctx context.Context) (*Session, error) {
	uid, err := g.client.Authenticate(ctx, g.creds.Database, g.creds.Username, g.creds.APIKey)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	g.logger.Debug("erp session opened",
		zap.String("database", g.creds.Database),
		zap.Int64("uid", uid))
	return &Session{
		client: g.client,
		db:     g.creds.Database,
		uid:    uid,
		apiKey: g.creds.APIKey,
		logger: g.logger,
	}, nil
}

// Session is an authenticated execute_kw dispatcher
type Session struct {
	client *xmlrpc.Client
	db     string
	uid    int64
	apiKey string
	logger *zap.Logger
}

// UID returns the authenticated user id
func (s *Session) UID() int64 { return s.uid }

// Execute implements Executor
func (s *Session) Execute(ctx context.Context, model, method string, args []xmlrpc.Value, kwargs xmlrpc.Struct) (xmlrpc.Value, error) {
	result, err := s.client.Execute(ctx, s.db, s.uid, s.apiKey, model, method, args, kwargs)
	if err != nil {
		s.logger.Debug("erp call failed",
			zap.String("model", model),
			zap.String("method", method),
			zap.Error(err))
		return xmlrpc.Value{}, fmt.Errorf("%s.%s: %w", model, method, err)
	}
	return result, nil
}
