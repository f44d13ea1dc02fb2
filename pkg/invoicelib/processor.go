package invoicelib

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rezonia/erp-invoicer/internal/config"
	"github.com/rezonia/erp-invoicer/internal/document"
	"github.com/rezonia/erp-invoicer/internal/erp"
	"github.com/rezonia/erp-invoicer/internal/lock"
	"github.com/rezonia/erp-invoicer/internal/logger"
	"github.com/rezonia/erp-invoicer/internal/metrics"
	"github.com/rezonia/erp-invoicer/internal/processor"
	"github.com/rezonia/erp-invoicer/internal/server"
	"github.com/rezonia/erp-invoicer/internal/store"
	"github.com/rezonia/erp-invoicer/internal/xmlrpc"
)

// App wires configuration, the local store, the ERP gateway and the
// invoice pipeline together
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     *store.Store
	Pipeline  *processor.Pipeline
	Documents *document.Service

	gateway *erp.Gateway
	redis   *redis.Client
	closers []func() error
}

// Option configures New
type Option func(*options)

type options struct {
	logger *zap.Logger
	db     *gorm.DB
	seller string
	vatNo  string
}

// WithLogger uses l instead of building a logger from the config
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDB uses an already opened database instead of the configured one
func WithDB(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// WithSeller sets the seller printed on customer documents, overriding
// cfg.Seller
func WithSeller(name, vatNumber string) Option {
	return func(o *options) {
		o.seller = name
		o.vatNo = vatNumber
	}
}

// New builds an App from cfg. ERP settings are validated per request so
// that commands which never contact the ERP still work without them.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{seller: cfg.Seller.Name, vatNo: cfg.Seller.VATNumber}
	for _, opt := range opts {
		opt(o)
	}

	app := &App{Config: cfg}

	app.Logger = o.logger
	if app.Logger == nil {
		l, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
		if err != nil {
			return nil, err
		}
		app.Logger = l
		app.closers = append(app.closers, func() error {
			_ = l.Sync()
			return nil
		})
	}

	db := o.db
	if db == nil {
		var err error
		db, err = store.Open(cfg.Database.Driver, cfg.Database.DSN, app.Logger, cfg.Database.LogLevel)
		if err != nil {
			app.Close()
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			app.closers = append(app.closers, sqlDB.Close)
		}
	}
	app.Store = store.New(db)

	var locker lock.Locker = lock.NewMemory()
	if cfg.Redis.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		app.closers = append(app.closers, app.redis.Close)
		locker = lock.NewRedis(app.redis)
	}

	app.gateway = erp.NewGateway(cfg.ERP.Credentials(),
		[]xmlrpc.TransportOption{
			xmlrpc.WithTimeout(cfg.ERP.Timeout),
			xmlrpc.WithObserver(metrics.ObserveRPC),
		},
		erp.WithLogger(app.Logger.Named("erp")))

	app.Pipeline = processor.NewPipeline(app.gateway, app.Store, cfg.ERP,
		processor.WithLogger(app.Logger.Named("processor")),
		processor.WithPartnerLocker(locker))

	app.Documents = document.NewService(app.Pipeline, app.Store,
		document.NewRenderer(document.WithSeller(o.seller, o.vatNo)))

	return app, nil
}

// Issue runs the invoice workflow
func (a *App) Issue(ctx context.Context, req InvoiceRequest) (*IssueResult, error) {
	return a.Pipeline.Issue(ctx, req)
}

// BackfillQR copies a missing QR from the ERP onto a local invoice
func (a *App) BackfillQR(ctx context.Context, localInvoiceID string) (*QRResult, error) {
	return a.Pipeline.BackfillQR(ctx, localInvoiceID)
}

// BackfillMissing backfills up to limit invoices that still lack a QR
func (a *App) BackfillMissing(ctx context.Context, limit int) ([]*QRResult, error) {
	return a.Pipeline.BackfillMissing(ctx, limit)
}

// RenderDocument renders the customer PDF for a local invoice
func (a *App) RenderDocument(ctx context.Context, localInvoiceID string) ([]byte, error) {
	pdf, _, err := a.Documents.Invoice(ctx, localInvoiceID)
	return pdf, err
}

// Ping authenticates against the ERP and returns the service account uid
func (a *App) Ping(ctx context.Context) (int64, error) {
	if !a.Config.ERP.Configured() {
		return 0, a.Config.ERP.Validate()
	}
	session, err := a.gateway.Open(ctx)
	if err != nil {
		return 0, err
	}
	return session.UID(), nil
}

// Migrate creates or updates the local tables
func (a *App) Migrate(ctx context.Context) error {
	return a.Store.AutoMigrate(ctx)
}

// Server builds the HTTP API server
func (a *App) Server() *server.Server {
	return server.NewServer(&server.Config{
		Address:       a.Config.Server.Address,
		ReadTimeout:   a.Config.Server.ReadTimeout,
		WriteTimeout:  a.Config.Server.WriteTimeout,
		Debug:         a.Config.Server.Debug,
		ERPConfigured: a.Config.ERP.Configured(),
	}, a.Pipeline, a.Store, a.Documents, a.Logger.Named("http"))
}

// Close releases the database, Redis and logger
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
