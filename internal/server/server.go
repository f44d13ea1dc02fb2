// Package server exposes the invoice workflow over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rezonia/erp-invoicer/internal/logger"
	"github.com/rezonia/erp-invoicer/internal/metrics"
	"github.com/rezonia/erp-invoicer/internal/model"
)

// Config holds server configuration
type Config struct {
	Address       string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	Debug         bool
	ERPConfigured bool
}

// Invoicer runs the invoice workflow
type Invoicer interface {
	Issue(ctx context.Context, req model.InvoiceRequest) (*model.IssueResult, error)
	BackfillQR(ctx context.Context, localInvoiceID string) (*model.QRResult, error)
}

// Pinger reports whether the local store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Documents renders customer PDFs
type Documents interface {
	Invoice(ctx context.Context, id string) ([]byte, model.LocalInvoice, error)
}

// Server represents the HTTP API server
type Server struct {
	config    *Config
	router    *gin.Engine
	invoicer  Invoicer
	store     Pinger
	documents Documents
	logger    *zap.Logger
}

// NewServer creates a new API server
func NewServer(config *Config, invoicer Invoicer, store Pinger, documents Documents, log *zap.Logger) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(
		logger.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		metrics.GinMiddleware(),
	)

	s := &Server{
		config:    config,
		router:    router,
		invoicer:  invoicer,
		store:     store,
		documents: documents,
		logger:    log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/invoices", s.handleIssue)
		v1.POST("/invoices/:id/qr", s.handleBackfillQR)
		v1.GET("/invoices/:id/document", s.handleDocument)
	}
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("address", s.config.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:   "ok",
		Time:     time.Now().UTC().Format(time.RFC3339),
		Database: "ok",
		ERP:      "configured",
	}
	if !s.config.ERPConfigured {
		resp.ERP = "unconfigured"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		logger.FromContextOr(c.Request.Context(), s.logger).Warn("database ping failed", zap.Error(err))
		resp.Status = "degraded"
		resp.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (s *Server) handleIssue(c *gin.Context) {
	var body IssueRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, model.NewValidationError("body", nil, "json", "invalid request body: "+err.Error()))
		return
	}

	req, err := body.toModel()
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	result, err := s.invoicer.Issue(ctx, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleBackfillQR(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
	defer cancel()

	result, err := s.invoicer.BackfillQR(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleDocument renders the customer PDF. A QR that cannot be backfilled
// degrades the document but never blocks it.
func (s *Server) handleDocument(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
	defer cancel()

	pdf, inv, err := s.documents.Invoice(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="invoice-`+inv.ID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) fail(c *gin.Context, err error) {
	code := model.Classify(err)
	resp := ErrorResponse{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	}

	var werr *model.WorkflowError
	if errors.As(err, &werr) {
		retrySafe := werr.RetrySafe()
		resp.Step = werr.Step
		resp.Stage = werr.Stage
		resp.RemoteEffect = werr.RemoteEffect
		resp.RemoteInvoiceID = werr.InvoiceID
		resp.RetrySafe = &retrySafe
	}

	_ = c.Error(err)
	c.JSON(model.HTTPStatus(code), resp)
}
