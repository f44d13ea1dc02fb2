// Package processor runs the invoice workflow against the ERP and keeps the
// local store in step with it.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rezonia/erp-invoicer/internal/config"
	"github.com/rezonia/erp-invoicer/internal/erp"
	"github.com/rezonia/erp-invoicer/internal/lock"
	"github.com/rezonia/erp-invoicer/internal/logger"
	"github.com/rezonia/erp-invoicer/internal/metrics"
	"github.com/rezonia/erp-invoicer/internal/model"
	"github.com/rezonia/erp-invoicer/internal/tax"
)

// Store is the local persistence the workflow reads profiles from and
// reconciles invoices into
type Store interface {
	GetProfile(ctx context.Context, userID string) (model.Profile, error)
	SavePartnerID(ctx context.Context, userID string, partnerID int64) (int64, error)
	ReconcileInvoice(ctx context.Context, rec model.Reconciliation) (string, error)
	GetInvoice(ctx context.Context, id string) (model.LocalInvoice, error)
	SaveInvoiceQR(ctx context.Context, id, qr string) error
	ListMissingQR(ctx context.Context, limit int) ([]string, error)
}

// Workflow steps, reported in WorkflowError.Step
const (
	StepValidate       = "validate"
	StepConfigure      = "configure"
	StepLoadProfile    = "load_profile"
	StepAuthenticate   = "authenticate"
	StepResolvePartner = "resolve_partner"
	StepPersistPartner = "persist_partner"
	StepResolveProduct = "resolve_product"
	StepCreateInvoice  = "create_invoice"
	StepPostInvoice    = "post_invoice"
	StepReadBack       = "read_back"
)

// Pipeline issues customer invoices in the ERP
type Pipeline struct {
	gateway   *erp.Gateway
	store     Store
	settings  config.ERPConfig
	locker    lock.Locker
	logger    *zap.Logger
	now       func() time.Time
	reference func() string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPartnerLocker sets the lock that serializes partner resolution per
// user. Use a Redis locker when several instances share one ERP.
func WithPartnerLocker(l lock.Locker) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.locker = l
		}
	}
}

// WithClock sets the source of the invoice date
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithReferenceGenerator sets how references are made for requests that
// carry no payment reference
func WithReferenceGenerator(gen func() string) Option {
	return func(p *Pipeline) {
		if gen != nil {
			p.reference = gen
		}
	}
}

// NewPipeline creates a new invoice pipeline
func NewPipeline(gateway *erp.Gateway, store Store, settings config.ERPConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		gateway:   gateway,
		store:     store,
		settings:  settings,
		locker:    lock.NewMemory(),
		logger:    zap.NewNop(),
		now:       time.Now,
		reference: func() string { return "INV-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run tracks how far one Issue call got
type run struct {
	log       *zap.Logger
	stage     model.Stage
	invoiceID int64
	domestic  bool
}

func (r *run) reach(stage model.Stage) {
	r.stage = stage
	r.log.Debug("invoice workflow stage", zap.String("stage", string(stage)))
}

func (r *run) fail(step string, err error) error {
	effect := model.RemoteEffectNone
	if r.invoiceID > 0 || step == StepCreateInvoice {
		effect = model.RemoteEffectInvoiceMayExist
	}
	werr := &model.WorkflowError{
		Step:         step,
		Stage:        r.stage,
		RemoteEffect: effect,
		InvoiceID:    r.invoiceID,
		Cause:        err,
	}
	code := model.Classify(err)
	metrics.ObserveFailure(r.stage, code)
	metrics.ObserveInvoice("failed", r.domestic)

	log := r.log.Warn
	if effect == model.RemoteEffectInvoiceMayExist {
		log = r.log.Error
	}
	log("invoice workflow failed",
		zap.String("step", step),
		zap.String("stage", string(r.stage)),
		zap.String("code", string(code)),
		zap.String("remote_effect", string(effect)),
		zap.Int64("invoice_id", r.invoiceID),
		zap.Error(err))
	return werr
}

// Issue creates, posts and reads back one invoice, then records it locally.
// Every failure is a *model.WorkflowError whose RemoteEffect says whether an
// ERP invoice may already exist. A failed local reconciliation is reported in
// the result's Warning and does not fail the call.
func (p *Pipeline) Issue(ctx context.Context, req model.InvoiceRequest) (*model.IssueResult, error) {
	log := logger.FromContextOr(ctx, p.logger).With(
		zap.String("user_id", req.UserID),
		zap.String("purchase_kind", string(req.PurchaseKind)))
	r := &run{stage: model.StageStart, log: log}

	if err := req.Validate(); err != nil {
		return nil, r.fail(StepValidate, err)
	}
	templateID, ok := p.settings.ProductTemplate(req.PurchaseKind)
	if !ok {
		return nil, r.fail(StepValidate, model.NewValidationError("purchaseKind", string(req.PurchaseKind),
			"configured", "no product is configured for this purchase kind"))
	}
	if err := p.settings.Validate(); err != nil {
		return nil, r.fail(StepConfigure, err)
	}

	profile, err := p.store.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, r.fail(StepLoadProfile, err)
	}

	breakdown := tax.ForPhone(req.GrossAmount, profile.Phone)
	r.domestic = breakdown.IsDomestic

	session, err := p.gateway.Open(ctx)
	if err != nil {
		return nil, r.fail(StepAuthenticate, err)
	}

	partner, step, err := p.resolvePartner(ctx, r.log, session, profile)
	if err != nil {
		return nil, r.fail(step, err)
	}
	r.log = r.log.With(zap.Int64("partner_id", partner.RemoteID))
	r.reach(model.StagePartnerResolved)

	productID, err := erp.ResolveProduct(ctx, session, templateID)
	if err != nil {
		return nil, r.fail(StepResolveProduct, err)
	}
	r.reach(model.StageProductResolved)

	reference := req.PaymentReference
	if reference == "" {
		reference = p.reference()
	}
	draft := erp.InvoiceDraft{
		PartnerID:   partner.RemoteID,
		CompanyID:   p.settings.CompanyID,
		JournalID:   p.settings.JournalID,
		ProductID:   productID,
		VATTaxID:    p.settings.VATTaxID,
		ApplyVAT:    breakdown.IsDomestic,
		UnitPrice:   breakdown.AmountExclVAT,
		Reference:   reference,
		Description: req.Description,
		InvoiceDate: p.now(),
	}

	invoiceID, err := erp.CreateInvoice(ctx, session, draft)
	if err != nil {
		return nil, r.fail(StepCreateInvoice, err)
	}
	r.invoiceID = invoiceID
	r.log = r.log.With(zap.Int64("invoice_id", invoiceID))
	r.reach(model.StageHeaderCreated)

	if req.DraftOnly {
		r.reach(model.StageDraftKept)
	} else {
		if err := erp.PostInvoice(ctx, session, invoiceID); err != nil {
			return nil, r.fail(StepPostInvoice, err)
		}
		r.reach(model.StagePosted)
	}

	remote, err := erp.ReadInvoice(ctx, session, invoiceID, breakdown.IsDomestic)
	if err != nil {
		return nil, r.fail(StepReadBack, err)
	}
	r.reach(model.StageReadBack)

	result := &model.IssueResult{
		Success:         true,
		IsDomestic:      breakdown.IsDomestic,
		VATApplied:      breakdown.VATApplied(),
		RemoteInvoice:   remote,
		RemotePartnerID: partner.RemoteID,
		PartnerMatch:    partner.MatchedBy,
		TaxBreakdown:    breakdown,
	}

	localID, err := p.store.ReconcileInvoice(ctx, model.Reconciliation{
		LocalInvoiceID: req.LocalInvoiceLinkID,
		UserID:         req.UserID,
		PurchaseKind:   req.PurchaseKind,
		Description:    req.Description,
		PartnerID:      partner.RemoteID,
		Tax:            breakdown,
		Remote:         remote,
	})
	if err != nil {
		warning := &model.ReconciliationWarning{InvoiceID: invoiceID, Cause: err}
		result.Warning = warning.Error()
		r.reach(model.StageReconcileWarning)
		r.log.Warn("local reconciliation failed", zap.Error(err))
		metrics.ObserveInvoice("reconcile_warning", breakdown.IsDomestic)
	} else {
		result.LocalInvoiceID = localID
		r.reach(model.StageReconcileOK)
		metrics.ObserveInvoice("issued", breakdown.IsDomestic)
	}
	result.Stage = r.stage

	r.log.Info("invoice issued",
		zap.String("document_number", remote.DocumentNumber),
		zap.String("state", string(remote.State)),
		zap.Bool("domestic", breakdown.IsDomestic),
		zap.String("amount_incl_vat", breakdown.AmountInclVAT.StringFixed(2)))

	return result, nil
}

// resolvePartner serializes resolution per user so two first-time requests
// cannot both create a partner. The cache is re-read under the lock.
func (p *Pipeline) resolvePartner(ctx context.Context, log *zap.Logger, ex erp.Executor, profile model.Profile) (model.ErpPartner, string, error) {
	if _, ok := profile.CachedPartnerID(); ok {
		partner, err := erp.ResolvePartner(ctx, ex, erp.PartnerQueryFromProfile(profile))
		return partner, StepResolvePartner, err
	}

	release, err := p.locker.Acquire(ctx, "partner:"+profile.UserID)
	if err != nil {
		return model.ErpPartner{}, StepResolvePartner, fmt.Errorf("acquire partner lock: %w", err)
	}
	defer release()

	fresh, err := p.store.GetProfile(ctx, profile.UserID)
	if err != nil {
		return model.ErpPartner{}, StepLoadProfile, err
	}

	partner, err := erp.ResolvePartner(ctx, ex, erp.PartnerQueryFromProfile(fresh))
	if err != nil {
		return model.ErpPartner{}, StepResolvePartner, err
	}
	if partner.MatchedBy == model.MatchedByCache {
		return partner, "", nil
	}

	saved, err := p.store.SavePartnerID(ctx, profile.UserID, partner.RemoteID)
	if err != nil {
		return model.ErpPartner{}, StepPersistPartner, err
	}
	if saved != partner.RemoteID {
		log.Warn("partner id already cached by a concurrent request",
			zap.Int64("resolved", partner.RemoteID),
			zap.Int64("cached", saved))
		partner = model.ErpPartner{RemoteID: saved, MatchedBy: model.MatchedByCache}
	}
	return partner, "", nil
}

// IsRetrySafe reports whether err leaves no invoice behind in the ERP
func IsRetrySafe(err error) bool {
	var werr *model.WorkflowError
	if errors.As(err, &werr) {
		return werr.RetrySafe()
	}
	return false
}
