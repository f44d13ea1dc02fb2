package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rezonia/erp-invoicer/internal/erp"
	"github.com/rezonia/erp-invoicer/internal/logger"
	"github.com/rezonia/erp-invoicer/internal/metrics"
	"github.com/rezonia/erp-invoicer/internal/model"
)

// BackfillQR copies the ERP's compliance QR onto a local invoice that lacks
// one. It is best effort: an unconfigured or failing ERP yields Found=false,
// never an error. Only a missing local invoice is returned as an error.
func (p *Pipeline) BackfillQR(ctx context.Context, localInvoiceID string) (*model.QRResult, error) {
	inv, err := p.store.GetInvoice(ctx, localInvoiceID)
	if err != nil {
		return nil, err
	}

	log := logger.FromContextOr(ctx, p.logger).With(
		zap.String("invoice_id", inv.ID),
		zap.String("document_number", inv.DocumentNumber))

	miss := func(result, reason string) *model.QRResult {
		metrics.ObserveQR(result)
		return &model.QRResult{InvoiceID: inv.ID, Source: model.QRSourceNone, Reason: reason}
	}

	if inv.QRPayload != "" {
		metrics.ObserveQR("local")
		return &model.QRResult{InvoiceID: inv.ID, Found: true, QRPayload: inv.QRPayload, Source: model.QRSourceLocal}, nil
	}
	if !inv.VATRate.IsPositive() {
		return miss("not_taxed", "invoice carries no VAT"), nil
	}
	if inv.State != model.InvoiceStatePosted {
		return miss("not_posted", fmt.Sprintf("invoice is %s; only posted invoices carry a QR", stateOrUnknown(inv.State))), nil
	}
	if !model.IsAssignedNumber(inv.DocumentNumber) {
		return miss("no_number", "invoice has no document number"), nil
	}
	if p.gateway == nil || !p.settings.Configured() {
		log.Warn("qr backfill skipped: erp not configured")
		return miss("unconfigured", "erp is not configured"), nil
	}

	session, err := p.gateway.Open(ctx)
	if err != nil {
		log.Warn("qr backfill failed", zap.Error(err))
		return miss("error", fmt.Sprintf("erp unavailable: %v", err)), nil
	}

	qr, err := erp.FindInvoiceQR(ctx, session, inv.DocumentNumber)
	if err != nil {
		log.Warn("qr backfill failed", zap.Error(err))
		return miss("error", fmt.Sprintf("erp lookup failed: %v", err)), nil
	}
	if qr == "" {
		return miss("miss", "no QR code in the erp for this invoice"), nil
	}

	if err := p.store.SaveInvoiceQR(ctx, inv.ID, qr); err != nil {
		log.Warn("could not persist backfilled qr", zap.Error(err))
	}
	metrics.ObserveQR("erp")
	log.Info("qr backfilled from erp")

	return &model.QRResult{InvoiceID: inv.ID, Found: true, QRPayload: qr, Source: model.QRSourceERP}, nil
}

// BackfillMissing runs BackfillQR over up to limit invoices that still lack
// a QR. Per-invoice failures are folded into the results.
func (p *Pipeline) BackfillMissing(ctx context.Context, limit int) ([]*model.QRResult, error) {
	ids, err := p.store.ListMissingQR(ctx, limit)
	if err != nil {
		return nil, err
	}

	results := make([]*model.QRResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.BackfillQR(ctx, id)
		if err != nil {
			res = &model.QRResult{InvoiceID: id, Source: model.QRSourceNone, Reason: err.Error()}
		}
		results = append(results, res)
	}
	return results, nil
}

func stateOrUnknown(s model.InvoiceState) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}
