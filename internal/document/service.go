package document

import (
	"context"
	"errors"

	"github.com/rezonia/erp-invoicer/internal/model"
)

// Backfiller fills in a missing compliance QR before rendering
type Backfiller interface {
	BackfillQR(ctx context.Context, localInvoiceID string) (*model.QRResult, error)
}

// Source loads the invoice and its customer
type Source interface {
	GetInvoice(ctx context.Context, id string) (model.LocalInvoice, error)
	GetProfile(ctx context.Context, userID string) (model.Profile, error)
}

// Service assembles customer documents for local invoices
type Service struct {
	backfiller Backfiller
	source     Source
	renderer   *Renderer
}

// NewService creates a document service
func NewService(backfiller Backfiller, source Source, renderer *Renderer) *Service {
	return &Service{backfiller: backfiller, source: source, renderer: renderer}
}

// Invoice renders the PDF for a local invoice. The QR is backfilled first;
// a QR that cannot be found leaves it off the document.
func (s *Service) Invoice(ctx context.Context, id string) ([]byte, model.LocalInvoice, error) {
	if _, err := s.backfiller.BackfillQR(ctx, id); err != nil {
		return nil, model.LocalInvoice{}, err
	}

	inv, err := s.source.GetInvoice(ctx, id)
	if err != nil {
		return nil, model.LocalInvoice{}, err
	}

	customer, err := s.source.GetProfile(ctx, inv.UserID)
	if err != nil {
		var lookupErr *model.LookupError
		if !errors.As(err, &lookupErr) {
			return nil, inv, err
		}
		customer = model.Profile{UserID: inv.UserID}
	}

	pdf, err := s.renderer.Render(ctx, FromInvoice(inv, customer))
	if err != nil {
		return nil, inv, err
	}
	return pdf, inv, nil
}
