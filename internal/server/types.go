package server

import (
	"github.com/shopspring/decimal"

	"github.com/rezonia/erp-invoicer/internal/model"
)

// IssueRequest is the body of POST /api/v1/invoices. The purchase kind is
// accepted in snake_case or camelCase.
type IssueRequest struct {
	UserID             string          `json:"userId"`
	PurchaseKind       string          `json:"purchaseKind"`
	GrossAmount        decimal.Decimal `json:"grossAmount"`
	Description        string          `json:"description,omitempty"`
	PaymentReference   string          `json:"paymentReference,omitempty"`
	LocalInvoiceLinkID string          `json:"localInvoiceLinkId,omitempty"`
	DraftOnly          bool            `json:"draftOnly,omitempty"`
}

// toModel converts the body into a workflow request
func (r IssueRequest) toModel() (model.InvoiceRequest, error) {
	req := model.InvoiceRequest{
		UserID:             r.UserID,
		GrossAmount:        r.GrossAmount,
		Description:        r.Description,
		PaymentReference:   r.PaymentReference,
		LocalInvoiceLinkID: r.LocalInvoiceLinkID,
		DraftOnly:          r.DraftOnly,
	}
	if r.PurchaseKind != "" {
		kind, err := model.ParsePurchaseKind(r.PurchaseKind)
		if err != nil {
			return req, err
		}
		req.PurchaseKind = kind
	}
	return req, nil
}

// ErrorResponse is the standard error response. RemoteEffect tells the
// caller whether an ERP invoice may already exist.
type ErrorResponse struct {
	Success         bool               `json:"success"`
	Error           string             `json:"error"`
	Code            model.ErrorCode    `json:"code"`
	Step            string             `json:"step,omitempty"`
	Stage           model.Stage        `json:"stage,omitempty"`
	RemoteEffect    model.RemoteEffect `json:"remoteEffect,omitempty"`
	RemoteInvoiceID int64              `json:"remoteInvoiceId,omitempty"`
	RetrySafe       *bool              `json:"retrySafe,omitempty"`
}

// HealthResponse is the response for the health endpoint
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	Database string `json:"database"`
	ERP      string `json:"erp"`
}
