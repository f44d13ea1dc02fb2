// Package invoicelib provides a public API for issuing customer invoices in
// an Odoo ERP over XML-RPC.
//
// Example usage:
//
//	cfg, err := config.Load("")
//	app, err := invoicelib.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//
//	result, err := app.Issue(ctx, invoicelib.InvoiceRequest{
//	    UserID:       "u1",
//	    PurchaseKind: invoicelib.PurchaseCreditsPack,
//	    GrossAmount:  decimal.RequireFromString("57.50"),
//	})
package invoicelib

import (
	"github.com/shopspring/decimal"

	"github.com/rezonia/erp-invoicer/internal/model"
	"github.com/rezonia/erp-invoicer/internal/processor"
	"github.com/rezonia/erp-invoicer/internal/tax"
)

// Re-export core types for public API
type (
	InvoiceRequest = model.InvoiceRequest
	IssueResult    = model.IssueResult
	RemoteInvoice  = model.RemoteInvoice
	TaxBreakdown   = model.TaxBreakdown
	QRResult       = model.QRResult
	Profile        = model.Profile
	LocalInvoice   = model.LocalInvoice
	PurchaseKind   = model.PurchaseKind
	Stage          = model.Stage
	RemoteEffect   = model.RemoteEffect
	ErrorCode      = model.ErrorCode
)

// Re-export purchase kinds
const (
	PurchaseSubscriptionMonthly = model.PurchaseSubscriptionMonthly
	PurchaseSubscriptionAnnual  = model.PurchaseSubscriptionAnnual
	PurchaseCreditsPack         = model.PurchaseCreditsPack
)

// Re-export remote effects
const (
	RemoteEffectNone            = model.RemoteEffectNone
	RemoteEffectInvoiceMayExist = model.RemoteEffectInvoiceMayExist
)

// Re-export error types
type (
	WorkflowError         = model.WorkflowError
	ConfigurationError    = model.ConfigurationError
	ValidationError       = model.ValidationError
	LookupError           = model.LookupError
	DataIntegrityError    = model.DataIntegrityError
	ReconciliationWarning = model.ReconciliationWarning
)

// Classify maps an error to its code
func Classify(err error) ErrorCode {
	return model.Classify(err)
}

// IsRetrySafe reports whether a failed Issue left nothing behind in the ERP
func IsRetrySafe(err error) bool {
	return processor.IsRetrySafe(err)
}

// ComputeTax splits a tax-inclusive amount for a customer's phone number
func ComputeTax(gross decimal.Decimal, phone string) TaxBreakdown {
	return tax.ForPhone(gross, phone)
}
