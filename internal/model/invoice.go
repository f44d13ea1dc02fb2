package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseKind is the product category that triggered an invoice
type PurchaseKind string

const (
	PurchaseSubscriptionMonthly PurchaseKind = "subscription_monthly"
	PurchaseSubscriptionAnnual  PurchaseKind = "subscription_annual"
	PurchaseCreditsPack         PurchaseKind = "credits_pack"
)

// PurchaseKinds lists every known kind in a stable order
var PurchaseKinds = []PurchaseKind{
	PurchaseSubscriptionMonthly,
	PurchaseSubscriptionAnnual,
	PurchaseCreditsPack,
}

// Valid reports whether k is a known purchase kind
func (k PurchaseKind) Valid() bool {
	for _, known := range PurchaseKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParsePurchaseKind accepts the snake_case and camelCase spellings
func ParsePurchaseKind(s string) (PurchaseKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch normalized {
	case "subscription_monthly", "subscriptionmonthly", "monthly":
		return PurchaseSubscriptionMonthly, nil
	case "subscription_annual", "subscriptionannual", "annual":
		return PurchaseSubscriptionAnnual, nil
	case "credits_pack", "creditspack", "credits":
		return PurchaseCreditsPack, nil
	}
	return "", NewValidationError("purchaseKind", s, "enum", "unknown purchase kind")
}

// InvoiceRequest is one purchase event to be invoiced in the ERP
type InvoiceRequest struct {
	UserID             string          `json:"userId"`
	PurchaseKind       PurchaseKind    `json:"purchaseKind"`
	GrossAmount        decimal.Decimal `json:"grossAmount"` // tax inclusive
	Description        string          `json:"description,omitempty"`
	PaymentReference   string          `json:"paymentReference,omitempty"`
	LocalInvoiceLinkID string          `json:"localInvoiceLinkId,omitempty"`
	DraftOnly          bool            `json:"draftOnly,omitempty"`
}

// Validate checks the caller supplied fields. Product mapping is checked
// against configuration by the workflow.
func (r InvoiceRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return NewValidationError("userId", nil, "required", "user id is required")
	}
	if r.PurchaseKind == "" {
		return NewValidationError("purchaseKind", nil, "required", "purchase kind is required")
	}
	if !r.PurchaseKind.Valid() {
		return NewValidationError("purchaseKind", string(r.PurchaseKind), "enum", "unknown purchase kind")
	}
	if r.GrossAmount.IsZero() {
		return NewValidationError("grossAmount", nil, "required", "gross amount is required")
	}
	if r.GrossAmount.IsNegative() {
		return NewValidationError("grossAmount", r.GrossAmount.String(), "positive", "gross amount must be positive")
	}
	return nil
}

// TaxBreakdown splits a tax-inclusive amount. AmountExclVAT + VATAmount
// always equals AmountInclVAT exactly.
type TaxBreakdown struct {
	IsDomestic    bool            `json:"isDomestic"`
	VATRate       decimal.Decimal `json:"vatRate"`
	AmountExclVAT decimal.Decimal `json:"amountExclVat"`
	VATAmount     decimal.Decimal `json:"vatAmount"`
	AmountInclVAT decimal.Decimal `json:"amountInclVat"`
}

// VATApplied reports whether any tax was charged
func (t TaxBreakdown) VATApplied() bool {
	return t.VATRate.IsPositive()
}

// PartnerMatch records how a partner id was obtained
type PartnerMatch string

const (
	MatchedByCache   PartnerMatch = "cached"
	MatchedByEmail   PartnerMatch = "email"
	MatchedByPhone   PartnerMatch = "phone"
	MatchedByCreated PartnerMatch = "created"
)

// ErpPartner is a customer record in the ERP
type ErpPartner struct {
	RemoteID  int64        `json:"remoteId"`
	MatchedBy PartnerMatch `json:"matchedBy"`
}

// InvoiceState is the ERP-side state of an invoice
type InvoiceState string

const (
	InvoiceStateDraft  InvoiceState = "draft"
	InvoiceStatePosted InvoiceState = "posted"
	InvoiceStateCancel InvoiceState = "cancel"
)

// DraftDocumentNumber is the placeholder name the ERP gives an unposted invoice
const DraftDocumentNumber = "/"

// IsAssignedNumber reports whether n is a real sequence number rather than
// empty or the draft placeholder
func IsAssignedNumber(n string) bool {
	n = strings.TrimSpace(n)
	return n != "" && n != DraftDocumentNumber
}

// RemoteInvoice is the projection of an ERP invoice read back after creation
type RemoteInvoice struct {
	ID             int64           `json:"id"`
	DocumentNumber string          `json:"documentNumber"`
	State          InvoiceState    `json:"state"`
	AmountExclVAT  decimal.Decimal `json:"amountExclVat"`
	VATAmount      decimal.Decimal `json:"vatAmount"`
	AmountInclVAT  decimal.Decimal `json:"amountInclVat"`
	IssueDate      string          `json:"issueDate"`
	QRPayload      string          `json:"qrPayload,omitempty"`
}

// HasQR reports whether the ERP returned a compliance QR code
func (r RemoteInvoice) HasQR() bool {
	return r.QRPayload != ""
}

// IssueResult is the successful outcome of the invoice workflow
type IssueResult struct {
	Success         bool          `json:"success"`
	IsDomestic      bool          `json:"isDomestic"`
	VATApplied      bool          `json:"vatApplied"`
	RemoteInvoice   RemoteInvoice `json:"remoteInvoice"`
	RemotePartnerID int64         `json:"remotePartnerId"`
	PartnerMatch    PartnerMatch  `json:"partnerMatchedBy"`
	TaxBreakdown    TaxBreakdown  `json:"taxBreakdown"`
	LocalInvoiceID  string        `json:"localInvoiceId,omitempty"`
	Stage           Stage         `json:"stage"`
	Warning         string        `json:"warning,omitempty"`
}

// Profile is the local user profile the workflow invoices for
type Profile struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	ErpPartnerID *int64 `json:"erpPartnerId,omitempty"`
}

// CachedPartnerID returns the cached ERP partner id, if any
func (p Profile) CachedPartnerID() (int64, bool) {
	if p.ErpPartnerID == nil || *p.ErpPartnerID <= 0 {
		return 0, false
	}
	return *p.ErpPartnerID, true
}

// LocalInvoice is the locally persisted copy of an issued invoice
type LocalInvoice struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	PurchaseKind   PurchaseKind    `json:"purchaseKind,omitempty"`
	Description    string          `json:"description,omitempty"`
	DocumentNumber string          `json:"documentNumber"`
	State          InvoiceState    `json:"state,omitempty"`
	IssueDate      string          `json:"issueDate,omitempty"`
	VATRate        decimal.Decimal `json:"vatRate"`
	AmountExclVAT  decimal.Decimal `json:"amountExclVat"`
	VATAmount      decimal.Decimal `json:"vatAmount"`
	AmountInclVAT  decimal.Decimal `json:"amountInclVat"`
	QRPayload      string          `json:"qrPayload,omitempty"`
	ErpInvoiceID   int64           `json:"erpInvoiceId,omitempty"`
	ErpPartnerID   int64           `json:"erpPartnerId,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Reconciliation carries what the local store records after a remote invoice
// exists
type Reconciliation struct {
	LocalInvoiceID string
	UserID         string
	PurchaseKind   PurchaseKind
	Description    string
	PartnerID      int64
	Tax            TaxBreakdown
	Remote         RemoteInvoice
}

// QRSource says where a QR payload came from
type QRSource string

const (
	QRSourceLocal QRSource = "local"
	QRSourceERP   QRSource = "erp"
	QRSourceNone  QRSource = "none"
)

// QRResult is the outcome of a QR backfill
type QRResult struct {
	InvoiceID string   `json:"invoiceId"`
	Found     bool     `json:"found"`
	QRPayload string   `json:"qrPayload,omitempty"`
	Source    QRSource `json:"source"`
	Reason    string   `json:"reason,omitempty"`
}
