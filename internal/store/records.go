package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/erp-invoicer/internal/model"
)

// ProfileRecord is a local user profile with its cached ERP partner id
type ProfileRecord struct {
	UserID       string `gorm:"primaryKey;size:64"`
	DisplayName  string `gorm:"size:200"`
	Email        string `gorm:"size:200;index"`
	Phone        string `gorm:"size:32"`
	ErpPartnerID *int64 `gorm:"column:erp_partner_id"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName implements gorm's tabler
func (ProfileRecord) TableName() string { return "profiles" }

func (r ProfileRecord) toModel() model.Profile {
	return model.Profile{
		UserID:       r.UserID,
		DisplayName:  r.DisplayName,
		Email:        r.Email,
		Phone:        r.Phone,
		ErpPartnerID: r.ErpPartnerID,
	}
}

// InvoiceRecord is the local copy of an ERP invoice
type InvoiceRecord struct {
	ID             string          `gorm:"primaryKey;size:36"`
	UserID         string          `gorm:"size:64;index"`
	PurchaseKind   string          `gorm:"size:32"`
	Description    string          `gorm:"size:500"`
	DocumentNumber string          `gorm:"size:64;index"`
	State          string          `gorm:"size:16"`
	IssueDate      string          `gorm:"size:10"`
	VATRate        decimal.Decimal `gorm:"column:vat_rate;type:decimal(6,4);not null;default:0"`
	AmountExclVAT  decimal.Decimal `gorm:"column:amount_excl_vat;type:decimal(18,2);not null;default:0"`
	VATAmount      decimal.Decimal `gorm:"column:vat_amount;type:decimal(18,2);not null;default:0"`
	AmountInclVAT  decimal.Decimal `gorm:"column:amount_incl_vat;type:decimal(18,2);not null;default:0"`
	QRPayload      string          `gorm:"column:qr_payload;type:text"`
	ErpInvoiceID   *int64          `gorm:"column:erp_invoice_id;uniqueIndex"`
	ErpPartnerID   int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName implements gorm's tabler
func (InvoiceRecord) TableName() string { return "invoices" }

func (r InvoiceRecord) toModel() model.LocalInvoice {
	inv := model.LocalInvoice{
		ID:             r.ID,
		UserID:         r.UserID,
		PurchaseKind:   model.PurchaseKind(r.PurchaseKind),
		Description:    r.Description,
		DocumentNumber: r.DocumentNumber,
		State:          model.InvoiceState(r.State),
		IssueDate:      r.IssueDate,
		VATRate:        r.VATRate,
		AmountExclVAT:  r.AmountExclVAT,
		VATAmount:      r.VATAmount,
		AmountInclVAT:  r.AmountInclVAT,
		QRPayload:      r.QRPayload,
		ErpPartnerID:   r.ErpPartnerID,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ErpInvoiceID != nil {
		inv.ErpInvoiceID = *r.ErpInvoiceID
	}
	return inv
}

// apply copies a reconciliation onto the record, keeping a QR already held
func (r *InvoiceRecord) apply(rec model.Reconciliation) {
	erpID := rec.Remote.ID
	r.ErpInvoiceID = &erpID
	r.ErpPartnerID = rec.PartnerID
	if rec.UserID != "" {
		r.UserID = rec.UserID
	}
	if rec.PurchaseKind != "" {
		r.PurchaseKind = string(rec.PurchaseKind)
	}
	if rec.Description != "" {
		r.Description = rec.Description
	}
	r.DocumentNumber = rec.Remote.DocumentNumber
	r.State = string(rec.Remote.State)
	r.IssueDate = rec.Remote.IssueDate
	r.VATRate = rec.Tax.VATRate
	r.AmountExclVAT = rec.Tax.AmountExclVAT
	r.VATAmount = rec.Tax.VATAmount
	r.AmountInclVAT = rec.Tax.AmountInclVAT
	if rec.Remote.QRPayload != "" {
		r.QRPayload = rec.Remote.QRPayload
	}
}
