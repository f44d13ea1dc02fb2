package erp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/erp-invoicer/internal/decimal"
	"github.com/rezonia/erp-invoicer/internal/model"
	"github.com/rezonia/erp-invoicer/internal/xmlrpc"
)

// DateLayout is the ERP's date format
const DateLayout = "2006-01-02"

// ResolveProduct returns the first sellable variant of a product template.
// No variant means the ERP does not match the configuration.
func ResolveProduct(ctx context.Context, ex Executor, templateID int64) (int64, error) {
	result, err := ex.Execute(ctx, ModelProduct, "search",
		[]xmlrpc.Value{domain(cond("product_tmpl_id", "=", xmlrpc.Int(templateID)))},
		xmlrpc.Struct{{Name: "limit", Value: xmlrpc.Int(1)}})
	if err != nil {
		return 0, fmt.Errorf("search product variant: %w", err)
	}
	found, err := parseIDs(result)
	if err != nil {
		return 0, fmt.Errorf("search product variant: %w", err)
	}
	if len(found) == 0 {
		return 0, model.NewDataIntegrityError(ModelProduct,
			fmt.Sprintf("no product variant for template %d", templateID))
	}
	return found[0], nil
}

// InvoiceDraft is everything needed to create a single-line customer invoice
type InvoiceDraft struct {
	PartnerID   int64
	CompanyID   int64
	JournalID   int64
	ProductID   int64
	VATTaxID    int64
	ApplyVAT    bool
	UnitPrice   decimal.Decimal // tax exclusive
	Reference   string
	Description string
	InvoiceDate time.Time
}

// Values renders the account.move create values with its one line attached
func (d InvoiceDraft) Values() xmlrpc.Struct {
	taxes := replaceWith()
	if d.ApplyVAT {
		taxes = replaceWith(d.VATTaxID)
	}

	line := xmlrpc.Struct{
		{Name: "product_id", Value: xmlrpc.Int(d.ProductID)},
		{Name: "quantity", Value: xmlrpc.Int(1)},
		{Name: "price_unit", Value: xmlrpc.Double(d.UnitPrice.InexactFloat64())},
		{Name: "tax_ids", Value: taxes},
	}
	if d.Description != "" {
		line.Set("name", xmlrpc.String(d.Description))
	}

	vals := xmlrpc.Struct{
		{Name: "move_type", Value: xmlrpc.String("out_invoice")},
		{Name: "partner_id", Value: xmlrpc.Int(d.PartnerID)},
		{Name: "journal_id", Value: xmlrpc.Int(d.JournalID)},
		{Name: "company_id", Value: xmlrpc.Int(d.CompanyID)},
		{Name: "invoice_date", Value: xmlrpc.String(d.InvoiceDate.Format(DateLayout))},
		{Name: "ref", Value: xmlrpc.String(d.Reference)},
		{Name: "invoice_line_ids", Value: xmlrpc.Array(createLine(line))},
	}
	if d.Description != "" {
		vals.Set("narration", xmlrpc.String(d.Description))
	}
	return vals
}

// CreateInvoice creates the invoice header with its line and returns its id
func CreateInvoice(ctx context.Context, ex Executor, d InvoiceDraft) (int64, error) {
	result, err := ex.Execute(ctx, ModelMove, "create", []xmlrpc.Value{xmlrpc.StructValue(d.Values())}, nil)
	if err != nil {
		return 0, fmt.Errorf("create invoice: %w", err)
	}
	id, err := parseCreatedID(result)
	if err != nil {
		return 0, fmt.Errorf("create invoice: %w", err)
	}
	return id, nil
}

// PostInvoice moves a draft invoice to posted
func PostInvoice(ctx context.Context, ex Executor, invoiceID int64) error {
	if _, err := ex.Execute(ctx, ModelMove, "action_post", []xmlrpc.Value{ids(invoiceID)}, nil); err != nil {
		return fmt.Errorf("post invoice %d: %w", invoiceID, err)
	}
	return nil
}

var invoiceFields = []string{"name", "state", "amount_untaxed", "amount_tax", "amount_total", "invoice_date"}

// ReadInvoice re-reads an invoice by id. The QR field is only requested for
// domestic invoices.
func ReadInvoice(ctx context.Context, ex Executor, invoiceID int64, withQR bool) (model.RemoteInvoice, error) {
	names := append([]string{}, invoiceFields...)
	if withQR {
		names = append(names, FieldQRCode)
	}

	result, err := ex.Execute(ctx, ModelMove, "search_read",
		[]xmlrpc.Value{domain(cond("id", "=", xmlrpc.Int(invoiceID)))},
		xmlrpc.Struct{
			{Name: "fields", Value: fields(names...)},
			{Name: "limit", Value: xmlrpc.Int(1)},
		})
	if err != nil {
		return model.RemoteInvoice{}, fmt.Errorf("read invoice %d: %w", invoiceID, err)
	}
	records, err := parseRecords(result)
	if err != nil {
		return model.RemoteInvoice{}, fmt.Errorf("read invoice %d: %w", invoiceID, err)
	}
	if len(records) == 0 {
		return model.RemoteInvoice{}, model.NewDataIntegrityError(ModelMove,
			fmt.Sprintf("invoice %d not found after creation", invoiceID))
	}

	rec := records[0]
	return model.RemoteInvoice{
		ID:             invoiceID,
		DocumentNumber: rec.GetString("name"),
		State:          model.InvoiceState(rec.GetString("state")),
		AmountExclVAT:  money.FromFloat(rec.GetFloat("amount_untaxed")),
		VATAmount:      money.FromFloat(rec.GetFloat("amount_tax")),
		AmountInclVAT:  money.FromFloat(rec.GetFloat("amount_total")),
		IssueDate:      rec.GetString("invoice_date"),
		QRPayload:      rec.GetString(FieldQRCode),
	}, nil
}

// qrCandidates bounds the fuzzy search; the best match is picked locally
const qrCandidates = 10

// FindInvoiceQR looks up the posted customer invoice numbered documentNumber
// and returns its QR payload, or "" when there is none. The ERP search is a
// case-insensitive contains match, so local numbers stored without the
// journal prefix still resolve; among the hits only an exact name or one
// ending in "/"+documentNumber is accepted.
func FindInvoiceQR(ctx context.Context, ex Executor, documentNumber string) (string, error) {
	number := strings.TrimSpace(documentNumber)
	if !model.IsAssignedNumber(number) {
		return "", nil
	}

	result, err := ex.Execute(ctx, ModelMove, "search_read",
		[]xmlrpc.Value{domain(
			cond("name", "ilike", xmlrpc.String(number)),
			cond("move_type", "=", xmlrpc.String("out_invoice")),
			cond("state", "=", xmlrpc.String(string(model.InvoiceStatePosted))),
		)},
		xmlrpc.Struct{
			{Name: "fields", Value: fields("name", FieldQRCode)},
			{Name: "order", Value: xmlrpc.String("id desc")},
			{Name: "limit", Value: xmlrpc.Int(qrCandidates)},
		})
	if err != nil {
		return "", fmt.Errorf("search invoice %q: %w", number, err)
	}
	records, err := parseRecords(result)
	if err != nil {
		return "", fmt.Errorf("search invoice %q: %w", number, err)
	}

	if rec, ok := matchInvoiceName(records, number); ok {
		return rec.GetString(FieldQRCode), nil
	}
	return "", nil
}

func matchInvoiceName(records []xmlrpc.Struct, number string) (xmlrpc.Struct, bool) {
	want := strings.ToLower(number)
	for _, rec := range records {
		if strings.ToLower(rec.GetString("name")) == want {
			return rec, true
		}
	}
	for _, rec := range records {
		if strings.HasSuffix(strings.ToLower(rec.GetString("name")), "/"+want) {
			return rec, true
		}
	}
	return nil, false
}
