// Package document renders the customer-facing tax invoice PDF.
package document

import (
	"bytes"
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/shopspring/decimal"

	money "github.com/rezonia/erp-invoicer/internal/decimal"
	"github.com/rezonia/erp-invoicer/internal/model"
)

// Property keys stamped into every rendered document
const (
	PropertyInvoiceNumber = "InvoiceNumber"
	PropertyIssueDate     = "IssueDate"
	PropertySeller        = "Seller"
)

// Data is everything printed on one invoice
type Data struct {
	SellerName      string
	SellerVATNumber string

	InvoiceNumber string
	IssueDate     string
	State         model.InvoiceState

	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	Description   string
	VATRate       decimal.Decimal
	AmountExclVAT decimal.Decimal
	VATAmount     decimal.Decimal
	AmountInclVAT decimal.Decimal

	QRPayload string
}

// FromInvoice builds document data from a local invoice and its customer
func FromInvoice(inv model.LocalInvoice, customer model.Profile) Data {
	description := inv.Description
	if description == "" {
		description = string(inv.PurchaseKind)
	}
	return Data{
		InvoiceNumber: inv.DocumentNumber,
		IssueDate:     inv.IssueDate,
		State:         inv.State,
		CustomerName:  customer.DisplayName,
		CustomerEmail: customer.Email,
		CustomerPhone: customer.Phone,
		Description:   description,
		VATRate:       inv.VATRate,
		AmountExclVAT: inv.AmountExclVAT,
		VATAmount:     inv.VATAmount,
		AmountInclVAT: inv.AmountInclVAT,
		QRPayload:     inv.QRPayload,
	}
}

// Renderer produces invoice PDFs
type Renderer struct {
	sellerName      string
	sellerVATNumber string
	currency        string
}

// Option configures a Renderer
type Option func(*Renderer)

// WithSeller sets the seller printed on documents that do not name one
func WithSeller(name, vatNumber string) Option {
	return func(r *Renderer) {
		r.sellerName = name
		r.sellerVATNumber = vatNumber
	}
}

// WithCurrency sets the currency code printed next to amounts
func WithCurrency(currency string) Option {
	return func(r *Renderer) {
		r.currency = currency
	}
}

// NewRenderer creates a renderer
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{currency: "SAR"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render lays out the invoice, validates the PDF and stamps its properties
func (r *Renderer) Render(ctx context.Context, data Data) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if data.InvoiceNumber == "" {
		return nil, model.NewValidationError("documentNumber", nil, "required", "invoice has no document number yet")
	}
	if data.SellerName == "" {
		data.SellerName = r.sellerName
	}
	if data.SellerVATNumber == "" {
		data.SellerVATNumber = r.sellerVATNumber
	}

	raw, err := r.layout(data)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", data.InvoiceNumber, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(raw), conf); err != nil {
		return nil, fmt.Errorf("validate invoice %s: %w", data.InvoiceNumber, err)
	}

	properties := map[string]string{
		PropertyInvoiceNumber: data.InvoiceNumber,
		PropertyIssueDate:     data.IssueDate,
	}
	if data.SellerName != "" {
		properties[PropertySeller] = data.SellerName
	}

	var out bytes.Buffer
	if err := api.AddProperties(bytes.NewReader(raw), &out, properties, conf); err != nil {
		return nil, fmt.Errorf("stamp invoice %s: %w", data.InvoiceNumber, err)
	}
	return out.Bytes(), nil
}

func (r *Renderer) amount(d decimal.Decimal) string {
	return money.StringFixed(d) + " " + r.currency
}

func (r *Renderer) layout(data Data) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := "Simplified Tax Invoice"
	if !data.VATRate.IsPositive() {
		title = "Invoice"
	}
	if data.State == model.InvoiceStateDraft {
		title += " (draft)"
	}
	m.AddRow(14,
		text.NewCol(12, title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+data.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+data.IssueDate, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New(data.SellerName, props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New("VAT no. "+data.SellerVATNumber, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(24,
		col.New(12).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(data.CustomerName, props.Text{Top: 5}),
			text.New(data.CustomerEmail, props.Text{Top: 10}),
			text.New(data.CustomerPhone, props.Text{Top: 15}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(4, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(6, data.Description, props.Text{Size: 9}),
		text.NewCol(2, "1", props.Text{Size: 9, Align: align.Right}),
		text.NewCol(4, r.amount(data.AmountExclVAT), props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Subtotal", props.Text{Size: 9}),
		text.NewCol(3, r.amount(data.AmountExclVAT), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "VAT "+money.Percent(data.VATRate), props.Text{Size: 9}),
		text.NewCol(3, r.amount(data.VATAmount), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(3, r.amount(data.AmountInclVAT), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	if data.QRPayload != "" {
		m.AddRow(45,
			code.NewQrCol(4, data.QRPayload, props.Rect{
				Center:  true,
				Percent: 90,
			}),
			col.New(8),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
