// Package erptest provides an in-process fake of the ERP's XML-RPC API that
// records every call. It understands just enough of res.partner,
// product.product and account.move for the invoice workflow.
package erptest

import (
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rezonia/erp-invoicer/internal/erp"
	"github.com/rezonia/erp-invoicer/internal/xmlrpc"
)

// Default credentials accepted by a new server
const (
	Database = "odoo"
	Username = "invoicer@example.com"
	APIKey   = "test-api-key"
	UID      = int64(2)
)

// Call is one recorded execute_kw request
type Call struct {
	Model  string
	Method string
	Args   []xmlrpc.Value
	Kwargs xmlrpc.Struct
}

// Partner is a res.partner record
type Partner struct {
	ID    int64
	Name  string
	Email string
	Phone string
}

// Move is an account.move record
type Move struct {
	ID          int64
	Name        string
	State       string
	MoveType    string
	PartnerID   int64
	JournalID   int64
	CompanyID   int64
	Ref         string
	InvoiceDate string
	ProductID   int64
	TaxIDs      []int64
	Untaxed     float64
	Tax         float64
	Total       float64
	QRCode      string
}

type failure struct {
	status  int
	message string
}

// Server is a fake ERP
type Server struct {
	*httptest.Server

	// TaxRate is applied to lines carrying any tax id
	TaxRate float64

	mu        sync.Mutex
	calls     []Call
	authCalls int
	rejectAll bool
	nextID    int64
	sequence  int
	partners  []Partner
	products  map[int64]int64
	moves     map[int64]*Move
	failures  map[string]failure
}

// NewServer starts a fake ERP that is closed with the test
func NewServer(t testing.TB) *Server {
	s := &Server{
		TaxRate:  0.15,
		nextID:   100,
		products: make(map[int64]int64),
		moves:    make(map[int64]*Move),
		failures: make(map[string]failure),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Credentials returns credentials the server accepts
func (s *Server) Credentials() erp.Credentials {
	return erp.Credentials{URL: s.URL, Database: Database, Username: Username, APIKey: APIKey}
}

// RejectLogins makes authenticate return false
func (s *Server) RejectLogins() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAll = true
}

// FailOn makes model.method answer with a fault
func (s *Server) FailOn(model, method, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[model+"."+method] = failure{message: message}
}

// FailStatusOn makes model.method answer with a non-2xx status
func (s *Server) FailStatusOn(model, method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[model+"."+method] = failure{status: status, message: http.StatusText(status)}
}

// AddPartner seeds a partner and returns its id
func (s *Server) AddPartner(name, email, phone string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.partners = append(s.partners, Partner{ID: id, Name: name, Email: email, Phone: phone})
	return id
}

// AddProduct seeds a variant for a template and returns the variant id
func (s *Server) AddProduct(templateID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.products[templateID] = id
	return id
}

// AddMove seeds an invoice
func (s *Server) AddMove(m Move) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.newID()
	}
	if m.MoveType == "" {
		m.MoveType = "out_invoice"
	}
	s.moves[m.ID] = &m
	return m.ID
}

// Move returns a copy of an invoice
func (s *Server) Move(id int64) (Move, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.moves[id]
	if !ok {
		return Move{}, false
	}
	return *m, true
}

// Partners returns a copy of every partner
func (s *Server) Partners() []Partner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Partner{}, s.partners...)
}

// Calls returns every recorded execute_kw call in order
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call{}, s.calls...)
}

// CallCount counts execute_kw calls to model.method
func (s *Server) CallCount(model, method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Model == model && c.Method == method {
			n++
		}
	}
	return n
}

// AuthCalls counts authenticate calls
func (s *Server) AuthCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCalls
}

func (s *Server) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	method, params, err := xmlrpc.DecodeCall(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Path {
	case xmlrpc.CommonPath:
		s.authCalls++
		writeXML(w, s.authenticate(method, params))
	case xmlrpc.ObjectPath:
		if method != "execute_kw" || len(params) < 6 {
			writeXML(w, xmlrpc.EncodeFault(1, "unsupported call "+method))
			return
		}
		call := Call{Model: str(params[3]), Method: str(params[4])}
		call.Args, _ = params[5].AsArray()
		if len(params) > 6 {
			call.Kwargs, _ = params[6].AsStruct()
		}
		s.calls = append(s.calls, call)

		if uid, _ := params[1].AsInt(); uid != UID || str(params[0]) != Database || str(params[2]) != APIKey {
			writeXML(w, xmlrpc.EncodeFault(3, "Access Denied"))
			return
		}
		if f, ok := s.failures[call.Model+"."+call.Method]; ok {
			if f.status != 0 {
				w.WriteHeader(f.status)
				_, _ = io.WriteString(w, f.message)
				return
			}
			writeXML(w, xmlrpc.EncodeFault(2, f.message))
			return
		}
		result, err := s.dispatch(call)
		if err != nil {
			writeXML(w, xmlrpc.EncodeFault(2, err.Error()))
			return
		}
		writeXML(w, xmlrpc.EncodeResponse(result))
	default:
		http.NotFound(w, r)
	}
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml")
	_, _ = io.WriteString(w, body)
}

func (s *Server) authenticate(method string, params []xmlrpc.Value) string {
	if method != "authenticate" || len(params) < 3 {
		return xmlrpc.EncodeFault(1, "unsupported call "+method)
	}
	if s.rejectAll || str(params[0]) != Database || str(params[1]) != Username || str(params[2]) != APIKey {
		return xmlrpc.EncodeResponse(xmlrpc.Bool(false))
	}
	return xmlrpc.EncodeResponse(xmlrpc.Int(UID))
}

func (s *Server) dispatch(c Call) (xmlrpc.Value, error) {
	switch c.Model + "." + c.Method {
	case erp.ModelPartner + ".search":
		return s.searchPartners(c)
	case erp.ModelPartner + ".create":
		return s.createPartner(c)
	case erp.ModelProduct + ".search":
		return s.searchProducts(c)
	case erp.ModelMove + ".create":
		return s.createMove(c)
	case erp.ModelMove + ".action_post":
		return s.postMoves(c)
	case erp.ModelMove + ".search_read":
		return s.readMoves(c)
	}
	return xmlrpc.Value{}, fmt.Errorf("%s.%s is not implemented", c.Model, c.Method)
}

type condition struct {
	field string
	op    string
	value xmlrpc.Value
}

func parseDomain(args []xmlrpc.Value) ([]condition, error) {
	if len(args) == 0 {
		return nil, nil
	}
	list, ok := args[0].AsArray()
	if !ok {
		return nil, fmt.Errorf("domain must be a list")
	}
	out := make([]condition, 0, len(list))
	for _, item := range list {
		triple, ok := item.AsArray()
		if !ok || len(triple) != 3 {
			return nil, fmt.Errorf("domain term must be a triple")
		}
		out = append(out, condition{field: str(triple[0]), op: str(triple[1]), value: triple[2]})
	}
	return out, nil
}

func (s *Server) searchPartners(c Call) (xmlrpc.Value, error) {
	conds, err := parseDomain(c.Args)
	if err != nil {
		return xmlrpc.Value{}, err
	}
	found := make([]xmlrpc.Value, 0)
	for _, p := range s.partners {
		if matchAll(conds, func(field string) xmlrpc.Value {
			switch field {
			case "id":
				return xmlrpc.Int(p.ID)
			case "email":
				return xmlrpc.String(p.Email)
			case "phone":
				return xmlrpc.String(p.Phone)
			case "name":
				return xmlrpc.String(p.Name)
			}
			return xmlrpc.Bool(false)
		}) {
			found = append(found, xmlrpc.Int(p.ID))
		}
	}
	return xmlrpc.Array(limit(found, c.Kwargs)...), nil
}

func (s *Server) createPartner(c Call) (xmlrpc.Value, error) {
	vals, err := createVals(c.Args)
	if err != nil {
		return xmlrpc.Value{}, err
	}
	p := Partner{
		ID:    s.newID(),
		Name:  vals.GetString("name"),
		Email: vals.GetString("email"),
		Phone: vals.GetString("phone"),
	}
	if p.Name == "" {
		return xmlrpc.Value{}, fmt.Errorf("partner name is required")
	}
	s.partners = append(s.partners, p)
	return xmlrpc.Int(p.ID), nil
}

func (s *Server) searchProducts(c Call) (xmlrpc.Value, error) {
	conds, err := parseDomain(c.Args)
	if err != nil {
		return xmlrpc.Value{}, err
	}
	found := make([]xmlrpc.Value, 0)
	for tmpl, variant := range s.products {
		if matchAll(conds, func(field string) xmlrpc.Value {
			switch field {
			case "product_tmpl_id":
				return xmlrpc.Int(tmpl)
			case "id":
				return xmlrpc.Int(variant)
			}
			return xmlrpc.Bool(false)
		}) {
			found = append(found, xmlrpc.Int(variant))
		}
	}
	return xmlrpc.Array(limit(found, c.Kwargs)...), nil
}

func (s *Server) createMove(c Call) (xmlrpc.Value, error) {
	vals, err := createVals(c.Args)
	if err != nil {
		return xmlrpc.Value{}, err
	}
	m := &Move{
		ID:          s.newID(),
		Name:        "/",
		State:       "draft",
		MoveType:    vals.GetString("move_type"),
		PartnerID:   vals.GetInt("partner_id"),
		JournalID:   vals.GetInt("journal_id"),
		CompanyID:   vals.GetInt("company_id"),
		Ref:         vals.GetString("ref"),
		InvoiceDate: vals.GetString("invoice_date"),
	}
	if !s.partnerExists(m.PartnerID) {
		return xmlrpc.Value{}, fmt.Errorf("partner %d does not exist", m.PartnerID)
	}

	lines, _ := mustGet(vals, "invoice_line_ids").AsArray()
	for _, cmd := range lines {
		triple, ok := cmd.AsArray()
		if !ok || len(triple) != 3 {
			return xmlrpc.Value{}, fmt.Errorf("invalid line command")
		}
		line, ok := triple[2].AsStruct()
		if !ok {
			return xmlrpc.Value{}, fmt.Errorf("invalid line values")
		}
		m.ProductID = line.GetInt("product_id")
		qty := line.GetFloat("quantity")
		price := line.GetFloat("price_unit")
		taxIDs, err := replacedIDs(mustGet(line, "tax_ids"))
		if err != nil {
			return xmlrpc.Value{}, err
		}
		m.TaxIDs = append(m.TaxIDs, taxIDs...)

		untaxed := round2(qty * price)
		tax := 0.0
		if len(taxIDs) > 0 {
			tax = round2(untaxed * s.TaxRate)
		}
		m.Untaxed += untaxed
		m.Tax += tax
	}
	m.Untaxed = round2(m.Untaxed)
	m.Tax = round2(m.Tax)
	m.Total = round2(m.Untaxed + m.Tax)

	s.moves[m.ID] = m
	return xmlrpc.Int(m.ID), nil
}

func (s *Server) postMoves(c Call) (xmlrpc.Value, error) {
	if len(c.Args) == 0 {
		return xmlrpc.Value{}, fmt.Errorf("action_post needs ids")
	}
	list, ok := c.Args[0].AsArray()
	if !ok {
		return xmlrpc.Value{}, fmt.Errorf("action_post needs ids")
	}
	for _, v := range list {
		id, _ := v.AsInt()
		m, ok := s.moves[id]
		if !ok {
			return xmlrpc.Value{}, fmt.Errorf("record %d does not exist", id)
		}
		if m.State == "posted" {
			return xmlrpc.Value{}, fmt.Errorf("invoice %d is already posted", id)
		}
		s.sequence++
		m.State = "posted"
		m.Name = fmt.Sprintf("INV/%s/%05d", yearOf(m.InvoiceDate), s.sequence)
		if len(m.TaxIDs) > 0 {
			m.QRCode = qrPayload(m)
		}
	}
	return xmlrpc.Bool(false), nil
}

func (s *Server) readMoves(c Call) (xmlrpc.Value, error) {
	conds, err := parseDomain(c.Args)
	if err != nil {
		return xmlrpc.Value{}, err
	}
	var wanted []string
	if f, ok := c.Kwargs.Get("fields"); ok {
		list, _ := f.AsArray()
		for _, name := range list {
			wanted = append(wanted, str(name))
		}
	}

	rows := make([]xmlrpc.Value, 0)
	for _, id := range s.sortedMoveIDs() {
		m := s.moves[id]
		if !matchAll(conds, func(field string) xmlrpc.Value { return moveField(m, field) }) {
			continue
		}
		row := xmlrpc.Struct{{Name: "id", Value: xmlrpc.Int(m.ID)}}
		for _, name := range wanted {
			row.Set(name, moveField(m, name))
		}
		rows = append(rows, xmlrpc.StructValue(row))
	}
	return xmlrpc.Array(limit(rows, c.Kwargs)...), nil
}

func (s *Server) sortedMoveIDs() []int64 {
	out := make([]int64, 0, len(s.moves))
	for id := range s.moves {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *Server) partnerExists(id int64) bool {
	for _, p := range s.partners {
		if p.ID == id {
			return true
		}
	}
	return false
}

func moveField(m *Move, field string) xmlrpc.Value {
	switch field {
	case "id":
		return xmlrpc.Int(m.ID)
	case "name":
		return xmlrpc.String(m.Name)
	case "state":
		return xmlrpc.String(m.State)
	case "move_type":
		return xmlrpc.String(m.MoveType)
	case "ref":
		return orFalse(m.Ref)
	case "invoice_date":
		return orFalse(m.InvoiceDate)
	case "partner_id":
		return xmlrpc.Array(xmlrpc.Int(m.PartnerID), xmlrpc.String("partner"))
	case "amount_untaxed":
		return xmlrpc.Double(m.Untaxed)
	case "amount_tax":
		return xmlrpc.Double(m.Tax)
	case "amount_total":
		return xmlrpc.Double(m.Total)
	case erp.FieldQRCode:
		return orFalse(m.QRCode)
	}
	return xmlrpc.Bool(false)
}

func matchAll(conds []condition, get func(field string) xmlrpc.Value) bool {
	for _, c := range conds {
		if !match(c, get(c.field)) {
			return false
		}
	}
	return true
}

func match(c condition, actual xmlrpc.Value) bool {
	switch c.op {
	case "=":
		if want, ok := c.value.AsInt(); ok {
			got, _ := actual.AsInt()
			return got == want
		}
		return str(actual) == str(c.value) && str(actual) != ""
	case "ilike":
		want := strings.ToLower(str(c.value))
		return want != "" && strings.Contains(strings.ToLower(str(actual)), want)
	}
	return false
}

func limit(values []xmlrpc.Value, kwargs xmlrpc.Struct) []xmlrpc.Value {
	if n := kwargs.GetInt("limit"); n > 0 && int(n) < len(values) {
		return values[:n]
	}
	return values
}

func createVals(args []xmlrpc.Value) (xmlrpc.Struct, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("create needs values")
	}
	vals, ok := args[0].AsStruct()
	if !ok {
		return nil, fmt.Errorf("create values must be a struct")
	}
	return vals, nil
}

// replacedIDs reads a [(6, 0, ids)] command list
func replacedIDs(v xmlrpc.Value) ([]int64, error) {
	cmds, ok := v.AsArray()
	if !ok {
		return nil, nil
	}
	var out []int64
	for _, cmd := range cmds {
		triple, ok := cmd.AsArray()
		if !ok || len(triple) != 3 {
			return nil, fmt.Errorf("invalid x2many command")
		}
		if code, _ := triple[0].AsInt(); code != 6 {
			return nil, fmt.Errorf("unsupported x2many command %d", code)
		}
		list, _ := triple[2].AsArray()
		for _, e := range list {
			id, _ := e.AsInt()
			out = append(out, id)
		}
	}
	return out, nil
}

func mustGet(st xmlrpc.Struct, name string) xmlrpc.Value {
	v, _ := st.Get(name)
	return v
}

func str(v xmlrpc.Value) string {
	s, _ := v.AsString()
	return s
}

func orFalse(s string) xmlrpc.Value {
	if s == "" {
		return xmlrpc.Bool(false)
	}
	return xmlrpc.String(s)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func yearOf(date string) string {
	if t, err := time.Parse(erp.DateLayout, date); err == nil {
		return t.Format("2006")
	}
	return time.Now().Format("2006")
}

// qrPayload mimics the TLV-in-base64 compliance payload
func qrPayload(m *Move) string {
	fields := []string{
		"Seller Co",
		"300000000000003",
		m.InvoiceDate + "T00:00:00Z",
		fmt.Sprintf("%.2f", m.Total),
		fmt.Sprintf("%.2f", m.Tax),
	}
	var tlv []byte
	for i, f := range fields {
		tlv = append(tlv, byte(i+1), byte(len(f)))
		tlv = append(tlv, f...)
	}
	return base64.StdEncoding.EncodeToString(tlv)
}
