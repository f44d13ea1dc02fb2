package erp

import (
	"fmt"

	"github.com/rezonia/erp-invoicer/internal/xmlrpc"
)

// ERP models and fields touched by the workflow
const (
	ModelPartner = "res.partner"
	ModelProduct = "product.product"
	ModelMove    = "account.move"

	FieldQRCode = "l10n_sa_qr_code_str"
)

// x2many command codes
const (
	commandCreate  = 0
	commandReplace = 6
)

func cond(field, op string, value xmlrpc.Value) xmlrpc.Value {
	return xmlrpc.Array(xmlrpc.String(field), xmlrpc.String(op), value)
}

func domain(conds ...xmlrpc.Value) xmlrpc.Value {
	return xmlrpc.Array(conds...)
}

func fields(names ...string) xmlrpc.Value {
	out := make([]xmlrpc.Value, 0, len(names))
	for _, n := range names {
		out = append(out, xmlrpc.String(n))
	}
	return xmlrpc.Array(out...)
}

func ids(values ...int64) xmlrpc.Value {
	out := make([]xmlrpc.Value, 0, len(values))
	for _, v := range values {
		out = append(out, xmlrpc.Int(v))
	}
	return xmlrpc.Array(out...)
}

// replaceWith builds the [(6, 0, ids)] command. An empty list clears the
// relation explicitly instead of leaving the ERP default in place.
func replaceWith(values ...int64) xmlrpc.Value {
	return xmlrpc.Array(xmlrpc.Array(xmlrpc.Int(commandReplace), xmlrpc.Int(0), ids(values...)))
}

func createLine(vals xmlrpc.Struct) xmlrpc.Value {
	return xmlrpc.Array(xmlrpc.Int(commandCreate), xmlrpc.Int(0), xmlrpc.StructValue(vals))
}

// parseIDs reads the result of search
func parseIDs(v xmlrpc.Value) ([]int64, error) {
	arr, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("expected id list, got %s", v.Kind())
	}
	out := make([]int64, 0, len(arr))
	for i, e := range arr {
		id, ok := e.AsInt()
		if !ok {
			return nil, fmt.Errorf("id %d: expected int, got %s", i, e.Kind())
		}
		out = append(out, id)
	}
	return out, nil
}

// parseCreatedID reads the result of create, which is a bare id or a
// single-element list depending on the ERP version
func parseCreatedID(v xmlrpc.Value) (int64, error) {
	if id, ok := v.AsInt(); ok && id > 0 {
		return id, nil
	}
	list, err := parseIDs(v)
	if err == nil && len(list) == 1 && list[0] > 0 {
		return list[0], nil
	}
	return 0, fmt.Errorf("unexpected create result %s", v)
}

// parseRecords reads the result of search_read
func parseRecords(v xmlrpc.Value) ([]xmlrpc.Struct, error) {
	arr, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("expected record list, got %s", v.Kind())
	}
	out := make([]xmlrpc.Struct, 0, len(arr))
	for i, e := range arr {
		st, ok := e.AsStruct()
		if !ok {
			return nil, fmt.Errorf("record %d: expected struct, got %s", i, e.Kind())
		}
		out = append(out, st)
	}
	return out, nil
}
