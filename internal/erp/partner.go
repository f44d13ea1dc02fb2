package erp

import (
	"context"
	"fmt"
	"strings"

	"github.com/rezonia/erp-invoicer/internal/model"
	"github.com/rezonia/erp-invoicer/internal/xmlrpc"
)

// DefaultPartnerName is used when a profile has nothing better to show
const DefaultPartnerName = "Customer"

// PartnerQuery is what partner resolution needs to know about a customer
type PartnerQuery struct {
	CachedID    *int64
	DisplayName string
	Email       string
	Phone       string
}

// PartnerQueryFromProfile builds a query from a local profile
func PartnerQueryFromProfile(p model.Profile) PartnerQuery {
	return PartnerQuery{
		CachedID:    p.ErpPartnerID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Phone:       p.Phone,
	}
}

// Name falls back through display name, email and phone
func (q PartnerQuery) Name() string {
	for _, candidate := range []string{q.DisplayName, q.Email, q.Phone} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return DefaultPartnerName
}

// ResolvePartner finds or creates the ERP partner for a customer. A cached id
// is returned as is without any call. Persisting a new id is the caller's job.
func ResolvePartner(ctx context.Context, ex Executor, q PartnerQuery) (model.ErpPartner, error) {
	if q.CachedID != nil && *q.CachedID > 0 {
		return model.ErpPartner{RemoteID: *q.CachedID, MatchedBy: model.MatchedByCache}, nil
	}

	email := strings.TrimSpace(q.Email)
	phone := strings.TrimSpace(q.Phone)

	var field, value string
	var matchedBy model.PartnerMatch
	switch {
	case email != "":
		field, value, matchedBy = "email", email, model.MatchedByEmail
	case phone != "":
		field, value, matchedBy = "phone", phone, model.MatchedByPhone
	}

	if field != "" {
		result, err := ex.Execute(ctx, ModelPartner, "search",
			[]xmlrpc.Value{domain(cond(field, "=", xmlrpc.String(value)))},
			xmlrpc.Struct{{Name: "limit", Value: xmlrpc.Int(1)}})
		if err != nil {
			return model.ErpPartner{}, fmt.Errorf("search partner by %s: %w", field, err)
		}
		found, err := parseIDs(result)
		if err != nil {
			return model.ErpPartner{}, fmt.Errorf("search partner by %s: %w", field, err)
		}
		if len(found) > 0 {
			return model.ErpPartner{RemoteID: found[0], MatchedBy: matchedBy}, nil
		}
	}

	vals := xmlrpc.Struct{
		{Name: "name", Value: xmlrpc.String(q.Name())},
		{Name: "customer_rank", Value: xmlrpc.Int(1)},
	}
	if email != "" {
		vals.Set("email", xmlrpc.String(email))
	}
	if phone != "" {
		vals.Set("phone", xmlrpc.String(phone))
	}

	result, err := ex.Execute(ctx, ModelPartner, "create", []xmlrpc.Value{xmlrpc.StructValue(vals)}, nil)
	if err != nil {
		return model.ErpPartner{}, fmt.Errorf("create partner: %w", err)
	}
	id, err := parseCreatedID(result)
	if err != nil {
		return model.ErpPartner{}, fmt.Errorf("create partner: %w", err)
	}
	return model.ErpPartner{RemoteID: id, MatchedBy: model.MatchedByCreated}, nil
}
