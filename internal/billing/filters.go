package billing

import (
	"strings"

	"subadmin/internal/types"
)

// RequestFilter narrows ListRequests. "all" or empty matches everything.
type RequestFilter struct {
	Query  string
	Type   string
	Status string
}

func (f RequestFilter) matches(r types.SubscriptionRequest) bool {
	if !types.IsUnfiltered(f.Type) && !strings.EqualFold(string(r.Type), f.Type) {
		return false
	}
	if !types.IsUnfiltered(f.Status) && !strings.EqualFold(string(r.Status), f.Status) {
		return false
	}
	return containsFold(f.Query, r.ID, r.User.Name, r.User.Email, r.User.Company)
}

// InvoiceFilter narrows ListInvoices.
type InvoiceFilter struct {
	Query     string
	Status    string
	Kind      string
	RequestID string
	AccountID string
}

func (f InvoiceFilter) matches(inv types.Invoice) bool {
	if !types.IsUnfiltered(f.Status) && !strings.EqualFold(string(inv.Status), f.Status) {
		return false
	}
	if !types.IsUnfiltered(f.Kind) && !strings.EqualFold(string(inv.Kind), f.Kind) {
		return false
	}
	if f.RequestID != "" && inv.RequestID != f.RequestID {
		return false
	}
	if f.AccountID != "" && inv.AccountID != f.AccountID {
		return false
	}
	return containsFold(f.Query, inv.Number, inv.RequestID)
}

// containsFold reports whether q is empty or a case-insensitive substring of
// any field.
func containsFold(q string, fields ...string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
