package store

import (
	"time"

	"subadmin/internal/types"
)

// Tx is a mutable view of the dataset inside Update. Pointers it returns are
// only valid until fn returns.
type Tx struct {
	data Dataset
	seq  map[string]int
	now  time.Time
}

// Now is the transaction timestamp, fixed for the whole Update.
func (tx *Tx) Now() time.Time {
	return tx.now
}

func (tx *Tx) User(id string) (*types.User, error) {
	for _, u := range tx.data.Users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, types.NewNotFoundError(types.ErrCodeNotFoundUser, "user", id)
}

func (tx *Tx) Account(id string) (*types.Account, error) {
	for _, a := range tx.data.Accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, types.NewNotFoundError(types.ErrCodeNotFoundAccount, "account", id)
}

// AccountByOwner returns the first account owned by userID.
func (tx *Tx) AccountByOwner(userID string) (*types.Account, bool) {
	for _, a := range tx.data.Accounts {
		if a.OwnerUserID == userID {
			return a, true
		}
	}
	return nil, false
}

func (tx *Tx) Request(id string) (*types.SubscriptionRequest, error) {
	for _, r := range tx.data.Requests {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, types.NewNotFoundError(types.ErrCodeNotFoundRequest, "request", id)
}

func (tx *Tx) Invoice(id string) (*types.Invoice, error) {
	for _, inv := range tx.data.Invoices {
		if inv.ID == id {
			return inv, nil
		}
	}
	return nil, types.NewNotFoundError(types.ErrCodeNotFoundInvoice, "invoice", id)
}

// Invoices returns live pointers to every invoice.
func (tx *Tx) Invoices() []*types.Invoice {
	return tx.data.Invoices
}

// InvoicesForRequest returns the invoices linked to requestID in insertion order.
func (tx *Tx) InvoicesForRequest(requestID string) []*types.Invoice {
	var out []*types.Invoice
	for _, inv := range tx.data.Invoices {
		if inv.RequestID == requestID {
			out = append(out, inv)
		}
	}
	return out
}

// InsertInvoice appends inv and returns the stored pointer.
func (tx *Tx) InsertInvoice(inv types.Invoice) *types.Invoice {
	stored := cloneInvoice(inv)
	tx.data.Invoices = append(tx.data.Invoices, &stored)
	return &stored
}

// AppendAudit appends entries to the audit log.
func (tx *Tx) AppendAudit(entries ...types.AuditLogEntry) {
	for _, e := range entries {
		c := cloneAudit(e)
		tx.data.Audit = append(tx.data.Audit, &c)
	}
}

// NextNumber allocates the next document number for prefix in the
// transaction's year, e.g. QTN-2025-007.
func (tx *Tx) NextNumber(prefix string) string {
	year := tx.now.Year()
	key := formatKey(prefix, year)
	tx.seq[key]++
	return formatNumber(prefix, year, tx.seq[key])
}
