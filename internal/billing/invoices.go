package billing

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"subadmin/internal/audit"
	"subadmin/internal/store"
	"subadmin/internal/types"
)

// ListInvoices returns invoices and quotations matching f.
func (s *Service) ListInvoices(ctx context.Context, f InvoiceFilter) (types.ListResult[types.Invoice], error) {
	all, err := s.store.Invoices(ctx)
	if err != nil {
		return types.ListResult[types.Invoice]{}, err
	}
	out := make([]types.Invoice, 0, len(all))
	for _, inv := range all {
		if f.matches(inv) {
			out = append(out, inv)
		}
	}
	return types.ListResult[types.Invoice]{Data: out, Total: len(out), TotalAll: len(all)}, nil
}

// GetInvoice returns one invoice or quotation.
func (s *Service) GetInvoice(ctx context.Context, id string) (types.Invoice, error) {
	return s.store.Invoice(ctx, id)
}

// QuotationInput describes a new draft quotation. Zero values fall back to
// the service settings; an empty AccountID uses the requester's account.
type QuotationInput struct {
	RequestID string           `json:"request_id" validate:"required"`
	AccountID string           `json:"account_id,omitempty"`
	Currency  string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	TaxRate   *decimal.Decimal `json:"tax_rate,omitempty"`
	LineItems []LineItemInput  `json:"line_items" validate:"omitempty,dive"`
	DueAt     *time.Time       `json:"due_at,omitempty"`
}

// CreateDraftQuotation prices a request and moves it to QUOTED.
func (s *Service) CreateDraftQuotation(ctx context.Context, actor types.Actor, in QuotationInput) (types.Invoice, error) {
	taxRate := s.settings.TaxRate
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(hundred) {
		return types.Invoice{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
			"tax_rate must be between 0 and 100", nil, map[string]any{"tax_rate": taxRate})
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.settings.Currency
	}

	var (
		result  types.Invoice
		changes []change
	)
	err := s.store.Update(ctx, store.Invoices, func(tx *store.Tx) error {
		r, err := tx.Request(in.RequestID)
		if err != nil {
			return err
		}
		if !r.Status.Quotable() {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictRequestClosed,
				"quotations can only be created while the request is PENDING or QUOTED", nil,
				map[string]any{"id": r.ID, "status": string(r.Status)})
		}

		items := in.LineItems
		if len(items) == 0 {
			items = defaultLineItems(*r, taxRate)
		}
		if err := validateLineItems(items); err != nil {
			return err
		}

		accountID := in.AccountID
		if accountID == "" {
			acct, ok := tx.AccountByOwner(r.UserID)
			if !ok {
				return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
					"account_id is required: the requester owns no account", nil,
					map[string]any{"request_id": r.ID})
			}
			accountID = acct.ID
		} else if _, err := tx.Account(accountID); err != nil {
			return err
		}

		now := tx.Now()
		reason := "superseded by a new quotation"
		if voided := voidDraftQuotations(tx, actor, r.ID, reason); voided > 0 {
			for i := 0; i < voided; i++ {
				changes = append(changes, change{types.EntityInvoice, string(types.InvoiceDraft), string(types.InvoiceVoid)})
			}
		}

		lines := buildLineItems(items)
		totals := ComputeTotals(lines, taxRate)
		due := now.Add(s.settings.PaymentTerms)
		if in.DueAt != nil {
			due = in.DueAt.UTC()
		}
		inv := tx.InsertInvoice(types.Invoice{
			ID:        newInvoiceID(),
			Number:    tx.NextNumber("QTN"),
			AccountID: accountID,
			RequestID: r.ID,
			UserID:    r.UserID,
			Subtotal:  totals.Subtotal,
			TaxRate:   taxRate,
			TaxAmount: totals.TaxAmount,
			Amount:    totals.Amount,
			Currency:  currency,
			Status:    types.InvoiceDraft,
			IssuedAt:  now,
			DueAt:     &due,
			LineItems: lines,
			Kind:      types.KindQuotation,
		})
		changes = append(changes, change{types.EntityInvoice, "", string(types.InvoiceDraft)})
		tx.AppendAudit(audit.NewEntry(types.EntityInvoice, inv.ID, types.AuditQuotationDraftCreated, actor, now, map[string]any{
			"request_id": r.ID,
			"number":     inv.Number,
			"amount":     inv.Amount,
			"currency":   inv.Currency,
		}))

		from := r.Status
		r.Status = types.RequestQuoted
		r.QuoteAmount = totals.Amount
		if from != types.RequestQuoted {
			changes = append(changes, change{types.EntityRequest, string(from), string(types.RequestQuoted)})
		}
		tx.AppendAudit(audit.NewEntry(types.EntityRequest, r.ID, types.AuditRequestStatusChanged, actor, now, map[string]any{
			"from":         string(from),
			"to":           string(types.RequestQuoted),
			"quotation_id": inv.ID,
		}))

		result = *inv
		return nil
	})
	if err != nil {
		return types.Invoice{}, err
	}

	s.publish(ctx, types.AuditQuotationDraftCreated, result.ID, changes, types.TopicRequests, types.TopicInvoices)
	s.logger.InfoContext(ctx, "quotation drafted",
		"invoice_id", result.ID, "number", result.Number, "request_id", result.RequestID, "amount", result.Amount.String())
	return result, nil
}

// MarkSent sends a DRAFT document. Sending a quotation moves its QUOTED
// request to SENT.
func (s *Service) MarkSent(ctx context.Context, actor types.Actor, id string) (types.Invoice, error) {
	var (
		result    types.Invoice
		requester types.Requester
		changes   []change
	)
	err := s.store.Update(ctx, store.Invoices, func(tx *store.Tx) error {
		inv, err := tx.Invoice(id)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransitionTo(types.InvoiceSent) {
			return types.NewTransitionError("invoice", id, string(inv.Status), string(types.InvoiceSent))
		}
		now := tx.Now()
		inv.Status = types.InvoiceSent
		inv.IssuedAt = now
		changes = append(changes, change{types.EntityInvoice, string(types.InvoiceDraft), string(types.InvoiceSent)})

		action := types.AuditInvoiceSent
		if inv.Kind == types.KindQuotation {
			action = types.AuditQuotationSent
		}
		tx.AppendAudit(audit.NewEntry(types.EntityInvoice, inv.ID, action, actor, now, map[string]any{
			"request_id": inv.RequestID,
			"number":     inv.Number,
		}))

		if inv.RequestID != "" {
			r, err := tx.Request(inv.RequestID)
			if err != nil {
				return err
			}
			requester = r.User
			if inv.Kind == types.KindQuotation && r.Status.IsTerminal() {
				return types.NewAppErrorWithDetails(types.ErrCodeConflictRequestClosed,
					"quotation belongs to a closed request", nil,
					map[string]any{"id": inv.ID, "request_id": r.ID, "request_status": string(r.Status)})
			}
			if inv.Kind == types.KindQuotation && r.Status == types.RequestQuoted {
				r.Status = types.RequestSent
				changes = append(changes, change{types.EntityRequest, string(types.RequestQuoted), string(types.RequestSent)})
				tx.AppendAudit(audit.NewEntry(types.EntityRequest, r.ID, types.AuditRequestStatusChanged, actor, now, map[string]any{
					"from":         string(types.RequestQuoted),
					"to":           string(types.RequestSent),
					"quotation_id": inv.ID,
				}))
			}
		}
		if requester.Email == "" {
			if acct, err := tx.Account(inv.AccountID); err == nil {
				requester = types.Requester{Name: acct.OwnerName, Email: acct.OwnerEmail, Company: acct.Name}
			}
		}

		result = *inv
		return nil
	})
	if err != nil {
		return types.Invoice{}, err
	}

	action := types.AuditInvoiceSent
	if result.Kind == types.KindQuotation {
		action = types.AuditQuotationSent
	}
	s.publish(ctx, action, id, changes, types.TopicInvoices, types.TopicRequests)
	s.notifier.InvoiceSent(ctx, result, requester)
	return result, nil
}

// MarkPaid records payment of a SENT or OVERDUE invoice.
func (s *Service) MarkPaid(ctx context.Context, actor types.Actor, id string) (types.Invoice, error) {
	var (
		result types.Invoice
		from   types.InvoiceStatus
	)
	err := s.store.Update(ctx, store.Invoices, func(tx *store.Tx) error {
		inv, err := tx.Invoice(id)
		if err != nil {
			return err
		}
		from = inv.Status
		if !from.CanTransitionTo(types.InvoicePaid) {
			return types.NewTransitionError("invoice", id, string(from), string(types.InvoicePaid))
		}
		now := tx.Now()
		inv.Status = types.InvoicePaid
		inv.PaidAt = &now
		tx.AppendAudit(audit.NewEntry(types.EntityInvoice, inv.ID, types.AuditInvoicePaid, actor, now, map[string]any{
			"amount":   inv.Amount,
			"currency": inv.Currency,
		}))
		result = *inv
		return nil
	})
	if err != nil {
		return types.Invoice{}, err
	}

	s.publish(ctx, types.AuditInvoicePaid, id,
		[]change{{types.EntityInvoice, string(from), string(types.InvoicePaid)}}, types.TopicInvoices)
	return result, nil
}

// Void cancels a DRAFT document.
func (s *Service) Void(ctx context.Context, actor types.Actor, id string) (types.Invoice, error) {
	var result types.Invoice
	err := s.store.Update(ctx, store.Invoices, func(tx *store.Tx) error {
		inv, err := tx.Invoice(id)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransitionTo(types.InvoiceVoid) {
			return types.NewTransitionError("invoice", id, string(inv.Status), string(types.InvoiceVoid))
		}
		inv.Status = types.InvoiceVoid
		tx.AppendAudit(audit.NewEntry(types.EntityInvoice, inv.ID, types.AuditInvoiceVoided, actor, tx.Now(),
			map[string]any{"request_id": inv.RequestID}))
		result = *inv
		return nil
	})
	if err != nil {
		return types.Invoice{}, err
	}

	s.publish(ctx, types.AuditInvoiceVoided, id,
		[]change{{types.EntityInvoice, string(types.InvoiceDraft), string(types.InvoiceVoid)}}, types.TopicInvoices)
	return result, nil
}

// SweepOverdue marks every SENT document past its due date as OVERDUE and
// returns how many changed. Runs as the system actor.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	actor := types.SystemActor()
	var ids []string
	err := s.store.Update(ctx, store.Invoices, func(tx *store.Tx) error {
		for _, inv := range tx.Invoices() {
			if !inv.IsOverdueAt(now) {
				continue
			}
			inv.Status = types.InvoiceOverdue
			tx.AppendAudit(audit.NewEntry(types.EntityInvoice, inv.ID, types.AuditInvoiceMarkedOverdue, actor, tx.Now(),
				map[string]any{"due_at": inv.DueAt.Format(time.RFC3339)}))
			ids = append(ids, inv.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	changes := make([]change, 0, len(ids))
	for range ids {
		changes = append(changes, change{types.EntityInvoice, string(types.InvoiceSent), string(types.InvoiceOverdue)})
	}
	entityID := ids[0]
	if len(ids) > 1 {
		entityID = ""
	}
	s.publish(ctx, types.AuditInvoiceMarkedOverdue, entityID, changes, types.TopicInvoices)
	s.logger.InfoContext(ctx, "invoices marked overdue", "count", len(ids), "invoice_ids", ids)
	return len(ids), nil
}
