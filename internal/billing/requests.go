package billing

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"subadmin/internal/audit"
	"subadmin/internal/store"
	"subadmin/internal/types"
)

// ListRequests returns requests matching f in dataset order.
func (s *Service) ListRequests(ctx context.Context, f RequestFilter) (types.ListResult[types.SubscriptionRequest], error) {
	all, err := s.store.Requests(ctx)
	if err != nil {
		return types.ListResult[types.SubscriptionRequest]{}, err
	}
	out := make([]types.SubscriptionRequest, 0, len(all))
	for _, r := range all {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return types.ListResult[types.SubscriptionRequest]{Data: out, Total: len(out), TotalAll: len(all)}, nil
}

// GetRequest returns one request.
func (s *Service) GetRequest(ctx context.Context, id string) (types.SubscriptionRequest, error) {
	return s.store.Request(ctx, id)
}

// SetStatus moves a request to status. Moving to the current status is a no-op.
func (s *Service) SetStatus(ctx context.Context, actor types.Actor, id string, status types.RequestStatus) (types.SubscriptionRequest, error) {
	return s.transitionRequest(ctx, actor, id, status, "")
}

// Approve approves a request. If its latest quotation has been sent, an
// invoice draft is issued from it. Unsent draft quotations are voided.
func (s *Service) Approve(ctx context.Context, actor types.Actor, id string) (types.SubscriptionRequest, error) {
	return s.transitionRequest(ctx, actor, id, types.RequestApproved, "")
}

// Reject rejects a request, recording reason.
func (s *Service) Reject(ctx context.Context, actor types.Actor, id, reason string) (types.SubscriptionRequest, error) {
	return s.transitionRequest(ctx, actor, id, types.RequestRejected, reason)
}

// Cancel withdraws a request.
func (s *Service) Cancel(ctx context.Context, actor types.Actor, id string) (types.SubscriptionRequest, error) {
	return s.transitionRequest(ctx, actor, id, types.RequestCancelled, "")
}

func (s *Service) transitionRequest(ctx context.Context, actor types.Actor, id string, to types.RequestStatus, reason string) (types.SubscriptionRequest, error) {
	if !to.Valid() {
		return types.SubscriptionRequest{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
			"unknown request status", nil, map[string]any{"status": string(to)})
	}

	var (
		result  types.SubscriptionRequest
		changes []change
		topics  = []types.Topic{types.TopicRequests}
		noop    bool
	)
	err := s.store.Update(ctx, store.Requests, func(tx *store.Tx) error {
		r, err := tx.Request(id)
		if err != nil {
			return err
		}
		from := r.Status
		if from == to {
			noop = true
			result = *r
			return nil
		}
		if !from.CanTransitionTo(to) {
			return types.NewTransitionError("request", id, string(from), string(to))
		}

		r.Status = to
		meta := map[string]any{"from": string(from), "to": string(to)}
		if reason != "" {
			r.RejectReason = reason
			meta["reason"] = reason
		}
		tx.AppendAudit(audit.NewEntry(types.EntityRequest, id, types.AuditRequestStatusChanged, actor, tx.Now(), meta))
		changes = append(changes, change{types.EntityRequest, string(from), string(to)})

		invoicesChanged := false
		if to == types.RequestApproved {
			if inv := s.issueInvoiceFromQuotation(tx, actor, r); inv != nil {
				changes = append(changes, change{types.EntityInvoice, "", string(types.InvoiceDraft)})
				invoicesChanged = true
			}
		}
		// A closed request keeps no sendable quotation.
		if to.IsTerminal() {
			voided := voidDraftQuotations(tx, actor, id, "request "+string(to))
			for i := 0; i < voided; i++ {
				changes = append(changes, change{types.EntityInvoice, string(types.InvoiceDraft), string(types.InvoiceVoid)})
			}
			invoicesChanged = invoicesChanged || voided > 0
		}
		if invoicesChanged {
			topics = append(topics, types.TopicInvoices)
		}

		result = *r
		return nil
	})
	if err != nil {
		return types.SubscriptionRequest{}, err
	}
	if noop {
		return result, nil
	}

	s.publish(ctx, types.AuditRequestStatusChanged, id, changes, topics...)
	s.logger.InfoContext(ctx, "request status changed",
		"request_id", id, "status", to, "actor_id", actor.ID)
	return result, nil
}

// issueInvoiceFromQuotation creates an INVOICE draft from the request's most
// recent quotation when that quotation was sent. Returns nil otherwise.
func (s *Service) issueInvoiceFromQuotation(tx *store.Tx, actor types.Actor, r *types.SubscriptionRequest) *types.Invoice {
	var quote *types.Invoice
	for _, inv := range tx.InvoicesForRequest(r.ID) {
		if inv.Kind == types.KindQuotation && inv.Status != types.InvoiceVoid {
			quote = inv
		}
	}
	if quote == nil || quote.Status != types.InvoiceSent {
		return nil
	}

	now := tx.Now()
	due := now.Add(s.settings.PaymentTerms)
	inv := tx.InsertInvoice(types.Invoice{
		ID:             newInvoiceID(),
		Number:         tx.NextNumber("INV"),
		AccountID:      quote.AccountID,
		SubscriptionID: quote.SubscriptionID,
		RequestID:      r.ID,
		UserID:         r.UserID,
		Subtotal:       quote.Subtotal,
		TaxRate:        quote.TaxRate,
		TaxAmount:      quote.TaxAmount,
		Amount:         quote.Amount,
		Currency:       quote.Currency,
		Status:         types.InvoiceDraft,
		IssuedAt:       now,
		DueAt:          &due,
		LineItems:      copyLineItems(quote.LineItems),
		Kind:           types.KindInvoice,
	})
	tx.AppendAudit(audit.NewEntry(types.EntityInvoice, inv.ID, types.AuditInvoiceDraftCreated, actor, now, map[string]any{
		"request_id":   r.ID,
		"quotation_id": quote.ID,
		"amount":       inv.Amount,
		"currency":     inv.Currency,
	}))
	return inv
}

// voidDraftQuotations voids every DRAFT quotation of a request.
func voidDraftQuotations(tx *store.Tx, actor types.Actor, requestID, reason string) int {
	n := 0
	for _, inv := range tx.InvoicesForRequest(requestID) {
		if inv.Kind != types.KindQuotation || inv.Status != types.InvoiceDraft {
			continue
		}
		inv.Status = types.InvoiceVoid
		tx.AppendAudit(audit.NewEntry(types.EntityInvoice, inv.ID, types.AuditInvoiceVoided, actor, tx.Now(),
			map[string]any{"request_id": requestID, "reason": reason}))
		n++
	}
	return n
}

// SetQuote sets the quoted amount while the request is still open for quoting.
func (s *Service) SetQuote(ctx context.Context, actor types.Actor, id string, amount decimal.Decimal) (types.SubscriptionRequest, error) {
	if amount.IsNegative() {
		return types.SubscriptionRequest{}, types.NewAppError(types.ErrCodeValidationAmount, "amount must not be negative", nil)
	}

	var result types.SubscriptionRequest
	err := s.store.Update(ctx, store.Requests, func(tx *store.Tx) error {
		r, err := tx.Request(id)
		if err != nil {
			return err
		}
		if !r.Status.Quotable() {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictRequestClosed,
				"quote can only change while the request is PENDING or QUOTED", nil,
				map[string]any{"id": id, "status": string(r.Status)})
		}
		previous := r.QuoteAmount
		r.QuoteAmount = amount
		tx.AppendAudit(audit.NewEntry(types.EntityRequest, id, types.AuditRequestQuoteUpdated, actor, tx.Now(),
			map[string]any{"from": previous, "to": amount}))
		result = *r
		return nil
	})
	if err != nil {
		return types.SubscriptionRequest{}, err
	}

	s.publish(ctx, types.AuditRequestQuoteUpdated, id, nil, types.TopicRequests)
	return result, nil
}

// RequestUpdate edits the requested configuration. Nil fields are unchanged.
type RequestUpdate struct {
	Billing       *types.BillingCycle
	MaxUsers      *int
	MaxDataSizeGB *int
	Modules       []string
}

// UpdateRequest applies u while the request is PENDING or QUOTED.
func (s *Service) UpdateRequest(ctx context.Context, actor types.Actor, id string, u RequestUpdate) (types.SubscriptionRequest, error) {
	var result types.SubscriptionRequest
	err := s.store.Update(ctx, store.Requests, func(tx *store.Tx) error {
		r, err := tx.Request(id)
		if err != nil {
			return err
		}
		if !r.Status.Quotable() {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictRequestClosed,
				"configuration can only change while the request is PENDING or QUOTED", nil,
				map[string]any{"id": id, "status": string(r.Status)})
		}

		changed := map[string]any{}
		if u.Billing != nil && *u.Billing != r.RequestedBilling {
			changed["requested_billing"] = string(*u.Billing)
			r.RequestedBilling = *u.Billing
		}
		if u.MaxUsers != nil && *u.MaxUsers != r.RequestedMaxUsers {
			changed["requested_max_users"] = *u.MaxUsers
			r.RequestedMaxUsers = *u.MaxUsers
		}
		if u.MaxDataSizeGB != nil && *u.MaxDataSizeGB != r.RequestedMaxDataSizeGB {
			changed["requested_max_data_size_gb"] = *u.MaxDataSizeGB
			r.RequestedMaxDataSizeGB = *u.MaxDataSizeGB
		}
		if u.Modules != nil && !slices.Equal(u.Modules, r.RequestedModules) {
			changed["requested_modules"] = slices.Clone(u.Modules)
			r.RequestedModules = slices.Clone(u.Modules)
		}
		if len(changed) > 0 {
			tx.AppendAudit(audit.NewEntry(types.EntityRequest, id, types.AuditRequestUpdated, actor, tx.Now(), changed))
		}
		result = *r
		return nil
	})
	if err != nil {
		return types.SubscriptionRequest{}, err
	}

	s.publish(ctx, types.AuditRequestUpdated, id, nil, types.TopicRequests)
	return result, nil
}
