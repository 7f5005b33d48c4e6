// Package accounts serves customer accounts and their subscriptions.
package accounts

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"subadmin/internal/audit"
	"subadmin/internal/events"
	"subadmin/internal/store"
	"subadmin/internal/types"
)

// Filter narrows List. Status matches either the account status or its
// display label, case-insensitively.
type Filter struct {
	Query    string
	Status   string
	PlanType string
}

func (f Filter) matches(a types.Account) bool {
	if !types.IsUnfiltered(f.Status) &&
		!strings.EqualFold(string(a.Status), f.Status) &&
		!strings.EqualFold(a.SubscriptionStatus, f.Status) {
		return false
	}
	if !types.IsUnfiltered(f.PlanType) && !strings.EqualFold(string(a.PlanType), f.PlanType) {
		return false
	}
	return containsFold(f.Query, a.Name, a.OwnerName, a.OwnerEmail)
}

// SubscriptionFilter narrows ListSubscriptions.
type SubscriptionFilter struct {
	Query     string
	Status    string
	Plan      string
	AccountID string
}

func (f SubscriptionFilter) matches(s types.Subscription) bool {
	if !types.IsUnfiltered(f.Status) && !strings.EqualFold(string(s.Status), f.Status) {
		return false
	}
	if !types.IsUnfiltered(f.Plan) && !strings.EqualFold(s.Plan, f.Plan) {
		return false
	}
	if f.AccountID != "" && s.AccountID != f.AccountID {
		return false
	}
	return containsFold(f.Query, s.ID, s.CustomerName, s.Plan)
}

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

// Detail is an account with its subscriptions and unsettled invoices.
type Detail struct {
	Account       types.Account        `json:"account"`
	Subscriptions []types.Subscription `json:"subscriptions"`
	OpenInvoices  []types.Invoice      `json:"open_invoices"`
}

type Service struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
}

func NewService(st *store.Store, bus *events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, bus: bus, logger: logger}
}

// List returns accounts matching f.
func (s *Service) List(ctx context.Context, f Filter) (types.ListResult[types.Account], error) {
	all, err := s.store.Accounts(ctx)
	if err != nil {
		return types.ListResult[types.Account]{}, err
	}
	out := make([]types.Account, 0, len(all))
	for _, a := range all {
		if f.matches(a) {
			out = append(out, a)
		}
	}
	return types.ListResult[types.Account]{Data: out, Total: len(out), TotalAll: len(all)}, nil
}

// Get loads an account, its subscriptions and open invoices concurrently.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	var d Detail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Account, err = s.store.Account(gctx, id)
		return err
	})
	g.Go(func() error {
		subs, err := s.ListSubscriptions(gctx, SubscriptionFilter{AccountID: id})
		d.Subscriptions = subs.Data
		return err
	})
	g.Go(func() error {
		all, err := s.store.Invoices(gctx)
		if err != nil {
			return err
		}
		d.OpenInvoices = []types.Invoice{}
		for _, inv := range all {
			if inv.AccountID != id {
				continue
			}
			switch inv.Status {
			case types.InvoiceDraft, types.InvoiceSent, types.InvoiceOverdue:
				d.OpenInvoices = append(d.OpenInvoices, inv)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Detail{}, err
	}
	return d, nil
}

// ListSubscriptions returns subscriptions matching f with display amounts
// filled in.
func (s *Service) ListSubscriptions(ctx context.Context, f SubscriptionFilter) (types.ListResult[types.Subscription], error) {
	all, err := s.store.Subscriptions(ctx)
	if err != nil {
		return types.ListResult[types.Subscription]{}, err
	}
	out := make([]types.Subscription, 0, len(all))
	for _, sub := range all {
		if !f.matches(sub) {
			continue
		}
		sub.Amount = DisplayAmount(sub)
		out = append(out, sub)
	}
	return types.ListResult[types.Subscription]{Data: out, Total: len(out), TotalAll: len(all)}, nil
}

// DisplayAmount renders a subscription price such as "$299/month".
func DisplayAmount(sub types.Subscription) string {
	text := types.FormatMoney(sub.Price, sub.Currency)
	if sub.Interval == "" {
		return text
	}
	return text + "/" + sub.Interval
}

// ToggleSuspend suspends an account, or reactivates it when already
// suspended.
func (s *Service) ToggleSuspend(ctx context.Context, actor types.Actor, id string) (types.Account, error) {
	var (
		result types.Account
		action string
	)
	err := s.store.Update(ctx, store.Accounts, func(tx *store.Tx) error {
		a, err := tx.Account(id)
		if err != nil {
			return err
		}
		from := a.Status
		if from == types.AccountStatusSuspended {
			a.Status = types.AccountStatusActive
			action = types.AuditAccountReactivated
		} else {
			a.Status = types.AccountStatusSuspended
			action = types.AuditAccountSuspended
		}
		a.SubscriptionStatus = a.Status.Label()
		tx.AppendAudit(audit.NewEntry(types.EntityAccount, id, action, actor, tx.Now(),
			map[string]any{"from": string(from), "to": string(a.Status)}))
		result = *a
		return nil
	})
	if err != nil {
		return types.Account{}, err
	}

	s.bus.Emit(ctx, types.TopicAccounts, action, id)
	s.bus.Emit(ctx, types.TopicAudit, action, id)
	s.logger.InfoContext(ctx, "account suspension toggled", "account_id", id, "status", result.Status, "actor_id", actor.ID)
	return result, nil
}
