// Package analytics derives dashboard metrics from the live dataset.
package analytics

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"subadmin/internal/store"
	"subadmin/internal/types"
)

type Totals struct {
	Accounts            int                        `json:"accounts"`
	ActiveSubscriptions int                        `json:"active_subscriptions"`
	PendingRequests     int                        `json:"pending_requests"`
	Invoices            int                        `json:"invoices"`
	RevenueINR          decimal.Decimal            `json:"revenue_inr"`
	RevenueByCurrency   map[string]decimal.Decimal `json:"revenue_by_currency"`
	PaidInvoices        int                        `json:"paid_invoices"`
	DraftQuotations     int                        `json:"draft_quotations"`
}

type PlanCount struct {
	Plan  string `json:"plan"`
	Count int    `json:"count"`
}

// Metrics is the dashboard summary.
type Metrics struct {
	Totals              Totals         `json:"totals"`
	PlanDistribution    []PlanCount    `json:"plan_distribution"`
	RequestStatusCounts map[string]int `json:"request_status_counts"`
	InvoiceStatusCounts map[string]int `json:"invoice_status_counts"`
}

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Derive loads accounts, subscriptions, requests and invoices concurrently
// and summarizes them.
func (s *Service) Derive(ctx context.Context) (Metrics, error) {
	var (
		accounts []types.Account
		subs     []types.Subscription
		requests []types.SubscriptionRequest
		invoices []types.Invoice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { accounts, err = s.store.Accounts(gctx); return })
	g.Go(func() (err error) { subs, err = s.store.Subscriptions(gctx); return })
	g.Go(func() (err error) { requests, err = s.store.Requests(gctx); return })
	g.Go(func() (err error) { invoices, err = s.store.Invoices(gctx); return })
	if err := g.Wait(); err != nil {
		return Metrics{}, err
	}
	return Compute(accounts, subs, requests, invoices), nil
}

// Compute summarizes already loaded collections.
func Compute(accounts []types.Account, subs []types.Subscription, requests []types.SubscriptionRequest, invoices []types.Invoice) Metrics {
	m := Metrics{
		Totals: Totals{
			Accounts:          len(accounts),
			Invoices:          len(invoices),
			RevenueINR:        decimal.Zero,
			RevenueByCurrency: map[string]decimal.Decimal{},
		},
		PlanDistribution:    []PlanCount{},
		RequestStatusCounts: map[string]int{},
		InvoiceStatusCounts: map[string]int{},
	}

	plans := map[string]int{}
	for _, sub := range subs {
		if strings.EqualFold(string(sub.Status), string(types.SubscriptionActive)) {
			m.Totals.ActiveSubscriptions++
		}
		plans[sub.Plan]++
	}
	for plan, n := range plans {
		m.PlanDistribution = append(m.PlanDistribution, PlanCount{Plan: plan, Count: n})
	}
	sort.Slice(m.PlanDistribution, func(i, j int) bool { return m.PlanDistribution[i].Plan < m.PlanDistribution[j].Plan })

	for _, r := range requests {
		if r.Status == types.RequestPending {
			m.Totals.PendingRequests++
		}
		m.RequestStatusCounts[string(r.Status)]++
	}

	for _, inv := range invoices {
		m.InvoiceStatusCounts[string(inv.Status)]++
		if inv.Kind == types.KindQuotation && inv.Status == types.InvoiceDraft {
			m.Totals.DraftQuotations++
		}
		if inv.Status != types.InvoicePaid {
			continue
		}
		m.Totals.PaidInvoices++
		cur := strings.ToUpper(inv.Currency)
		m.Totals.RevenueByCurrency[cur] = m.Totals.RevenueByCurrency[cur].Add(inv.Amount)
		if cur == "INR" {
			m.Totals.RevenueINR = m.Totals.RevenueINR.Add(inv.Amount)
		}
	}
	return m
}
