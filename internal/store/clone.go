package store

import (
	"maps"
	"slices"
	"time"

	"subadmin/internal/types"
)

func cloneAll[T any](in []*T, fn func(T) T) []*T {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		c := fn(*v)
		out = append(out, &c)
	}
	return out
}

func values[T any](in []*T, fn func(T) T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, fn(*v))
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUser(u types.User) types.User {
	u.LastLogin = cloneTime(u.LastLogin)
	return u
}

func cloneAccount(a types.Account) types.Account {
	return a
}

func cloneSubscription(s types.Subscription) types.Subscription {
	s.Features = slices.Clone(s.Features)
	return s
}

func cloneRequest(r types.SubscriptionRequest) types.SubscriptionRequest {
	r.RequestedModules = slices.Clone(r.RequestedModules)
	return r
}

func cloneInvoice(inv types.Invoice) types.Invoice {
	inv.DueAt = cloneTime(inv.DueAt)
	inv.PaidAt = cloneTime(inv.PaidAt)
	inv.LineItems = slices.Clone(inv.LineItems)
	return inv
}

func cloneAudit(e types.AuditLogEntry) types.AuditLogEntry {
	e.Meta = maps.Clone(e.Meta)
	return e
}
