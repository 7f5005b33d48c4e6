// Package store is the in-memory data layer behind the console. It holds the
// demo dataset, simulates network latency before every call and applies
// multi-entity writes atomically.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	"subadmin/internal/types"
)

// Store is safe for concurrent use. Reads return copies.
type Store struct {
	mu      sync.RWMutex
	data    Dataset
	seq     map[string]int
	clock   clock.Clock
	latency Latency
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for latency and timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLatency overrides the simulated latency.
func WithLatency(l Latency) Option {
	return func(s *Store) { s.latency = l }
}

// New creates a store over ds. The store takes ownership of ds.
func New(ds Dataset, opts ...Option) *Store {
	s := &Store{
		data:    ds,
		clock:   clock.WallClock,
		latency: DefaultLatency(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.seq = sequencesFrom(ds.Invoices)
	return s
}

// NewSeeded creates a store over the embedded demo dataset.
func NewSeeded(opts ...Option) (*Store, error) {
	ds, err := LoadSeed()
	if err != nil {
		return nil, err
	}
	return New(ds, opts...), nil
}

// Clock returns the store's clock.
func (s *Store) Clock() clock.Clock {
	return s.clock
}

// wait blocks for d or until ctx is done.
func (s *Store) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return cancelled(ctx.Err())
	}
}

func (s *Store) waitList(ctx context.Context, c Collection) error {
	return s.wait(ctx, s.latency.list(c))
}

func (s *Store) waitGet(ctx context.Context) error {
	return s.wait(ctx, s.latency.Get)
}

func cancelled(err error) error {
	return types.NewAppError(types.ErrCodeUnavailableTimeout, "request cancelled while waiting on the data layer", err)
}

// Users returns every user.
func (s *Store) Users(ctx context.Context) ([]types.User, error) {
	if err := s.waitList(ctx, Users); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.data.Users, cloneUser), nil
}

// User returns one user by id.
func (s *Store) User(ctx context.Context, id string) (types.User, error) {
	if err := s.waitGet(ctx); err != nil {
		return types.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.data.Users {
		if u.ID == id {
			return cloneUser(*u), nil
		}
	}
	return types.User{}, types.NewNotFoundError(types.ErrCodeNotFoundUser, "user", id)
}

// Accounts returns every account.
func (s *Store) Accounts(ctx context.Context) ([]types.Account, error) {
	if err := s.waitList(ctx, Accounts); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.data.Accounts, cloneAccount), nil
}

// Account returns one account by id.
func (s *Store) Account(ctx context.Context, id string) (types.Account, error) {
	if err := s.waitGet(ctx); err != nil {
		return types.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.data.Accounts {
		if a.ID == id {
			return *a, nil
		}
	}
	return types.Account{}, types.NewNotFoundError(types.ErrCodeNotFoundAccount, "account", id)
}

// Subscriptions returns every subscription.
func (s *Store) Subscriptions(ctx context.Context) ([]types.Subscription, error) {
	if err := s.waitList(ctx, Subscriptions); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.data.Subscriptions, cloneSubscription), nil
}

// Requests returns every subscription request.
func (s *Store) Requests(ctx context.Context) ([]types.SubscriptionRequest, error) {
	if err := s.waitList(ctx, Requests); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.data.Requests, cloneRequest), nil
}

// Request returns one subscription request by id.
func (s *Store) Request(ctx context.Context, id string) (types.SubscriptionRequest, error) {
	if err := s.waitGet(ctx); err != nil {
		return types.SubscriptionRequest{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.data.Requests {
		if r.ID == id {
			return cloneRequest(*r), nil
		}
	}
	return types.SubscriptionRequest{}, types.NewNotFoundError(types.ErrCodeNotFoundRequest, "request", id)
}

// Invoices returns every invoice and quotation.
func (s *Store) Invoices(ctx context.Context) ([]types.Invoice, error) {
	if err := s.waitList(ctx, Invoices); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.data.Invoices, cloneInvoice), nil
}

// Invoice returns one invoice by id.
func (s *Store) Invoice(ctx context.Context, id string) (types.Invoice, error) {
	if err := s.waitGet(ctx); err != nil {
		return types.Invoice{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.data.Invoices {
		if inv.ID == id {
			return cloneInvoice(*inv), nil
		}
	}
	return types.Invoice{}, types.NewNotFoundError(types.ErrCodeNotFoundInvoice, "invoice", id)
}

// AuditLog returns every audit entry in insertion order.
func (s *Store) AuditLog(ctx context.Context) ([]types.AuditLogEntry, error) {
	if err := s.waitList(ctx, Audit); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.data.Audit, cloneAudit), nil
}

// Counts reports collection sizes without simulated latency. Used by health probes.
func (s *Store) Counts() map[Collection]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[Collection]int{
		Users:         len(s.data.Users),
		Accounts:      len(s.data.Accounts),
		Subscriptions: len(s.data.Subscriptions),
		Requests:      len(s.data.Requests),
		Invoices:      len(s.data.Invoices),
		Audit:         len(s.data.Audit),
	}
}

// Update runs fn against a private copy of the dataset after the latency of
// coll, and commits the copy only if fn returns nil.
func (s *Store) Update(ctx context.Context, coll Collection, fn func(tx *Tx) error) error {
	if err := s.waitList(ctx, coll); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{
		data: s.data.clone(),
		seq:  make(map[string]int, len(s.seq)),
		now:  s.clock.Now().UTC(),
	}
	for k, v := range s.seq {
		tx.seq[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.data = tx.data
	s.seq = tx.seq
	return nil
}

// sequencesFrom seeds number counters from existing documents so new numbers
// continue after them. Keys look like "INV-2025".
func sequencesFrom(invoices []*types.Invoice) map[string]int {
	seq := make(map[string]int)
	for _, inv := range invoices {
		idx := strings.LastIndex(inv.Number, "-")
		if idx <= 0 {
			continue
		}
		n, err := strconv.Atoi(inv.Number[idx+1:])
		if err != nil {
			continue
		}
		key := inv.Number[:idx]
		if n > seq[key] {
			seq[key] = n
		}
	}
	return seq
}

func formatKey(prefix string, year int) string {
	return fmt.Sprintf("%s-%d", prefix, year)
}

func formatNumber(prefix string, year, n int) string {
	return fmt.Sprintf("%s-%03d", formatKey(prefix, year), n)
}
