// Package billing owns the subscription request -> quotation -> invoice
// lifecycle. Every transition is applied atomically together with its audit
// entries, then announced on the event bus.
package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"subadmin/internal/events"
	"subadmin/internal/store"
	"subadmin/internal/types"
)

// Notifier is told when a quotation or invoice goes out to a customer.
type Notifier interface {
	InvoiceSent(ctx context.Context, inv types.Invoice, to types.Requester)
}

// TransitionRecorder observes lifecycle moves for metrics.
type TransitionRecorder interface {
	RecordTransition(entity types.EntityType, from, to string)
}

type noopNotifier struct{}

func (noopNotifier) InvoiceSent(context.Context, types.Invoice, types.Requester) {}

type noopRecorder struct{}

func (noopRecorder) RecordTransition(types.EntityType, string, string) {}

// Settings are the billing defaults applied to new documents.
type Settings struct {
	Currency     string
	TaxRate      decimal.Decimal
	PaymentTerms time.Duration
}

// DefaultSettings is INR with 18% GST and 15 day terms.
func DefaultSettings() Settings {
	return Settings{
		Currency:     "INR",
		TaxRate:      decimal.NewFromInt(18),
		PaymentTerms: 15 * 24 * time.Hour,
	}
}

// Service implements request and invoice operations.
type Service struct {
	store    *store.Store
	bus      *events.Bus
	settings Settings
	notifier Notifier
	recorder TransitionRecorder
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithRecorder(r TransitionRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithSettings(st Settings) Option {
	return func(s *Service) { s.settings = st }
}

func NewService(st *store.Store, bus *events.Bus, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    st,
		bus:      bus,
		settings: DefaultSettings(),
		notifier: noopNotifier{},
		recorder: noopRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// change is a lifecycle move to report after commit.
type change struct {
	entity   types.EntityType
	from, to string
}

func (s *Service) publish(ctx context.Context, action, entityID string, changes []change, topics ...types.Topic) {
	for _, c := range changes {
		s.recorder.RecordTransition(c.entity, c.from, c.to)
	}
	for _, t := range topics {
		s.bus.Emit(ctx, t, action, entityID)
	}
	s.bus.Emit(ctx, types.TopicAudit, action, entityID)
}
