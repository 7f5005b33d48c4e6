// Package notify tells customers' systems when a quotation or invoice has
// been sent. Deliveries run on a background worker fed by a bounded queue so
// the request that sent the document never waits on the webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"subadmin/internal/types"
)

// Payload is the JSON body POSTed to the webhook.
type Payload struct {
	Event     string            `json:"event"`
	InvoiceID string            `json:"invoice_id"`
	Number    string            `json:"number"`
	Kind      types.InvoiceKind `json:"kind"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	DueAt     *time.Time        `json:"due_at,omitempty"`
	ToEmail   string            `json:"to_email"`
	ToName    string            `json:"to_name,omitempty"`
	SentAt    time.Time         `json:"sent_at"`
}

// Doer sends one HTTP request. *external.BaseClient satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	URL       string
	Secret    string
	Timeout   time.Duration
	QueueSize int
}

// Webhook queues and delivers sent-document notifications. With no URL it
// only logs.
type Webhook struct {
	cfg    Config
	client Doer
	now    func() time.Time
	logger *slog.Logger
	queue  chan Payload

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewWebhook(cfg Config, client Doer, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Webhook{
		cfg:    cfg,
		client: client,
		now:    time.Now,
		logger: logger,
		queue:  make(chan Payload, cfg.QueueSize),
	}
}

// InvoiceSent enqueues a notification. It never blocks; a full queue drops
// the notification with a warning.
func (w *Webhook) InvoiceSent(ctx context.Context, inv types.Invoice, to types.Requester) {
	event := "invoice.sent"
	if inv.Kind == types.KindQuotation {
		event = "quotation.sent"
	}
	p := Payload{
		Event:     event,
		InvoiceID: inv.ID,
		Number:    inv.Number,
		Kind:      inv.Kind,
		Amount:    inv.Amount,
		Currency:  inv.Currency,
		DueAt:     inv.DueAt,
		ToEmail:   to.Email,
		ToName:    to.Name,
		SentAt:    inv.IssuedAt,
	}

	if w.cfg.URL == "" {
		w.logger.InfoContext(ctx, "document sent; no webhook configured",
			"invoice_id", inv.ID, "number", inv.Number, "to_email", to.Email)
		return
	}

	select {
	case w.queue <- p:
	default:
		w.dropped.Add(1)
		w.logger.WarnContext(ctx, "notification queue full; dropping", "invoice_id", inv.ID, "queue_size", cap(w.queue))
	}
}

// Run delivers queued notifications until ctx is cancelled, then drains what
// is already queued with a short grace period.
func (w *Webhook) Run(ctx context.Context) error {
	for {
		select {
		case p := <-w.queue:
			w.deliverLogged(ctx, p)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
			defer cancel()
			for {
				select {
				case p := <-w.queue:
					w.deliverLogged(drainCtx, p)
				default:
					return nil
				}
			}
		}
	}
}

func (w *Webhook) deliverLogged(ctx context.Context, p Payload) {
	if err := w.Deliver(ctx, p); err != nil {
		w.failed.Add(1)
		w.logger.ErrorContext(ctx, "webhook delivery failed", "invoice_id", p.InvoiceID, "error", err)
		return
	}
	w.delivered.Add(1)
	w.logger.InfoContext(ctx, "webhook delivered", "invoice_id", p.InvoiceID, "event", p.Event)
}

// Deliver POSTs one payload synchronously.
func (w *Webhook) Deliver(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, w.cfg.Secret, w.now()))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("webhook returned %d", resp.StatusCode), nil, map[string]any{"status": resp.StatusCode})
	}
	return nil
}

// Stats reports delivery counters.
type Stats struct {
	Queued    int   `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

func (w *Webhook) Stats() Stats {
	return Stats{
		Queued:    len(w.queue),
		Delivered: w.delivered.Load(),
		Failed:    w.failed.Load(),
		Dropped:   w.dropped.Load(),
	}
}
