package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subadmin/internal/billing"
	"subadmin/internal/core"
	"subadmin/internal/types"
)

// InvoiceService is the quotation and invoice contract.
type InvoiceService interface {
	ListInvoices(ctx context.Context, f billing.InvoiceFilter) (types.ListResult[types.Invoice], error)
	GetInvoice(ctx context.Context, id string) (types.Invoice, error)
	MarkSent(ctx context.Context, actor types.Actor, id string) (types.Invoice, error)
	MarkPaid(ctx context.Context, actor types.Actor, id string) (types.Invoice, error)
	Void(ctx context.Context, actor types.Actor, id string) (types.Invoice, error)
}

type InvoiceHandler struct {
	svc    InvoiceService
	guard  Guard
	logger *slog.Logger
}

func NewInvoiceHandler(svc InvoiceService, guard Guard, l *slog.Logger) *InvoiceHandler {
	if l == nil {
		l = slog.Default()
	}
	return &InvoiceHandler{svc: svc, guard: guardOrAllow(guard), logger: l}
}

func (h *InvoiceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.With(h.guard(types.PermInvoicesSend)).Post("/{id}/send", h.Send)
		r.With(h.guard(types.PermInvoicesPaid)).Post("/{id}/mark-paid", h.MarkPaid)
		r.Post("/{id}/void", h.Void)
	})
}

// List handles GET /v1/invoices?q=&status=&kind=&request_id=&account_id=.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListInvoices(r.Context(), billing.InvoiceFilter{
		Query:     query(r, "q"),
		Status:    query(r, "status"),
		Kind:      query(r, "kind"),
		RequestID: query(r, "request_id"),
		AccountID: query(r, "account_id"),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.List(w, r, res)
}

func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.GetInvoice(r.Context(), pathID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, inv)
}

func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "sent", h.svc.MarkSent)
}

func (h *InvoiceHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "paid", h.svc.MarkPaid)
}

func (h *InvoiceHandler) Void(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "voided", h.svc.Void)
}

func (h *InvoiceHandler) transition(w http.ResponseWriter, r *http.Request, verb string,
	fn func(context.Context, types.Actor, string) (types.Invoice, error)) {
	actor := types.ActorFromContext(r.Context())
	inv, err := fn(r.Context(), actor, pathID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "invoice "+verb,
		"invoice_id", inv.ID, "number", inv.Number, "actor_id", actor.ID)
	core.Data(w, r, http.StatusOK, inv)
}
