package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subadmin/internal/accounts"
	"subadmin/internal/core"
	"subadmin/internal/types"
)

// AccountService is the accounts and subscriptions contract.
type AccountService interface {
	List(ctx context.Context, f accounts.Filter) (types.ListResult[types.Account], error)
	Get(ctx context.Context, id string) (accounts.Detail, error)
	ListSubscriptions(ctx context.Context, f accounts.SubscriptionFilter) (types.ListResult[types.Subscription], error)
	ToggleSuspend(ctx context.Context, actor types.Actor, id string) (types.Account, error)
}

type AccountHandler struct {
	svc    AccountService
	guard  Guard
	logger *slog.Logger
}

func NewAccountHandler(svc AccountService, guard Guard, l *slog.Logger) *AccountHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AccountHandler{svc: svc, guard: guardOrAllow(guard), logger: l}
}

func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.With(h.guard(types.PermAccountsSuspend)).Post("/{id}/toggle-suspend", h.ToggleSuspend)
	})
	r.Get("/subscriptions", h.ListSubscriptions)
}

// List handles GET /v1/accounts?q=&status=&plan_type=.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.List(r.Context(), accounts.Filter{
		Query:    query(r, "q"),
		Status:   query(r, "status"),
		PlanType: query(r, "plan_type"),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.List(w, r, res)
}

// Get handles GET /v1/accounts/{id}, returning subscriptions and open
// invoices with the account.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Get(r.Context(), pathID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, d)
}

func (h *AccountHandler) ToggleSuspend(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.ToggleSuspend(r.Context(), types.ActorFromContext(r.Context()), pathID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "account suspension toggled", "account_id", a.ID, "status", a.Status)
	core.Data(w, r, http.StatusOK, a)
}

// ListSubscriptions handles GET /v1/subscriptions?q=&status=&plan=&account_id=.
func (h *AccountHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListSubscriptions(r.Context(), accounts.SubscriptionFilter{
		Query:     query(r, "q"),
		Status:    query(r, "status"),
		Plan:      query(r, "plan"),
		AccountID: query(r, "account_id"),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.List(w, r, res)
}
