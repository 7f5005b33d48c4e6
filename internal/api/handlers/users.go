package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subadmin/internal/core"
	"subadmin/internal/types"
	"subadmin/internal/users"
)

// UserService is the user directory contract.
type UserService interface {
	List(ctx context.Context, f users.Filter) (types.ListResult[types.User], error)
	Get(ctx context.Context, id string) (types.User, error)
	SetStatus(ctx context.Context, actor types.Actor, id string, status types.UserStatus) (types.User, error)
}

// SetUserStatusRequest is the body of PATCH /v1/users/{id}/status.
type SetUserStatusRequest struct {
	Status types.UserStatus `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

type UserHandler struct {
	svc       UserService
	validator *core.Validator
	logger    *slog.Logger
}

func NewUserHandler(svc UserService, v *core.Validator, l *slog.Logger) *UserHandler {
	if l == nil {
		l = slog.Default()
	}
	return &UserHandler{svc: svc, validator: v, logger: l}
}

func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}/status", h.SetStatus)
	})
}

// List handles GET /v1/users?q=&role=&status=.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.List(r.Context(), users.Filter{
		Query:  query(r, "q"),
		Role:   query(r, "role"),
		Status: query(r, "status"),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.List(w, r, res)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), pathID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, u)
}

func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req SetUserStatusRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	u, err := h.svc.SetStatus(r.Context(), types.ActorFromContext(r.Context()), pathID(r), req.Status)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, u)
}
