package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subadmin/internal/core"
	"subadmin/internal/types"
)

// SessionService is the console session contract.
type SessionService interface {
	Lookup(ctx context.Context, userID string) (types.CurrentUserContext, error)
	Switch(ctx context.Context, userID string) (types.CurrentUserContext, error)
}

// SwitchUserRequest is the body of POST /v1/session/switch.
type SwitchUserRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// SessionHandler reports and switches the acting console user.
type SessionHandler struct {
	session   SessionService
	validator *core.Validator
	logger    *slog.Logger
}

func NewSessionHandler(s SessionService, v *core.Validator, l *slog.Logger) *SessionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &SessionHandler{session: s, validator: v, logger: l}
}

func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.Get)
	r.Post("/session/switch", h.Switch)
}

// Get handles GET /v1/session. It reports the user acting on this request,
// which honours X-Acting-User.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := types.ActorFromContext(r.Context())
	cur, err := h.session.Lookup(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, cur)
}

// Switch handles POST /v1/session/switch.
func (h *SessionHandler) Switch(w http.ResponseWriter, r *http.Request) {
	var req SwitchUserRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	cur, err := h.session.Switch(r.Context(), req.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, cur)
}
