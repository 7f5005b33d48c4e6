package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subadmin/internal/analytics"
	"subadmin/internal/core"
	"subadmin/internal/events"
	"subadmin/internal/scheduler"
	"subadmin/internal/types"
)

// AnalyticsService derives dashboard metrics.
type AnalyticsService interface {
	Derive(ctx context.Context) (analytics.Metrics, error)
}

// RevisionSource reports per-topic change counters.
type RevisionSource interface {
	Snapshot() map[types.Topic]events.TopicRevision
}

// MaintenanceRunner runs a maintenance task on demand.
type MaintenanceRunner interface {
	Dispatch(ctx context.Context, p scheduler.MaintenancePayload) (scheduler.Result, error)
}

// OpsHandler serves analytics, change polling and manual maintenance.
type OpsHandler struct {
	analytics   AnalyticsService
	revisions   RevisionSource
	maintenance MaintenanceRunner
	guard       Guard
	logger      *slog.Logger
}

func NewOpsHandler(a AnalyticsService, rev RevisionSource, m MaintenanceRunner, guard Guard, l *slog.Logger) *OpsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &OpsHandler{analytics: a, revisions: rev, maintenance: m, guard: guardOrAllow(guard), logger: l}
}

func (h *OpsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/analytics", h.Analytics)
	r.Get("/changes", h.Changes)
	r.With(h.guard(types.PermInvoicesPaid)).Post("/maintenance/overdue-sweep", h.OverdueSweep)
}

func (h *OpsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	m, err := h.analytics.Derive(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, m)
}

// Changes handles GET /v1/changes. Clients compare revisions with the last
// poll to decide which views to reload.
func (h *OpsHandler) Changes(w http.ResponseWriter, r *http.Request) {
	core.Data(w, r, http.StatusOK, h.revisions.Snapshot())
}

// OverdueSweep handles POST /v1/maintenance/overdue-sweep. An optional body
// {"reference_time": "..."} sweeps as of that past instant.
func (h *OpsHandler) OverdueSweep(w http.ResponseWriter, r *http.Request) {
	payload := scheduler.MaintenancePayload{Task: scheduler.TaskOverdueSweep}
	if err := decodeOptional(w, r, &payload); err != nil {
		core.Error(w, r, err)
		return
	}
	if payload.Task == "" {
		payload.Task = scheduler.TaskOverdueSweep
	}

	res, err := h.maintenance.Dispatch(r.Context(), payload)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "manual maintenance run",
		"task", string(res.Task), "changed", res.Changed,
		"actor_id", types.ActorFromContext(r.Context()).ID)
	core.Data(w, r, http.StatusOK, res)
}
