package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"subadmin/internal/audit"
	"subadmin/internal/core"
	"subadmin/internal/types"
)

const maxAuditLimit = 1000

// AuditService is the audit log contract.
type AuditService interface {
	List(ctx context.Context, f audit.Filter) (types.ListResult[types.AuditLogEntry], error)
	Export(ctx context.Context, w io.Writer, f audit.Filter) (int, error)
}

type AuditHandler struct {
	svc    AuditService
	now    func() time.Time
	logger *slog.Logger
}

func NewAuditHandler(svc AuditService, now func() time.Time, l *slog.Logger) *AuditHandler {
	if l == nil {
		l = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &AuditHandler{svc: svc, now: now, logger: l}
}

func (h *AuditHandler) RegisterRoutes(r chi.Router) {
	r.Route("/audit-logs", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/export", h.Export)
	})
}

func (h *AuditHandler) filter(r *http.Request) (audit.Filter, error) {
	limit, err := queryInt(r, "limit", maxAuditLimit)
	if err != nil {
		return audit.Filter{}, err
	}
	return audit.Filter{
		Entity:   types.EntityType(query(r, "entity")),
		EntityID: query(r, "entity_id"),
		Action:   query(r, "action"),
		UserID:   query(r, "user_id"),
		Limit:    limit,
	}, nil
}

// List handles GET /v1/audit-logs?entity=&entity_id=&action=&user_id=&limit=,
// newest first.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	res, err := h.svc.List(r.Context(), f)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.List(w, r, res)
}

// Export handles GET /v1/audit-logs/export. The body is zstd-compressed JSON
// lines; the export is buffered so failures still produce a JSON error.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var buf bytes.Buffer
	n, err := h.svc.Export(r.Context(), &buf, f)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	name := fmt.Sprintf("audit-%s.jsonl.zst", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Audit-Entries", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "audit export write failed", "error", err)
	}
}
