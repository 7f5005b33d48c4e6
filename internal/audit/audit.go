// Package audit records and queries the lifecycle audit trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"

	"subadmin/internal/store"
	"subadmin/internal/types"
)

// Filter narrows a List or Export. Empty fields match everything.
type Filter struct {
	Entity   types.EntityType `json:"entity,omitempty"`
	EntityID string           `json:"entity_id,omitempty"`
	Action   string           `json:"action,omitempty"`
	UserID   string           `json:"user_id,omitempty"`
	Limit    int              `json:"limit,omitempty"`
}

func (f Filter) matches(e types.AuditLogEntry) bool {
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	return true
}

// NewEntry builds an entry with a time-ordered ULID.
func NewEntry(entity types.EntityType, entityID, action string, actor types.Actor, at time.Time, meta map[string]any) types.AuditLogEntry {
	return types.AuditLogEntry{
		ID:        "log_" + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Entity:    entity,
		EntityID:  entityID,
		Action:    action,
		UserID:    actor.ID,
		Timestamp: at,
		Meta:      meta,
	}
}

// Service queries and exports the audit trail. Entries are written by the
// services that own each change, inside their store transaction.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

func NewService(s *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, logger: logger}
}

// List returns matching entries, newest first.
func (s *Service) List(ctx context.Context, f Filter) (types.ListResult[types.AuditLogEntry], error) {
	all, err := s.store.AuditLog(ctx)
	if err != nil {
		return types.ListResult[types.AuditLogEntry]{}, err
	}

	matched := make([]types.AuditLogEntry, 0, len(all))
	for _, e := range all {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}
	newestFirst(matched)

	total := len(matched)
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return types.ListResult[types.AuditLogEntry]{Data: matched, Total: total, TotalAll: len(all)}, nil
}

// Export writes matching entries to w as zstd-compressed JSON lines and
// returns how many were written.
func (s *Service) Export(ctx context.Context, w io.Writer, f Filter) (int, error) {
	res, err := s.List(ctx, f)
	if err != nil {
		return 0, err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("creating zstd writer: %w", err)
	}
	jw := json.NewEncoder(enc)
	for i, e := range res.Data {
		if err := jw.Encode(e); err != nil {
			enc.Close()
			return i, fmt.Errorf("encoding audit entry %s: %w", e.ID, err)
		}
	}
	if err := enc.Close(); err != nil {
		return len(res.Data), fmt.Errorf("flushing zstd stream: %w", err)
	}

	s.logger.InfoContext(ctx, "audit log exported", "entries", len(res.Data))
	return len(res.Data), nil
}

// ReadExport decodes a stream produced by Export, as served by
// GET /v1/audit-logs/export.
func ReadExport(r io.Reader) ([]types.AuditLogEntry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	var out []types.AuditLogEntry
	jd := json.NewDecoder(dec)
	for jd.More() {
		var e types.AuditLogEntry
		if err := jd.Decode(&e); err != nil {
			return out, fmt.Errorf("decoding audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// newestFirst orders by timestamp descending; later inserts win ties.
func newestFirst(entries []types.AuditLogEntry) {
	slices.Reverse(entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
