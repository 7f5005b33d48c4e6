// Package users serves the console user directory.
package users

import (
	"context"
	"log/slog"
	"strings"

	"subadmin/internal/audit"
	"subadmin/internal/events"
	"subadmin/internal/store"
	"subadmin/internal/types"
)

// Filter narrows List. Empty or "all" fields match everything.
type Filter struct {
	Query  string
	Role   string
	Status string
}

func (f Filter) matches(u types.User) bool {
	if !types.IsUnfiltered(f.Role) && !strings.EqualFold(string(u.Role), f.Role) {
		return false
	}
	if !types.IsUnfiltered(f.Status) && !strings.EqualFold(string(u.Status), f.Status) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{u.Name, u.Email, u.Company} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

type Service struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
}

func NewService(st *store.Store, bus *events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, bus: bus, logger: logger}
}

// List returns users matching f.
func (s *Service) List(ctx context.Context, f Filter) (types.ListResult[types.User], error) {
	all, err := s.store.Users(ctx)
	if err != nil {
		return types.ListResult[types.User]{}, err
	}
	out := make([]types.User, 0, len(all))
	for _, u := range all {
		if f.matches(u) {
			out = append(out, u)
		}
	}
	return types.ListResult[types.User]{Data: out, Total: len(out), TotalAll: len(all)}, nil
}

func (s *Service) Get(ctx context.Context, id string) (types.User, error) {
	return s.store.User(ctx, id)
}

// SetStatus changes a user's status. Setting the current status is a no-op.
func (s *Service) SetStatus(ctx context.Context, actor types.Actor, id string, status types.UserStatus) (types.User, error) {
	if !status.Valid() {
		return types.User{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
			"status must be one of ACTIVE, INACTIVE, SUSPENDED", nil, map[string]any{"status": string(status)})
	}

	var (
		result  types.User
		changed bool
	)
	err := s.store.Update(ctx, store.Users, func(tx *store.Tx) error {
		u, err := tx.User(id)
		if err != nil {
			return err
		}
		if u.Status != status {
			tx.AppendAudit(audit.NewEntry(types.EntityUser, id, types.AuditUserStatusChanged, actor, tx.Now(),
				map[string]any{"from": string(u.Status), "to": string(status)}))
			u.Status = status
			changed = true
		}
		result = *u
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	if !changed {
		return result, nil
	}

	s.bus.Emit(ctx, types.TopicUsers, types.AuditUserStatusChanged, id)
	s.bus.Emit(ctx, types.TopicAudit, types.AuditUserStatusChanged, id)
	s.logger.InfoContext(ctx, "user status changed", "user_id", id, "status", status, "actor_id", actor.ID)
	return result, nil
}
