// Package auth tracks which console user is acting and what that user may do.
package auth

import (
	"context"
	"log/slog"
	"sync"

	"subadmin/internal/audit"
	"subadmin/internal/events"
	"subadmin/internal/store"
	"subadmin/internal/types"
)

// Session holds the console's current user. It is process-wide: switching
// affects every caller that does not name an acting user.
type Session struct {
	mu     sync.RWMutex
	userID string

	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
}

// NewSession starts a session acting as defaultUserID.
func NewSession(st *store.Store, bus *events.Bus, defaultUserID string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{userID: defaultUserID, store: st, bus: bus, logger: logger}
}

// CurrentUserID returns the id of the current user without a store lookup.
func (s *Session) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Current returns the current user and its permissions.
func (s *Session) Current(ctx context.Context) (types.CurrentUserContext, error) {
	return s.Lookup(ctx, s.CurrentUserID())
}

// Lookup resolves any user id into a user context.
func (s *Session) Lookup(ctx context.Context, userID string) (types.CurrentUserContext, error) {
	u, err := s.store.User(ctx, userID)
	if err != nil {
		return types.CurrentUserContext{}, err
	}
	return types.CurrentUserContext{User: u, Permissions: PermissionsFor(u.Role)}, nil
}

// Switch makes userID the current user. Unknown ids leave the session unchanged.
func (s *Session) Switch(ctx context.Context, userID string) (types.CurrentUserContext, error) {
	cur, err := s.Lookup(ctx, userID)
	if err != nil {
		return types.CurrentUserContext{}, err
	}

	s.mu.Lock()
	previous := s.userID
	s.userID = cur.User.ID
	s.mu.Unlock()

	if previous == cur.User.ID {
		return cur, nil
	}

	actor := ActorFor(cur.User)
	err = s.store.Update(ctx, store.Audit, func(tx *store.Tx) error {
		tx.AppendAudit(audit.NewEntry(types.EntityUser, cur.User.ID, types.AuditAuthUserSwitched, actor, tx.Now(),
			map[string]any{"from": previous, "to": cur.User.ID}))
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to audit user switch", "error", err)
	} else {
		s.bus.Emit(ctx, types.TopicAudit, types.AuditAuthUserSwitched, cur.User.ID)
	}

	s.bus.Emit(ctx, types.TopicAuth, types.AuditAuthUserSwitched, cur.User.ID)
	s.logger.InfoContext(ctx, "current user switched", "from", previous, "to", cur.User.ID)
	return cur, nil
}

// ActorFor builds the audit actor of a user.
func ActorFor(u types.User) types.Actor {
	return types.Actor{ID: u.ID, Name: u.Name, Role: u.Role, Type: types.ActorTypeUser}
}
