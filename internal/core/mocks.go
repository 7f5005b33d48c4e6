package core

import (
	"context"
	"sync"
	"time"

	"subadmin/internal/types"
)

// --- MockActorResolver ---

// MockActorResolver implements ActorResolver for testing. Users maps ids to
// the user context returned by Lookup; unknown ids return not_found_user.
//
// Usage:
//
//	mock := &MockActorResolver{
//	    Current: "usr_005",
//	    Users: map[string]types.CurrentUserContext{
//	        "usr_005": {User: types.User{ID: "usr_005", Role: types.RoleSystemAdmin}},
//	    },
//	}
type MockActorResolver struct {
	Current string
	Users   map[string]types.CurrentUserContext

	// LookupFunc overrides Users when set.
	LookupFunc func(ctx context.Context, userID string) (types.CurrentUserContext, error)

	mu    sync.Mutex
	Calls []string
}

func (m *MockActorResolver) CurrentUserID() string {
	return m.Current
}

// Lookup records the call, then delegates to LookupFunc or Users.
func (m *MockActorResolver) Lookup(ctx context.Context, userID string) (types.CurrentUserContext, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, userID)
	m.mu.Unlock()

	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, userID)
	}
	if cur, ok := m.Users[userID]; ok {
		return cur, nil
	}
	return types.CurrentUserContext{}, types.NewNotFoundError(types.ErrCodeNotFoundUser, "user", userID)
}

// --- MockMetricsCollector ---

// RequestMetric is one RecordRequest call.
type RequestMetric struct {
	Method   string
	Endpoint string
	Status   string
	Duration time.Duration
}

// MockMetricsCollector records every RecordRequest call.
type MockMetricsCollector struct {
	mu    sync.Mutex
	Calls []RequestMetric
}

func (m *MockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, RequestMetric{Method: method, Endpoint: endpoint, Status: status, Duration: duration})
}

// Recorded returns a copy of the calls so far.
func (m *MockMetricsCollector) Recorded() []RequestMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RequestMetric, len(m.Calls))
	copy(out, m.Calls)
	return out
}
