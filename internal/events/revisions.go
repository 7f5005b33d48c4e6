package events

import (
	"context"
	"sync"
	"time"

	"subadmin/internal/types"
)

// TopicRevision is the change counter of one topic.
type TopicRevision struct {
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// RevisionTracker counts publications per topic so polling clients can tell
// which views are stale.
type RevisionTracker struct {
	mu        sync.RWMutex
	revisions map[types.Topic]TopicRevision
	unsub     func()
}

// NewRevisionTracker subscribes to every topic on bus.
func NewRevisionTracker(bus *Bus) *RevisionTracker {
	t := &RevisionTracker{revisions: make(map[types.Topic]TopicRevision, len(types.AllTopics))}
	for _, topic := range types.AllTopics {
		t.revisions[topic] = TopicRevision{}
	}
	t.unsub = bus.SubscribeAll(t.observe)
	return t
}

func (t *RevisionTracker) observe(_ context.Context, evt types.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.revisions[evt.Topic]
	r.Revision++
	r.UpdatedAt = evt.OccurredAt
	t.revisions[evt.Topic] = r
}

// Snapshot returns a copy of the current counters.
func (t *RevisionTracker) Snapshot() map[types.Topic]TopicRevision {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[types.Topic]TopicRevision, len(t.revisions))
	for k, v := range t.revisions {
		out[k] = v
	}
	return out
}

// Close detaches the tracker from the bus.
func (t *RevisionTracker) Close() {
	if t.unsub != nil {
		t.unsub()
	}
}
