package types

import "time"

// Topic names a change-notification channel on the event bus.
type Topic string

const (
	TopicUsers         Topic = "users:changed"
	TopicAccounts      Topic = "accounts:changed"
	TopicSubscriptions Topic = "subscriptions:changed"
	TopicRequests      Topic = "requests:changed"
	TopicInvoices      Topic = "invoices:changed"
	TopicAuth          Topic = "auth:changed"
	TopicAudit         Topic = "audit:changed"
)

// AllTopics lists every topic in a stable order.
var AllTopics = []Topic{
	TopicUsers, TopicAccounts, TopicSubscriptions, TopicRequests,
	TopicInvoices, TopicAuth, TopicAudit,
}

// Event is a change notification. Payloads are intentionally thin: listeners
// re-read the collection they care about.
type Event struct {
	Topic      Topic     `json:"topic"`
	Action     string    `json:"action,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
