package store

import "time"

// Collection names a store collection.
type Collection string

const (
	Users         Collection = "users"
	Accounts      Collection = "accounts"
	Subscriptions Collection = "subscriptions"
	Requests      Collection = "requests"
	Invoices      Collection = "invoices"
	Audit         Collection = "audit"
)

// Latency is the simulated network delay applied before each store call.
type Latency struct {
	PerCollection map[Collection]time.Duration
	Get           time.Duration
}

// DefaultLatency mirrors the delays the console was designed against.
func DefaultLatency() Latency {
	return Latency{
		PerCollection: map[Collection]time.Duration{
			Users:         200 * time.Millisecond,
			Accounts:      250 * time.Millisecond,
			Subscriptions: 220 * time.Millisecond,
			Requests:      180 * time.Millisecond,
			Invoices:      160 * time.Millisecond,
			Audit:         120 * time.Millisecond,
		},
		Get: 80 * time.Millisecond,
	}
}

// NoLatency disables every delay.
func NoLatency() Latency {
	return Latency{PerCollection: map[Collection]time.Duration{}}
}

// Scaled multiplies every delay by f.
func (l Latency) Scaled(f float64) Latency {
	out := Latency{
		PerCollection: make(map[Collection]time.Duration, len(l.PerCollection)),
		Get:           time.Duration(float64(l.Get) * f),
	}
	for c, d := range l.PerCollection {
		out.PerCollection[c] = time.Duration(float64(d) * f)
	}
	return out
}

func (l Latency) list(c Collection) time.Duration {
	return l.PerCollection[c]
}
