package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"subadmin/internal/events"
	"subadmin/internal/types"
)

// Recorder is implemented by every metrics backend.
type Recorder interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	RecordTransition(entity types.EntityType, from, to string)
	RecordEvent(topic types.Topic)
}

// Backend names accepted by METRICS_BACKEND.
const (
	BackendNone       = "none"
	BackendPrometheus = "prometheus"
	BackendCloudWatch = "cloudwatch"
)

type Noop struct{}

func (Noop) RecordRequest(string, string, string, time.Duration)  {}
func (Noop) RecordTransition(types.EntityType, string, string) {}
func (Noop) RecordEvent(types.Topic)                            {}

// Options carries what the configured backend needs.
type Options struct {
	Backend   string
	Namespace string
	// CloudWatch is required for the cloudwatch backend.
	CloudWatch CloudWatchClient
	Logger     *slog.Logger
}

// New returns the recorder for opts.Backend. The Prometheus value is non-nil
// only for the prometheus backend.
func New(opts Options) (Recorder, *Prometheus, error) {
	switch opts.Backend {
	case BackendNone, "":
		return Noop{}, nil, nil
	case BackendPrometheus:
		p := NewPrometheus(opts.Namespace)
		return p, p, nil
	case BackendCloudWatch:
		if opts.CloudWatch == nil {
			return nil, nil, fmt.Errorf("telemetry: cloudwatch backend requires a client")
		}
		return NewCloudWatch(opts.CloudWatch, opts.Namespace, opts.Logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("telemetry: unknown backend %q", opts.Backend)
	}
}

// ObserveBus counts every bus event on r. The returned func unsubscribes.
func ObserveBus(bus *events.Bus, r Recorder) func() {
	return bus.SubscribeAll(func(_ context.Context, e types.Event) {
		r.RecordEvent(e.Topic)
	})
}
