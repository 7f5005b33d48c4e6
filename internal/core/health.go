package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// Stats are counters a probe reports with its verdict, such as collection
// sizes or subscriber counts.
type Stats map[string]int

// HealthProbe checks one subsystem of the console.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) (Stats, error)
}

// ProbeFunc adapts a function into a HealthProbe.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) (Stats, error)
}

func (p ProbeFunc) Name() string { return p.ProbeName }

func (p ProbeFunc) Check(ctx context.Context) (Stats, error) { return p.Fn(ctx) }

type componentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Stats   Stats  `json:"stats,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentHealth `json:"components,omitempty"`
}

// HandleHealth serves GET /health. Probes run concurrently under a shared
// deadline; a probe that errors, panics or misses the deadline makes the
// response 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	pending := make([]chan componentHealth, len(s.HealthProbes))
	for i, p := range s.HealthProbes {
		pending[i] = make(chan componentHealth, 1)
		go func(out chan<- componentHealth) { out <- runProbe(ctx, p) }(pending[i])
	}

	resp := healthResponse{Status: "healthy", Version: s.Config.Build.Version}
	if len(pending) > 0 {
		resp.Components = make(map[string]componentHealth, len(pending))
	}
	for i, p := range s.HealthProbes {
		var c componentHealth
		select {
		case c = <-pending[i]:
		case <-ctx.Done():
			c = componentHealth{Status: "unhealthy", Message: "health check timed out"}
		}
		if c.Status != "healthy" {
			resp.Status = "unhealthy"
		}
		resp.Components[p.Name()] = c
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (c componentHealth) {
	defer func() {
		if rec := recover(); rec != nil {
			c = componentHealth{Status: "unhealthy", Message: fmt.Sprintf("probe panicked: %v", rec)}
		}
	}()
	stats, err := p.Check(ctx)
	if err != nil {
		return componentHealth{Status: "unhealthy", Message: err.Error(), Stats: stats}
	}
	return componentHealth{Status: "healthy", Stats: stats}
}
