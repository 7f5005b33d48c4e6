package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"subadmin/internal/types"
)

// OverdueMarker marks sent documents past due as overdue.
type OverdueMarker interface {
	SweepOverdue(ctx context.Context, now time.Time) (int, error)
}

// OverdueSweeper periodically flips past-due invoices to OVERDUE.
type OverdueSweeper struct {
	marker   OverdueMarker
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	runs    atomic.Int64
	lastRun atomic.Pointer[Result]
}

func NewOverdueSweeper(m OverdueMarker, clk clock.Clock, interval time.Duration, logger *slog.Logger) *OverdueSweeper {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueSweeper{marker: m, clock: clk, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is cancelled. Failed sweeps are
// logged and retried on the next tick.
func (s *OverdueSweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("overdue sweeper: interval must be positive, got %s", s.interval)
	}
	s.logger.InfoContext(ctx, "overdue sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "overdue sweeper stopped")
			return nil
		case <-s.clock.After(s.interval):
		}

		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "overdue sweep failed", "error", err)
		}
	}
}

// RunOnce sweeps immediately.
func (s *OverdueSweeper) RunOnce(ctx context.Context) (Result, error) {
	return s.sweepAt(ctx, s.clock.Now().UTC())
}

// Dispatch runs the task named by p. A ReferenceTime may replay a past
// instant but never a future one.
func (s *OverdueSweeper) Dispatch(ctx context.Context, p MaintenancePayload) (Result, error) {
	if p.Task != TaskOverdueSweep {
		return Result{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
			"unknown maintenance task", nil, map[string]any{"task": string(p.Task)})
	}
	now := s.clock.Now().UTC()
	if p.ReferenceTime != nil {
		ref := p.ReferenceTime.UTC()
		if ref.After(now) {
			// OVERDUE is only left by payment.
			return Result{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
				"reference_time must not be in the future", nil,
				map[string]any{"reference_time": ref.Format(time.RFC3339), "now": now.Format(time.RFC3339)})
		}
		now = ref
	}
	return s.sweepAt(ctx, now)
}

func (s *OverdueSweeper) sweepAt(ctx context.Context, now time.Time) (Result, error) {
	n, err := s.marker.SweepOverdue(ctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("sweep overdue invoices: %w", err)
	}
	res := Result{Task: TaskOverdueSweep, RanAt: now, Changed: n}
	s.runs.Add(1)
	s.lastRun.Store(&res)
	if n > 0 {
		s.logger.InfoContext(ctx, "overdue sweep completed", "changed", n)
	} else {
		s.logger.DebugContext(ctx, "overdue sweep completed", "changed", 0)
	}
	return res, nil
}

// Runs is the number of completed sweeps.
func (s *OverdueSweeper) Runs() int64 {
	return s.runs.Load()
}

// LastRun returns the most recent completed sweep, if any.
func (s *OverdueSweeper) LastRun() (Result, bool) {
	r := s.lastRun.Load()
	if r == nil {
		return Result{}, false
	}
	return *r, true
}
