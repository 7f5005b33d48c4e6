// Package scheduler runs the console's periodic maintenance.
//
// Tasks are addressed by TaskType so the same code path serves the
// background loop and manual triggers from the API or CLI.
package scheduler

import "time"

// TaskType identifies a maintenance task.
type TaskType string

const (
	TaskOverdueSweep TaskType = "overdue_sweep"
)

// MaintenancePayload requests one task run. ReferenceTime overrides "now"
// for backfills; it must not be later than the clock.
type MaintenancePayload struct {
	Task          TaskType   `json:"task"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Result reports what a task run changed.
type Result struct {
	Task    TaskType  `json:"task"`
	RanAt   time.Time `json:"ran_at"`
	Changed int       `json:"changed"`
}
