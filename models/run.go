package models

import (
	"encoding/json"
	"time"
)

type RunKind string

const (
	RunKindGeneration   RunKind = "generation"
	RunKindDispatch     RunKind = "dispatch"
	RunKindVerification RunKind = "verification"
)

type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
)

// ProcessingRun is the audit record for one batch invocation. Append-only:
// after completion only the completion fields are ever set, nothing is
// deleted or rewritten.
type ProcessingRun struct {
	ID           int64           `json:"id" db:"id"`
	Kind         RunKind         `json:"kind" db:"kind"`
	StartedAt    time.Time       `json:"run_started_at" db:"run_started_at"`
	CompletedAt  *time.Time      `json:"run_completed_at" db:"run_completed_at"`
	Status       RunStatus       `json:"status" db:"status"`
	ItemsFound   int             `json:"items_found" db:"items_found"`
	ItemsOK      int             `json:"items_processed" db:"items_processed"`
	ItemsFailed  int             `json:"items_failed" db:"items_failed"`
	ItemsSkipped int             `json:"items_skipped" db:"items_skipped"`
	Errors       json.RawMessage `json:"errors" db:"errors"`
	ErrorMessage string          `json:"error_message" db:"error_message"`
}

// FinalStatus derives the terminal run status from the per-item tallies.
func (r *ProcessingRun) FinalStatus() RunStatus {
	if r.ItemsFailed > 0 {
		return RunStatusCompletedWithErrors
	}
	return RunStatusCompleted
}

// RunError is one per-item failure accumulated into the run's errors array.
type RunError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}
