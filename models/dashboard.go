package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleSummary is one row of the operator dashboard: per-listing posting
// state aggregated from the entry queue and the active template.
type ScheduleSummary struct {
	ListingID    uuid.UUID    `json:"listing_id" db:"listing_id"`
	Address      string       `json:"address" db:"address"`
	CurrentPhase PostingPhase `json:"current_phase" db:"current_phase"`
	NextPostAt   *time.Time   `json:"next_post_at" db:"next_post_at"`
	PendingCount int          `json:"pending_count" db:"pending_count"`
	PostedCount  int          `json:"posted_count" db:"posted_count"`
	FailedCount  int          `json:"failed_count" db:"failed_count"`
	LastPostedAt *time.Time   `json:"last_posted_at" db:"last_posted_at"`
}
