package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NamedLock is an advisory lock stored as a row. A row's presence means an
// in-flight run holds the resource; a second acquire for the same resource is
// rejected unless the holder is stale. The same mechanism serializes
// per-listing slot generation and bounds concurrent publish batches.
type NamedLock struct {
	ExecutionID uuid.UUID `json:"execution_id" db:"execution_id"`
	Resource    string    `json:"resource" db:"resource"` // e.g. "schedule:<listing_id>", "publish:slot-0"
	LockedBy    string    `json:"locked_by" db:"locked_by"`
	LockedAt    time.Time `json:"locked_at" db:"locked_at"`
}

// Stale reports whether the lock has outlived its TTL and may be taken over
// by a new acquire. Takeover is a crash-recovery path; the guarded work is
// itself idempotent.
func (l *NamedLock) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.LockedAt) > ttl
}

// ScheduleLockResource returns the lock resource name for a listing's slot
// generation.
func ScheduleLockResource(listingID uuid.UUID) string {
	return "schedule:" + listingID.String()
}

// SlotResource returns the lock resource name for one of a family's bounded
// concurrency slots, e.g. "publish:slot-0".
func SlotResource(family string, slot int) string {
	return family + ":slot-" + strconv.Itoa(slot)
}

// PublishSlotFamily bounds concurrent publish batches against the external
// upload-post service.
const PublishSlotFamily = "publish"
