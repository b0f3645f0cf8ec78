package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the state of a delayed status-change verification.
// Confirmed, Cancelled and Failed are terminal.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationConfirmed VerificationStatus = "confirmed"
	VerificationCancelled VerificationStatus = "cancelled"
	VerificationFailed    VerificationStatus = "failed"
)

// StatusVerification is a debounce record for an externally detected listing
// status change. Only one pending verification exists per listing; a newer
// status-change event supersedes (cancels) an older pending one.
type StatusVerification struct {
	ID                  uuid.UUID          `json:"id" db:"id"`
	ListingID           uuid.UUID          `json:"listing_id" db:"listing_id"`
	OldStatus           ListingStatus      `json:"old_status" db:"old_status"`
	NewStatus           ListingStatus      `json:"new_status" db:"new_status"`
	DetectedAt          time.Time          `json:"detected_at" db:"detected_at"`
	ScheduledFor        time.Time          `json:"verification_scheduled_for" db:"verification_scheduled_for"`
	Status              VerificationStatus `json:"verification_status" db:"verification_status"`
	AutomationTriggered bool               `json:"automation_triggered" db:"automation_triggered"`
	ErrorMessage        string             `json:"error_message" db:"error_message"`
	ResolvedAt          *time.Time         `json:"resolved_at" db:"resolved_at"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
}

// Due reports whether the verification delay has elapsed.
func (v *StatusVerification) Due(now time.Time) bool {
	return v.Status == VerificationPending && !now.Before(v.ScheduledFor)
}
