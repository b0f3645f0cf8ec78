package models

import (
	"time"

	"github.com/google/uuid"
)

// EntryStatus is the lifecycle state of a scheduled post entry.
type EntryStatus string

const (
	EntryStatusPending    EntryStatus = "pending"
	EntryStatusProcessing EntryStatus = "processing"
	EntryStatusPosted     EntryStatus = "posted"
	EntryStatusFailed     EntryStatus = "failed"
	EntryStatusCancelled  EntryStatus = "cancelled"
)

// Platform identifies a social publishing target.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
)

// PostEntry is one materialized slot in the posting queue. For a given
// (listing_id, slot_date, post_number) at most one non-cancelled entry
// exists; the generator checks before inserting and a partial unique index
// backs it up.
type PostEntry struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	ListingID      uuid.UUID   `json:"listing_id" db:"listing_id"`
	OrganizationID uuid.UUID   `json:"organization_id" db:"organization_id"`
	TemplateID     *uuid.UUID  `json:"template_id" db:"template_id"` // nil for ad hoc posts
	ScheduledFor   time.Time   `json:"scheduled_for" db:"scheduled_for"`
	SlotDate       time.Time   `json:"slot_date" db:"slot_date"` // calendar day of the slot
	PostNumber     int         `json:"post_number" db:"post_number"`
	JitterSeconds  int         `json:"jitter_seconds" db:"jitter_seconds"`
	WindowStart    string      `json:"window_start" db:"window_start"`
	WindowEnd      string      `json:"window_end" db:"window_end"`
	Platforms      []Platform  `json:"platforms" db:"platforms"`
	DonePlatforms  []Platform  `json:"done_platforms" db:"done_platforms"`
	ContentType    string      `json:"content_type" db:"content_type"`
	Status         EntryStatus `json:"status" db:"status"`
	RetryCount     int         `json:"retry_count" db:"retry_count"`
	ErrorMessage   string      `json:"error_message" db:"error_message"`
	ClaimedAt      *time.Time  `json:"claimed_at" db:"claimed_at"`
	PostedAt       *time.Time  `json:"posted_at" db:"posted_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// RemainingPlatforms returns the platforms still awaiting a successful
// publish, preserving the requested order.
func (e *PostEntry) RemainingPlatforms() []Platform {
	done := make(map[Platform]bool, len(e.DonePlatforms))
	for _, p := range e.DonePlatforms {
		done[p] = true
	}
	var remaining []Platform
	for _, p := range e.Platforms {
		if !done[p] {
			remaining = append(remaining, p)
		}
	}
	return remaining
}

// UploadResult records the outcome of one publish call to the external
// upload-post service, keyed by request_id.
type UploadResult struct {
	RequestID      uuid.UUID  `json:"request_id" db:"request_id"`
	EntryID        uuid.UUID  `json:"entry_id" db:"entry_id"`
	Platform       Platform   `json:"platform" db:"platform"`
	Success        bool       `json:"success" db:"success"`
	PlatformPostID string     `json:"platform_post_id" db:"platform_post_id"`
	PostURL        string     `json:"post_url" db:"post_url"`
	ErrorMessage   string     `json:"error_message" db:"error_message"`
	CompletedAt    *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
