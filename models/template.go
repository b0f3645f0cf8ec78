package models

import (
	"time"

	"github.com/google/uuid"
)

// PostingPhase is a stage in a listing's posting lifecycle. Phases only move
// forward: launch -> ongoing -> ended. The banner-only state is tracked as an
// overlay flag on the template, not as a phase of its own.
type PostingPhase string

const (
	PhaseLaunch  PostingPhase = "launch"
	PhaseOngoing PostingPhase = "ongoing"
	PhaseEnded   PostingPhase = "ended"
)

// CanTransition reports whether moving from p to next respects the monotonic
// phase order.
func (p PostingPhase) CanTransition(next PostingPhase) bool {
	order := map[PostingPhase]int{
		PhaseLaunch:  0,
		PhaseOngoing: 1,
		PhaseEnded:   2,
	}
	from, ok := order[p]
	if !ok {
		return false
	}
	to, ok := order[next]
	if !ok {
		return false
	}
	return to > from
}

// DurationWeeks returns the configured duration for the given phase, in weeks.
// Zero means the phase is open-ended. The banner overlay overrides the normal
// phase durations: a banner-only template runs for BannerWeeks and then ends.
func (t *ScheduleTemplate) DurationWeeks(phase PostingPhase) int {
	if t.BannerOnly {
		return t.BannerWeeks
	}
	switch phase {
	case PhaseLaunch:
		return t.LaunchWeeks
	case PhaseOngoing:
		return t.OngoingWeeks
	default:
		return 0
	}
}

// ScheduleTemplate is a listing's recurring posting policy. Exactly one
// active template exists per listing at a time (enforced by a partial unique
// index on listing_id WHERE is_active).
type ScheduleTemplate struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	ListingID      uuid.UUID    `json:"listing_id" db:"listing_id"`
	OrganizationID uuid.UUID    `json:"organization_id" db:"organization_id"`
	DaysOfWeek     []int        `json:"days_of_week" db:"days_of_week"` // 0=Sunday .. 6=Saturday
	Frequency      int          `json:"frequency" db:"frequency"`       // posts per week
	CurrentPhase   PostingPhase `json:"current_phase" db:"current_phase"`
	BannerOnly     bool         `json:"banner_only" db:"banner_only"`
	LaunchWeeks    int          `json:"launch_weeks" db:"launch_weeks"`
	OngoingWeeks   int          `json:"ongoing_weeks" db:"ongoing_weeks"`
	BannerWeeks    int          `json:"banner_weeks" db:"banner_weeks"`
	WindowStart    string       `json:"window_start" db:"window_start"` // "HH:MM" local
	WindowEnd      string       `json:"window_end" db:"window_end"`
	JitterSeconds  int          `json:"jitter_seconds" db:"jitter_seconds"`
	Platforms      []Platform   `json:"platforms" db:"platforms"`
	IsRecurring    bool         `json:"is_recurring" db:"is_recurring"`
	IsActive       bool         `json:"is_active" db:"is_active"`
	PhaseStartedAt time.Time    `json:"phase_started_at" db:"phase_started_at"`
	StartedAt      time.Time    `json:"started_at" db:"started_at"`
	EndsAt         *time.Time   `json:"ends_at" db:"ends_at"` // nil = open-ended
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// PhaseExhausted reports whether the current phase's duration window has
// elapsed as of now. Open-ended phases (zero weeks) never exhaust.
func (t *ScheduleTemplate) PhaseExhausted(now time.Time) bool {
	weeks := t.DurationWeeks(t.CurrentPhase)
	if weeks <= 0 {
		return false
	}
	return now.After(t.PhaseStartedAt.AddDate(0, 0, weeks*7))
}

// NextPhase returns the phase that follows the current one. A banner-only
// template has nothing after its banner window, so it always ends next.
func (t *ScheduleTemplate) NextPhase() PostingPhase {
	if t.BannerOnly {
		return PhaseEnded
	}
	switch t.CurrentPhase {
	case PhaseLaunch:
		return PhaseOngoing
	default:
		return PhaseEnded
	}
}
