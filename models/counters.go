package models

import (
	"time"

	"github.com/google/uuid"
)

// PostCounter tracks how many posts have gone out for a listing and which
// content type went last, so rotation can avoid repeating a type twice in a
// row.
type PostCounter struct {
	ListingID       uuid.UUID  `json:"listing_id" db:"listing_id"`
	PostCount       int        `json:"post_count" db:"post_count"`
	LastContentType string     `json:"last_content_type" db:"last_content_type"`
	LastPostedAt    *time.Time `json:"last_posted_at" db:"last_posted_at"`
}

// ContentTypeDefinition describes a selectable content type and its rotation
// weight. Higher weight means picked more often.
type ContentTypeDefinition struct {
	Name            string `json:"name" db:"name"`
	FrequencyWeight int    `json:"frequency_weight" db:"frequency_weight"`
	IsActive        bool   `json:"is_active" db:"is_active"`
}
