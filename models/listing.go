package models

import (
	"time"

	"github.com/google/uuid"
)

// ListingStatus mirrors the listing lifecycle managed by the agent portal.
type ListingStatus string

const (
	ListingStatusDraft      ListingStatus = "draft"
	ListingStatusPublished  ListingStatus = "published"
	ListingStatusSaleAgreed ListingStatus = "sale_agreed"
	ListingStatusSold       ListingStatus = "sold"
	ListingStatusArchived   ListingStatus = "archived"
)

// Postable reports whether a listing in this status should have posts
// scheduled for it.
func (s ListingStatus) Postable() bool {
	return s == ListingStatusPublished || s == ListingStatusSaleAgreed
}

// Listing is the slice of a property listing the scheduler needs: identity,
// tenant, current status and the portal URL used for live status probes.
type Listing struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	OrganizationID uuid.UUID     `json:"organization_id" db:"organization_id"`
	Address        string        `json:"address" db:"address"`
	Status         ListingStatus `json:"status" db:"status"`
	PortalURL      string        `json:"portal_url" db:"portal_url"`
	PublishedAt    *time.Time    `json:"published_at" db:"published_at"`
	ArchivedAt     *time.Time    `json:"archived_at" db:"archived_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}
