package services

import (
	"context"

	"listing_poster/models"
	"listing_poster/storage"
)

// DashboardService is the operator read surface: aggregate posting state per
// listing, backed by the unified schedule queries.
type DashboardService struct {
	store *storage.PostgresStore
}

func NewDashboardService(store *storage.PostgresStore) *DashboardService {
	return &DashboardService{store: store}
}

// ScheduleSummary returns per-listing next-post time and pending/posted/
// failed counts for every listing with an active template.
func (s *DashboardService) ScheduleSummary(ctx context.Context, limit int) ([]models.ScheduleSummary, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.store.GetScheduleSummaries(ctx, limit)
}
