package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"listing_poster/models"
)

// =============================================================================
// Processing Runs (scheduled_post_processing_runs)
// =============================================================================

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.ProcessingRun) error {
	query := `
		INSERT INTO scheduled_post_processing_runs (
			kind, run_started_at, status, items_found, items_processed, items_failed, items_skipped, errors, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		run.Kind, run.StartedAt, run.Status, run.ItemsFound, run.ItemsOK, run.ItemsFailed, run.ItemsSkipped, run.Errors, run.ErrorMessage,
	).Scan(&run.ID)
}

// UpdateRun sets the completion fields. Runs are never deleted and only
// completion fields change after creation.
func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.ProcessingRun) error {
	query := `
		UPDATE scheduled_post_processing_runs SET
			run_completed_at = $2, status = $3, items_found = $4, items_processed = $5,
			items_failed = $6, items_skipped = $7, errors = $8, error_message = $9
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.CompletedAt, run.Status, run.ItemsFound, run.ItemsOK,
		run.ItemsFailed, run.ItemsSkipped, run.Errors, run.ErrorMessage,
	)
	return err
}

// =============================================================================
// Upload Results (upload_post_results)
// =============================================================================

func (s *PostgresStore) CreateUploadResult(ctx context.Context, r *models.UploadResult) error {
	query := `
		INSERT INTO upload_post_results (
			request_id, entry_id, platform, success, platform_post_id, post_url,
			error_message, completed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (request_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		r.RequestID, r.EntryID, r.Platform, r.Success, r.PlatformPostID, r.PostURL,
		r.ErrorMessage, r.CompletedAt, r.CreatedAt,
	)
	return err
}

// =============================================================================
// Post Counters (listing_post_counters)
// =============================================================================

func (s *PostgresStore) IncrementPostCounter(ctx context.Context, listingID uuid.UUID, contentType string, postedAt time.Time) error {
	query := `
		INSERT INTO listing_post_counters (listing_id, post_count, last_content_type, last_posted_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (listing_id) DO UPDATE SET
			post_count = listing_post_counters.post_count + 1,
			last_content_type = EXCLUDED.last_content_type,
			last_posted_at = EXCLUDED.last_posted_at`

	_, err := s.pool.Exec(ctx, query, listingID, contentType, postedAt)
	return err
}

func (s *PostgresStore) GetPostCounter(ctx context.Context, listingID uuid.UUID) (*models.PostCounter, error) {
	query := `
		SELECT listing_id, post_count, last_content_type, last_posted_at
		FROM listing_post_counters WHERE listing_id = $1`

	var c models.PostCounter
	err := s.pool.QueryRow(ctx, query, listingID).Scan(
		&c.ListingID, &c.PostCount, &c.LastContentType, &c.LastPostedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// =============================================================================
// Content Type Definitions
// =============================================================================

func (s *PostgresStore) GetActiveContentTypes(ctx context.Context) ([]models.ContentTypeDefinition, error) {
	query := `
		SELECT name, frequency_weight, is_active
		FROM content_type_definitions
		WHERE is_active
		ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []models.ContentTypeDefinition
	for rows.Next() {
		var d models.ContentTypeDefinition
		if err := rows.Scan(&d.Name, &d.FrequencyWeight, &d.IsActive); err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// =============================================================================
// Dashboard
// =============================================================================

// GetScheduleSummaries aggregates per-listing posting state for the operator
// dashboard: next pending post, pending/posted/failed counts, last post time.
func (s *PostgresStore) GetScheduleSummaries(ctx context.Context, limit int) ([]models.ScheduleSummary, error) {
	query := `
		SELECT
			l.id, l.address, t.current_phase,
			MIN(e.scheduled_for) FILTER (WHERE e.status = 'pending'),
			COUNT(*) FILTER (WHERE e.status = 'pending'),
			COUNT(*) FILTER (WHERE e.status = 'posted'),
			COUNT(*) FILTER (WHERE e.status = 'failed'),
			MAX(e.posted_at) FILTER (WHERE e.status = 'posted')
		FROM listings l
		JOIN recurring_schedule_templates t ON t.listing_id = l.id AND t.is_active
		LEFT JOIN listing_posting_schedule e ON e.listing_id = l.id
		GROUP BY l.id, l.address, t.current_phase
		ORDER BY l.address
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.ScheduleSummary
	for rows.Next() {
		var sum models.ScheduleSummary
		if err := rows.Scan(
			&sum.ListingID, &sum.Address, &sum.CurrentPhase,
			&sum.NextPostAt, &sum.PendingCount, &sum.PostedCount, &sum.FailedCount, &sum.LastPostedAt,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
