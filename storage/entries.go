package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"listing_poster/models"
)

// =============================================================================
// Post Entries (listing_posting_schedule)
// =============================================================================

const entryCols = `id, listing_id, organization_id, template_id, scheduled_for, slot_date,
	post_number, jitter_seconds, window_start, window_end, platforms, done_platforms,
	content_type, status, retry_count, error_message, claimed_at, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (*models.PostEntry, error) {
	var e models.PostEntry
	var platforms, done []string
	err := row.Scan(
		&e.ID, &e.ListingID, &e.OrganizationID, &e.TemplateID, &e.ScheduledFor, &e.SlotDate,
		&e.PostNumber, &e.JitterSeconds, &e.WindowStart, &e.WindowEnd, &platforms, &done,
		&e.ContentType, &e.Status, &e.RetryCount, &e.ErrorMessage, &e.ClaimedAt, &e.PostedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Platforms = toPlatforms(platforms)
	e.DonePlatforms = toPlatforms(done)
	return &e, nil
}

func (s *PostgresStore) CreateEntry(ctx context.Context, e *models.PostEntry) error {
	query := `
		INSERT INTO listing_posting_schedule (
			id, listing_id, organization_id, template_id, scheduled_for, slot_date,
			post_number, jitter_seconds, window_start, window_end, platforms, done_platforms,
			content_type, status, retry_count, error_message, claimed_at, posted_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		e.ID, e.ListingID, e.OrganizationID, e.TemplateID, e.ScheduledFor, e.SlotDate,
		e.PostNumber, e.JitterSeconds, e.WindowStart, e.WindowEnd, fromPlatforms(e.Platforms), fromPlatforms(e.DonePlatforms),
		e.ContentType, e.Status, e.RetryCount, e.ErrorMessage, e.ClaimedAt, e.PostedAt, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
}

func (s *PostgresStore) GetEntryByID(ctx context.Context, id uuid.UUID) (*models.PostEntry, error) {
	query := `SELECT ` + entryCols + ` FROM listing_posting_schedule WHERE id = $1`
	return scanEntry(s.pool.QueryRow(ctx, query, id))
}

// SlotTaken reports whether a non-cancelled entry already exists for the
// (listing, day, post-number-in-day) tuple. This is the generator's
// idempotence check for overlapping horizons.
func (s *PostgresStore) SlotTaken(ctx context.Context, listingID uuid.UUID, slotDate time.Time, postNumber int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM listing_posting_schedule
			WHERE listing_id = $1 AND slot_date = $2 AND post_number = $3 AND status != 'cancelled'
		)`

	var taken bool
	err := s.pool.QueryRow(ctx, query, listingID, slotDate, postNumber).Scan(&taken)
	return taken, err
}

// GetDueEntries returns pending entries whose scheduled time has passed,
// oldest first.
func (s *PostgresStore) GetDueEntries(ctx context.Context, now time.Time, limit int) ([]models.PostEntry, error) {
	query := `SELECT ` + entryCols + ` FROM listing_posting_schedule
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.PostEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ClaimEntry transitions pending -> processing with a compare-and-swap so
// two overlapping dispatcher runs cannot both claim the same entry.
func (s *PostgresStore) ClaimEntry(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE listing_posting_schedule
		SET status = 'processing', claimed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetEntryContentType pins the content type chosen on the first dispatch
// attempt, so retries keep publishing the same creative to the platforms
// that have not succeeded yet.
func (s *PostgresStore) SetEntryContentType(ctx context.Context, id uuid.UUID, contentType string) error {
	query := `
		UPDATE listing_posting_schedule
		SET content_type = $2, updated_at = NOW()
		WHERE id = $1 AND content_type = ''`

	_, err := s.pool.Exec(ctx, query, id, contentType)
	return err
}

// MarkEntryPosted finalizes a fully published entry.
func (s *PostgresStore) MarkEntryPosted(ctx context.Context, id uuid.UUID, done []models.Platform, postedAt time.Time) error {
	query := `
		UPDATE listing_posting_schedule
		SET status = 'posted', done_platforms = $2, posted_at = $3, error_message = '', updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`

	_, err := s.pool.Exec(ctx, query, id, fromPlatforms(done), postedAt)
	return err
}

// RescheduleEntry returns a partially published entry to pending at a later
// time, keeping per-platform progress so only unfinished platforms retry.
func (s *PostgresStore) RescheduleEntry(ctx context.Context, id uuid.UUID, at time.Time, retryCount int, done []models.Platform, errMsg string) error {
	query := `
		UPDATE listing_posting_schedule
		SET status = 'pending', scheduled_for = $2, retry_count = $3, done_platforms = $4,
			error_message = $5, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`

	_, err := s.pool.Exec(ctx, query, id, at, retryCount, fromPlatforms(done), errMsg)
	return err
}

// MarkEntryFailed terminally fails an entry; failed entries are never
// reclaimed by later runs.
func (s *PostgresStore) MarkEntryFailed(ctx context.Context, id uuid.UUID, done []models.Platform, errMsg string) error {
	query := `
		UPDATE listing_posting_schedule
		SET status = 'failed', done_platforms = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`

	_, err := s.pool.Exec(ctx, query, id, fromPlatforms(done), errMsg)
	return err
}

// RetryFailedEntry is the operator's manual requeue of a terminally failed
// entry.
func (s *PostgresStore) RetryFailedEntry(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE listing_posting_schedule
		SET status = 'pending', scheduled_for = $2, retry_count = 0, error_message = '', updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`

	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelPendingEntriesForListing bulk-cancels the queue for a listing.
// Posted history is untouched.
func (s *PostgresStore) CancelPendingEntriesForListing(ctx context.Context, listingID uuid.UUID) (int, error) {
	query := `
		UPDATE listing_posting_schedule
		SET status = 'cancelled', updated_at = NOW()
		WHERE listing_id = $1 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, listingID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ReclaimStuckEntries returns entries stuck in processing beyond the timeout
// to pending so a later run can pick them up. The claim CAS makes the
// overlap safe.
func (s *PostgresStore) ReclaimStuckEntries(ctx context.Context, olderThan time.Duration) (int, error) {
	query := `
		UPDATE listing_posting_schedule
		SET status = 'pending', claimed_at = NULL, updated_at = NOW()
		WHERE status = 'processing' AND claimed_at < $1`

	tag, err := s.pool.Exec(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
