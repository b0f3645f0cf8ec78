package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"listing_poster/models"
)

// pgxPool is the slice of the connection pool the store uses. *pgxpool.Pool
// satisfies it; tests substitute a mock.
type pgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type PostgresStore struct {
	pool pgxPool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// =============================================================================
// Listings
// =============================================================================

const listingCols = `id, organization_id, address, status, portal_url, published_at, archived_at, created_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(
		&l.ID, &l.OrganizationID, &l.Address, &l.Status, &l.PortalURL,
		&l.PublishedAt, &l.ArchivedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) GetListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	query := `SELECT ` + listingCols + ` FROM listings WHERE id = $1`
	return scanListing(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) UpdateListingStatus(ctx context.Context, id uuid.UUID, status models.ListingStatus) error {
	query := `UPDATE listings SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, status)
	return err
}

// =============================================================================
// Schedule Templates
// =============================================================================

const templateCols = `id, listing_id, organization_id, days_of_week, frequency, current_phase,
	banner_only, launch_weeks, ongoing_weeks, banner_weeks, window_start, window_end,
	jitter_seconds, platforms, is_recurring, is_active, phase_started_at, started_at,
	ends_at, created_at, updated_at`

func scanTemplate(row pgx.Row) (*models.ScheduleTemplate, error) {
	var t models.ScheduleTemplate
	var platforms []string
	err := row.Scan(
		&t.ID, &t.ListingID, &t.OrganizationID, &t.DaysOfWeek, &t.Frequency, &t.CurrentPhase,
		&t.BannerOnly, &t.LaunchWeeks, &t.OngoingWeeks, &t.BannerWeeks, &t.WindowStart, &t.WindowEnd,
		&t.JitterSeconds, &platforms, &t.IsRecurring, &t.IsActive, &t.PhaseStartedAt, &t.StartedAt,
		&t.EndsAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Platforms = toPlatforms(platforms)
	return &t, nil
}

func toPlatforms(ss []string) []models.Platform {
	out := make([]models.Platform, 0, len(ss))
	for _, s := range ss {
		out = append(out, models.Platform(s))
	}
	return out
}

func fromPlatforms(ps []models.Platform) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, string(p))
	}
	return out
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, t *models.ScheduleTemplate) error {
	query := `
		INSERT INTO recurring_schedule_templates (
			id, listing_id, organization_id, days_of_week, frequency, current_phase,
			banner_only, launch_weeks, ongoing_weeks, banner_weeks, window_start, window_end,
			jitter_seconds, platforms, is_recurring, is_active, phase_started_at, started_at,
			ends_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		t.ID, t.ListingID, t.OrganizationID, t.DaysOfWeek, t.Frequency, t.CurrentPhase,
		t.BannerOnly, t.LaunchWeeks, t.OngoingWeeks, t.BannerWeeks, t.WindowStart, t.WindowEnd,
		t.JitterSeconds, fromPlatforms(t.Platforms), t.IsRecurring, t.IsActive, t.PhaseStartedAt, t.StartedAt,
		t.EndsAt, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
}

func (s *PostgresStore) GetActiveTemplateForListing(ctx context.Context, listingID uuid.UUID) (*models.ScheduleTemplate, error) {
	query := `SELECT ` + templateCols + ` FROM recurring_schedule_templates
		WHERE listing_id = $1 AND is_active LIMIT 1`
	return scanTemplate(s.pool.QueryRow(ctx, query, listingID))
}

func (s *PostgresStore) GetActiveTemplates(ctx context.Context, limit int) ([]models.ScheduleTemplate, error) {
	query := `SELECT ` + templateCols + ` FROM recurring_schedule_templates
		WHERE is_active AND current_phase != 'ended'
		ORDER BY updated_at
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.ScheduleTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// TransitionTemplatePhase advances the template's phase with a compare-and-swap
// on the current phase, so two overlapping runs cannot double-advance.
func (s *PostgresStore) TransitionTemplatePhase(ctx context.Context, id uuid.UUID, from, to models.PostingPhase) (bool, error) {
	query := `
		UPDATE recurring_schedule_templates
		SET current_phase = $3, phase_started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND current_phase = $2`

	tag, err := s.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetTemplateBannerOnly flips the banner overlay. Enabling it restarts the
// phase clock so the banner window is measured from the status change, not
// from whenever the current phase began.
func (s *PostgresStore) SetTemplateBannerOnly(ctx context.Context, id uuid.UUID, bannerOnly bool) error {
	query := `
		UPDATE recurring_schedule_templates
		SET banner_only = $2,
			phase_started_at = CASE WHEN $2 THEN NOW() ELSE phase_started_at END,
			updated_at = NOW()
		WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, bannerOnly)
	return err
}

// DeactivateTemplate soft-ends a template. Returns false when the template
// was already inactive.
func (s *PostgresStore) DeactivateTemplate(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE recurring_schedule_templates
		SET is_active = FALSE, ends_at = COALESCE(ends_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND is_active`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
