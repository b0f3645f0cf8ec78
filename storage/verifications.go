package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"listing_poster/models"
)

// =============================================================================
// Status Verifications (listing_status_verifications)
// =============================================================================

const verificationCols = `id, listing_id, old_status, new_status, detected_at,
	verification_scheduled_for, verification_status, automation_triggered,
	error_message, resolved_at, created_at`

func scanVerification(row pgx.Row) (*models.StatusVerification, error) {
	var v models.StatusVerification
	err := row.Scan(
		&v.ID, &v.ListingID, &v.OldStatus, &v.NewStatus, &v.DetectedAt,
		&v.ScheduledFor, &v.Status, &v.AutomationTriggered,
		&v.ErrorMessage, &v.ResolvedAt, &v.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVerificationSuperseding cancels any pending verification for the
// listing and inserts the new one in a single transaction, keeping the
// one-pending-per-listing invariant.
func (s *PostgresStore) CreateVerificationSuperseding(ctx context.Context, v *models.StatusVerification) (superseded int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE listing_status_verifications
		SET verification_status = 'cancelled', resolved_at = NOW()
		WHERE listing_id = $1 AND verification_status = 'pending'`,
		v.ListingID,
	)
	if err != nil {
		return 0, fmt.Errorf("supersede: %w", err)
	}
	superseded = int(tag.RowsAffected())

	err = tx.QueryRow(ctx, `
		INSERT INTO listing_status_verifications (
			id, listing_id, old_status, new_status, detected_at,
			verification_scheduled_for, verification_status, automation_triggered,
			error_message, resolved_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		v.ID, v.ListingID, v.OldStatus, v.NewStatus, v.DetectedAt,
		v.ScheduledFor, v.Status, v.AutomationTriggered,
		v.ErrorMessage, v.ResolvedAt, v.CreatedAt,
	).Scan(&v.ID)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return superseded, nil
}

func (s *PostgresStore) GetVerificationByID(ctx context.Context, id uuid.UUID) (*models.StatusVerification, error) {
	query := `SELECT ` + verificationCols + ` FROM listing_status_verifications WHERE id = $1`
	return scanVerification(s.pool.QueryRow(ctx, query, id))
}

// GetDueVerifications returns pending verifications whose delay has elapsed,
// oldest first.
func (s *PostgresStore) GetDueVerifications(ctx context.Context, now time.Time, limit int) ([]models.StatusVerification, error) {
	query := `SELECT ` + verificationCols + ` FROM listing_status_verifications
		WHERE verification_status = 'pending' AND verification_scheduled_for <= $1
		ORDER BY verification_scheduled_for
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var verifications []models.StatusVerification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		verifications = append(verifications, *v)
	}
	return verifications, rows.Err()
}

// ResolveVerification moves a pending verification to a terminal state with a
// compare-and-swap, so an already-superseded row cannot be resolved twice.
func (s *PostgresStore) ResolveVerification(ctx context.Context, id uuid.UUID, status models.VerificationStatus, triggered bool, errMsg string) (bool, error) {
	query := `
		UPDATE listing_status_verifications
		SET verification_status = $2, automation_triggered = $3, error_message = $4, resolved_at = NOW()
		WHERE id = $1 AND verification_status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, id, status, triggered, errMsg)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ConfirmRetriedVerification flips a failed verification to confirmed after
// an operator retry successfully re-ran its cascade.
func (s *PostgresStore) ConfirmRetriedVerification(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE listing_status_verifications
		SET verification_status = 'confirmed', automation_triggered = TRUE, error_message = '', resolved_at = NOW()
		WHERE id = $1 AND verification_status = 'failed'`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelPendingVerificationsForListing cancels any pending verification rows
// for a listing, returning the count cancelled.
func (s *PostgresStore) CancelPendingVerificationsForListing(ctx context.Context, listingID uuid.UUID) (int, error) {
	query := `
		UPDATE listing_status_verifications
		SET verification_status = 'cancelled', resolved_at = NOW()
		WHERE listing_id = $1 AND verification_status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, listingID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
