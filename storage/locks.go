package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"listing_poster/models"
)

// ErrLockHeld is returned when a named lock is already held by a live run.
// It is expected contention, not a failure: the caller skips this cycle.
var ErrLockHeld = errors.New("storage: lock held")

// =============================================================================
// Named Locks (recurring_scheduling_locks)
// =============================================================================

// TryAcquireLock inserts a lock row for the resource and returns the new
// execution ID. If the resource is already locked by a run younger than ttl,
// ErrLockHeld is returned. A lock older than ttl is treated as abandoned and
// taken over; the work guarded by these locks is idempotent, so takeover is a
// recovery path rather than a correctness hazard.
func (s *PostgresStore) TryAcquireLock(ctx context.Context, resource, owner string, ttl time.Duration) (uuid.UUID, error) {
	executionID := uuid.New()

	query := `
		INSERT INTO recurring_scheduling_locks (execution_id, resource, locked_by, locked_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (resource) DO NOTHING
		RETURNING execution_id`

	var got uuid.UUID
	err := s.pool.QueryRow(ctx, query, executionID, resource, owner).Scan(&got)
	if err == nil {
		return got, nil
	}
	if err != pgx.ErrNoRows {
		return uuid.Nil, fmt.Errorf("acquire lock: %w", err)
	}

	// Resource is locked. Take over only if the holder is stale.
	takeover := `
		UPDATE recurring_scheduling_locks
		SET execution_id = $1, locked_by = $2, locked_at = NOW()
		WHERE resource = $3 AND locked_at < $4
		RETURNING execution_id`

	err = s.pool.QueryRow(ctx, takeover, executionID, owner, resource, time.Now().Add(-ttl)).Scan(&got)
	if err == pgx.ErrNoRows {
		return uuid.Nil, ErrLockHeld
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("takeover lock: %w", err)
	}
	return got, nil
}

// ReleaseLock deletes the lock row. Releasing an already-released or
// taken-over lock is a no-op.
func (s *PostgresStore) ReleaseLock(ctx context.Context, executionID uuid.UUID) error {
	query := `DELETE FROM recurring_scheduling_locks WHERE execution_id = $1`
	_, err := s.pool.Exec(ctx, query, executionID)
	return err
}

// ReleaseLocksForResource force-releases whatever holds the resource,
// regardless of owner. Used by the cancellation cascade.
func (s *PostgresStore) ReleaseLocksForResource(ctx context.Context, resource string) error {
	query := `DELETE FROM recurring_scheduling_locks WHERE resource = $1`
	_, err := s.pool.Exec(ctx, query, resource)
	return err
}

// =============================================================================
// Semaphore slots
// =============================================================================

// AcquireSlot grabs one of maxSlots bounded concurrency slots in the given
// resource family, trying each slot in turn. Same row-lock mechanism as
// per-listing scheduling, different resource namespace. Used to bound
// concurrent publish batches against the rate-limited upload-post service;
// the same family mechanism bounds vision-API sessions elsewhere.
func (s *PostgresStore) AcquireSlot(ctx context.Context, family, owner string, maxSlots int, ttl time.Duration) (uuid.UUID, error) {
	for i := 0; i < maxSlots; i++ {
		id, err := s.TryAcquireLock(ctx, models.SlotResource(family, i), owner, ttl)
		if err == ErrLockHeld {
			continue
		}
		if err != nil {
			return uuid.Nil, err
		}
		return id, nil
	}
	return uuid.Nil, ErrLockHeld
}

// ReleaseSlot releases a slot acquired with AcquireSlot.
func (s *PostgresStore) ReleaseSlot(ctx context.Context, executionID uuid.UUID) error {
	return s.ReleaseLock(ctx, executionID)
}
