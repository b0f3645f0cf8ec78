package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"listing_poster/config"
	"listing_poster/models"
	"listing_poster/publisher"
	"listing_poster/storage"
)

// DispatchService claims due post entries, publishes them platform by
// platform, and records the outcomes. Overlapping runs are safe: entries are
// claimed with a status compare-and-swap.
type DispatchService struct {
	store   dispatchStore
	pub     publisher.Publisher
	content contentSource
	cfg     config.DispatchConfig
	owner   string
}

// dispatchStore is the slice of the store the dispatcher touches, satisfied
// by *storage.PostgresStore.
type dispatchStore interface {
	AcquireSlot(ctx context.Context, family, owner string, maxSlots int, ttl time.Duration) (uuid.UUID, error)
	ReleaseSlot(ctx context.Context, executionID uuid.UUID) error
	CreateRun(ctx context.Context, run *models.ProcessingRun) error
	UpdateRun(ctx context.Context, run *models.ProcessingRun) error
	ReclaimStuckEntries(ctx context.Context, olderThan time.Duration) (int, error)
	GetDueEntries(ctx context.Context, now time.Time, limit int) ([]models.PostEntry, error)
	GetEntryByID(ctx context.Context, id uuid.UUID) (*models.PostEntry, error)
	ClaimEntry(ctx context.Context, id uuid.UUID) (bool, error)
	SetEntryContentType(ctx context.Context, id uuid.UUID, contentType string) error
	MarkEntryPosted(ctx context.Context, id uuid.UUID, done []models.Platform, postedAt time.Time) error
	RescheduleEntry(ctx context.Context, id uuid.UUID, at time.Time, retryCount int, done []models.Platform, errMsg string) error
	MarkEntryFailed(ctx context.Context, id uuid.UUID, done []models.Platform, errMsg string) error
	RetryFailedEntry(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	CreateUploadResult(ctx context.Context, r *models.UploadResult) error
	IncrementPostCounter(ctx context.Context, listingID uuid.UUID, contentType string, postedAt time.Time) error
}

// contentSource picks and renders the material for an entry.
type contentSource interface {
	NextContentType(ctx context.Context, listingID uuid.UUID) (string, error)
	Render(ctx context.Context, e *models.PostEntry) (*RenderedPost, error)
}

func NewDispatchService(store *storage.PostgresStore, pub publisher.Publisher, content *ContentService, cfg config.DispatchConfig) *DispatchService {
	host, _ := os.Hostname()
	return &DispatchService{
		store:   store,
		pub:     pub,
		content: content,
		cfg:     cfg,
		owner:   fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

// DispatchResult is the outcome of one dispatcher batch, the return shape of
// the periodic trigger entrypoint.
type DispatchResult struct {
	RunID     int64  `json:"run_id"`
	Found     int    `json:"found"`
	Posted    int    `json:"posted"`
	Retried   int    `json:"retried"`
	Failed    int    `json:"failed"`
	Reclaimed int    `json:"reclaimed"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// entryOutcome is the aggregate decision for one entry after a dispatch pass.
type entryOutcome int

const (
	outcomePosted entryOutcome = iota
	outcomeRetry
	outcomeFailed
)

// resolveOutcome decides an entry's fate from its per-platform progress.
// Policy: posted only when every requested platform succeeded; failed once
// retries are exhausted or a permanent error occurred; retry otherwise.
func resolveOutcome(remaining int, permanentFailure bool, retryCount, maxRetries int) entryOutcome {
	if remaining == 0 {
		return outcomePosted
	}
	if permanentFailure || retryCount >= maxRetries {
		return outcomeFailed
	}
	return outcomeRetry
}

// nextRetryAt computes the backoff schedule: base * 2^retry, capped.
func nextRetryAt(now time.Time, base, max time.Duration, retryCount int) time.Time {
	backoff := base
	for i := 0; i < retryCount && backoff < max; i++ {
		backoff *= 2
	}
	if backoff > max {
		backoff = max
	}
	return now.Add(backoff)
}

// ProcessScheduledPosts runs one dispatch batch: reclaims entries stuck in
// processing, claims due pending entries oldest-first, and publishes each.
// Per-entry failures never abort the batch.
func (s *DispatchService) ProcessScheduledPosts(ctx context.Context) (*DispatchResult, error) {
	// Publishing is the rate-limited shared resource: only PublishSlots
	// batches run against the upload-post service at once, across instances.
	slotID, err := s.store.AcquireSlot(ctx, models.PublishSlotFamily, s.owner, s.cfg.PublishSlots, s.cfg.SlotTTL)
	if err != nil {
		if errors.Is(err, storage.ErrLockHeld) {
			log.Printf("Dispatcher: publish slots busy, skipping batch")
			return &DispatchResult{Success: true, Message: "publish slots busy, batch skipped"}, nil
		}
		return nil, fmt.Errorf("acquire publish slot: %w", err)
	}
	defer func() {
		if err := s.store.ReleaseSlot(ctx, slotID); err != nil {
			log.Printf("Dispatcher: release publish slot: %v", err)
		}
	}()

	run := &models.ProcessingRun{
		Kind:      models.RunKindDispatch,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	result := &DispatchResult{RunID: run.ID}
	var runErrors []models.RunError

	reclaimed, err := s.store.ReclaimStuckEntries(ctx, s.cfg.ProcessingTimeout)
	if err != nil {
		log.Printf("Dispatcher: reclaim stuck entries: %v", err)
	} else if reclaimed > 0 {
		log.Printf("Dispatcher: reclaimed %d stuck entries", reclaimed)
		result.Reclaimed = reclaimed
	}

	entries, err := s.store.GetDueEntries(ctx, time.Now(), s.cfg.BatchSize)
	if err != nil {
		s.failRun(ctx, run, err)
		return nil, fmt.Errorf("get due entries: %w", err)
	}
	run.ItemsFound = len(entries)
	result.Found = len(entries)

	for i := range entries {
		e := &entries[i]

		claimed, err := s.store.ClaimEntry(ctx, e.ID)
		if err != nil {
			log.Printf("Dispatcher: claim %s: %v", e.ID, err)
			continue
		}
		if !claimed {
			// Another run got it first.
			run.ItemsSkipped++
			continue
		}

		outcome, errMsg := s.dispatchEntry(ctx, e)
		switch outcome {
		case outcomePosted:
			run.ItemsOK++
			result.Posted++
		case outcomeRetry:
			run.ItemsOK++
			result.Retried++
		case outcomeFailed:
			run.ItemsFailed++
			result.Failed++
			runErrors = append(runErrors, models.RunError{ItemID: e.ID.String(), Message: errMsg})
		}
	}

	s.completeRun(ctx, run, runErrors)
	result.Success = run.Status != models.RunStatusFailed
	result.Message = fmt.Sprintf("dispatched %d of %d due entries (%d retried, %d failed)",
		result.Posted, result.Found, result.Retried, result.Failed)
	return result, nil
}

// dispatchEntry publishes one claimed entry to each remaining platform and
// settles its status. Platforms that already succeeded on earlier attempts
// are not re-published.
func (s *DispatchService) dispatchEntry(ctx context.Context, e *models.PostEntry) (entryOutcome, string) {
	now := time.Now()

	if e.ContentType == "" {
		contentType, err := s.content.NextContentType(ctx, e.ListingID)
		if err != nil {
			log.Printf("Dispatcher: content type for %s: %v", e.ListingID, err)
			contentType = "photo_feature"
		}
		e.ContentType = contentType
		// Pin the choice so a partial retry publishes the same creative to
		// the platforms that have not succeeded yet.
		if err := s.store.SetEntryContentType(ctx, e.ID, contentType); err != nil {
			log.Printf("Dispatcher: persist content type for %s: %v", e.ID, err)
		}
	}

	post, err := s.content.Render(ctx, e)
	if err != nil {
		// Rendering is local work; its failures are permanent for this pass.
		msg := fmt.Sprintf("render: %v", err)
		s.settleFailed(ctx, e, e.DonePlatforms, msg)
		return outcomeFailed, msg
	}

	done := append([]models.Platform(nil), e.DonePlatforms...)
	permanent := false
	var lastErr string

	for _, platform := range e.RemainingPlatforms() {
		req := &publisher.Request{
			RequestID:   uuid.New(),
			EntryID:     e.ID,
			ListingID:   e.ListingID,
			Platform:    platform,
			ContentType: e.ContentType,
			Caption:     post.Caption,
			MediaURLs:   post.MediaURLs,
		}

		res, pubErr := s.pub.Publish(ctx, req)
		completedAt := time.Now()

		upload := &models.UploadResult{
			RequestID:   req.RequestID,
			EntryID:     e.ID,
			Platform:    platform,
			CompletedAt: &completedAt,
			CreatedAt:   now,
		}

		if pubErr != nil {
			upload.Success = false
			upload.ErrorMessage = pubErr.Error()
			lastErr = fmt.Sprintf("%s: %v", platform, pubErr)
			if !publisher.IsTransient(pubErr) {
				permanent = true
			}
			log.Printf("Dispatcher: publish %s to %s failed: %v", e.ID, platform, pubErr)
		} else {
			upload.Success = true
			upload.PlatformPostID = res.PlatformPostID
			upload.PostURL = res.PostURL
			done = append(done, platform)
		}

		if err := s.store.CreateUploadResult(ctx, upload); err != nil {
			log.Printf("Dispatcher: record upload result %s: %v", req.RequestID, err)
		}
	}

	outcome := resolveOutcome(len(e.Platforms)-len(done), permanent, e.RetryCount, s.cfg.MaxRetries)
	switch outcome {
	case outcomePosted:
		postedAt := time.Now()
		if err := s.store.MarkEntryPosted(ctx, e.ID, done, postedAt); err != nil {
			log.Printf("Dispatcher: mark posted %s: %v", e.ID, err)
		}
		if err := s.store.IncrementPostCounter(ctx, e.ListingID, e.ContentType, postedAt); err != nil {
			log.Printf("Dispatcher: increment counter %s: %v", e.ListingID, err)
		}
		log.Printf("Dispatcher: posted %s to %d platform(s)", e.ID, len(done))
	case outcomeRetry:
		retryAt := nextRetryAt(now, s.cfg.BackoffBase, s.cfg.BackoffCap, e.RetryCount)
		if err := s.store.RescheduleEntry(ctx, e.ID, retryAt, e.RetryCount+1, done, lastErr); err != nil {
			log.Printf("Dispatcher: reschedule %s: %v", e.ID, err)
		}
		log.Printf("Dispatcher: entry %s retry %d at %s", e.ID, e.RetryCount+1, retryAt.Format(time.RFC3339))
	case outcomeFailed:
		s.settleFailed(ctx, e, done, lastErr)
	}
	return outcome, lastErr
}

// settleFailed persists the terminal failure, keeping the per-platform
// progress made during the final pass so an operator retry does not
// re-publish platforms that already succeeded.
func (s *DispatchService) settleFailed(ctx context.Context, e *models.PostEntry, done []models.Platform, msg string) {
	if err := s.store.MarkEntryFailed(ctx, e.ID, done, msg); err != nil {
		log.Printf("Dispatcher: mark failed %s: %v", e.ID, err)
	}
	log.Printf("Dispatcher: entry %s failed: %s", e.ID, msg)
}

// RetryEntry is the operator's manual requeue of a failed entry.
func (s *DispatchService) RetryEntry(ctx context.Context, entryID uuid.UUID) error {
	e, err := s.store.GetEntryByID(ctx, entryID)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("entry %s not found", entryID)
	}
	if e.Status != models.EntryStatusFailed {
		return fmt.Errorf("entry %s is %s, not failed", entryID, e.Status)
	}

	requeued, err := s.store.RetryFailedEntry(ctx, entryID, time.Now())
	if err != nil {
		return err
	}
	if !requeued {
		return fmt.Errorf("entry %s is not in failed state", entryID)
	}
	log.Printf("Dispatcher: entry %s requeued by operator", entryID)
	return nil
}

func (s *DispatchService) failRun(ctx context.Context, run *models.ProcessingRun, cause error) {
	now := time.Now()
	run.CompletedAt = &now
	run.Status = models.RunStatusFailed
	run.ErrorMessage = cause.Error()
	if err := s.store.UpdateRun(ctx, run); err != nil {
		log.Printf("Dispatcher: update run %d: %v", run.ID, err)
	}
}

func (s *DispatchService) completeRun(ctx context.Context, run *models.ProcessingRun, runErrors []models.RunError) {
	now := time.Now()
	run.CompletedAt = &now
	run.Status = run.FinalStatus()
	if len(runErrors) > 0 {
		if data, err := json.Marshal(runErrors); err == nil {
			run.Errors = data
		}
	}
	if err := s.store.UpdateRun(ctx, run); err != nil {
		log.Printf("Dispatcher: update run %d: %v", run.ID, err)
	}
}
