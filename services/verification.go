package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"listing_poster/config"
	"listing_poster/models"
	"listing_poster/portal"
	"listing_poster/storage"
)

// VerificationService debounces externally detected listing status changes.
// A detected change waits out a configurable delay before any side effects
// fire; if the listing's status moves again in the meantime, the newer event
// supersedes the older one.
type VerificationService struct {
	store    *storage.PostgresStore
	schedule *ScheduleService
	prober   *portal.Prober
	cfg      config.VerificationConfig
}

func NewVerificationService(store *storage.PostgresStore, schedule *ScheduleService, prober *portal.Prober, cfg config.VerificationConfig) *VerificationService {
	return &VerificationService{
		store:    store,
		schedule: schedule,
		prober:   prober,
		cfg:      cfg,
	}
}

// RecordStatusChange registers a detected status change for delayed
// verification, cancelling any pending verification for the same listing.
// A change back to the old status still goes through the same machinery:
// the sweep will simply find the statuses equal and cancel.
func (s *VerificationService) RecordStatusChange(ctx context.Context, listingID uuid.UUID, oldStatus, newStatus models.ListingStatus) (*models.StatusVerification, error) {
	if oldStatus == newStatus {
		return nil, fmt.Errorf("status unchanged (%s)", newStatus)
	}

	now := time.Now()
	v := &models.StatusVerification{
		ID:           uuid.New(),
		ListingID:    listingID,
		OldStatus:    oldStatus,
		NewStatus:    newStatus,
		DetectedAt:   now,
		ScheduledFor: now.Add(s.cfg.Delay),
		Status:       models.VerificationPending,
		CreatedAt:    now,
	}

	superseded, err := s.store.CreateVerificationSuperseding(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}
	if superseded > 0 {
		log.Printf("Verifier: superseded %d pending verification(s) for %s", superseded, listingID)
	}
	log.Printf("Verifier: %s status %s -> %s, verifying at %s",
		listingID, oldStatus, newStatus, v.ScheduledFor.Format(time.RFC3339))
	return v, nil
}

// VerificationResult is the outcome of one sweep, the return shape of the
// periodic verification entrypoint.
type VerificationResult struct {
	RunID     int64  `json:"run_id"`
	Found     int    `json:"verifications_found"`
	Processed int    `json:"verifications_processed"`
	Confirmed int    `json:"confirmed"`
	Cancelled int    `json:"cancelled"`
	Failed    int    `json:"failed"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// ProcessDueVerifications sweeps verifications whose delay has elapsed,
// re-reads the live status and resolves each: confirm (side effects fire),
// cancel (status reverted), or fail (cascade error, manual retry only).
func (s *VerificationService) ProcessDueVerifications(ctx context.Context) (*VerificationResult, error) {
	run := &models.ProcessingRun{
		Kind:      models.RunKindVerification,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	result := &VerificationResult{RunID: run.ID}
	var runErrors []models.RunError

	due, err := s.store.GetDueVerifications(ctx, time.Now(), s.cfg.BatchSize)
	if err != nil {
		s.failRun(ctx, run, err)
		return nil, fmt.Errorf("get due verifications: %w", err)
	}
	run.ItemsFound = len(due)
	result.Found = len(due)

	for i := range due {
		v := &due[i]
		status, err := s.resolve(ctx, v)
		if err != nil {
			log.Printf("Verifier: %s: %v", v.ID, err)
			run.ItemsFailed++
			result.Failed++
			runErrors = append(runErrors, models.RunError{ItemID: v.ID.String(), Message: err.Error()})
			continue
		}
		run.ItemsOK++
		result.Processed++
		switch status {
		case models.VerificationConfirmed:
			result.Confirmed++
		case models.VerificationCancelled:
			result.Cancelled++
		}
	}

	s.completeRun(ctx, run, runErrors)
	result.Success = run.Status != models.RunStatusFailed
	result.Message = fmt.Sprintf("processed %d of %d due verifications (%d confirmed, %d cancelled, %d failed)",
		result.Processed, result.Found, result.Confirmed, result.Cancelled, result.Failed)
	return result, nil
}

// resolve settles a single due verification.
func (s *VerificationService) resolve(ctx context.Context, v *models.StatusVerification) (models.VerificationStatus, error) {
	listing, err := s.store.GetListingByID(ctx, v.ListingID)
	if err != nil {
		return "", fmt.Errorf("get listing: %w", err)
	}
	if listing == nil {
		// Listing hard-deleted during the delay; nothing to act on.
		if _, err := s.store.ResolveVerification(ctx, v.ID, models.VerificationCancelled, false, "listing no longer exists"); err != nil {
			return "", err
		}
		return models.VerificationCancelled, nil
	}

	live := listing.Status
	if s.cfg.ProbeLive && s.prober != nil && listing.PortalURL != "" {
		probe, err := s.prober.Probe(ctx, listing.PortalURL)
		if err != nil {
			log.Printf("Verifier: portal probe for %s: %v (using stored status)", v.ListingID, err)
		} else if probe.Found {
			live = probe.Status
			if live != listing.Status {
				// The portal moved ahead of our record; sync it so later
				// sweeps and the dashboard see the real state.
				if err := s.store.UpdateListingStatus(ctx, listing.ID, live); err != nil {
					log.Printf("Verifier: sync listing %s status: %v", listing.ID, err)
				}
			}
		}
	}

	if live != v.NewStatus {
		// Reverted or moved elsewhere before the delay elapsed. Not an
		// error; the newer state has its own verification if one is needed.
		if _, err := s.store.ResolveVerification(ctx, v.ID, models.VerificationCancelled, false, ""); err != nil {
			return "", err
		}
		log.Printf("Verifier: %s cancelled (live %s != expected %s)", v.ID, live, v.NewStatus)
		return models.VerificationCancelled, nil
	}

	if err := s.applyTransition(ctx, listing, v); err != nil {
		// Failed is terminal; re-running a partially applied cascade could
		// double-trigger side effects, so operators retry explicitly.
		if _, rerr := s.store.ResolveVerification(ctx, v.ID, models.VerificationFailed, false, err.Error()); rerr != nil {
			return "", rerr
		}
		return models.VerificationFailed, err
	}

	if _, err := s.store.ResolveVerification(ctx, v.ID, models.VerificationConfirmed, true, ""); err != nil {
		return "", err
	}
	log.Printf("Verifier: %s confirmed %s -> %s", v.ListingID, v.OldStatus, v.NewStatus)
	return models.VerificationConfirmed, nil
}

// applyTransition fires the confirmed change's side effects on the posting
// automation.
func (s *VerificationService) applyTransition(ctx context.Context, listing *models.Listing, v *models.StatusVerification) error {
	switch v.NewStatus {
	case models.ListingStatusPublished:
		// Entering (or returning to) the postable phase: make sure a
		// template exists so slot generation picks the listing up.
		_, err := s.schedule.EnsureTemplateForListing(ctx, listing, []models.Platform{
			models.PlatformFacebook, models.PlatformInstagram,
		})
		return err

	case models.ListingStatusSaleAgreed:
		// Drop the remaining promotional queue and switch to banner posts.
		if _, err := s.store.CancelPendingEntriesForListing(ctx, listing.ID); err != nil {
			return fmt.Errorf("cancel entries: %w", err)
		}
		t, err := s.store.GetActiveTemplateForListing(ctx, listing.ID)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if t != nil {
			if err := s.store.SetTemplateBannerOnly(ctx, t.ID, true); err != nil {
				return fmt.Errorf("set banner only: %w", err)
			}
		}
		return nil

	case models.ListingStatusSold:
		// Banner phase runs its configured weeks, then the generator's
		// phase-exhaustion pass ends the template.
		if _, err := s.store.CancelPendingEntriesForListing(ctx, listing.ID); err != nil {
			return fmt.Errorf("cancel entries: %w", err)
		}
		t, err := s.store.GetActiveTemplateForListing(ctx, listing.ID)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if t != nil {
			if err := s.store.SetTemplateBannerOnly(ctx, t.ID, true); err != nil {
				return fmt.Errorf("set banner only: %w", err)
			}
			if t.CurrentPhase.CanTransition(models.PhaseOngoing) {
				if _, err := s.store.TransitionTemplatePhase(ctx, t.ID, t.CurrentPhase, models.PhaseOngoing); err != nil {
					return fmt.Errorf("phase transition: %w", err)
				}
			}
		}
		return nil

	case models.ListingStatusArchived:
		_, err := s.schedule.CancelListingAutomation(ctx, listing.ID)
		return err

	default:
		return nil
	}
}

// RetryFailedVerification re-runs a terminally failed verification's cascade
// on explicit operator request.
func (s *VerificationService) RetryFailedVerification(ctx context.Context, id uuid.UUID) error {
	v, err := s.store.GetVerificationByID(ctx, id)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("verification %s not found", id)
	}
	if v.Status != models.VerificationFailed {
		return fmt.Errorf("verification %s is %s, not failed", id, v.Status)
	}

	listing, err := s.store.GetListingByID(ctx, v.ListingID)
	if err != nil {
		return err
	}
	if listing == nil {
		return fmt.Errorf("listing %s not found", v.ListingID)
	}
	if listing.Status != v.NewStatus {
		return fmt.Errorf("listing %s status moved on (%s), retry is moot", v.ListingID, listing.Status)
	}
	if err := s.applyTransition(ctx, listing, v); err != nil {
		return err
	}
	if _, err := s.store.ConfirmRetriedVerification(ctx, v.ID); err != nil {
		return fmt.Errorf("confirm retried verification: %w", err)
	}
	log.Printf("Verifier: %s confirmed on operator retry", v.ID)
	return nil
}

func (s *VerificationService) failRun(ctx context.Context, run *models.ProcessingRun, cause error) {
	now := time.Now()
	run.CompletedAt = &now
	run.Status = models.RunStatusFailed
	run.ErrorMessage = cause.Error()
	if err := s.store.UpdateRun(ctx, run); err != nil {
		log.Printf("Verifier: update run %d: %v", run.ID, err)
	}
}

func (s *VerificationService) completeRun(ctx context.Context, run *models.ProcessingRun, runErrors []models.RunError) {
	now := time.Now()
	run.CompletedAt = &now
	run.Status = run.FinalStatus()
	if len(runErrors) > 0 {
		if data, err := json.Marshal(runErrors); err == nil {
			run.Errors = data
		}
	}
	if err := s.store.UpdateRun(ctx, run); err != nil {
		log.Printf("Verifier: update run %d: %v", run.ID, err)
	}
}
