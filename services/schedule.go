package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"listing_poster/config"
	"listing_poster/models"
	"listing_poster/schedule"
	"listing_poster/storage"
)

// ScheduleService expands active templates into post entries and owns the
// template lifecycle: creation on publish, phase exhaustion, and the
// cancellation cascade.
type ScheduleService struct {
	store *storage.PostgresStore
	cfg   config.GeneratorConfig
	owner string
	rng   *rand.Rand
}

func NewScheduleService(store *storage.PostgresStore, cfg config.GeneratorConfig) *ScheduleService {
	host, _ := os.Hostname()
	return &ScheduleService{
		store: store,
		cfg:   cfg,
		owner: fmt.Sprintf("%s-%d", host, os.Getpid()),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GenerateResult is the outcome of one generation batch.
type GenerateResult struct {
	RunID     int64  `json:"run_id"`
	Templates int    `json:"templates"`
	Created   int    `json:"created"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// GenerateDueSlots expands every active template over the rolling horizon.
// Per-template failures are recorded in the run and do not abort the batch.
func (s *ScheduleService) GenerateDueSlots(ctx context.Context) (*GenerateResult, error) {
	run := &models.ProcessingRun{
		Kind:      models.RunKindGeneration,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	result := &GenerateResult{RunID: run.ID}
	var runErrors []models.RunError

	templates, err := s.store.GetActiveTemplates(ctx, s.cfg.BatchSize)
	if err != nil {
		s.failRun(ctx, run, err)
		return nil, fmt.Errorf("get templates: %w", err)
	}
	run.ItemsFound = len(templates)
	result.Templates = len(templates)

	for i := range templates {
		t := &templates[i]
		created, err := s.GenerateForTemplate(ctx, t)
		if err == storage.ErrLockHeld {
			// Another run is generating for this listing. Expected, skip.
			run.ItemsSkipped++
			result.Skipped++
			continue
		}
		if err != nil {
			log.Printf("Generator: template %s: %v", t.ID, err)
			run.ItemsFailed++
			result.Failed++
			runErrors = append(runErrors, models.RunError{ItemID: t.ID.String(), Message: err.Error()})
			continue
		}
		run.ItemsOK++
		result.Created += created
	}

	s.completeRun(ctx, run, runErrors)
	result.Success = run.Status != models.RunStatusFailed
	result.Message = fmt.Sprintf("generated %d entries from %d templates (%d skipped, %d failed)",
		result.Created, result.Templates, result.Skipped, result.Failed)
	return result, nil
}

// GenerateForTemplate expands one template under the listing's scheduling
// lock. Returns the number of entries created. Safe to re-run over an
// overlapping horizon: existing non-cancelled slots are skipped.
func (s *ScheduleService) GenerateForTemplate(ctx context.Context, t *models.ScheduleTemplate) (int, error) {
	executionID, err := s.store.TryAcquireLock(ctx, models.ScheduleLockResource(t.ListingID), s.owner, s.cfg.LockTTL)
	if err != nil {
		return 0, err
	}
	defer func() {
		if rerr := s.store.ReleaseLock(ctx, executionID); rerr != nil {
			log.Printf("Generator: release lock for %s: %v", t.ListingID, rerr)
		}
	}()

	now := time.Now()
	if t.PhaseExhausted(now) {
		return 0, s.advanceExhaustedPhase(ctx, t, now)
	}

	from := now
	to := now.AddDate(0, 0, s.cfg.HorizonDays)
	slots, err := schedule.Generate(t, from, to, s.rng)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, slot := range slots {
		if slot.ScheduledFor.Before(now) {
			continue
		}
		taken, err := s.store.SlotTaken(ctx, t.ListingID, slot.Date, slot.PostNumber)
		if err != nil {
			return created, fmt.Errorf("slot check: %w", err)
		}
		if taken {
			continue
		}

		entry := &models.PostEntry{
			ID:             uuid.New(),
			ListingID:      t.ListingID,
			OrganizationID: t.OrganizationID,
			TemplateID:     &t.ID,
			ScheduledFor:   slot.ScheduledFor,
			SlotDate:       slot.Date,
			PostNumber:     slot.PostNumber,
			JitterSeconds:  slot.Jitter,
			WindowStart:    t.WindowStart,
			WindowEnd:      t.WindowEnd,
			Platforms:      t.Platforms,
			Status:         models.EntryStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.CreateEntry(ctx, entry); err != nil {
			return created, fmt.Errorf("create entry: %w", err)
		}
		created++
	}

	// One-off templates are done once their entries exist.
	if !t.IsRecurring && created > 0 {
		if _, err := s.store.DeactivateTemplate(ctx, t.ID); err != nil {
			log.Printf("Generator: deactivate one-off template %s: %v", t.ID, err)
		}
	}

	return created, nil
}

// GenerateForListing is the operator's manual trigger for one listing.
func (s *ScheduleService) GenerateForListing(ctx context.Context, listingID uuid.UUID) (int, error) {
	t, err := s.store.GetActiveTemplateForListing(ctx, listingID)
	if err != nil {
		return 0, fmt.Errorf("get template: %w", err)
	}
	if t == nil {
		return 0, fmt.Errorf("no active template for listing %s", listingID)
	}
	return s.GenerateForTemplate(ctx, t)
}

// advanceExhaustedPhase moves the template to its next phase, ending it when
// there is nowhere left to go. The CAS transition keeps overlapping runs from
// advancing twice.
func (s *ScheduleService) advanceExhaustedPhase(ctx context.Context, t *models.ScheduleTemplate, now time.Time) error {
	next := t.NextPhase()
	if !t.CurrentPhase.CanTransition(next) {
		return nil
	}
	moved, err := s.store.TransitionTemplatePhase(ctx, t.ID, t.CurrentPhase, next)
	if err != nil {
		return fmt.Errorf("phase transition: %w", err)
	}
	if moved {
		log.Printf("Generator: template %s phase %s -> %s", t.ID, t.CurrentPhase, next)
	}
	if next == models.PhaseEnded {
		if _, err := s.store.DeactivateTemplate(ctx, t.ID); err != nil {
			return fmt.Errorf("deactivate ended template: %w", err)
		}
	}
	return nil
}

// EnsureTemplateForListing creates the default recurring template when a
// listing enters a postable status. Returns the existing one if present
// (one active template per listing).
func (s *ScheduleService) EnsureTemplateForListing(ctx context.Context, listing *models.Listing, platforms []models.Platform) (*models.ScheduleTemplate, error) {
	if !listing.Status.Postable() {
		return nil, fmt.Errorf("listing %s is %s, not postable", listing.ID, listing.Status)
	}
	existing, err := s.store.GetActiveTemplateForListing(ctx, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	t := &models.ScheduleTemplate{
		ID:             uuid.New(),
		ListingID:      listing.ID,
		OrganizationID: listing.OrganizationID,
		DaysOfWeek:     []int{1, 3, 5}, // Mon, Wed, Fri
		Frequency:      3,
		CurrentPhase:   models.PhaseLaunch,
		LaunchWeeks:    2,
		OngoingWeeks:   8,
		BannerWeeks:    2,
		WindowStart:    "09:00",
		WindowEnd:      "19:00",
		JitterSeconds:  s.cfg.DefaultJitter,
		Platforms:      platforms,
		IsRecurring:    true,
		IsActive:       true,
		PhaseStartedAt: now,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	log.Printf("Generator: created template %s for listing %s", t.ID, listing.ID)
	return t, nil
}

// CancelResult reports what the cancellation cascade touched.
type CancelResult struct {
	EntriesCancelled       int  `json:"entries_cancelled"`
	VerificationsCancelled int  `json:"verifications_cancelled"`
	TemplateDeactivated    bool `json:"template_deactivated"`
}

// CancelListingAutomation atomically shuts down a listing's automation:
// pending entries and verifications are cancelled, the active template is
// deactivated, and any held scheduling lock is force-released. Posted
// history is untouched.
func (s *ScheduleService) CancelListingAutomation(ctx context.Context, listingID uuid.UUID) (*CancelResult, error) {
	result := &CancelResult{}

	entries, err := s.store.CancelPendingEntriesForListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("cancel entries: %w", err)
	}
	result.EntriesCancelled = entries

	verifications, err := s.store.CancelPendingVerificationsForListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("cancel verifications: %w", err)
	}
	result.VerificationsCancelled = verifications

	t, err := s.store.GetActiveTemplateForListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if t != nil {
		deactivated, err := s.store.DeactivateTemplate(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("deactivate template: %w", err)
		}
		result.TemplateDeactivated = deactivated
	}

	if err := s.store.ReleaseLocksForResource(ctx, models.ScheduleLockResource(listingID)); err != nil {
		return nil, fmt.Errorf("release lock: %w", err)
	}

	log.Printf("Generator: cancelled automation for %s (%d entries, %d verifications)",
		listingID, result.EntriesCancelled, result.VerificationsCancelled)
	return result, nil
}

func (s *ScheduleService) failRun(ctx context.Context, run *models.ProcessingRun, cause error) {
	now := time.Now()
	run.CompletedAt = &now
	run.Status = models.RunStatusFailed
	run.ErrorMessage = cause.Error()
	if err := s.store.UpdateRun(ctx, run); err != nil {
		log.Printf("Generator: update run %d: %v", run.ID, err)
	}
}

func (s *ScheduleService) completeRun(ctx context.Context, run *models.ProcessingRun, runErrors []models.RunError) {
	now := time.Now()
	run.CompletedAt = &now
	run.Status = run.FinalStatus()
	if len(runErrors) > 0 {
		if data, err := json.Marshal(runErrors); err == nil {
			run.Errors = data
		}
	}
	if err := s.store.UpdateRun(ctx, run); err != nil {
		log.Printf("Generator: update run %d: %v", run.ID, err)
	}
}
