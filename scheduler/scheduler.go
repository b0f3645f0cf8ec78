package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"listing_poster/config"
	"listing_poster/models"
	"listing_poster/services"
	"listing_poster/storage"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Scheduler drives the periodic cycle (generate, dispatch, verify) from a
// cron expression or fixed interval, and polls the local command queue for
// operator requests.
type Scheduler struct {
	cfg      *config.Config
	ops      *storage.SQLiteStore
	schedule *services.ScheduleService
	dispatch *services.DispatchService
	verify   *services.VerificationService
	cron     *cron.Cron
	ticker   *time.Ticker
	stopCh   chan struct{}

	generatorWorker  Triggerable
	dispatcherWorker Triggerable
	verifierWorker   Triggerable
}

func New(cfg *config.Config, ops *storage.SQLiteStore, schedule *services.ScheduleService, dispatch *services.DispatchService, verify *services.VerificationService) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		ops:      ops,
		schedule: schedule,
		dispatch: dispatch,
		verify:   verify,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(generator, dispatcher, verifier Triggerable) {
	s.generatorWorker = generator
	s.dispatcherWorker = dispatcher
	s.verifierWorker = verifier
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.runCycle(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runCycle(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands and worker intervals")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// runCycle runs one full pass: expand templates, sweep verifications, then
// dispatch whatever is due. Each stage records its own run; a stage failing
// does not stop the next.
func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.schedule.GenerateDueSlots(ctx); err != nil {
		log.Printf("Cycle: generation error: %v", err)
	}
	if _, err := s.verify.ProcessDueVerifications(ctx); err != nil {
		log.Printf("Cycle: verification error: %v", err)
	}
	if _, err := s.dispatch.ProcessScheduledPosts(ctx); err != nil {
		log.Printf("Cycle: dispatch error: %v", err)
	}
}

// TriggerNow runs one full cycle immediately.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.ops.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.ops.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunDispatch:
		if s.dispatcherWorker != nil {
			s.dispatcherWorker.Trigger()
			log.Println("Dispatcher worker triggered via command")
		}
		return nil
	case models.CmdRunGeneration:
		if s.generatorWorker != nil {
			s.generatorWorker.Trigger()
			log.Println("Generator worker triggered via command")
		}
		return nil
	case models.CmdRunVerification:
		if s.verifierWorker != nil {
			s.verifierWorker.Trigger()
			log.Println("Verifier worker triggered via command")
		}
		return nil
	case models.CmdCancelListing:
		listingID, err := parseListingParam(cmd)
		if err != nil {
			return err
		}
		result, err := s.schedule.CancelListingAutomation(ctx, listingID)
		if err != nil {
			return err
		}
		log.Printf("Cancelled automation for %s: %d entries, %d verifications",
			listingID, result.EntriesCancelled, result.VerificationsCancelled)
		return nil
	case models.CmdGenerateForListing:
		listingID, err := parseListingParam(cmd)
		if err != nil {
			return err
		}
		created, err := s.schedule.GenerateForListing(ctx, listingID)
		if err != nil {
			return err
		}
		log.Printf("Generated %d entries for %s via command", created, listingID)
		return nil
	case models.CmdRetryEntry:
		var params models.CommandParams
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
		entryID, err := uuid.Parse(params.EntryID)
		if err != nil {
			return fmt.Errorf("parse entry_id: %w", err)
		}
		return s.dispatch.RetryEntry(ctx, entryID)
	case models.CmdStatusChange:
		// Relayed listing status-change events land here; the verification
		// engine debounces them before any automation fires.
		var params models.CommandParams
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
		listingID, err := uuid.Parse(params.ListingID)
		if err != nil {
			return fmt.Errorf("parse listing_id: %w", err)
		}
		v, err := s.verify.RecordStatusChange(ctx, listingID,
			models.ListingStatus(params.OldStatus), models.ListingStatus(params.NewStatus))
		if err != nil {
			return err
		}
		log.Printf("Status change %s -> %s for %s: verification due %s",
			params.OldStatus, params.NewStatus, listingID, v.ScheduledFor.Format(time.RFC3339))
		return nil
	case models.CmdRetryVerification:
		var params models.CommandParams
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
		verificationID, err := uuid.Parse(params.VerificationID)
		if err != nil {
			return fmt.Errorf("parse verification_id: %w", err)
		}
		return s.verify.RetryFailedVerification(ctx, verificationID)
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

func parseListingParam(cmd *models.Command) (uuid.UUID, error) {
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return uuid.Nil, fmt.Errorf("parse params: %w", err)
	}
	id, err := uuid.Parse(params.ListingID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse listing_id: %w", err)
	}
	return id, nil
}
