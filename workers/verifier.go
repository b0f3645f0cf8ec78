package workers

import (
	"context"
	"log"
	"time"

	"listing_poster/models"
	"listing_poster/services"
	"listing_poster/storage"
)

// VerifierWorker periodically sweeps due status verifications.
type VerifierWorker struct {
	verification *services.VerificationService
	ops          *storage.SQLiteStore
	triggerCh    chan struct{}
}

func NewVerifierWorker(verification *services.VerificationService, ops *storage.SQLiteStore) *VerifierWorker {
	return &VerifierWorker{
		verification: verification,
		ops:          ops,
		triggerCh:    make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately
func (w *VerifierWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the verifier loop
func (w *VerifierWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Verifier worker stopping")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			log.Println("Verifier worker triggered manually")
			w.runOnce(ctx)
		}
	}
}

func (w *VerifierWorker) runOnce(ctx context.Context) {
	result, err := w.verification.ProcessDueVerifications(ctx)
	if err != nil {
		log.Printf("Verifier worker: %v", err)
		return
	}
	if result.Found > 0 {
		log.Printf("Verifier worker: %s", result.Message)
	}
	if w.ops != nil {
		if err := w.ops.MirrorRun(result.RunID, models.RunKindVerification, result.Found, result.Processed, result.Failed); err != nil {
			log.Printf("Verifier worker: mirror run %d: %v", result.RunID, err)
		}
	}
}
