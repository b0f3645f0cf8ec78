package workers

import (
	"context"
	"log"
	"time"

	"listing_poster/models"
	"listing_poster/services"
	"listing_poster/storage"
)

// DispatcherWorker periodically dispatches due post entries to the external
// publishing service.
type DispatcherWorker struct {
	dispatch  *services.DispatchService
	ops       *storage.SQLiteStore
	triggerCh chan struct{}
}

func NewDispatcherWorker(dispatch *services.DispatchService, ops *storage.SQLiteStore) *DispatcherWorker {
	return &DispatcherWorker{
		dispatch:  dispatch,
		ops:       ops,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately
func (w *DispatcherWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the dispatcher loop
func (w *DispatcherWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Dispatcher worker stopping")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			log.Println("Dispatcher worker triggered manually")
			w.runOnce(ctx)
		}
	}
}

func (w *DispatcherWorker) runOnce(ctx context.Context) {
	result, err := w.dispatch.ProcessScheduledPosts(ctx)
	if err != nil {
		log.Printf("Dispatcher worker: %v", err)
		return
	}
	if result.Found > 0 {
		log.Printf("Dispatcher worker: %s", result.Message)
	}
	if w.ops != nil && result.RunID != 0 {
		if err := w.ops.MirrorRun(result.RunID, models.RunKindDispatch, result.Found, result.Posted, result.Failed); err != nil {
			log.Printf("Dispatcher worker: mirror run %d: %v", result.RunID, err)
		}
	}
}
