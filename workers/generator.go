package workers

import (
	"context"
	"log"
	"time"

	"listing_poster/models"
	"listing_poster/services"
	"listing_poster/storage"
)

// GeneratorWorker periodically expands active schedule templates into post
// entries over the rolling horizon.
type GeneratorWorker struct {
	schedule  *services.ScheduleService
	ops       *storage.SQLiteStore
	triggerCh chan struct{}
}

func NewGeneratorWorker(schedule *services.ScheduleService, ops *storage.SQLiteStore) *GeneratorWorker {
	return &GeneratorWorker{
		schedule:  schedule,
		ops:       ops,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately
func (w *GeneratorWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the generator loop
func (w *GeneratorWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Generator worker stopping")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			log.Println("Generator worker triggered manually")
			w.runOnce(ctx)
		}
	}
}

func (w *GeneratorWorker) runOnce(ctx context.Context) {
	result, err := w.schedule.GenerateDueSlots(ctx)
	if err != nil {
		log.Printf("Generator worker: %v", err)
		return
	}
	if result.Created > 0 || result.Failed > 0 {
		log.Printf("Generator worker: %s", result.Message)
	}
	if w.ops != nil {
		if err := w.ops.MirrorRun(result.RunID, models.RunKindGeneration, result.Templates, result.Created, result.Failed); err != nil {
			log.Printf("Generator worker: mirror run %d: %v", result.RunID, err)
		}
	}
}
