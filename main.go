package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"listing_poster/config"
	"listing_poster/httputil"
	"listing_poster/logging"
	"listing_poster/models"
	"listing_poster/portal"
	"listing_poster/publisher"
	"listing_poster/scheduler"
	"listing_poster/services"
	"listing_poster/storage"
	"listing_poster/workers"
)

var (
	dispatchNow = flag.Bool("dispatch", false, "Run one dispatch batch and exit")
	generateNow = flag.Bool("generate", false, "Run one slot-generation batch and exit")
	verifyNow   = flag.Bool("verify", false, "Run one verification sweep and exit")
	showSummary = flag.Bool("summary", false, "Print the per-listing schedule summary and exit")

	cancelListing = flag.String("cancel-listing", "", "Queue cancellation of a listing's automation for the running daemon and exit")
	retryEntry    = flag.String("retry-entry", "", "Queue a retry of a failed post entry for the running daemon and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("poster.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting listing_poster...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d platform configs", len(cfg.Platforms))
	for id, platform := range cfg.Platforms {
		log.Printf("  - %s (%s)", platform.Name, id)
	}

	clients := httputil.NewClients(cfg.Publisher.Timeout)

	ctx := context.Background()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Println("Connected to Postgres")

	opsStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer opsStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	if *cancelListing != "" {
		queueCommand(opsStore, models.CmdCancelListing, models.CommandParams{ListingID: *cancelListing})
		return
	}
	if *retryEntry != "" {
		queueCommand(opsStore, models.CmdRetryEntry, models.CommandParams{EntryID: *retryEntry})
		return
	}

	// Asset staging is optional; without a bucket the posts go out
	// caption-only and the publish service uses the listing's own media.
	var uploader services.AssetUploader
	if cfg.S3.Bucket != "" {
		s3Uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 uploader: %v", err)
		}
		uploader = s3Uploader
		log.Printf("Asset staging bucket: %s", cfg.S3.Bucket)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	contentService := services.NewContentService(pgStore, uploader, rng)
	scheduleService := services.NewScheduleService(pgStore, cfg.Generator)
	pub := publisher.NewHTTPPublisher(clients.Publish, cfg.Publisher, cfg.Platforms)
	dispatchService := services.NewDispatchService(pgStore, pub, contentService, cfg.Dispatch)
	prober := portal.NewProber(clients.Portal)
	verificationService := services.NewVerificationService(pgStore, scheduleService, prober, cfg.Verification)

	log.Println("Services initialized")

	// Handle one-shot commands
	if *generateNow {
		result, err := scheduleService.GenerateDueSlots(ctx)
		if err != nil {
			log.Fatalf("Generation failed: %v", err)
		}
		log.Printf("Generation complete: %s", result.Message)
		return
	}
	if *dispatchNow {
		result, err := dispatchService.ProcessScheduledPosts(ctx)
		if err != nil {
			log.Fatalf("Dispatch failed: %v", err)
		}
		log.Printf("Dispatch complete: %s", result.Message)
		return
	}
	if *verifyNow {
		result, err := verificationService.ProcessDueVerifications(ctx)
		if err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		log.Printf("Verification complete: %s", result.Message)
		return
	}
	if *showSummary {
		dashboard := services.NewDashboardService(pgStore)
		rows, err := dashboard.ScheduleSummary(ctx, 0)
		if err != nil {
			log.Fatalf("Summary failed: %v", err)
		}
		for _, row := range rows {
			next := "-"
			if row.NextPostAt != nil {
				next = row.NextPostAt.Format(time.RFC3339)
			}
			log.Printf("%s  %-40s phase=%s pending=%d posted=%d failed=%d next=%s",
				row.ListingID, row.Address, row.CurrentPhase,
				row.PendingCount, row.PostedCount, row.FailedCount, next)
		}
		log.Printf("%d listings with active schedules", len(rows))
		return
	}

	// Daemon mode
	for _, kind := range []models.RunKind{models.RunKindGeneration, models.RunKindDispatch, models.RunKindVerification} {
		last, err := opsStore.GetLastRunTime(kind)
		if err != nil || last.IsZero() {
			continue
		}
		log.Printf("Last %s run: %s", kind, last.Format(time.RFC3339))
	}

	sched := scheduler.New(cfg, opsStore, scheduleService, dispatchService, verificationService)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	generatorWorker := workers.NewGeneratorWorker(scheduleService, opsStore)
	go generatorWorker.Run(ctx, 30*time.Minute)
	log.Println("Generator worker started")

	dispatcherWorker := workers.NewDispatcherWorker(dispatchService, opsStore)
	go dispatcherWorker.Run(ctx, 2*time.Minute)
	log.Println("Dispatcher worker started")

	verifierWorker := workers.NewVerifierWorker(verificationService, opsStore)
	go verifierWorker.Run(ctx, 1*time.Minute)
	log.Println("Verifier worker started")

	sched.SetWorkers(generatorWorker, dispatcherWorker, verifierWorker)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

// queueCommand validates the target ID and drops the command into the local
// queue; the daemon's poll loop picks it up within a couple of seconds.
func queueCommand(ops *storage.SQLiteStore, cmd models.CommandType, params models.CommandParams) {
	id := params.ListingID
	if id == "" {
		id = params.EntryID
	}
	if _, err := uuid.Parse(id); err != nil {
		log.Fatalf("Invalid ID %q: %v", id, err)
	}
	data, err := json.Marshal(params)
	if err != nil {
		log.Fatalf("Marshal command params: %v", err)
	}
	if err := ops.EnqueueCommand(cmd, data); err != nil {
		log.Fatalf("Queue command: %v", err)
	}
	log.Printf("Queued %s for %s", cmd, id)
}
