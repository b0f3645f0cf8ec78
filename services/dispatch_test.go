package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"listing_poster/config"
	"listing_poster/models"
	"listing_poster/publisher"
)

func TestResolveOutcome(t *testing.T) {
	if got := resolveOutcome(0, false, 0, 3); got != outcomePosted {
		t.Fatalf("all platforms done should be posted, got %d", got)
	}
	// Done on all platforms wins even when earlier attempts hit permanent
	// errors on the way.
	if got := resolveOutcome(0, true, 2, 3); got != outcomePosted {
		t.Fatalf("zero remaining should be posted regardless, got %d", got)
	}
	if got := resolveOutcome(1, false, 0, 3); got != outcomeRetry {
		t.Fatalf("transient failure with retries left should retry, got %d", got)
	}
	if got := resolveOutcome(1, true, 0, 3); got != outcomeFailed {
		t.Fatalf("permanent failure should fail immediately, got %d", got)
	}
	if got := resolveOutcome(2, false, 3, 3); got != outcomeFailed {
		t.Fatalf("exhausted retries should fail, got %d", got)
	}
}

func TestNextRetryAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := 10 * time.Minute
	max := 6 * time.Hour

	if got := nextRetryAt(now, base, max, 0); !got.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("first retry should be base delay, got %s", got.Sub(now))
	}
	if got := nextRetryAt(now, base, max, 1); !got.Equal(now.Add(20 * time.Minute)) {
		t.Fatalf("second retry should double, got %s", got.Sub(now))
	}
	if got := nextRetryAt(now, base, max, 3); !got.Equal(now.Add(80 * time.Minute)) {
		t.Fatalf("fourth retry should be 80m, got %s", got.Sub(now))
	}
	// Deep retry counts hit the cap.
	if got := nextRetryAt(now, base, max, 20); !got.Equal(now.Add(max)) {
		t.Fatalf("backoff should cap at %s, got %s", max, got.Sub(now))
	}
}

// fakeDispatchStore records what the dispatcher persists.
type fakeDispatchStore struct {
	failedDone       []models.Platform
	failedMsg        string
	postedDone       []models.Platform
	rescheduledDone  []models.Platform
	savedContentType string
	savedContentID   uuid.UUID
	uploads          []*models.UploadResult
}

func (f *fakeDispatchStore) AcquireSlot(ctx context.Context, family, owner string, maxSlots int, ttl time.Duration) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (f *fakeDispatchStore) ReleaseSlot(ctx context.Context, executionID uuid.UUID) error {
	return nil
}

func (f *fakeDispatchStore) CreateRun(ctx context.Context, run *models.ProcessingRun) error {
	return nil
}

func (f *fakeDispatchStore) UpdateRun(ctx context.Context, run *models.ProcessingRun) error {
	return nil
}

func (f *fakeDispatchStore) ReclaimStuckEntries(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeDispatchStore) GetDueEntries(ctx context.Context, now time.Time, limit int) ([]models.PostEntry, error) {
	return nil, nil
}

func (f *fakeDispatchStore) GetEntryByID(ctx context.Context, id uuid.UUID) (*models.PostEntry, error) {
	return nil, nil
}

func (f *fakeDispatchStore) ClaimEntry(ctx context.Context, id uuid.UUID) (bool, error) {
	return true, nil
}

func (f *fakeDispatchStore) SetEntryContentType(ctx context.Context, id uuid.UUID, contentType string) error {
	f.savedContentID = id
	f.savedContentType = contentType
	return nil
}

func (f *fakeDispatchStore) MarkEntryPosted(ctx context.Context, id uuid.UUID, done []models.Platform, postedAt time.Time) error {
	f.postedDone = done
	return nil
}

func (f *fakeDispatchStore) RescheduleEntry(ctx context.Context, id uuid.UUID, at time.Time, retryCount int, done []models.Platform, errMsg string) error {
	f.rescheduledDone = done
	return nil
}

func (f *fakeDispatchStore) MarkEntryFailed(ctx context.Context, id uuid.UUID, done []models.Platform, errMsg string) error {
	f.failedDone = done
	f.failedMsg = errMsg
	return nil
}

func (f *fakeDispatchStore) RetryFailedEntry(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return true, nil
}

func (f *fakeDispatchStore) CreateUploadResult(ctx context.Context, r *models.UploadResult) error {
	f.uploads = append(f.uploads, r)
	return nil
}

func (f *fakeDispatchStore) IncrementPostCounter(ctx context.Context, listingID uuid.UUID, contentType string, postedAt time.Time) error {
	return nil
}

// fakeContentSource hands back a fixed content type and rendered post.
type fakeContentSource struct {
	next string
}

func (f *fakeContentSource) NextContentType(ctx context.Context, listingID uuid.UUID) (string, error) {
	return f.next, nil
}

func (f *fakeContentSource) Render(ctx context.Context, e *models.PostEntry) (*RenderedPost, error) {
	return &RenderedPost{Caption: "caption"}, nil
}

// fakePublisher fails the platforms listed in errs and records call order.
type fakePublisher struct {
	errs  map[models.Platform]error
	calls []models.Platform
}

func (f *fakePublisher) Publish(ctx context.Context, req *publisher.Request) (*publisher.Result, error) {
	f.calls = append(f.calls, req.Platform)
	if err, ok := f.errs[req.Platform]; ok && err != nil {
		return nil, err
	}
	return &publisher.Result{RequestID: req.RequestID, PlatformPostID: "post-1"}, nil
}

func newTestDispatcher(st *fakeDispatchStore, pub *fakePublisher, next string) *DispatchService {
	return &DispatchService{
		store:   st,
		pub:     pub,
		content: &fakeContentSource{next: next},
		cfg: config.DispatchConfig{
			BatchSize:   50,
			MaxRetries:  3,
			BackoffBase: 10 * time.Minute,
			BackoffCap:  6 * time.Hour,
		},
		owner: "test-1",
	}
}

func TestDispatchEntry_FailureKeepsPassProgress(t *testing.T) {
	st := &fakeDispatchStore{}
	pub := &fakePublisher{errs: map[models.Platform]error{
		models.PlatformTikTok: &publisher.Error{StatusCode: 400, Message: "bad media", Transient: false},
	}}
	svc := newTestDispatcher(st, pub, "photo_feature")

	e := &models.PostEntry{
		ID:          uuid.New(),
		ListingID:   uuid.New(),
		Platforms:   []models.Platform{models.PlatformFacebook, models.PlatformInstagram, models.PlatformTikTok},
		ContentType: "photo_feature",
		Status:      models.EntryStatusProcessing,
	}

	outcome, _ := svc.dispatchEntry(context.Background(), e)
	if outcome != outcomeFailed {
		t.Fatalf("permanent platform error should fail the entry, got %d", outcome)
	}

	// The two platforms that succeeded on the failing pass stay recorded, so
	// an operator retry does not post to them again.
	if len(st.failedDone) != 2 {
		t.Fatalf("expected 2 done platforms persisted on failure, got %v", st.failedDone)
	}
	if st.failedDone[0] != models.PlatformFacebook || st.failedDone[1] != models.PlatformInstagram {
		t.Fatalf("unexpected done platforms %v", st.failedDone)
	}
}

func TestDispatchEntry_PersistsFirstContentChoice(t *testing.T) {
	st := &fakeDispatchStore{}
	pub := &fakePublisher{}
	svc := newTestDispatcher(st, pub, "price_highlight")

	e := &models.PostEntry{
		ID:        uuid.New(),
		ListingID: uuid.New(),
		Platforms: []models.Platform{models.PlatformFacebook},
		Status:    models.EntryStatusProcessing,
	}

	if outcome, _ := svc.dispatchEntry(context.Background(), e); outcome != outcomePosted {
		t.Fatalf("expected posted outcome, got %d", outcome)
	}
	if st.savedContentType != "price_highlight" || st.savedContentID != e.ID {
		t.Fatalf("chosen content type should be persisted, got %q for %s", st.savedContentType, st.savedContentID)
	}
}

func TestDispatchEntry_KeepsPresetContentType(t *testing.T) {
	st := &fakeDispatchStore{}
	pub := &fakePublisher{}
	svc := newTestDispatcher(st, pub, "area_spotlight")

	e := &models.PostEntry{
		ID:          uuid.New(),
		ListingID:   uuid.New(),
		Platforms:   []models.Platform{models.PlatformFacebook},
		ContentType: "photo_feature",
		Status:      models.EntryStatusProcessing,
	}

	svc.dispatchEntry(context.Background(), e)
	if st.savedContentType != "" {
		t.Fatalf("preset content type should not be re-picked, saved %q", st.savedContentType)
	}
	if e.ContentType != "photo_feature" {
		t.Fatalf("content type changed to %q", e.ContentType)
	}
}

func TestDispatchEntry_SkipsAlreadyDonePlatforms(t *testing.T) {
	st := &fakeDispatchStore{}
	pub := &fakePublisher{}
	svc := newTestDispatcher(st, pub, "photo_feature")

	e := &models.PostEntry{
		ID:            uuid.New(),
		ListingID:     uuid.New(),
		Platforms:     []models.Platform{models.PlatformFacebook, models.PlatformInstagram},
		DonePlatforms: []models.Platform{models.PlatformFacebook},
		ContentType:   "photo_feature",
		Status:        models.EntryStatusProcessing,
		RetryCount:    1,
	}

	if outcome, _ := svc.dispatchEntry(context.Background(), e); outcome != outcomePosted {
		t.Fatalf("expected posted outcome, got %d", outcome)
	}
	if len(pub.calls) != 1 || pub.calls[0] != models.PlatformInstagram {
		t.Fatalf("only the unfinished platform should publish, got %v", pub.calls)
	}
	if len(st.postedDone) != 2 {
		t.Fatalf("posted entry should record both platforms, got %v", st.postedDone)
	}
}
