package schedule

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"listing_poster/models"
)

func testTemplate() *models.ScheduleTemplate {
	return &models.ScheduleTemplate{
		DaysOfWeek:    []int{1, 3, 5}, // Mon, Wed, Fri
		Frequency:     3,
		WindowStart:   "09:00",
		WindowEnd:     "19:00",
		JitterSeconds: 1800,
		IsActive:      true,
		StartedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAllocateWeek_EvenSplit(t *testing.T) {
	counts := AllocateWeek([]int{1, 3, 5}, 3)
	if len(counts) != 3 {
		t.Fatalf("expected 3 days, got %d", len(counts))
	}
	for _, d := range []int{1, 3, 5} {
		if counts[d] != 1 {
			t.Fatalf("expected 1 post on day %d, got %d", d, counts[d])
		}
	}
}

func TestAllocateWeek_RemainderToEarliestDays(t *testing.T) {
	// 4 posts over Mon/Wed/Fri: the extra one lands on Monday.
	counts := AllocateWeek([]int{1, 3, 5}, 4)
	if counts[1] != 2 {
		t.Fatalf("expected 2 posts on Monday, got %d", counts[1])
	}
	if counts[3] != 1 || counts[5] != 1 {
		t.Fatalf("expected 1 post on Wed and Fri, got %d and %d", counts[3], counts[5])
	}
}

func TestAllocateWeek_SundaySortsLast(t *testing.T) {
	// 3 posts over Sun/Mon: Monday is earlier in a Monday-anchored week,
	// so it takes the remainder.
	counts := AllocateWeek([]int{0, 1}, 3)
	if counts[1] != 2 {
		t.Fatalf("expected 2 posts on Monday, got %d", counts[1])
	}
	if counts[0] != 1 {
		t.Fatalf("expected 1 post on Sunday, got %d", counts[0])
	}
}

func TestAllocateWeek_IgnoresInvalidAndDuplicateDays(t *testing.T) {
	counts := AllocateWeek([]int{1, 1, 7, -1, 3}, 2)
	if len(counts) != 2 {
		t.Fatalf("expected 2 valid days, got %d", len(counts))
	}
	if counts[1] != 1 || counts[3] != 1 {
		t.Fatalf("expected 1 post each on Mon and Wed, got %d and %d", counts[1], counts[3])
	}
}

func TestAllocateWeek_Empty(t *testing.T) {
	if counts := AllocateWeek(nil, 3); len(counts) != 0 {
		t.Fatalf("expected no allocation for empty days, got %v", counts)
	}
	if counts := AllocateWeek([]int{1, 3}, 0); len(counts) != 0 {
		t.Fatalf("expected no allocation for zero frequency, got %v", counts)
	}
}

func TestParseWindow(t *testing.T) {
	h, m, err := ParseWindow("09:30")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if h != 9 || m != 30 {
		t.Fatalf("expected 9:30, got %d:%d", h, m)
	}
	if _, _, err := ParseWindow("25:00"); err == nil {
		t.Fatalf("expected error for hour out of range")
	}
	if _, _, err := ParseWindow("nope"); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestGenerate_OneWeek(t *testing.T) {
	tmpl := testTemplate()
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC) // a Monday
	to := from.AddDate(0, 0, 7)
	rng := rand.New(rand.NewSource(1))

	slots, err := Generate(tmpl, from, to, rng)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}

	wantDays := map[time.Weekday]bool{time.Monday: true, time.Wednesday: true, time.Friday: true}
	for _, s := range slots {
		if !wantDays[s.Date.Weekday()] {
			t.Fatalf("slot on unexpected weekday %s", s.Date.Weekday())
		}
		if s.PostNumber != 1 {
			t.Fatalf("expected post number 1, got %d", s.PostNumber)
		}
		open := s.Date.Add(9 * time.Hour)
		end := s.Date.Add(19 * time.Hour)
		if s.ScheduledFor.Before(open) || !s.ScheduledFor.Before(end) {
			t.Fatalf("slot %s placed outside window", s.ScheduledFor)
		}
	}
}

func TestGenerate_MultiplePostsPerDay(t *testing.T) {
	tmpl := testTemplate()
	tmpl.DaysOfWeek = []int{1}
	tmpl.Frequency = 2
	tmpl.JitterSeconds = 0
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	slots, err := Generate(tmpl, from, to, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].PostNumber != 1 || slots[1].PostNumber != 2 {
		t.Fatalf("expected post numbers 1 and 2, got %d and %d", slots[0].PostNumber, slots[1].PostNumber)
	}
	// Zero jitter: slots sit exactly on their segment starts, 5h apart in a
	// 10h window.
	want0 := from.Add(9 * time.Hour)
	want1 := from.Add(14 * time.Hour)
	if !slots[0].ScheduledFor.Equal(want0) {
		t.Fatalf("expected first slot at %s, got %s", want0, slots[0].ScheduledFor)
	}
	if !slots[1].ScheduledFor.Equal(want1) {
		t.Fatalf("expected second slot at %s, got %s", want1, slots[1].ScheduledFor)
	}
}

func TestGenerate_JitterStaysInSegment(t *testing.T) {
	tmpl := testTemplate()
	tmpl.DaysOfWeek = []int{1}
	tmpl.Frequency = 4
	tmpl.JitterSeconds = 86400 // absurdly large, must be clamped
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	for seed := int64(0); seed < 20; seed++ {
		slots, err := Generate(tmpl, from, to, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		segment := 10 * time.Hour / 4
		for i, s := range slots {
			segStart := from.Add(9*time.Hour + segment*time.Duration(i))
			if s.ScheduledFor.Before(segStart) || !s.ScheduledFor.Before(segStart.Add(segment)) {
				t.Fatalf("seed %d: slot %d at %s escaped its segment", seed, i, s.ScheduledFor)
			}
		}
	}
}

func TestGenerate_InactiveTemplate(t *testing.T) {
	tmpl := testTemplate()
	tmpl.IsActive = false
	slots, err := Generate(tmpl, time.Now(), time.Now().AddDate(0, 0, 7), nil)
	if err != nil {
		t.Fatalf("expected no error for inactive template, got %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots for inactive template, got %d", len(slots))
	}
}

func TestGenerate_NoMatchingDays(t *testing.T) {
	tmpl := testTemplate()
	tmpl.DaysOfWeek = nil
	_, err := Generate(tmpl, time.Now(), time.Now().AddDate(0, 0, 7), nil)
	if !errors.Is(err, ErrNoMatchingDays) {
		t.Fatalf("expected ErrNoMatchingDays, got %v", err)
	}
}

func TestGenerate_RespectsTemplateBounds(t *testing.T) {
	tmpl := testTemplate()
	tmpl.StartedAt = time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC) // Wednesday noon
	ends := time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)           // Friday
	tmpl.EndsAt = &ends

	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	slots, err := Generate(tmpl, from, to, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	// Monday is before StartedAt's day, Friday is on/after EndsAt: only the
	// Wednesday slot survives.
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].Date.Weekday() != time.Wednesday {
		t.Fatalf("expected Wednesday slot, got %s", slots[0].Date.Weekday())
	}
}

func TestGenerate_EmptyWindow(t *testing.T) {
	tmpl := testTemplate()
	tmpl.WindowStart = "19:00"
	tmpl.WindowEnd = "09:00"
	_, err := Generate(tmpl, time.Now(), time.Now().AddDate(0, 0, 7), nil)
	if err == nil {
		t.Fatalf("expected error for inverted window")
	}
}

func TestGenerate_StableAcrossOverlappingHorizons(t *testing.T) {
	tmpl := testTemplate()
	tmpl.JitterSeconds = 0
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	first, err := Generate(tmpl, from, from.AddDate(0, 0, 14), nil)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	second, err := Generate(tmpl, from.AddDate(0, 0, 3), from.AddDate(0, 0, 14), nil)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	byKey := make(map[string]time.Time)
	for _, s := range first {
		byKey[s.Date.Format("2006-01-02")] = s.ScheduledFor
	}
	for _, s := range second {
		want, ok := byKey[s.Date.Format("2006-01-02")]
		if !ok {
			t.Fatalf("second horizon produced slot on %s missing from first", s.Date.Format("2006-01-02"))
		}
		if !s.ScheduledFor.Equal(want) {
			t.Fatalf("slot on %s moved between horizons: %s vs %s", s.Date.Format("2006-01-02"), want, s.ScheduledFor)
		}
	}
}
