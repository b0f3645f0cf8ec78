package models

import (
	"testing"
	"time"
)

func TestCanTransition_ForwardOnly(t *testing.T) {
	if !PhaseLaunch.CanTransition(PhaseOngoing) {
		t.Fatalf("launch -> ongoing should be allowed")
	}
	if !PhaseLaunch.CanTransition(PhaseEnded) {
		t.Fatalf("launch -> ended should be allowed")
	}
	if !PhaseOngoing.CanTransition(PhaseEnded) {
		t.Fatalf("ongoing -> ended should be allowed")
	}
	if PhaseOngoing.CanTransition(PhaseLaunch) {
		t.Fatalf("ongoing -> launch should be rejected")
	}
	if PhaseEnded.CanTransition(PhaseOngoing) {
		t.Fatalf("ended -> ongoing should be rejected")
	}
	if PhaseLaunch.CanTransition(PhaseLaunch) {
		t.Fatalf("self transition should be rejected")
	}
	if PostingPhase("bogus").CanTransition(PhaseOngoing) {
		t.Fatalf("unknown phase should be rejected")
	}
	if PhaseLaunch.CanTransition(PostingPhase("bogus")) {
		t.Fatalf("unknown target should be rejected")
	}
}

func TestPhaseExhausted(t *testing.T) {
	started := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	tmpl := &ScheduleTemplate{
		CurrentPhase:   PhaseLaunch,
		LaunchWeeks:    2,
		OngoingWeeks:   0,
		PhaseStartedAt: started,
	}

	if tmpl.PhaseExhausted(started.AddDate(0, 0, 13)) {
		t.Fatalf("phase should not be exhausted inside its window")
	}
	if !tmpl.PhaseExhausted(started.AddDate(0, 0, 15)) {
		t.Fatalf("phase should be exhausted past two weeks")
	}

	// Open-ended phase never exhausts.
	tmpl.CurrentPhase = PhaseOngoing
	if tmpl.PhaseExhausted(started.AddDate(10, 0, 0)) {
		t.Fatalf("open-ended phase should never exhaust")
	}
}

func TestDurationWeeks_BannerOverlay(t *testing.T) {
	tmpl := &ScheduleTemplate{
		LaunchWeeks:  2,
		OngoingWeeks: 8,
		BannerWeeks:  2,
	}

	if got := tmpl.DurationWeeks(PhaseOngoing); got != 8 {
		t.Fatalf("expected 8 ongoing weeks, got %d", got)
	}

	// The banner overlay shortens whatever phase is running to BannerWeeks.
	tmpl.BannerOnly = true
	if got := tmpl.DurationWeeks(PhaseOngoing); got != 2 {
		t.Fatalf("banner-only ongoing should run 2 weeks, got %d", got)
	}
	if got := tmpl.DurationWeeks(PhaseLaunch); got != 2 {
		t.Fatalf("banner-only launch should run 2 weeks, got %d", got)
	}
}

func TestPhaseExhausted_BannerOverlay(t *testing.T) {
	started := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	tmpl := &ScheduleTemplate{
		CurrentPhase:   PhaseOngoing,
		OngoingWeeks:   8,
		BannerWeeks:    2,
		BannerOnly:     true,
		PhaseStartedAt: started,
	}

	if tmpl.PhaseExhausted(started.AddDate(0, 0, 13)) {
		t.Fatalf("banner window should still be open at 13 days")
	}
	if !tmpl.PhaseExhausted(started.AddDate(0, 0, 15)) {
		t.Fatalf("banner window should exhaust after 2 weeks, not 8")
	}
}

func TestNextPhase(t *testing.T) {
	tmpl := &ScheduleTemplate{CurrentPhase: PhaseLaunch}
	if got := tmpl.NextPhase(); got != PhaseOngoing {
		t.Fatalf("expected ongoing after launch, got %s", got)
	}
	tmpl.CurrentPhase = PhaseOngoing
	if got := tmpl.NextPhase(); got != PhaseEnded {
		t.Fatalf("expected ended after ongoing, got %s", got)
	}

	// Nothing follows the banner window.
	tmpl.CurrentPhase = PhaseLaunch
	tmpl.BannerOnly = true
	if got := tmpl.NextPhase(); got != PhaseEnded {
		t.Fatalf("banner-only template should end next, got %s", got)
	}
}

func TestRemainingPlatforms(t *testing.T) {
	e := &PostEntry{
		Platforms:     []Platform{PlatformFacebook, PlatformInstagram, PlatformLinkedIn},
		DonePlatforms: []Platform{PlatformInstagram},
	}
	remaining := e.RemainingPlatforms()
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining platforms, got %d", len(remaining))
	}
	if remaining[0] != PlatformFacebook || remaining[1] != PlatformLinkedIn {
		t.Fatalf("unexpected remaining platforms %v", remaining)
	}

	e.DonePlatforms = e.Platforms
	if got := e.RemainingPlatforms(); len(got) != 0 {
		t.Fatalf("expected no remaining platforms, got %v", got)
	}
}
