package models

import (
	"testing"
	"time"
)

func TestFinalStatus(t *testing.T) {
	run := &ProcessingRun{ItemsFound: 5, ItemsOK: 5}
	if got := run.FinalStatus(); got != RunStatusCompleted {
		t.Fatalf("clean run should complete, got %s", got)
	}
	run.ItemsFailed = 1
	if got := run.FinalStatus(); got != RunStatusCompletedWithErrors {
		t.Fatalf("run with failures should be completed_with_errors, got %s", got)
	}
}

func TestVerificationDue(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	v := &StatusVerification{
		Status:       VerificationPending,
		ScheduledFor: now.Add(15 * time.Minute),
	}
	if v.Due(now) {
		t.Fatalf("verification should not be due before its delay elapses")
	}
	if !v.Due(now.Add(15 * time.Minute)) {
		t.Fatalf("verification should be due exactly at schedule time")
	}
	v.Status = VerificationCancelled
	if v.Due(now.Add(time.Hour)) {
		t.Fatalf("resolved verification should never be due")
	}
}

func TestNamedLockStale(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	lock := &NamedLock{LockedAt: now.Add(-5 * time.Minute)}
	if lock.Stale(now, 10*time.Minute) {
		t.Fatalf("a fresh lock should not be stale")
	}
	if !lock.Stale(now, 4*time.Minute) {
		t.Fatalf("lock older than the TTL should be stale")
	}
}
