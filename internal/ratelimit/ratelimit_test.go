package ratelimit

import (
	"testing"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/scheduler"
)

func TestAdmitsUpToLimitThenRejects(t *testing.T) {
	clock := scheduler.NewManual(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	l := New(clock)

	for i := 0; i < 5; i++ {
		if !l.CheckAndRecord("svc|openai|gpt-4o", 5) {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	if l.CheckAndRecord("svc|openai|gpt-4o", 5) {
		t.Fatalf("request over the limit should be rejected")
	}
}

func TestRejectionDoesNotConsumeQuota(t *testing.T) {
	clock := scheduler.NewManual(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	l := New(clock)

	for i := 0; i < 3; i++ {
		l.CheckAndRecord("scope", 3)
	}
	for i := 0; i < 10; i++ {
		if l.CheckAndRecord("scope", 3) {
			t.Fatalf("rejected request must stay rejected within the window")
		}
	}
	if got := l.Remaining("scope", 3); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
}

func TestWindowRollRestoresQuota(t *testing.T) {
	clock := scheduler.NewManual(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	l := New(clock)

	for i := 0; i < 2; i++ {
		l.CheckAndRecord("scope", 2)
	}
	if l.CheckAndRecord("scope", 2) {
		t.Fatalf("expected rejection before window roll")
	}

	clock.Advance(time.Minute)
	if !l.CheckAndRecord("scope", 2) {
		t.Fatalf("expected admission after window roll")
	}
	if got := l.Remaining("scope", 2); got != 1 {
		t.Fatalf("expected 1 remaining in fresh window, got %d", got)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	clock := scheduler.NewManual(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	l := New(clock)

	if !l.CheckAndRecord("a", 1) {
		t.Fatalf("first request for scope a should pass")
	}
	if l.CheckAndRecord("a", 1) {
		t.Fatalf("second request for scope a should be rejected")
	}
	if !l.CheckAndRecord("b", 1) {
		t.Fatalf("scope b must not share scope a's window")
	}
}

func TestZeroLimitDisablesLimiting(t *testing.T) {
	l := New(scheduler.NewManual(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)))
	for i := 0; i < 100; i++ {
		if !l.CheckAndRecord("scope", 0) {
			t.Fatalf("disabled limiter must admit everything")
		}
	}
}
