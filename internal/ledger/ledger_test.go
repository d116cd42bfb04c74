package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/router-for-me/ModelGovernor/internal/scheduler"
)

type capturedAlert struct {
	typ      models.AlertType
	severity models.Severity
	scopeKey string
}

type fakeAlertSink struct {
	raised []capturedAlert
}

func (f *fakeAlertSink) Raise(typ models.AlertType, severity models.Severity, scopeKey, message string, threshold, observed float64) {
	f.raised = append(f.raised, capturedAlert{typ: typ, severity: severity, scopeKey: scopeKey})
}

func testLimits() models.Limits {
	return models.Limits{
		PerRequestMicros: 5_000_000,
		DailyMicros:      10_000_000,
		WeeklyMicros:     50_000_000,
		MonthlyMicros:    150_000_000,
		WarningThreshold: 0.8,
	}
}

func newTestLedger(sink AlertSink) (*Ledger, *scheduler.Manual) {
	clock := scheduler.NewManual(time.Date(2026, 8, 5, 10, 0, 0, 0, time.UTC))
	return New(testLimits(), 500, clock, sink), clock
}

func TestTokenCostUsesProviderPricing(t *testing.T) {
	// 1000 input + 1000 output on gpt-4o: 2500µ + 10000µ.
	got := TokenCost("openai", "gpt-4o", 1000, 1000)
	if got != 12_500 {
		t.Fatalf("expected 12500 micros, got %d", got)
	}
	// Longest prefix wins: gpt-4o-mini must not price as gpt-4o.
	mini := TokenCost("openai", "gpt-4o-mini-2024", 1000, 1000)
	if mini != 150+600 {
		t.Fatalf("expected mini pricing, got %d", mini)
	}
}

func TestTokenCostFallsBackToDefaultPricing(t *testing.T) {
	got := TokenCost("unknown", "model-x", 1_000_000, 0)
	if got != 1_000_000 {
		t.Fatalf("expected default input pricing, got %d", got)
	}
}

func TestAuthorizeRejectsOverPerRequestLimit(t *testing.T) {
	l, _ := newTestLedger(nil)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}

	errAuth := l.Authorize(scope, 6_000_000)
	var budgetErr *BudgetExceededError
	if !errors.As(errAuth, &budgetErr) {
		t.Fatalf("expected BudgetExceededError, got %v", errAuth)
	}
	if budgetErr.Kind != BudgetKindPerRequest {
		t.Fatalf("expected per_request kind, got %s", budgetErr.Kind)
	}
}

func TestAuthorizeRejectsWhenDailyBudgetWouldOverflow(t *testing.T) {
	l, _ := newTestLedger(nil)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}

	// $9.50 spent of a $10.00 daily budget leaves $0.50.
	l.Record(scope, 9_500_000)
	errAuth := l.Authorize(scope, 1_000_000)
	var budgetErr *BudgetExceededError
	if !errors.As(errAuth, &budgetErr) {
		t.Fatalf("expected BudgetExceededError, got %v", errAuth)
	}
	if budgetErr.Kind != BudgetKindDaily {
		t.Fatalf("expected daily kind, got %s", budgetErr.Kind)
	}
	if budgetErr.RemainingMicros != 500_000 {
		t.Fatalf("expected 500000 micros remaining, got %d", budgetErr.RemainingMicros)
	}

	// A request fitting the remainder still passes.
	if errFit := l.Authorize(scope, 400_000); errFit != nil {
		t.Fatalf("expected fit within remaining budget, got %v", errFit)
	}
}

func TestAuthorizeDoesNotMutateCounters(t *testing.T) {
	l, _ := newTestLedger(nil)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}

	for i := 0; i < 3; i++ {
		if errAuth := l.Authorize(scope, 4_000_000); errAuth != nil {
			t.Fatalf("dry-run %d must not consume budget: %v", i, errAuth)
		}
	}
	if usage := l.Usage(scope); usage.DailyMicros != 0 {
		t.Fatalf("expected untouched counters, got %d", usage.DailyMicros)
	}
}

func TestRecordAccumulatesAllPeriods(t *testing.T) {
	l, _ := newTestLedger(nil)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}

	l.Record(scope, 1_000_000)
	l.Record(scope, 250_000)

	usage := l.Usage(scope)
	if usage.DailyMicros != 1_250_000 || usage.WeeklyMicros != 1_250_000 || usage.MonthlyMicros != 1_250_000 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestDailyCounterResetsAtMidnightUTC(t *testing.T) {
	l, clock := newTestLedger(nil)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}

	l.Record(scope, 2_000_000)
	clock.Set(time.Date(2026, 8, 6, 0, 0, 1, 0, time.UTC))

	usage := l.Usage(scope)
	if usage.DailyMicros != 0 {
		t.Fatalf("expected daily reset, got %d", usage.DailyMicros)
	}
	if usage.WeeklyMicros != 2_000_000 {
		t.Fatalf("expected weekly total to survive the day roll, got %d", usage.WeeklyMicros)
	}
}

func TestWeeklyCounterResetsOnISOWeekBoundary(t *testing.T) {
	// 2026-08-09 is a Sunday; the ISO week rolls on Monday the 10th.
	clock := scheduler.NewManual(time.Date(2026, 8, 9, 23, 0, 0, 0, time.UTC))
	l := New(testLimits(), 500, clock, nil)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}

	l.Record(scope, 3_000_000)
	clock.Set(time.Date(2026, 8, 10, 0, 30, 0, 0, time.UTC))

	usage := l.Usage(scope)
	if usage.WeeklyMicros != 0 {
		t.Fatalf("expected weekly reset, got %d", usage.WeeklyMicros)
	}
	if usage.MonthlyMicros != 3_000_000 {
		t.Fatalf("expected monthly total to survive the week roll, got %d", usage.MonthlyMicros)
	}
}

func TestWarningAlertFiresOncePerDay(t *testing.T) {
	sink := &fakeAlertSink{}
	l, clock := newTestLedger(sink)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}

	// Cross the 80% warning threshold, then keep spending below the limit.
	l.Record(scope, 8_500_000)
	l.Record(scope, 500_000)
	l.Record(scope, 500_000)

	warnings := 0
	for _, alert := range sink.raised {
		if alert.typ == models.AlertCostWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected exactly one warning alert, got %d", warnings)
	}

	// A new day re-arms the edge.
	clock.Set(time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC))
	l.Record(scope, 8_500_000)
	warnings = 0
	for _, alert := range sink.raised {
		if alert.typ == models.AlertCostWarning {
			warnings++
		}
	}
	if warnings != 2 {
		t.Fatalf("expected warning to re-fire on a new day, got %d", warnings)
	}
}

func TestLimitExceededAlertIsCritical(t *testing.T) {
	sink := &fakeAlertSink{}
	l, _ := newTestLedger(sink)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}

	l.Record(scope, 10_500_000)
	found := false
	for _, alert := range sink.raised {
		if alert.typ == models.AlertCostLimitExceeded {
			found = true
			if alert.severity != models.SeverityCritical {
				t.Fatalf("expected critical severity, got %s", alert.severity)
			}
		}
	}
	if !found {
		t.Fatalf("expected a cost_limit_exceeded alert")
	}
}

func TestSetLimitsOverridesDefaultsPerScope(t *testing.T) {
	l, _ := newTestLedger(nil)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}
	other := models.Scope{CallerID: "other", Provider: "openai", Model: "gpt-4o"}

	l.SetLimits(scope.Key(), models.Limits{PerRequestMicros: 100})
	if errAuth := l.Authorize(scope, 200); errAuth == nil {
		t.Fatalf("expected override to reject")
	}
	if errAuth := l.Authorize(other, 200); errAuth != nil {
		t.Fatalf("expected other scope to keep defaults, got %v", errAuth)
	}
}

func TestSeedDailyTakesMaximum(t *testing.T) {
	l, _ := newTestLedger(nil)
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}

	l.Record(scope, 3_000_000)
	l.SeedDaily(scope.Key(), 2_000_000)
	if usage := l.Usage(scope); usage.DailyMicros != 3_000_000 {
		t.Fatalf("seed must not lower the live total, got %d", usage.DailyMicros)
	}
	l.SeedDaily(scope.Key(), 4_000_000)
	if usage := l.Usage(scope); usage.DailyMicros != 4_000_000 {
		t.Fatalf("seed should raise the total, got %d", usage.DailyMicros)
	}
}

func TestEstimateUsesOptionOutputTokensOverDefault(t *testing.T) {
	l, _ := newTestLedger(nil)
	scope := models.Scope{Provider: "openai", Model: "gpt-4o"}

	withDefault := l.Estimate(scope, "hello there", models.Options{})
	withOverride := l.Estimate(scope, "hello there", models.Options{MaxOutputTokens: 5000})
	if withOverride <= withDefault {
		t.Fatalf("expected larger output budget to raise the estimate: %d vs %d", withOverride, withDefault)
	}
}
