// Package ledger tracks per-scope running cost totals against configurable
// budgets and estimates the cost of a request before it is made.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/router-for-me/ModelGovernor/internal/scheduler"
	log "github.com/sirupsen/logrus"
)

// AlertSink receives threshold crossings detected while recording costs.
type AlertSink interface {
	Raise(typ models.AlertType, severity models.Severity, scopeKey, message string, threshold, observed float64)
}

// counter accumulates cost for one scope. Totals are monotonically
// non-decreasing within their period and reset on period boundaries.
type counter struct {
	dailyMicros   int64
	weeklyMicros  int64
	monthlyMicros int64
	lastReset     time.Time
}

// Ledger holds per-scope cost counters, limits, and the default limits used
// for scopes without an override.
type Ledger struct {
	mu                  sync.Mutex
	clock               scheduler.Clock
	defaults            models.Limits
	overrides           map[string]models.Limits
	counters            map[string]*counter
	alerts              AlertSink
	defaultOutputTokens int64
}

// New constructs a Ledger. alerts may be nil when alerting is not wired.
func New(defaults models.Limits, defaultOutputTokens int64, clock scheduler.Clock, alerts AlertSink) *Ledger {
	if clock == nil {
		clock = scheduler.System()
	}
	if defaultOutputTokens <= 0 {
		defaultOutputTokens = 500
	}
	return &Ledger{
		clock:               clock,
		defaults:            defaults,
		overrides:           make(map[string]models.Limits),
		counters:            make(map[string]*counter),
		alerts:              alerts,
		defaultOutputTokens: defaultOutputTokens,
	}
}

// SetDefaults replaces the component-wide default limits (config reload).
func (l *Ledger) SetDefaults(limits models.Limits) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.defaults = limits
	l.mu.Unlock()
}

// SetLimits installs a per-scope limit override.
func (l *Ledger) SetLimits(scopeKey string, limits models.Limits) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.overrides[scopeKey] = limits
	l.mu.Unlock()
	log.Infof("cost ledger: limits updated (scope=%s daily=%dµ per_request=%dµ)", scopeKey, limits.DailyMicros, limits.PerRequestMicros)
}

// LimitsFor resolves the effective limits for a scope.
func (l *Ledger) LimitsFor(scopeKey string) models.Limits {
	if l == nil {
		return models.Limits{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if limits, ok := l.overrides[scopeKey]; ok {
		return limits
	}
	return l.defaults
}

// Estimate prices a request before it is made: input tokens from the
// content, output tokens from the option override or the configured
// default. It is a pure function of the pricing tables.
func (l *Ledger) Estimate(scope models.Scope, content string, options models.Options) int64 {
	outputTokens := options.MaxOutputTokens
	if outputTokens <= 0 {
		if l != nil {
			outputTokens = l.defaultOutputTokens
		} else {
			outputTokens = 500
		}
	}
	inputTokens := CountTokens(content)
	return TokenCost(scope.Provider, scope.Model, inputTokens, outputTokens)
}

// Authorize is a dry-run admission check: it rolls the scope's counters
// forward and rejects when the estimate breaks the per-request cap or would
// push the daily total past its limit. It never mutates the totals, so two
// concurrent calls may both pass before either records; that looseness is
// intentional (the budget is checked at least once per request).
func (l *Ledger) Authorize(scope models.Scope, estimatedMicros int64) error {
	if l == nil {
		return fmt.Errorf("cost ledger: not initialized")
	}
	scopeKey := scope.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	limits := l.limitsLocked(scopeKey)
	c := l.counterLocked(scopeKey)
	l.rollLocked(c, l.clock.Now())

	if limits.PerRequestMicros > 0 && estimatedMicros > limits.PerRequestMicros {
		return &BudgetExceededError{
			ScopeKey:        scopeKey,
			Kind:            BudgetKindPerRequest,
			EstimatedMicros: estimatedMicros,
			LimitMicros:     limits.PerRequestMicros,
		}
	}
	if limits.DailyMicros > 0 && c.dailyMicros+estimatedMicros > limits.DailyMicros {
		remaining := limits.DailyMicros - c.dailyMicros
		if remaining < 0 {
			remaining = 0
		}
		return &BudgetExceededError{
			ScopeKey:        scopeKey,
			Kind:            BudgetKindDaily,
			EstimatedMicros: estimatedMicros,
			CurrentMicros:   c.dailyMicros,
			LimitMicros:     limits.DailyMicros,
			RemainingMicros: remaining,
		}
	}
	return nil
}

// Record adds the actual cost of a completed call to the scope's counters.
// It always succeeds: a request that was authorized is recorded regardless
// of ledger drift since the check. Daily threshold crossings raise alerts
// edge-triggered, so each fires at most once per scope per day.
func (l *Ledger) Record(scope models.Scope, actualMicros int64) {
	if l == nil || actualMicros < 0 {
		return
	}
	scopeKey := scope.Key()

	l.mu.Lock()
	limits := l.limitsLocked(scopeKey)
	c := l.counterLocked(scopeKey)
	l.rollLocked(c, l.clock.Now())

	oldDaily := c.dailyMicros
	c.dailyMicros += actualMicros
	c.weeklyMicros += actualMicros
	c.monthlyMicros += actualMicros
	newDaily := c.dailyMicros
	l.mu.Unlock()

	if l.alerts == nil || limits.DailyMicros <= 0 {
		return
	}
	warnMicros := int64(float64(limits.DailyMicros) * limits.WarningThreshold)
	if limits.WarningThreshold > 0 && oldDaily < warnMicros && newDaily >= warnMicros {
		l.alerts.Raise(models.AlertCostWarning, models.SeverityWarning, scopeKey,
			fmt.Sprintf("daily cost reached %.0f%% of limit", limits.WarningThreshold*100),
			microsToUnits(warnMicros), microsToUnits(newDaily))
	}
	if oldDaily <= limits.DailyMicros && newDaily > limits.DailyMicros {
		l.alerts.Raise(models.AlertCostLimitExceeded, models.SeverityCritical, scopeKey,
			"daily cost limit exceeded",
			microsToUnits(limits.DailyMicros), microsToUnits(newDaily))
	}
}

// Usage returns a snapshot of the scope's counters after rollover.
func (l *Ledger) Usage(scope models.Scope) models.CostCounter {
	if l == nil {
		return models.CostCounter{}
	}
	scopeKey := scope.Key()
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.counterLocked(scopeKey)
	l.rollLocked(c, l.clock.Now())
	return models.CostCounter{
		ScopeKey:      scopeKey,
		DailyMicros:   c.dailyMicros,
		WeeklyMicros:  c.weeklyMicros,
		MonthlyMicros: c.monthlyMicros,
		LastReset:     c.lastReset,
	}
}

// SeedDaily re-seeds a scope's daily counter from persisted usage, used on
// startup so a process restart does not reset budgets.
func (l *Ledger) SeedDaily(scopeKey string, micros int64) {
	if l == nil || micros <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.counterLocked(scopeKey)
	l.rollLocked(c, l.clock.Now())
	if micros > c.dailyMicros {
		c.dailyMicros = micros
	}
}

// ScopeKeys lists every scope with a counter.
func (l *Ledger) ScopeKeys() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.counters))
	for key := range l.counters {
		keys = append(keys, key)
	}
	return keys
}

func (l *Ledger) limitsLocked(scopeKey string) models.Limits {
	if limits, ok := l.overrides[scopeKey]; ok {
		return limits
	}
	return l.defaults
}

func (l *Ledger) counterLocked(scopeKey string) *counter {
	c, ok := l.counters[scopeKey]
	if !ok {
		c = &counter{lastReset: l.clock.Now()}
		l.counters[scopeKey] = c
	}
	return c
}

// rollLocked zeroes counters whose period boundary has passed since the
// last reset. The daily counter rolls on the calendar date, the weekly on
// the ISO week, the monthly on the calendar month, all in UTC.
func (l *Ledger) rollLocked(c *counter, now time.Time) {
	now = now.UTC()
	last := c.lastReset.UTC()
	if sameDate(last, now) {
		return
	}
	c.dailyMicros = 0
	lastYear, lastWeek := last.ISOWeek()
	nowYear, nowWeek := now.ISOWeek()
	if lastYear != nowYear || lastWeek != nowWeek {
		c.weeklyMicros = 0
	}
	if last.Year() != now.Year() || last.Month() != now.Month() {
		c.monthlyMicros = 0
	}
	c.lastReset = now
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// microsToUnits converts micros to whole currency units for alert payloads.
func microsToUnits(micros int64) float64 {
	return float64(micros) / 1_000_000
}
