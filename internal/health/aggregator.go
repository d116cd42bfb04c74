// Package health combines per-scope performance, quota, and alert state
// into one system-wide verdict.
package health

import (
	"sort"

	"github.com/router-for-me/ModelGovernor/internal/alerts"
	"github.com/router-for-me/ModelGovernor/internal/config"
	"github.com/router-for-me/ModelGovernor/internal/ledger"
	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/router-for-me/ModelGovernor/internal/perf"
	"github.com/router-for-me/ModelGovernor/internal/scheduler"
)

// statsWindow is the rolling window the aggregator reads per scope.
const statsWindow = 100

// Aggregator derives health snapshots on demand; it holds no state of its
// own beyond references to the live components.
type Aggregator struct {
	recorder   *perf.Recorder
	costs      *ledger.Ledger
	alerts     *alerts.Manager
	thresholds config.Thresholds
	clock      scheduler.Clock
}

// New constructs an Aggregator.
func New(recorder *perf.Recorder, costs *ledger.Ledger, alertMgr *alerts.Manager, thresholds config.Thresholds, clock scheduler.Clock) *Aggregator {
	if clock == nil {
		clock = scheduler.System()
	}
	return &Aggregator{
		recorder:   recorder,
		costs:      costs,
		alerts:     alertMgr,
		thresholds: thresholds,
		clock:      clock,
	}
}

// Snapshot computes the current system health across every known scope.
func (a *Aggregator) Snapshot() models.SystemHealth {
	if a == nil {
		return models.SystemHealth{Tier: models.HealthHealthy}
	}
	scopeKeys := a.knownScopes()
	snapshot := models.SystemHealth{
		Tier:        models.HealthHealthy,
		GeneratedAt: a.clock.Now(),
		Scopes:      make([]models.ScopeHealth, 0, len(scopeKeys)),
	}

	var latencyWeighted float64
	var errorWeighted float64
	for _, scopeKey := range scopeKeys {
		scope := a.scopeHealth(scopeKey)
		snapshot.Scopes = append(snapshot.Scopes, scope)

		snapshot.TotalRequests += scope.SampleCount
		latencyWeighted += scope.AvgLatencyMs * float64(scope.SampleCount)
		errorWeighted += scope.ErrorRate * float64(scope.SampleCount)
		snapshot.TotalCostMicros += scope.CostMicros

		switch scope.Tier {
		case models.HealthCritical:
			snapshot.Tier = models.HealthCritical
		case models.HealthWarning:
			if snapshot.Tier != models.HealthCritical {
				snapshot.Tier = models.HealthWarning
			}
		}
	}
	if snapshot.TotalRequests > 0 {
		snapshot.AvgLatencyMs = latencyWeighted / float64(snapshot.TotalRequests)
		snapshot.ErrorRate = errorWeighted / float64(snapshot.TotalRequests)
	}
	return snapshot
}

// scopeHealth derives one scope's tier: an unresolved critical alert is
// critical; an error or throttle rate over its warning threshold, or an
// unresolved high or medium alert, is warning; otherwise healthy.
func (a *Aggregator) scopeHealth(scopeKey string) models.ScopeHealth {
	stats := a.recorder.RollingStats(scopeKey, statsWindow)
	usage := a.costs.Usage(models.ParseScopeKey(scopeKey))
	limits := a.costs.LimitsFor(scopeKey)
	active := a.alerts.ActiveForScope(scopeKey)

	scope := models.ScopeHealth{
		ScopeKey:         scopeKey,
		Tier:             models.HealthHealthy,
		SampleCount:      stats.SampleCount,
		AvgLatencyMs:     stats.AvgLatencyMs,
		ErrorRate:        stats.ErrorRate,
		ThrottleRate:     stats.ThrottleRate,
		CostMicros:       stats.TotalCostMicros,
		Trend:            a.recorder.Trend(scopeKey),
		OpenAlerts:       len(active),
		DailyUsage:       &usage,
		DailyLimitMicros: limits.DailyMicros,
	}
	if limits.DailyMicros > 0 {
		remaining := limits.DailyMicros - usage.DailyMicros
		if remaining < 0 {
			remaining = 0
		}
		scope.RemainingDailyMicros = remaining
	}

	hasCritical := false
	hasHighOrMedium := false
	for _, alert := range active {
		switch alert.Severity {
		case models.SeverityCritical:
			hasCritical = true
		case models.SeverityHigh, models.SeverityMedium:
			hasHighOrMedium = true
		}
	}

	switch {
	case hasCritical:
		scope.Tier = models.HealthCritical
	case hasHighOrMedium,
		a.thresholds.ErrorRateWarning > 0 && stats.ErrorRate > a.thresholds.ErrorRateWarning,
		a.thresholds.ThrottleRateWarning > 0 && stats.ThrottleRate > a.thresholds.ThrottleRateWarning:
		scope.Tier = models.HealthWarning
	}
	return scope
}

// knownScopes unions the scopes seen by the recorder and the ledger.
func (a *Aggregator) knownScopes() []string {
	seen := make(map[string]struct{})
	for _, key := range a.recorder.ScopeKeys() {
		seen[key] = struct{}{}
	}
	for _, key := range a.costs.ScopeKeys() {
		seen[key] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
