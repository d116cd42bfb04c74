// Package governor is the request-path façade: it composes the response
// cache, rate limiter, cost ledger, performance recorder, alert manager and
// health aggregator into a single admission-and-metering pipeline.
package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/alerts"
	"github.com/router-for-me/ModelGovernor/internal/cache"
	"github.com/router-for-me/ModelGovernor/internal/config"
	"github.com/router-for-me/ModelGovernor/internal/health"
	"github.com/router-for-me/ModelGovernor/internal/ledger"
	"github.com/router-for-me/ModelGovernor/internal/metrics"
	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/router-for-me/ModelGovernor/internal/perf"
	"github.com/router-for-me/ModelGovernor/internal/ratelimit"
	"github.com/router-for-me/ModelGovernor/internal/scheduler"
	"github.com/router-for-me/ModelGovernor/internal/security"
	log "github.com/sirupsen/logrus"
)

// Sweep cadences for the background maintenance loops.
const (
	cacheSweepInterval  = 10 * time.Minute
	sampleSweepInterval = time.Hour
	alertSweepInterval  = 15 * time.Minute
)

// Provider performs the actual model invocation. Implementations must honor
// ctx cancellation and return an error for any non-success outcome.
type Provider interface {
	Invoke(ctx context.Context, scope models.Scope, content string, options models.Options) (*models.ProviderResult, error)
}

// SampleStore mirrors recorded samples to durable storage. Implementations
// must not block the caller.
type SampleStore interface {
	RecordSample(sample models.UsageSample)
}

// Governor wires the governance components together and owns the execute
// pipeline: cache check, rate check, budget check, provider call, metering.
type Governor struct {
	clock    scheduler.Clock
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	costs    *ledger.Ledger
	recorder *perf.Recorder
	alerts   *alerts.Manager
	health   *health.Aggregator
	sink     metrics.Sink
	store    SampleStore
	provider Provider
}

// New assembles a Governor from configuration. sink, store and archiver may
// be nil; provider must not be.
func New(cfg *config.Config, provider Provider, sink metrics.Sink, store SampleStore, archiver alerts.Archiver, clock scheduler.Clock) *Governor {
	if cfg == nil {
		cfg = config.Default()
	}
	if clock == nil {
		clock = scheduler.System()
	}
	if sink == nil {
		sink = metrics.NewNop()
	}
	alertMgr := alerts.New(clock, sink, archiver)
	costs := ledger.New(cfg.Governance.Limits, cfg.Governance.DefaultOutputTokens, clock, alertMgr)
	for scopeKey, limits := range cfg.Governance.ScopeLimits {
		costs.SetLimits(scopeKey, limits)
	}
	recorder := perf.New(cfg.Governance.Thresholds, clock, alertMgr)
	g := &Governor{
		clock:    clock,
		cache:    cache.New(time.Duration(cfg.Governance.CacheTTLMs)*time.Millisecond, clock),
		limiter:  ratelimit.New(clock),
		costs:    costs,
		recorder: recorder,
		alerts:   alertMgr,
		health:   health.New(recorder, costs, alertMgr, cfg.Governance.Thresholds, clock),
		sink:     sink,
		store:    store,
		provider: provider,
	}
	return g
}

// Start launches the background maintenance loops. They stop when ctx is
// cancelled.
func (g *Governor) Start(ctx context.Context) {
	if g == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	scheduler.Loop(ctx, "cache", cacheSweepInterval, func(context.Context) error {
		evicted := g.cache.Sweep(g.clock.Now())
		if evicted > 0 {
			log.Debugf("governor: cache sweep evicted %d entries", evicted)
		}
		return nil
	})
	scheduler.Loop(ctx, "samples", sampleSweepInterval, func(context.Context) error {
		dropped := g.recorder.Sweep(g.clock.Now())
		if dropped > 0 {
			log.Debugf("governor: sample sweep dropped %d samples", dropped)
		}
		return nil
	})
	scheduler.Loop(ctx, "alerts", alertSweepInterval, func(context.Context) error {
		dropped := g.alerts.Sweep(g.clock.Now())
		if dropped > 0 {
			log.Debugf("governor: alert sweep dropped %d resolved alerts", dropped)
		}
		return nil
	})
}

// Authorize is the dry-run admission check: it estimates the request's cost
// and reports whether the budget and rate limits would admit it right now,
// without consuming quota or mutating any counter.
func (g *Governor) Authorize(scope models.Scope, content string, options models.Options) models.Authorization {
	if g == nil {
		return models.Authorization{Allowed: false, Reason: "governor not initialized"}
	}
	scopeKey := scope.Key()
	limits := g.costs.LimitsFor(scopeKey)
	usage := g.costs.Usage(scope)
	estimated := g.costs.Estimate(scope, content, options)

	auth := models.Authorization{
		Allowed:             true,
		EstimatedCostMicros: estimated,
		CurrentDailyMicros:  usage.DailyMicros,
		DailyLimitMicros:    limits.DailyMicros,
		RemainingRateQuota:  g.limiter.Remaining(scopeKey, limits.MaxRequestsPerMinute),
	}
	if limits.DailyMicros > 0 {
		remaining := limits.DailyMicros - usage.DailyMicros
		if remaining < 0 {
			remaining = 0
		}
		auth.RemainingDailyMicros = remaining
	}

	if limits.MaxRequestsPerMinute > 0 && auth.RemainingRateQuota <= 0 {
		auth.Allowed = false
		auth.Reason = "rate limit exceeded"
		return auth
	}
	if errBudget := g.costs.Authorize(scope, estimated); errBudget != nil {
		auth.Allowed = false
		auth.Reason = errBudget.Error()
	}
	return auth
}

// Execute runs the full governed pipeline for one request.
//
// Order matters: a cache hit short-circuits before any limit is consulted
// and costs nothing; a rate rejection precedes the budget check so throttled
// callers cannot probe their remaining budget; only an admitted call reaches
// the provider, and only a successful call is charged and cached.
func (g *Governor) Execute(ctx context.Context, scope models.Scope, content string, options models.Options) (*models.Result, error) {
	if g == nil || g.provider == nil {
		return nil, fmt.Errorf("governor: no provider configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	scopeKey := scope.Key()
	fingerprint := cache.Fingerprint(scope, content, options)
	// The caller credential is masked in every request-path log line.
	requestLog := log.WithFields(log.Fields{
		"caller":   security.HideKey(scope.CallerID),
		"provider": scope.Provider,
		"model":    scope.Model,
	})

	if cached, ok := g.cache.Lookup(fingerprint); ok {
		requestLog.Debug("governor: cache hit")
		g.sink.Push("governor.cache_hit", 1, map[string]string{"scope": scopeKey})
		return &models.Result{
			Output:       cached.Output,
			InputTokens:  cached.InputTokens,
			OutputTokens: cached.OutputTokens,
			CostMicros:   0,
			Cached:       true,
		}, nil
	}

	limits := g.costs.LimitsFor(scopeKey)
	if !g.limiter.CheckAndRecord(scopeKey, limits.MaxRequestsPerMinute) {
		requestLog.Warnf("governor: rate limit exceeded (max=%d/min)", limits.MaxRequestsPerMinute)
		g.sink.Push("governor.rate_rejected", 1, map[string]string{"scope": scopeKey})
		return nil, &RateLimitExceededError{ScopeKey: scopeKey, MaxPerMinute: limits.MaxRequestsPerMinute}
	}

	estimated := g.costs.Estimate(scope, content, options)
	if errBudget := g.costs.Authorize(scope, estimated); errBudget != nil {
		requestLog.WithError(errBudget).Warn("governor: budget rejected")
		g.sink.Push("governor.budget_rejected", 1, map[string]string{"scope": scopeKey})
		return nil, errBudget
	}

	started := g.clock.Now()
	provided, errInvoke := g.provider.Invoke(ctx, scope, content, options)
	if errInvoke != nil {
		cause := inferCause(errInvoke)
		requestLog.WithError(errInvoke).Warnf("governor: provider call failed (cause=%s)", cause)
		g.recordFailure(scope, started, cause)
		return nil, &ProviderInvocationError{
			ScopeKey:      scopeKey,
			ContentLength: len(content),
			Cause:         cause,
			Err:           errInvoke,
		}
	}

	actual := ledger.TokenCost(scope.Provider, scope.Model, provided.InputTokens, provided.OutputTokens)
	g.costs.Record(scope, actual)

	sample := models.UsageSample{
		Scope:        scope,
		Timestamp:    g.clock.Now(),
		LatencyMs:    provided.LatencyMs,
		InputTokens:  provided.InputTokens,
		OutputTokens: provided.OutputTokens,
		CostMicros:   actual,
		Success:      true,
	}
	g.recorder.Record(sample)
	if g.store != nil {
		g.store.RecordSample(sample)
	}
	g.cache.Store(fingerprint, models.CachedResult{
		Output:       provided.Output,
		InputTokens:  provided.InputTokens,
		OutputTokens: provided.OutputTokens,
		CostMicros:   actual,
	})

	requestLog.Debugf("governor: request served (cost=%dµ latency=%dms)", actual, provided.LatencyMs)
	tags := map[string]string{"scope": scopeKey}
	g.sink.Push("governor.request_cost_micros", float64(actual), tags)
	g.sink.Push("governor.request_latency_ms", float64(provided.LatencyMs), tags)

	return &models.Result{
		Output:       provided.Output,
		InputTokens:  provided.InputTokens,
		OutputTokens: provided.OutputTokens,
		LatencyMs:    provided.LatencyMs,
		CostMicros:   actual,
		Cached:       false,
	}, nil
}

// recordFailure meters a failed provider call. Failures cost nothing and
// never touch the ledger or the cache, but they count against error and
// throttle rates.
func (g *Governor) recordFailure(scope models.Scope, started time.Time, cause FailureCause) {
	sample := models.UsageSample{
		Scope:     scope,
		Timestamp: g.clock.Now(),
		LatencyMs: g.clock.Now().Sub(started).Milliseconds(),
		Success:   false,
		ErrorKind: string(cause),
		Throttled: cause == CauseThrottling,
	}
	g.recorder.Record(sample)
	if g.store != nil {
		g.store.RecordSample(sample)
	}
	g.sink.Push("governor.request_failed", 1, map[string]string{
		"scope": scope.Key(),
		"cause": string(cause),
	})
}

// Health returns the current system health snapshot.
func (g *Governor) Health() models.SystemHealth {
	if g == nil {
		return models.SystemHealth{Tier: models.HealthHealthy}
	}
	return g.health.Snapshot()
}

// Alerts lists alerts filtered by resolution state, newest first.
func (g *Governor) Alerts(resolved bool) []models.Alert {
	if g == nil {
		return nil
	}
	return g.alerts.List(resolved)
}

// ResolveAlert marks an alert resolved; unknown ids are a no-op.
func (g *Governor) ResolveAlert(id string) {
	if g == nil {
		return
	}
	g.alerts.Resolve(id)
}

// SetLimits installs a per-scope limit override at runtime.
func (g *Governor) SetLimits(scopeKey string, limits models.Limits) {
	if g == nil {
		return
	}
	g.costs.SetLimits(scopeKey, limits)
}

// Usage returns the scope's current cost counters.
func (g *Governor) Usage(scope models.Scope) models.CostCounter {
	if g == nil {
		return models.CostCounter{}
	}
	return g.costs.Usage(scope)
}

// Stats returns a scope's rolling performance aggregates.
func (g *Governor) Stats(scopeKey string, window int) models.RollingStats {
	if g == nil {
		return models.RollingStats{}
	}
	return g.recorder.RollingStats(scopeKey, window)
}

// SeedDaily re-seeds a scope's daily counter from persisted usage.
func (g *Governor) SeedDaily(scopeKey string, micros int64) {
	if g == nil {
		return
	}
	g.costs.SeedDaily(scopeKey, micros)
}

// ApplyConfig applies a reloaded configuration to the live components.
// Cache TTL is fixed at construction; budget limits, scope overrides and
// alerting thresholds take effect immediately.
func (g *Governor) ApplyConfig(cfg *config.Config) {
	if g == nil || cfg == nil {
		return
	}
	g.costs.SetDefaults(cfg.Governance.Limits)
	for scopeKey, limits := range cfg.Governance.ScopeLimits {
		g.costs.SetLimits(scopeKey, limits)
	}
	g.recorder.SetThresholds(cfg.Governance.Thresholds)
	log.Info("governor: configuration reloaded")
}
