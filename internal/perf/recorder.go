// Package perf keeps a rolling per-scope sample buffer of provider call
// outcomes and derives aggregates, trends, and per-sample threshold alerts.
package perf

import (
	"fmt"
	"sync"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/config"
	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/router-for-me/ModelGovernor/internal/scheduler"
)

const (
	// bufferCap bounds the per-scope ring buffer.
	bufferCap = 1000
	// defaultWindow is the suffix size used for rolling aggregates.
	defaultWindow = 100
	// trendDegradeDeltaMs and trendImproveDeltaMs classify latency movement
	// between the two most recent 100-sample windows.
	trendDegradeDeltaMs = 1000.0
	trendImproveDeltaMs = -500.0
	// sampleRetention drops samples wholesale after this window.
	sampleRetention = 7 * 24 * time.Hour
)

// AlertSink receives per-sample threshold breaches. Unlike the cost ledger,
// these checks are level-triggered: every breaching sample raises an alert.
type AlertSink interface {
	Raise(typ models.AlertType, severity models.Severity, scopeKey, message string, threshold, observed float64)
}

// Recorder accumulates usage samples per scope.
type Recorder struct {
	mu         sync.Mutex
	clock      scheduler.Clock
	thresholds config.Thresholds
	alerts     AlertSink
	buffers    map[string]*ring
}

// New constructs a Recorder. alerts may be nil.
func New(thresholds config.Thresholds, clock scheduler.Clock, alerts AlertSink) *Recorder {
	if clock == nil {
		clock = scheduler.System()
	}
	return &Recorder{
		clock:      clock,
		thresholds: thresholds,
		alerts:     alerts,
		buffers:    make(map[string]*ring),
	}
}

// SetThresholds replaces the alerting thresholds (config reload).
func (r *Recorder) SetThresholds(thresholds config.Thresholds) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.thresholds = thresholds
	r.mu.Unlock()
}

// Record appends a sample to the scope's buffer, evicting the oldest sample
// once the buffer is full, then evaluates the per-sample thresholds.
func (r *Recorder) Record(sample models.UsageSample) {
	if r == nil {
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = r.clock.Now()
	}
	scopeKey := sample.Scope.Key()

	r.mu.Lock()
	buf, ok := r.buffers[scopeKey]
	if !ok {
		buf = newRing(bufferCap)
		r.buffers[scopeKey] = buf
	}
	buf.append(sample)
	thresholds := r.thresholds
	r.mu.Unlock()

	r.checkSample(scopeKey, sample, thresholds)
}

// checkSample raises one alert per breached metric at the highest breached
// severity. There is no deduplication here; a sustained breach alerts on
// every sample.
func (r *Recorder) checkSample(scopeKey string, sample models.UsageSample, t config.Thresholds) {
	if r.alerts == nil {
		return
	}
	if t.LatencyCriticalMs > 0 && sample.LatencyMs >= t.LatencyCriticalMs {
		r.alerts.Raise(models.AlertLatency, models.SeverityCritical, scopeKey,
			fmt.Sprintf("latency %dms over critical threshold", sample.LatencyMs),
			float64(t.LatencyCriticalMs), float64(sample.LatencyMs))
	} else if t.LatencyWarningMs > 0 && sample.LatencyMs >= t.LatencyWarningMs {
		r.alerts.Raise(models.AlertLatency, models.SeverityWarning, scopeKey,
			fmt.Sprintf("latency %dms over warning threshold", sample.LatencyMs),
			float64(t.LatencyWarningMs), float64(sample.LatencyMs))
	}

	// Accuracy thresholds are inverted: lower is worse. Samples without an
	// accuracy measurement are skipped.
	if sample.Accuracy > 0 {
		if t.AccuracyCritical > 0 && sample.Accuracy <= t.AccuracyCritical {
			r.alerts.Raise(models.AlertAccuracy, models.SeverityCritical, scopeKey,
				fmt.Sprintf("accuracy %.2f below critical threshold", sample.Accuracy),
				t.AccuracyCritical, sample.Accuracy)
		} else if t.AccuracyWarning > 0 && sample.Accuracy <= t.AccuracyWarning {
			r.alerts.Raise(models.AlertAccuracy, models.SeverityWarning, scopeKey,
				fmt.Sprintf("accuracy %.2f below warning threshold", sample.Accuracy),
				t.AccuracyWarning, sample.Accuracy)
		}
	}

	if t.CostPerRequestCriticalMicros > 0 && sample.CostMicros >= t.CostPerRequestCriticalMicros {
		r.alerts.Raise(models.AlertCostPerRequest, models.SeverityCritical, scopeKey,
			"request cost over critical threshold",
			float64(t.CostPerRequestCriticalMicros)/1_000_000, float64(sample.CostMicros)/1_000_000)
	} else if t.CostPerRequestWarningMicros > 0 && sample.CostMicros >= t.CostPerRequestWarningMicros {
		r.alerts.Raise(models.AlertCostPerRequest, models.SeverityWarning, scopeKey,
			"request cost over warning threshold",
			float64(t.CostPerRequestWarningMicros)/1_000_000, float64(sample.CostMicros)/1_000_000)
	}
}

// RollingStats aggregates the most recent window samples of a scope, or
// fewer when not enough exist.
func (r *Recorder) RollingStats(scopeKey string, window int) models.RollingStats {
	if r == nil {
		return models.RollingStats{}
	}
	if window <= 0 {
		window = defaultWindow
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[scopeKey]
	if !ok || buf.count == 0 {
		return models.RollingStats{}
	}
	return aggregate(buf.tail(window))
}

func aggregate(samples []models.UsageSample) models.RollingStats {
	stats := models.RollingStats{SampleCount: len(samples)}
	if len(samples) == 0 {
		return stats
	}
	var latencySum float64
	var accuracySum float64
	accuracyCount := 0
	failures := 0
	throttled := 0
	for _, sample := range samples {
		latencySum += float64(sample.LatencyMs)
		if sample.Accuracy > 0 {
			accuracySum += sample.Accuracy
			accuracyCount++
		}
		if !sample.Success {
			failures++
		}
		if sample.Throttled {
			throttled++
		}
		stats.TotalCostMicros += sample.CostMicros
		stats.TotalTokens += sample.TotalTokens()
	}
	n := float64(len(samples))
	stats.AvgLatencyMs = latencySum / n
	if accuracyCount > 0 {
		stats.AvgAccuracy = accuracySum / float64(accuracyCount)
	}
	stats.ErrorRate = float64(failures) / n
	stats.ThrottleRate = float64(throttled) / n
	stats.Availability = 1 - stats.ErrorRate
	return stats
}

// Trend compares average latency over the most recent 100 samples against
// the 100 samples preceding them. With fewer than 200 samples the older
// window reuses the newer average, which classifies as stable.
func (r *Recorder) Trend(scopeKey string) models.Trend {
	if r == nil {
		return models.TrendStable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[scopeKey]
	if !ok || buf.count == 0 {
		return models.TrendStable
	}

	recent := buf.tail(defaultWindow)
	recentAvg := avgLatency(recent)
	olderAvg := recentAvg
	if buf.count >= 2*defaultWindow {
		older := buf.slice(buf.count-2*defaultWindow, buf.count-defaultWindow)
		olderAvg = avgLatency(older)
	}

	delta := recentAvg - olderAvg
	switch {
	case delta > trendDegradeDeltaMs:
		return models.TrendDegrading
	case delta < trendImproveDeltaMs:
		return models.TrendImproving
	default:
		return models.TrendStable
	}
}

func avgLatency(samples []models.UsageSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range samples {
		sum += float64(sample.LatencyMs)
	}
	return sum / float64(len(samples))
}

// ScopeKeys lists every scope with at least one retained sample.
func (r *Recorder) ScopeKeys() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.buffers))
	for key, buf := range r.buffers {
		if buf.count > 0 {
			keys = append(keys, key)
		}
	}
	return keys
}

// SampleCount reports how many samples a scope currently retains.
func (r *Recorder) SampleCount(scopeKey string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[scopeKey]
	if !ok {
		return 0
	}
	return buf.count
}

// Sweep drops samples older than the retention window and reports how many
// were removed. Empty buffers are released.
func (r *Recorder) Sweep(now time.Time) int {
	if r == nil {
		return 0
	}
	cutoff := now.Add(-sampleRetention)
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for key, buf := range r.buffers {
		stale := 0
		for stale < buf.count && buf.at(stale).Timestamp.Before(cutoff) {
			stale++
		}
		if stale > 0 {
			buf.dropOldest(stale)
			dropped += stale
		}
		if buf.count == 0 {
			delete(r.buffers, key)
		}
	}
	return dropped
}
