package models

import "time"

// UsageSample records the outcome of a single completed provider call
// attempt. Samples are immutable once created.
type UsageSample struct {
	Scope        Scope     `json:"scope"`
	Timestamp    time.Time `json:"timestamp"`
	LatencyMs    int64     `json:"latency_ms"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostMicros   int64     `json:"cost_micros"`
	Accuracy     float64   `json:"accuracy,omitempty"`
	Success      bool      `json:"success"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Throttled    bool      `json:"throttled,omitempty"`
}

// TotalTokens returns the combined token count for the sample.
func (s UsageSample) TotalTokens() int64 {
	return s.InputTokens + s.OutputTokens
}

// RollingStats aggregates the most recent samples of one scope.
type RollingStats struct {
	SampleCount     int     `json:"sample_count"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	AvgAccuracy     float64 `json:"avg_accuracy"`
	ErrorRate       float64 `json:"error_rate"`
	ThrottleRate    float64 `json:"throttle_rate"`
	Availability    float64 `json:"availability"`
	TotalCostMicros int64   `json:"total_cost_micros"`
	TotalTokens     int64   `json:"total_tokens"`
}

// Trend classifies latency movement for a scope.
type Trend string

// Trend values.
const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)
