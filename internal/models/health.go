package models

import "time"

// HealthTier classifies scope or system health.
type HealthTier string

// Health tiers.
const (
	HealthHealthy  HealthTier = "healthy"
	HealthWarning  HealthTier = "warning"
	HealthCritical HealthTier = "critical"
)

// ScopeHealth summarizes one scope inside a system snapshot. A zero
// DailyLimitMicros means the scope is not budget-limited, and
// RemainingDailyMicros is meaningful only when a limit is set.
type ScopeHealth struct {
	ScopeKey             string       `json:"scope_key"`
	Tier                 HealthTier   `json:"tier"`
	SampleCount          int          `json:"sample_count"`
	AvgLatencyMs         float64      `json:"avg_latency_ms"`
	ErrorRate            float64      `json:"error_rate"`
	ThrottleRate         float64      `json:"throttle_rate"`
	CostMicros           int64        `json:"cost_micros"`
	Trend                Trend        `json:"trend"`
	OpenAlerts           int          `json:"open_alerts"`
	DailyUsage           *CostCounter `json:"daily_usage,omitempty"`
	DailyLimitMicros     int64        `json:"daily_limit_micros"`
	RemainingDailyMicros int64        `json:"remaining_daily_micros"`
}

// SystemHealth is the system-wide health verdict.
type SystemHealth struct {
	Tier            HealthTier    `json:"tier"`
	GeneratedAt     time.Time     `json:"generated_at"`
	TotalRequests   int           `json:"total_requests"`
	AvgLatencyMs    float64       `json:"avg_latency_ms"`
	ErrorRate       float64       `json:"error_rate"`
	TotalCostMicros int64         `json:"total_cost_micros"`
	Scopes          []ScopeHealth `json:"scopes"`
}

// CachedResult is a provider result held by the response cache.
type CachedResult struct {
	Output       string    `json:"output"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostMicros   int64     `json:"cost_micros"`
	StoredAt     time.Time `json:"stored_at"`
}

// ProviderResult is the outcome of one successful provider invocation.
type ProviderResult struct {
	Output       string `json:"output"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	LatencyMs    int64  `json:"latency_ms"`
}

// Result is what the governor returns to callers.
type Result struct {
	Output       string `json:"output"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	LatencyMs    int64  `json:"latency_ms"`
	CostMicros   int64  `json:"cost_micros"`
	Cached       bool   `json:"cached"`
}

// Authorization reports the outcome of a dry-run admission check.
type Authorization struct {
	Allowed              bool   `json:"allowed"`
	Reason               string `json:"reason,omitempty"`
	EstimatedCostMicros  int64  `json:"estimated_cost_micros"`
	RemainingDailyMicros int64  `json:"remaining_daily_micros"`
	RemainingRateQuota   int    `json:"remaining_rate_quota"`
	CurrentDailyMicros   int64  `json:"current_daily_micros"`
	DailyLimitMicros     int64  `json:"daily_limit_micros"`
}
