package models

import "time"

// Limits holds the per-scope budget and rate configuration.
// All monetary values are in micros (1e-6 currency units).
type Limits struct {
	PerRequestMicros     int64   `json:"per_request_micros" yaml:"per-request-micros"`
	DailyMicros          int64   `json:"daily_micros" yaml:"daily-micros"`
	WeeklyMicros         int64   `json:"weekly_micros" yaml:"weekly-micros"`
	MonthlyMicros        int64   `json:"monthly_micros" yaml:"monthly-micros"`
	WarningThreshold     float64 `json:"warning_threshold" yaml:"warning-threshold"`
	MaxRequestsPerMinute int     `json:"max_requests_per_minute" yaml:"max-requests-per-minute"`
}

// CostCounter is a snapshot of the accumulated cost for one scope.
type CostCounter struct {
	ScopeKey      string    `json:"scope_key"`
	DailyMicros   int64     `json:"daily_micros"`
	WeeklyMicros  int64     `json:"weekly_micros"`
	MonthlyMicros int64     `json:"monthly_micros"`
	LastReset     time.Time `json:"last_reset"`
}

// Options carries the recognized per-request provider options.
type Options struct {
	MaxOutputTokens int64   `json:"max_output_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"top_p,omitempty"`
	Stop            string  `json:"stop,omitempty"`
}
