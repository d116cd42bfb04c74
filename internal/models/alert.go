package models

import "time"

// AlertType identifies the condition that raised an alert.
type AlertType string

// Alert types raised by the governance components.
const (
	AlertCostWarning       AlertType = "cost_warning"
	AlertCostLimitExceeded AlertType = "cost_limit_exceeded"
	AlertLatency           AlertType = "latency"
	AlertAccuracy          AlertType = "accuracy"
	AlertCostPerRequest    AlertType = "cost_per_request"
)

// Severity ranks alert urgency.
type Severity string

// Severity levels, lowest to highest.
const (
	SeverityWarning  Severity = "warning"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is an append-only record of a threshold crossing. A fresh crossing
// always creates a new alert; alerts are never reopened.
type Alert struct {
	ID         string     `json:"id"`
	Type       AlertType  `json:"type"`
	Severity   Severity   `json:"severity"`
	ScopeKey   string     `json:"scope_key,omitempty"`
	Message    string     `json:"message"`
	Threshold  float64    `json:"threshold"`
	Observed   float64    `json:"observed"`
	CreatedAt  time.Time  `json:"created_at"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
