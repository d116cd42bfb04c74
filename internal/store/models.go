package store

import (
	"time"

	"gorm.io/datatypes"
)

// UsageSampleRow is the persisted form of one provider call outcome.
type UsageSampleRow struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`         // surrogate key
	ScopeKey     string    `gorm:"size:255;index:idx_samples_scope"` // canonical scope key
	CallerID     string    `gorm:"size:128"`
	Provider     string    `gorm:"size:64"`
	Model        string    `gorm:"size:128"`
	RequestedAt  time.Time `gorm:"index:idx_samples_requested_at"` // sample timestamp, UTC
	LatencyMs    int64
	InputTokens  int64
	OutputTokens int64
	CostMicros   int64 // actual cost in currency micros
	Accuracy     float64
	Success      bool
	ErrorKind    string `gorm:"size:32"`
	Throttled    bool
}

// TableName overrides the table name used by UsageSampleRow.
func (UsageSampleRow) TableName() string { return "usage_samples" }

// AlertRow is the persisted form of an alert, including a JSON payload with
// the threshold context at creation time.
type AlertRow struct {
	ID         string    `gorm:"primaryKey;size:36"` // alert uuid
	Type       string    `gorm:"size:40"`
	Severity   string    `gorm:"size:16"`
	ScopeKey   string    `gorm:"size:255;index:idx_alerts_scope"`
	Message    string    `gorm:"size:512"`
	CreatedAt  time.Time `gorm:"index:idx_alerts_created_at"`
	Resolved   bool
	ResolvedAt *time.Time
	Payload    datatypes.JSON // {"threshold":...,"observed":...}
}

// TableName overrides the table name used by AlertRow.
func (AlertRow) TableName() string { return "alerts" }
