package ledger

import "fmt"

// Budget rejection kinds.
const (
	// BudgetKindPerRequest marks a single request over its per-request cap.
	BudgetKindPerRequest = "per_request"
	// BudgetKindDaily marks a request that would push the daily total past
	// its limit.
	BudgetKindDaily = "daily"
)

// BudgetExceededError reports a rejected authorization, carrying current
// usage and remaining budget for caller display.
type BudgetExceededError struct {
	ScopeKey        string
	Kind            string
	EstimatedMicros int64
	CurrentMicros   int64
	LimitMicros     int64
	RemainingMicros int64
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	if e == nil {
		return ""
	}
	if e.Kind == BudgetKindPerRequest {
		return fmt.Sprintf("cost ledger: estimated cost %dµ exceeds per-request limit %dµ", e.EstimatedMicros, e.LimitMicros)
	}
	return fmt.Sprintf("cost ledger: daily budget exceeded (current=%dµ estimated=%dµ limit=%dµ remaining=%dµ)",
		e.CurrentMicros, e.EstimatedMicros, e.LimitMicros, e.RemainingMicros)
}
