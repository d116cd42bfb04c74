package governor

import (
	"fmt"
	"strings"
)

// RateLimitExceededError reports a request rejected by the per-scope
// request-rate window.
type RateLimitExceededError struct {
	ScopeKey     string
	MaxPerMinute int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("governor: rate limit exceeded (scope=%s max_per_minute=%d)", e.ScopeKey, e.MaxPerMinute)
}

// FailureCause classifies a provider failure for metering purposes.
type FailureCause string

// Failure causes recognized by the governor.
const (
	CauseThrottling FailureCause = "throttling"
	CauseAuth       FailureCause = "auth"
	CauseQuota      FailureCause = "quota"
	CauseTimeout    FailureCause = "timeout"
	CauseUnknown    FailureCause = "unknown"
)

// ProviderInvocationError wraps a provider failure with the request context
// the caller needs to diagnose it.
type ProviderInvocationError struct {
	ScopeKey      string
	ContentLength int
	Cause         FailureCause
	Err           error
}

func (e *ProviderInvocationError) Error() string {
	return fmt.Sprintf("governor: provider call failed (scope=%s cause=%s content_len=%d): %v",
		e.ScopeKey, e.Cause, e.ContentLength, e.Err)
}

func (e *ProviderInvocationError) Unwrap() error { return e.Err }

// inferCause classifies a provider error from its message. The match is
// best-effort; anything unrecognized stays unknown.
func inferCause(err error) FailureCause {
	if err == nil {
		return CauseUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "throttl"):
		return CauseThrottling
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return CauseAuth
	case strings.Contains(msg, "quota") || strings.Contains(msg, "insufficient"):
		return CauseQuota
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return CauseTimeout
	default:
		return CauseUnknown
	}
}
