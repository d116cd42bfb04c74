package models

import "strings"

// Scope identifies an independently governed unit of usage.
// Any field may be empty; an empty field matches the component-wide default.
type Scope struct {
	CallerID string `json:"caller_id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Key returns the canonical map key for the scope.
func (s Scope) Key() string {
	return strings.ToLower(strings.TrimSpace(s.CallerID)) + "|" +
		strings.ToLower(strings.TrimSpace(s.Provider)) + "|" +
		strings.ToLower(strings.TrimSpace(s.Model))
}

// String renders the scope for logging.
func (s Scope) String() string {
	parts := make([]string, 0, 3)
	if v := strings.TrimSpace(s.CallerID); v != "" {
		parts = append(parts, "caller="+v)
	}
	if v := strings.TrimSpace(s.Provider); v != "" {
		parts = append(parts, "provider="+v)
	}
	if v := strings.TrimSpace(s.Model); v != "" {
		parts = append(parts, "model="+v)
	}
	if len(parts) == 0 {
		return "scope=default"
	}
	return strings.Join(parts, " ")
}

// ParseScopeKey rebuilds a Scope from its canonical key.
func ParseScopeKey(key string) Scope {
	parts := strings.SplitN(key, "|", 3)
	scope := Scope{}
	if len(parts) > 0 {
		scope.CallerID = parts[0]
	}
	if len(parts) > 1 {
		scope.Provider = parts[1]
	}
	if len(parts) > 2 {
		scope.Model = parts[2]
	}
	return scope
}
