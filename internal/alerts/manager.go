// Package alerts stores threshold-crossing alerts, resolves them, and
// forwards each new alert to the metrics sink best-effort.
package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/ModelGovernor/internal/metrics"
	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/router-for-me/ModelGovernor/internal/scheduler"
	log "github.com/sirupsen/logrus"
)

// alertRetention drops alerts that are resolved and older than this window.
const alertRetention = 7 * 24 * time.Hour

// Archiver mirrors alerts to a persistent store, when one is configured.
type Archiver interface {
	ArchiveAlert(alert models.Alert)
	MarkAlertResolved(id string, at time.Time)
}

// Manager holds the in-memory alert history. Alerts are append-only: a
// fresh crossing creates a new alert even when an unresolved one for the
// same scope and type exists; duplicates are not merged.
type Manager struct {
	mu       sync.Mutex
	clock    scheduler.Clock
	sink     metrics.Sink
	archiver Archiver
	alerts   []*models.Alert
	byID     map[string]*models.Alert
}

// New constructs a Manager. sink may be nil; archiver may be nil.
func New(clock scheduler.Clock, sink metrics.Sink, archiver Archiver) *Manager {
	if clock == nil {
		clock = scheduler.System()
	}
	if sink == nil {
		sink = metrics.NewNop()
	}
	return &Manager{
		clock:    clock,
		sink:     sink,
		archiver: archiver,
		byID:     make(map[string]*models.Alert),
	}
}

// Create stores a new alert and pushes it to the metrics sink. The push is
// fire-and-forget; sink failures never surface here.
func (m *Manager) Create(typ models.AlertType, severity models.Severity, scopeKey, message string, threshold, observed float64) models.Alert {
	if m == nil {
		return models.Alert{}
	}
	alert := models.Alert{
		ID:        uuid.NewString(),
		Type:      typ,
		Severity:  severity,
		ScopeKey:  scopeKey,
		Message:   message,
		Threshold: threshold,
		Observed:  observed,
		CreatedAt: m.clock.Now(),
	}

	m.mu.Lock()
	stored := alert
	m.alerts = append(m.alerts, &stored)
	m.byID[stored.ID] = &stored
	m.mu.Unlock()

	log.Warnf("alert manager: %s/%s raised (scope=%s observed=%.4f threshold=%.4f)",
		alert.Type, alert.Severity, scopeKey, observed, threshold)
	m.sink.PushEvent(string(alert.Type), message, string(severity), map[string]string{
		"scope":    scopeKey,
		"alert_id": alert.ID,
	})
	if m.archiver != nil {
		m.archiver.ArchiveAlert(alert)
	}
	return alert
}

// Raise adapts Create to the sink interface the ledger and recorder expect.
func (m *Manager) Raise(typ models.AlertType, severity models.Severity, scopeKey, message string, threshold, observed float64) {
	m.Create(typ, severity, scopeKey, message, threshold, observed)
}

// Resolve marks an alert resolved. It is idempotent and resolving an
// unknown id is a no-op, not an error. Only the first resolution reaches
// the archiver, so the persisted resolved_at never drifts.
func (m *Manager) Resolve(id string) {
	if m == nil {
		return
	}
	now := m.clock.Now()
	m.mu.Lock()
	alert, ok := m.byID[id]
	changed := ok && !alert.Resolved
	if changed {
		alert.Resolved = true
		alert.ResolvedAt = &now
	}
	m.mu.Unlock()
	if !changed {
		return
	}
	if m.archiver != nil {
		m.archiver.MarkAlertResolved(id, now)
	}
}

// List returns alerts matching the resolved flag, newest first.
func (m *Manager) List(resolved bool) []models.Alert {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	out := make([]models.Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		if alert.Resolved == resolved {
			out = append(out, *alert)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ActiveForScope returns unresolved alerts belonging to one scope.
func (m *Manager) ActiveForScope(scopeKey string) []models.Alert {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Alert, 0, 4)
	for _, alert := range m.alerts {
		if !alert.Resolved && alert.ScopeKey == scopeKey {
			out = append(out, *alert)
		}
	}
	return out
}

// Sweep drops alerts that are both resolved and older than the retention
// window, and reports how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	if m == nil {
		return 0
	}
	cutoff := now.Add(-alertRetention)
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.alerts[:0]
	dropped := 0
	for _, alert := range m.alerts {
		if alert.Resolved && alert.CreatedAt.Before(cutoff) {
			delete(m.byID, alert.ID)
			dropped++
			continue
		}
		kept = append(kept, alert)
	}
	m.alerts = kept
	return dropped
}
