package alerts

import (
	"testing"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/router-for-me/ModelGovernor/internal/scheduler"
)

func newTestManager() (*Manager, *scheduler.Manual) {
	clock := scheduler.NewManual(time.Date(2026, 8, 5, 10, 0, 0, 0, time.UTC))
	return New(clock, nil, nil), clock
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	m, _ := newTestManager()

	a := m.Create(models.AlertLatency, models.SeverityWarning, "scope", "slow", 5000, 6000)
	b := m.Create(models.AlertLatency, models.SeverityWarning, "scope", "slow", 5000, 6000)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
}

func TestDuplicateAlertsAreNotMerged(t *testing.T) {
	m, _ := newTestManager()

	m.Create(models.AlertLatency, models.SeverityWarning, "scope", "slow", 5000, 6000)
	m.Create(models.AlertLatency, models.SeverityWarning, "scope", "slow", 5000, 6000)
	if got := len(m.List(false)); got != 2 {
		t.Fatalf("expected 2 open alerts, got %d", got)
	}
}

func TestListFiltersByResolvedNewestFirst(t *testing.T) {
	m, clock := newTestManager()

	first := m.Create(models.AlertLatency, models.SeverityWarning, "scope", "first", 0, 0)
	clock.Advance(time.Minute)
	m.Create(models.AlertAccuracy, models.SeverityCritical, "scope", "second", 0, 0)

	open := m.List(false)
	if len(open) != 2 {
		t.Fatalf("expected 2 open alerts, got %d", len(open))
	}
	if open[0].Message != "second" {
		t.Fatalf("expected newest first, got %q", open[0].Message)
	}

	m.Resolve(first.ID)
	if got := len(m.List(false)); got != 1 {
		t.Fatalf("expected 1 open alert after resolve, got %d", got)
	}
	resolved := m.List(true)
	if len(resolved) != 1 || resolved[0].ID != first.ID {
		t.Fatalf("expected the resolved alert listed, got %+v", resolved)
	}
}

func TestResolveIsIdempotentAndTolerantOfUnknownIDs(t *testing.T) {
	m, clock := newTestManager()

	alert := m.Create(models.AlertLatency, models.SeverityWarning, "scope", "slow", 0, 0)
	m.Resolve(alert.ID)
	firstResolvedAt := m.List(true)[0].ResolvedAt

	clock.Advance(time.Hour)
	m.Resolve(alert.ID)
	if got := m.List(true)[0].ResolvedAt; !got.Equal(*firstResolvedAt) {
		t.Fatalf("second resolve must not move the timestamp")
	}

	m.Resolve("no-such-id")
}

type countingArchiver struct {
	archived int
	resolved int
}

func (c *countingArchiver) ArchiveAlert(models.Alert)           { c.archived++ }
func (c *countingArchiver) MarkAlertResolved(string, time.Time) { c.resolved++ }

func TestResolveArchivesOnlyTheFirstResolution(t *testing.T) {
	clock := scheduler.NewManual(time.Date(2026, 8, 5, 10, 0, 0, 0, time.UTC))
	archiver := &countingArchiver{}
	m := New(clock, nil, archiver)

	alert := m.Create(models.AlertLatency, models.SeverityWarning, "scope", "slow", 0, 0)
	m.Resolve(alert.ID)
	clock.Advance(time.Hour)
	m.Resolve(alert.ID)
	m.Resolve("no-such-id")

	if archiver.resolved != 1 {
		t.Fatalf("expected exactly one archived resolution, got %d", archiver.resolved)
	}
}

func TestActiveForScopeReturnsOnlyUnresolvedMatches(t *testing.T) {
	m, _ := newTestManager()

	keep := m.Create(models.AlertLatency, models.SeverityWarning, "a", "keep", 0, 0)
	gone := m.Create(models.AlertLatency, models.SeverityWarning, "a", "gone", 0, 0)
	m.Create(models.AlertLatency, models.SeverityWarning, "b", "other", 0, 0)
	m.Resolve(gone.ID)

	active := m.ActiveForScope("a")
	if len(active) != 1 || active[0].ID != keep.ID {
		t.Fatalf("unexpected active alerts: %+v", active)
	}
}

func TestSweepDropsOnlyOldResolvedAlerts(t *testing.T) {
	m, clock := newTestManager()

	oldResolved := m.Create(models.AlertLatency, models.SeverityWarning, "scope", "old resolved", 0, 0)
	m.Resolve(oldResolved.ID)
	m.Create(models.AlertLatency, models.SeverityWarning, "scope", "old open", 0, 0)

	clock.Advance(8 * 24 * time.Hour)
	recent := m.Create(models.AlertLatency, models.SeverityWarning, "scope", "recent resolved", 0, 0)
	m.Resolve(recent.ID)

	dropped := m.Sweep(clock.Now())
	if dropped != 1 {
		t.Fatalf("expected 1 alert swept, got %d", dropped)
	}
	if got := len(m.List(false)); got != 1 {
		t.Fatalf("unresolved alerts must survive sweep, got %d", got)
	}
	if got := len(m.List(true)); got != 1 {
		t.Fatalf("expected recent resolved alert to survive, got %d", got)
	}
}
