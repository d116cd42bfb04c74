package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	writeQueueCapacity = 512
	writeTimeout       = 5 * time.Second
)

// Store writes samples and alerts to the database through a buffered queue
// consumed by a single worker, so a slow database never blocks the request
// path. A full queue drops the write.
type Store struct {
	db        *gorm.DB
	queue     chan func(*gorm.DB) error
	closeOnce sync.Once
	done      chan struct{}
}

// New opens the database, migrates the schema, and starts the write worker.
func New(dsn string) (*Store, error) {
	conn, errOpen := Open(dsn)
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}
	s := &Store{
		db:    conn,
		queue: make(chan func(*gorm.DB) error, writeQueueCapacity),
		done:  make(chan struct{}),
	}
	go s.run()
	log.Info("store: database store started")
	return s, nil
}

func migrate(conn *gorm.DB) error {
	if errAuto := conn.AutoMigrate(&UsageSampleRow{}, &AlertRow{}); errAuto != nil {
		return fmt.Errorf("store: migrate: %w", errAuto)
	}
	return nil
}

func (s *Store) run() {
	defer close(s.done)
	for write := range s.queue {
		if errWrite := write(s.db); errWrite != nil {
			log.WithError(errWrite).Warn("store: write failed")
		}
	}
}

func (s *Store) enqueue(write func(*gorm.DB) error) {
	if s == nil {
		return
	}
	select {
	case s.queue <- write:
	default:
		log.Debug("store: write queue full, dropping entry")
	}
}

// RecordSample persists a usage sample asynchronously.
func (s *Store) RecordSample(sample models.UsageSample) {
	if s == nil {
		return
	}
	row := UsageSampleRow{
		ScopeKey:     sample.Scope.Key(),
		CallerID:     sample.Scope.CallerID,
		Provider:     sample.Scope.Provider,
		Model:        sample.Scope.Model,
		RequestedAt:  sample.Timestamp.UTC(),
		LatencyMs:    sample.LatencyMs,
		InputTokens:  sample.InputTokens,
		OutputTokens: sample.OutputTokens,
		CostMicros:   sample.CostMicros,
		Accuracy:     sample.Accuracy,
		Success:      sample.Success,
		ErrorKind:    sample.ErrorKind,
		Throttled:    sample.Throttled,
	}
	s.enqueue(func(conn *gorm.DB) error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return conn.WithContext(ctx).Create(&row).Error
	})
}

// ArchiveAlert persists a newly raised alert asynchronously.
func (s *Store) ArchiveAlert(alert models.Alert) {
	if s == nil {
		return
	}
	payload := datatypes.JSON(fmt.Sprintf(`{"threshold":%g,"observed":%g}`, alert.Threshold, alert.Observed))
	row := AlertRow{
		ID:         alert.ID,
		Type:       string(alert.Type),
		Severity:   string(alert.Severity),
		ScopeKey:   alert.ScopeKey,
		Message:    alert.Message,
		CreatedAt:  alert.CreatedAt.UTC(),
		Resolved:   alert.Resolved,
		ResolvedAt: alert.ResolvedAt,
		Payload:    payload,
	}
	s.enqueue(func(conn *gorm.DB) error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return conn.WithContext(ctx).Create(&row).Error
	})
}

// MarkAlertResolved persists an alert resolution asynchronously.
func (s *Store) MarkAlertResolved(id string, at time.Time) {
	if s == nil {
		return
	}
	at = at.UTC()
	s.enqueue(func(conn *gorm.DB) error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return conn.WithContext(ctx).Model(&AlertRow{}).
			Where("id = ?", id).
			Updates(map[string]any{"resolved": true, "resolved_at": at}).Error
	})
}

// Ping probes database connectivity, bypassing the write queue.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sqlDB, errDB := s.db.DB()
	if errDB != nil {
		return errDB
	}
	return sqlDB.PingContext(ctx)
}

// SeedDailyTotals sums today's persisted cost per scope, used on startup so
// a process restart does not reset daily budgets.
func (s *Store) SeedDailyTotals(ctx context.Context, now time.Time) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	dayStart := now.UTC().Truncate(24 * time.Hour)

	type scopeTotal struct {
		ScopeKey   string
		CostMicros int64
	}
	var rows []scopeTotal
	errFind := s.db.WithContext(ctx).Model(&UsageSampleRow{}).
		Select("scope_key, SUM(cost_micros) AS cost_micros").
		Where("requested_at >= ? AND success = ?", dayStart, true).
		Group("scope_key").
		Scan(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("store: seed daily totals: %w", errFind)
	}
	totals := make(map[string]int64, len(rows))
	for _, row := range rows {
		totals[row.ScopeKey] = row.CostMicros
	}
	return totals, nil
}

// Close drains the write queue, stops the worker, and closes the database.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
		sqlDB, errDB := s.db.DB()
		if errDB != nil {
			return
		}
		if errClose := sqlDB.Close(); errClose != nil {
			log.WithError(errClose).Warn("store: close failed")
		}
	})
}
