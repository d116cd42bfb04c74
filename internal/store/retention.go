package store

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultRetentionInterval = 6 * time.Hour
	deleteBatchSize          = 5000
	maxDeleteBatchesPerRun   = 2000
)

// RetentionCleaner periodically deletes old sample rows and resolved alert
// rows past their retention windows.
type RetentionCleaner struct {
	store      *Store
	interval   time.Duration
	sampleDays int
	alertDays  int
}

// NewRetentionCleaner constructs a cleaner. Zero or negative day counts
// disable cleanup for that table.
func NewRetentionCleaner(store *Store, sampleDays, alertDays int) *RetentionCleaner {
	if store == nil {
		return nil
	}
	return &RetentionCleaner{
		store:      store,
		interval:   defaultRetentionInterval,
		sampleDays: sampleDays,
		alertDays:  alertDays,
	}
}

// Start launches the cleanup loop in a background goroutine.
func (c *RetentionCleaner) Start(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go c.run(ctx)
	log.Infof("store: retention cleaner started (interval=%s sample_days=%d alert_days=%d)", c.interval, c.sampleDays, c.alertDays)
}

func (c *RetentionCleaner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.CleanupOnce(ctx)
		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// CleanupOnce runs a single retention pass over both tables.
func (c *RetentionCleaner) CleanupOnce(ctx context.Context) {
	if c == nil || c.store == nil || c.store.db == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UTC()

	if c.sampleDays > 0 {
		cutoff := now.AddDate(0, 0, -c.sampleDays)
		deleted := c.deleteBatches(ctx, `
			DELETE FROM usage_samples
			WHERE id IN (
				SELECT id FROM usage_samples
				WHERE requested_at < ?
				ORDER BY requested_at ASC
				LIMIT ?
			)
		`, cutoff)
		if deleted > 0 {
			log.Infof("store: retention deleted %d sample rows (cutoff=%s)", deleted, cutoff.Format(time.RFC3339))
		}
	}

	if c.alertDays > 0 {
		cutoff := now.AddDate(0, 0, -c.alertDays)
		deleted := c.deleteBatches(ctx, `
			DELETE FROM alerts
			WHERE resolved = true AND id IN (
				SELECT id FROM alerts
				WHERE resolved = true AND created_at < ?
				ORDER BY created_at ASC
				LIMIT ?
			)
		`, cutoff)
		if deleted > 0 {
			log.Infof("store: retention deleted %d resolved alert rows (cutoff=%s)", deleted, cutoff.Format(time.RFC3339))
		}
	}
}

// deleteBatches runs limited subquery deletes to avoid long transactions.
func (c *RetentionCleaner) deleteBatches(ctx context.Context, query string, cutoff time.Time) int64 {
	total := int64(0)
	for i := 0; i < maxDeleteBatchesPerRun; i++ {
		if ctx.Err() != nil {
			return total
		}
		res := c.store.db.WithContext(ctx).Exec(query, cutoff, deleteBatchSize)
		if res.Error != nil {
			log.WithError(res.Error).Warn("store: retention delete batch failed")
			return total
		}
		if res.RowsAffected <= 0 {
			return total
		}
		total += res.RowsAffected
	}
	return total
}
