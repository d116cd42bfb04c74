package scheduler

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Loop runs fn at the given interval until ctx is cancelled. A failed run is
// logged and the loop continues on its next tick; a single failure never
// stops subsequent sweeps.
func Loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 || fn == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go run(ctx, name, interval, fn)
	log.Infof("scheduler: %s loop started (interval=%s)", name, interval)
}

func run(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	for {
		if ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
		if errRun := fn(ctx); errRun != nil {
			log.WithError(errRun).Warnf("scheduler: %s sweep failed", name)
		}
	}
}
