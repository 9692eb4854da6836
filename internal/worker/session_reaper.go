package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper evicts idle sessions.
type Reaper interface {
	Reap(now time.Time) []string
}

// RunSessionReaper calls Reap every interval until ctx is cancelled. onEvict runs
// for each evicted session key.
func RunSessionReaper(ctx context.Context, reaper Reaper, interval time.Duration, logger *zap.Logger, onEvict func(context.Context, string)) {
	if reaper == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("session reaper stopped")
			return
		case now := <-ticker.C:
			for _, key := range reaper.Reap(now) {
				if onEvict != nil {
					onEvict(ctx, key)
				}
			}
		}
	}
}
