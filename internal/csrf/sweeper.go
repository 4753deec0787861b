package csrf

import (
	"context"
	"time"

	"cybertrainer/internal/observability"
)

// RunSweeper sweeps store every interval until ctx is done.
func RunSweeper(ctx context.Context, store Store, interval time.Duration, logger *observability.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Sweep(ctx)
			if err != nil {
				logger.Warn("csrf_sweep_failed", map[string]any{"error": err.Error()})
				continue
			}
			if removed > 0 {
				logger.Info("csrf_sweep_completed", map[string]any{"removed": removed})
			}
		}
	}
}
