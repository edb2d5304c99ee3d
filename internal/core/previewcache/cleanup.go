package previewcache

import (
	"context"
	"log/slog"
	"time"
)

// CleanExpired deletes metadata rows whose TTL expired more than grace ago.
// Returns the number of rows removed.
func CleanExpired(ctx context.Context, repo Repository, grace time.Duration) (int64, error) {
	cutoff := time.Now().Add(-grace)
	removed, err := repo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		slog.Info("[HOUSEKEEPING] expired preview cache rows deleted",
			"rows_removed", removed,
			"cutoff", cutoff,
		)
	}
	return removed, nil
}

// StartCleanupJob starts a background goroutine that periodically deletes
// expired metadata rows. Returns a cancel function that should be called
// during graceful shutdown. If interval is 0 or negative, no job is started
// and the cancel function is a no-op.
func StartCleanupJob(repo Repository, interval, grace time.Duration) context.CancelFunc {
	if interval <= 0 {
		slog.Info("[HOUSEKEEPING] preview cache cleanup job disabled (interval=0)")
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("[HOUSEKEEPING] CRITICAL: preview cache cleanup job panicked",
					"panic", r,
				)
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("[HOUSEKEEPING] preview cache cleanup job started",
			"interval", interval,
			"grace", grace,
		)

		cycleCount := 0
		for {
			select {
			case <-ctx.Done():
				slog.Info("[HOUSEKEEPING] preview cache cleanup job stopped")
				return
			case <-ticker.C:
				cycleCount++

				removed, err := CleanExpired(ctx, repo, grace)
				if err != nil {
					slog.Error("[HOUSEKEEPING] preview cache cleanup error",
						"error", err,
						"cycle", cycleCount,
					)
					continue
				}

				if removed == 0 && cycleCount%6 == 0 {
					slog.Debug("[HOUSEKEEPING] preview cache cleanup heartbeat",
						"cycle", cycleCount,
					)
				}
			}
		}
	}()

	return cancel
}
