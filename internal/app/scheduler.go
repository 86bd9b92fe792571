package app

import (
	"context"
	"log/slog"
	"time"

	"pulseboard/internal/engine"
)

// Trigger runs one scheduling pass.
type Trigger interface {
	TriggerScheduled(ctx context.Context) (engine.TriggerSummary, error)
}

// RunScheduler calls TriggerScheduled immediately and then every interval until
// ctx is done. A failed pass is logged and the loop continues.
func RunScheduler(ctx context.Context, t Trigger, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scheduler"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.InfoContext(ctx, "scheduler started", slog.Duration("interval", interval))
	for ctx.Err() == nil {
		if _, err := t.TriggerScheduled(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorContext(ctx, "trigger failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	logger.Info("scheduler stopped")
	return nil
}
