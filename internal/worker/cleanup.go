package worker

import (
	"context"
	"time"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/pkg/logger"
)

// CleanupWorker prunes terminal queue rows past the retention window.
// Pending rows are never touched; unfinished work survives any number of
// cleanup runs.
type CleanupWorker struct {
	queue     repository.QueueRepository
	settings  repository.SettingsRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
}

func NewCleanupWorker(queue repository.QueueRepository, settings repository.SettingsRepository, retention, interval time.Duration, log *logger.Logger) *CleanupWorker {
	return &CleanupWorker{
		queue:     queue,
		settings:  settings,
		retention: retention,
		interval:  interval,
		logger:    log.WithComponent("cleanup"),
	}
}

func (w *CleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				w.logger.Error(err, "queue cleanup failed")
			}
		}
	}
}

// Run prunes once, gated by a persisted last-run timestamp so side-by-side
// processes do not double-prune.
func (w *CleanupWorker) Run(ctx context.Context) error {
	last, err := w.settings.LastRun(ctx, repository.GateCleanup)
	if err != nil {
		return err
	}
	if time.Since(last) < w.interval {
		return nil
	}
	if err := w.settings.SetLastRun(ctx, repository.GateCleanup, time.Now()); err != nil {
		return err
	}

	rows, err := w.queue.Purge(ctx, w.retention, []model.JobStatus{
		model.JobStatusSuccess,
		model.JobStatusFailure,
	})
	if err != nil {
		return err
	}

	if rows > 0 {
		w.logger.Info("pruned terminal jobs", "rows", rows)
	}
	return nil
}
