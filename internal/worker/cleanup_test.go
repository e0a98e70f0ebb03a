package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/internal/repository/repositorytest"
	"github.com/merchpulse/storesync/pkg/logger"
)

func seedJob(t *testing.T, queue *repositorytest.FakeQueue, entityID int64, status model.JobStatus, age time.Duration) {
	t.Helper()
	id, err := queue.Enqueue(context.Background(), model.ActionCreate, model.EntityProducts, entityID, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, queue.UpdateStatus(context.Background(), id, status))
	for _, job := range queue.Jobs {
		if job.ID == id {
			job.CreatedAt = time.Now().Add(-age)
			if job.ExecutedAt != nil {
				done := time.Now().Add(-age)
				job.ExecutedAt = &done
			}
		}
	}
}

func TestRunPrunesOnlyOldTerminalJobs(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	settings := repositorytest.NewFakeSettings()
	w := NewCleanupWorker(queue, settings, 7*24*time.Hour, time.Hour, logger.NewLogger(nil))

	seedJob(t, queue, 1, model.JobStatusSuccess, 8*24*time.Hour)
	seedJob(t, queue, 2, model.JobStatusFailure, 8*24*time.Hour)
	seedJob(t, queue, 3, model.JobStatusSuccess, time.Hour)
	seedJob(t, queue, 4, model.JobStatusPending, 8*24*time.Hour)

	require.NoError(t, w.Run(context.Background()))

	assert.Len(t, queue.Jobs, 2)
	for _, job := range queue.Jobs {
		if job.Status == model.JobStatusPending {
			continue
		}
		require.NotNil(t, job.ExecutedAt)
		assert.True(t, job.ExecutedAt.After(time.Now().Add(-7*24*time.Hour)))
	}
}

func TestRunKeepsRecentlyCompletedLongPendingJob(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	settings := repositorytest.NewFakeSettings()
	w := NewCleanupWorker(queue, settings, 7*24*time.Hour, time.Hour, logger.NewLogger(nil))

	// Enqueued long ago but only just completed: the retention window
	// starts at completion.
	id, err := queue.Enqueue(context.Background(), model.ActionCreate, model.EntityProducts, 1, []byte(`{}`))
	require.NoError(t, err)
	for _, job := range queue.Jobs {
		if job.ID == id {
			job.CreatedAt = time.Now().Add(-30 * 24 * time.Hour)
		}
	}
	require.NoError(t, queue.UpdateStatus(context.Background(), id, model.JobStatusSuccess))

	require.NoError(t, w.Run(context.Background()))
	assert.Len(t, queue.Jobs, 1)
}

func TestRunSkipsWithinInterval(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	settings := repositorytest.NewFakeSettings()
	require.NoError(t, settings.SetLastRun(context.Background(), repository.GateCleanup, time.Now()))
	w := NewCleanupWorker(queue, settings, 7*24*time.Hour, time.Hour, logger.NewLogger(nil))

	seedJob(t, queue, 1, model.JobStatusSuccess, 8*24*time.Hour)

	require.NoError(t, w.Run(context.Background()))
	assert.Len(t, queue.Jobs, 1)
}
