package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository"
)

const queueColumns = "id, action, entity_type, entity_id, payload, status, executed_at, created_at"

type queueRepository struct {
	BaseRepository
	sb sq.StatementBuilderType
}

func NewQueueRepository(base BaseRepository) repository.QueueRepository {
	return &queueRepository{
		BaseRepository: base,
		sb:             sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Enqueue inserts a pending job, or overwrites the payload and resets
// created_at of an existing pending job with the same natural key. The
// conflict target is the partial pending-only index, so terminal rows
// for the same key never collide, neither here nor when a later pending
// row transitions to the same terminal status.
func (r *queueRepository) Enqueue(ctx context.Context, action model.Action, entityType model.EntityType, entityID int64, payload json.RawMessage) (int64, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO sync_queue (action, entity_type, entity_id, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (action, entity_type, entity_id) WHERE status = 0
		DO UPDATE SET payload = EXCLUDED.payload, created_at = now()
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, action, entityType, entityID, payload, model.JobStatusPending).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s/%s/%d: %w", action, entityType, entityID, err)
	}
	return id, nil
}

// EnqueueBulk inserts a job without an entity id. The unique index treats
// NULL entity ids as distinct, so bulk chunks always insert fresh.
func (r *queueRepository) EnqueueBulk(ctx context.Context, action model.Action, entityType model.EntityType, payload json.RawMessage) (int64, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO sync_queue (action, entity_type, entity_id, payload, status, created_at)
		VALUES ($1, $2, NULL, $3, $4, now())
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, action, entityType, payload, model.JobStatusPending).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue bulk %s/%s: %w", action, entityType, err)
	}
	return id, nil
}

func (r *queueRepository) ExistsPending(ctx context.Context, action model.Action, entityType model.EntityType, entityID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM sync_queue
			WHERE action = $1 AND entity_type = $2 AND entity_id = $3 AND status = $4
		)
	`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, action, entityType, entityID, model.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to check pending job: %w", err)
	}
	return exists, nil
}

func (r *queueRepository) ExistsAction(ctx context.Context, action model.Action) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM sync_queue WHERE action = $1)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, action)
	if err != nil {
		return false, fmt.Errorf("failed to check action %s: %w", action, err)
	}
	return exists, nil
}

func (r *queueRepository) NextPending(ctx context.Context, filter repository.QueueFilter) (*model.Job, error) {
	qb := r.sb.Select(queueColumns).
		From("sync_queue").
		Where(sq.Eq{"status": model.JobStatusPending}).
		OrderBy("id ASC").
		Limit(1)
	if filter.Action != "" {
		qb = qb.Where(sq.Eq{"action": filter.Action})
	}
	if filter.EntityType != "" {
		qb = qb.Where(sq.Eq{"entity_type": filter.EntityType})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build pending query: %w", err)
	}

	var job model.Job
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending job: %w", err)
	}
	return &job, nil
}

func (r *queueRepository) NextPendingBatch(ctx context.Context, entityType model.EntityType, action model.Action, limit int) ([]*model.Job, error) {
	query, args, err := r.sb.Select(queueColumns).
		From("sync_queue").
		Where(sq.Eq{
			"status":      model.JobStatusPending,
			"entity_type": entityType,
			"action":      action,
		}).
		OrderBy("id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build batch query: %w", err)
	}

	var jobs []*model.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get pending batch: %w", err)
	}
	return jobs, nil
}

// UpdateStatus transitions a job and stamps executed_at on the first
// terminal transition only; a 5xx requeue back to pending leaves any
// prior stamp untouched.
func (r *queueRepository) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	return r.UpdateStatusBatch(ctx, []int64{id}, status)
}

func (r *queueRepository) UpdateStatusBatch(ctx context.Context, ids []int64, status model.JobStatus) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE sync_queue
		SET status = $1,
			executed_at = CASE
				WHEN $2 AND executed_at IS NULL THEN now()
				ELSE executed_at
			END
		WHERE id = ANY($3)
	`

	_, err := r.db.ExecContext(ctx, query, status, status.Terminal(), pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (r *queueRepository) ListByAction(ctx context.Context, action model.Action) ([]*model.Job, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE action = $1 ORDER BY id ASC`

	var jobs []*model.Job
	if err := r.db.SelectContext(ctx, &jobs, query, action); err != nil {
		return nil, fmt.Errorf("failed to list jobs by action: %w", err)
	}
	return jobs, nil
}

func (r *queueRepository) CountsByEntityAndStatus(ctx context.Context) ([]repository.StatusCount, error) {
	query := `
		SELECT entity_type, status, COUNT(*) AS count
		FROM sync_queue
		GROUP BY entity_type, status
		ORDER BY entity_type, status
	`

	var counts []repository.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate queue counts: %w", err)
	}
	return counts, nil
}

func (r *queueRepository) Purge(ctx context.Context, olderThan time.Duration, statuses []model.JobStatus) (int64, error) {
	raw := make([]int, len(statuses))
	for i, s := range statuses {
		raw[i] = int(s)
	}

	// Retention counts from completion, not enqueue, so a job that sat
	// pending for days still gets its full window of history.
	query := `DELETE FROM sync_queue WHERE executed_at < $1 AND status = ANY($2)`

	result, err := r.db.ExecContext(ctx, query, time.Now().Add(-olderThan), pq.Array(raw))
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue: %w", err)
	}
	return result.RowsAffected()
}

func (r *queueRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `TRUNCATE sync_queue`); err != nil {
		return fmt.Errorf("failed to truncate queue: %w", err)
	}
	return nil
}
