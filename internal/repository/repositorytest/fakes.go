// Package repositorytest provides in-memory repository fakes for service
// tests.
package repositorytest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
)

// FakeQueue is an in-memory QueueRepository with the same coalescing
// rule as the SQL implementation: one pending row per (action, entity
// type, entity id), refreshed payload on re-enqueue.
type FakeQueue struct {
	mu     sync.Mutex
	nextID int64
	Jobs   []*model.Job
}

func NewFakeQueue() *FakeQueue {
	return &FakeQueue{}
}

func (q *FakeQueue) Enqueue(_ context.Context, action model.Action, entityType model.EntityType, entityID int64, payload json.RawMessage) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.Jobs {
		if job.Status == model.JobStatusPending && job.Action == action && job.EntityType == entityType &&
			job.EntityID != nil && *job.EntityID == entityID {
			job.Payload = payload
			job.CreatedAt = time.Now()
			return job.ID, nil
		}
	}
	return q.insert(action, entityType, &entityID, payload), nil
}

func (q *FakeQueue) EnqueueBulk(_ context.Context, action model.Action, entityType model.EntityType, payload json.RawMessage) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.insert(action, entityType, nil, payload), nil
}

func (q *FakeQueue) insert(action model.Action, entityType model.EntityType, entityID *int64, payload json.RawMessage) int64 {
	q.nextID++
	q.Jobs = append(q.Jobs, &model.Job{
		ID:         q.nextID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		Status:     model.JobStatusPending,
		CreatedAt:  time.Now(),
	})
	return q.nextID
}

func (q *FakeQueue) ExistsPending(_ context.Context, action model.Action, entityType model.EntityType, entityID int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.Jobs {
		if job.Status == model.JobStatusPending && job.Action == action && job.EntityType == entityType &&
			job.EntityID != nil && *job.EntityID == entityID {
			return true, nil
		}
	}
	return false, nil
}

func (q *FakeQueue) ExistsAction(_ context.Context, action model.Action) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.Jobs {
		if job.Action == action {
			return true, nil
		}
	}
	return false, nil
}

func (q *FakeQueue) NextPending(_ context.Context, filter repository.QueueFilter) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.Jobs {
		if job.Status != model.JobStatusPending {
			continue
		}
		if filter.Action != "" && job.Action != filter.Action {
			continue
		}
		if filter.EntityType != "" && job.EntityType != filter.EntityType {
			continue
		}
		return job, nil
	}
	return nil, nil
}

func (q *FakeQueue) NextPendingBatch(_ context.Context, entityType model.EntityType, action model.Action, limit int) ([]*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*model.Job
	for _, job := range q.Jobs {
		if job.Status == model.JobStatusPending && job.Action == action && job.EntityType == entityType {
			out = append(out, job)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (q *FakeQueue) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	return q.UpdateStatusBatch(ctx, []int64{id}, status)
}

func (q *FakeQueue) UpdateStatusBatch(_ context.Context, ids []int64, status model.JobStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, job := range q.Jobs {
		for _, id := range ids {
			if job.ID == id {
				job.Status = status
				if status.Terminal() && job.ExecutedAt == nil {
					job.ExecutedAt = &now
				}
			}
		}
	}
	return nil
}

func (q *FakeQueue) ListByAction(_ context.Context, action model.Action) ([]*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*model.Job
	for _, job := range q.Jobs {
		if job.Action == action {
			out = append(out, job)
		}
	}
	return out, nil
}

func (q *FakeQueue) CountsByEntityAndStatus(_ context.Context) ([]repository.StatusCount, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	type key struct {
		entity model.EntityType
		status model.JobStatus
	}
	counts := make(map[key]int)
	for _, job := range q.Jobs {
		counts[key{job.EntityType, job.Status}]++
	}
	out := make([]repository.StatusCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, repository.StatusCount{EntityType: k.entity, Status: k.status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

func (q *FakeQueue) Purge(_ context.Context, olderThan time.Duration, statuses []model.JobStatus) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var kept []*model.Job
	var purged int64
	for _, job := range q.Jobs {
		drop := false
		for _, s := range statuses {
			if job.Status == s && job.ExecutedAt != nil && job.ExecutedAt.Before(cutoff) {
				drop = true
				break
			}
		}
		if drop {
			purged++
			continue
		}
		kept = append(kept, job)
	}
	q.Jobs = kept
	return purged, nil
}

func (q *FakeQueue) DeleteAll(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Jobs = nil
	return nil
}

// PendingByGroup returns pending jobs for one (action, entity type)
// pair, a common assertion target.
func (q *FakeQueue) PendingByGroup(action model.Action, entityType model.EntityType) []*model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*model.Job
	for _, job := range q.Jobs {
		if job.Status == model.JobStatusPending && job.Action == action && job.EntityType == entityType {
			out = append(out, job)
		}
	}
	return out
}

// FakeCatalog is an in-memory CatalogRepository seeded through its maps.
type FakeCatalog struct {
	Products     map[int64]*model.Product
	Combos       map[int64]*model.Combination
	Categories   map[int64]*model.Category
	Customers    map[int64]*model.Customer
	Orders       map[int64]*model.Order
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Products:     make(map[int64]*model.Product),
		Combos:       make(map[int64]*model.Combination),
		Categories:   make(map[int64]*model.Category),
		Customers:    make(map[int64]*model.Customer),
		Orders:       make(map[int64]*model.Order),
	}
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *FakeCatalog) ProductIDs(context.Context) ([]int64, error) {
	return sortedIDs(c.Products), nil
}

func (c *FakeCatalog) CombinationIDs(_ context.Context, excludeProductIDs []int64) ([]int64, error) {
	excluded := make(map[int64]struct{}, len(excludeProductIDs))
	for _, id := range excludeProductIDs {
		excluded[id] = struct{}{}
	}
	var ids []int64
	for _, id := range sortedIDs(c.Combos) {
		if _, skip := excluded[c.Combos[id].ProductID]; skip {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *FakeCatalog) CategoryIDs(context.Context) ([]int64, error) {
	return sortedIDs(c.Categories), nil
}

func (c *FakeCatalog) CustomerIDs(context.Context) ([]int64, error) {
	return sortedIDs(c.Customers), nil
}

func (c *FakeCatalog) OrderIDs(context.Context) ([]int64, error) {
	return sortedIDs(c.Orders), nil
}

func (c *FakeCatalog) Product(_ context.Context, id int64) (*model.Product, error) {
	if p, ok := c.Products[id]; ok {
		return p, nil
	}
	return nil, apperrors.NotFound("product", nil)
}

func (c *FakeCatalog) Combinations(_ context.Context, productID int64) ([]*model.Combination, error) {
	var out []*model.Combination
	for _, id := range sortedIDs(c.Combos) {
		if c.Combos[id].ProductID == productID {
			out = append(out, c.Combos[id])
		}
	}
	return out, nil
}

func (c *FakeCatalog) Combination(_ context.Context, id int64) (*model.Combination, error) {
	if combo, ok := c.Combos[id]; ok {
		return combo, nil
	}
	return nil, apperrors.NotFound("combination", nil)
}

func (c *FakeCatalog) Category(_ context.Context, id int64) (*model.Category, error) {
	if cat, ok := c.Categories[id]; ok {
		return cat, nil
	}
	return nil, apperrors.NotFound("category", nil)
}

func (c *FakeCatalog) CategoryName(ctx context.Context, id int64) (string, error) {
	cat, err := c.Category(ctx, id)
	if err != nil {
		return "", err
	}
	return cat.Name, nil
}

func (c *FakeCatalog) Customer(_ context.Context, id int64) (*model.Customer, error) {
	if cust, ok := c.Customers[id]; ok {
		return cust, nil
	}
	return nil, apperrors.NotFound("customer", nil)
}

func (c *FakeCatalog) Order(_ context.Context, id int64) (*model.Order, error) {
	if o, ok := c.Orders[id]; ok {
		return o, nil
	}
	return nil, apperrors.NotFound("order", nil)
}

// FakeSettings is an in-memory SettingsRepository.
type FakeSettings struct {
	mu     sync.Mutex
	values map[string]string
	creds  *repository.Credentials
}

func NewFakeSettings() *FakeSettings {
	return &FakeSettings{values: make(map[string]string)}
}

func (s *FakeSettings) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *FakeSettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *FakeSettings) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *FakeSettings) LastRun(_ context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values["lastrun:"+key]
	if !ok {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (s *FakeSettings) SetLastRun(_ context.Context, key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values["lastrun:"+key] = t.Format(time.RFC3339Nano)
	return nil
}

func (s *FakeSettings) Credentials(context.Context) (*repository.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, nil
}

func (s *FakeSettings) SetCredentials(_ context.Context, creds *repository.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return nil
}

func (s *FakeSettings) DeleteCredentials(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}
