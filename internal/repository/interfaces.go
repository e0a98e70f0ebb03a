package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/merchpulse/storesync/internal/model"
)

// QueueFilter narrows pending-job selection. Zero values mean "any".
type QueueFilter struct {
	Action     model.Action
	EntityType model.EntityType
}

// StatusCount is one row of the per-entity status aggregation.
type StatusCount struct {
	EntityType model.EntityType `db:"entity_type"`
	Status     model.JobStatus  `db:"status"`
	Count      int              `db:"count"`
}

// Credentials is the remote API key pair. The secret is stored encrypted
// at rest.
type Credentials struct {
	APIKey    string
	APISecret string
}

// All repository interfaces in one file
type (
	// QueueRepository is the durable job queue. Enqueue coalesces into an
	// existing pending row with the same (action, entity type, entity id);
	// EnqueueBulk always inserts a fresh row.
	QueueRepository interface {
		Enqueue(ctx context.Context, action model.Action, entityType model.EntityType, entityID int64, payload json.RawMessage) (int64, error)
		EnqueueBulk(ctx context.Context, action model.Action, entityType model.EntityType, payload json.RawMessage) (int64, error)
		ExistsPending(ctx context.Context, action model.Action, entityType model.EntityType, entityID int64) (bool, error)
		ExistsAction(ctx context.Context, action model.Action) (bool, error)
		NextPending(ctx context.Context, filter QueueFilter) (*model.Job, error)
		NextPendingBatch(ctx context.Context, entityType model.EntityType, action model.Action, limit int) ([]*model.Job, error)
		UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error
		UpdateStatusBatch(ctx context.Context, ids []int64, status model.JobStatus) error
		ListByAction(ctx context.Context, action model.Action) ([]*model.Job, error)
		CountsByEntityAndStatus(ctx context.Context) ([]StatusCount, error)
		Purge(ctx context.Context, olderThan time.Duration, statuses []model.JobStatus) (int64, error)
		DeleteAll(ctx context.Context) error
	}

	// CatalogRepository reads the host platform's entities. Loaders return
	// a NotFound error when the entity has vanished; callers treat that as
	// a skip or a downgrade to delete, never a crash.
	CatalogRepository interface {
		ProductIDs(ctx context.Context) ([]int64, error)
		CombinationIDs(ctx context.Context, excludeProductIDs []int64) ([]int64, error)
		CategoryIDs(ctx context.Context) ([]int64, error)
		CustomerIDs(ctx context.Context) ([]int64, error)
		OrderIDs(ctx context.Context) ([]int64, error)

		Product(ctx context.Context, id int64) (*model.Product, error)
		Combinations(ctx context.Context, productID int64) ([]*model.Combination, error)
		Combination(ctx context.Context, id int64) (*model.Combination, error)
		Category(ctx context.Context, id int64) (*model.Category, error)
		CategoryName(ctx context.Context, id int64) (string, error)
		Customer(ctx context.Context, id int64) (*model.Customer, error)
		Order(ctx context.Context, id int64) (*model.Order, error)
	}

	// SettingsRepository is a small key-value store for credentials and
	// the last-run gates. Credentials returns (nil, nil) when the store is
	// not connected to the remote service.
	SettingsRepository interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key, value string) error
		Delete(ctx context.Context, key string) error
		LastRun(ctx context.Context, key string) (time.Time, error)
		SetLastRun(ctx context.Context, key string, t time.Time) error
		Credentials(ctx context.Context) (*Credentials, error)
		SetCredentials(ctx context.Context, creds *Credentials) error
		DeleteCredentials(ctx context.Context) error
	}
)

// Settings keys.
const (
	SettingAPIKey    = "remote_api_key"
	SettingAPISecret = "remote_api_secret"

	GateDispatch = "last_dispatch_at"
	GateResync   = "last_resync_at"
	GateCleanup  = "last_cleanup_at"
)
