package sync

import (
	"context"
	"fmt"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/metrics"
)

// Adapters translate platform entity mutations into queue jobs, one
// adapter per entity type. They share a queue, a catalog reader and the
// record builder; each applies its own coalescing and guard rules.
type Adapters struct {
	Products   *ProductAdapter
	Variants   *VariantAdapter
	Categories *CategoryAdapter
	Users      *UserAdapter
	Orders     *OrderAdapter
	Carts      *CartAdapter
}

func NewAdapters(queue repository.QueueRepository, catalog repository.CatalogRepository, builder *Builder, m *metrics.Metrics, log *logger.Logger) *Adapters {
	base := adapterBase{
		queue:   queue,
		catalog: catalog,
		build:   builder,
		metrics: m,
		logger:  log.WithComponent("sync"),
	}
	return &Adapters{
		Products:   &ProductAdapter{base},
		Variants:   &VariantAdapter{base},
		Categories: &CategoryAdapter{base},
		Users:      &UserAdapter{base},
		Orders:     &OrderAdapter{base},
		Carts:      &CartAdapter{base},
	}
}

type adapterBase struct {
	queue   repository.QueueRepository
	catalog repository.CatalogRepository
	build   *Builder
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func (a *adapterBase) enqueue(ctx context.Context, action model.Action, entityType model.EntityType, entityID int64, payload any) error {
	raw, err := model.MarshalPayload(payload)
	if err != nil {
		return err
	}
	if _, err := a.queue.Enqueue(ctx, action, entityType, entityID, raw); err != nil {
		return fmt.Errorf("failed to enqueue %s/%s/%d: %w", action, entityType, entityID, err)
	}
	a.metrics.JobsEnqueued.WithLabelValues(string(entityType), string(action)).Inc()
	a.logger.Debug("job queued", "action", action, "entity_type", entityType, "entity_id", entityID)
	return nil
}
