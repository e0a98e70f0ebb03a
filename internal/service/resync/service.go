package resync

import (
	"context"
	"fmt"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/remote"
	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/internal/service/initializer"
	syncsvc "github.com/merchpulse/storesync/internal/service/sync"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
	"github.com/merchpulse/storesync/pkg/logger"
)

// SyncRemote is the slice of the remote API the reconciler needs.
// *remote.Client satisfies it.
type SyncRemote interface {
	Sync(ctx context.Context) (*remote.SyncData, error)
}

// Service heals drift between the local catalog and the remote copy. The
// remote service reports, per entity type, either "full" or a list of
// dirty ids; full wipes and re-bootstraps that entity type, an id list
// deletes and recreates just those entities.
type Service struct {
	queue     repository.QueueRepository
	catalog   repository.CatalogRepository
	adapters  *syncsvc.Adapters
	bootstrap *initializer.Service
	logger    *logger.Logger
}

func NewService(queue repository.QueueRepository, catalog repository.CatalogRepository, adapters *syncsvc.Adapters, bootstrap *initializer.Service, log *logger.Logger) *Service {
	return &Service{
		queue:     queue,
		catalog:   catalog,
		adapters:  adapters,
		bootstrap: bootstrap,
		logger:    log.WithComponent("resync"),
	}
}

// Run fetches the drift directives and applies each entity's signal.
// Entities without a signal are untouched.
func (s *Service) Run(ctx context.Context, rc SyncRemote, overview initializer.Overview) error {
	data, err := rc.Sync(ctx)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	if err := s.applyUsers(ctx, overview, data.Users); err != nil {
		return err
	}
	if err := s.applyCategories(ctx, overview, data.Categories); err != nil {
		return err
	}
	if err := s.applyProducts(ctx, overview, data.Products); err != nil {
		return err
	}
	return s.applyOrders(ctx, overview, data.Orders)
}

func (s *Service) applyProducts(ctx context.Context, overview initializer.Overview, signal *remote.Signal) error {
	if signal == nil {
		return nil
	}
	if signal.Full {
		s.logger.Info("full product resync requested")
		// Variants live in the products collection remotely, so one wipe
		// covers both forms.
		if err := s.enqueueDeleteAll(ctx, model.EntityProducts); err != nil {
			return err
		}
		if err := s.bootstrap.BatchCreateProducts(ctx, overview, model.ActionReinit); err != nil {
			return err
		}
		return s.bootstrap.BatchCreateVariants(ctx, overview, model.ActionReinit)
	}

	for _, id := range signal.IDs {
		if err := s.recreateProduct(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// recreateProduct retires the remote copy and queues a fresh projection.
// A product with combinations exists remotely only as variants, so the
// recreate side fans out to per-variant jobs.
func (s *Service) recreateProduct(ctx context.Context, id int64) error {
	if err := s.adapters.Products.OnDelete(ctx, id); err != nil {
		return err
	}

	product, err := s.catalog.Product(ctx, id)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	combinations, err := s.catalog.Combinations(ctx, product.ID)
	if err != nil {
		return err
	}
	if len(combinations) == 0 {
		return s.adapters.Products.OnAdd(ctx, id)
	}

	for _, c := range combinations {
		if err := s.adapters.Variants.OnDelete(ctx, c.ID, product.ID); err != nil {
			return err
		}
		if err := s.adapters.Variants.OnAdd(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) applyCategories(ctx context.Context, overview initializer.Overview, signal *remote.Signal) error {
	if signal == nil {
		return nil
	}
	if signal.Full {
		s.logger.Info("full category resync requested")
		if err := s.enqueueDeleteAll(ctx, model.EntityCategories); err != nil {
			return err
		}
		return s.bootstrap.BatchCreateCategories(ctx, overview, model.ActionReinit)
	}

	for _, id := range signal.IDs {
		if err := s.adapters.Categories.OnDelete(ctx, id); err != nil {
			return err
		}
		if err := s.adapters.Categories.OnAdd(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) applyUsers(ctx context.Context, overview initializer.Overview, signal *remote.Signal) error {
	if signal == nil {
		return nil
	}
	if signal.Full {
		s.logger.Info("full user resync requested")
		if err := s.enqueueDeleteAll(ctx, model.EntityUsers); err != nil {
			return err
		}
		return s.bootstrap.BatchCreateUsers(ctx, overview, model.ActionReinit)
	}

	for _, id := range signal.IDs {
		if err := s.adapters.Users.OnDelete(ctx, id); err != nil {
			return err
		}
		if err := s.adapters.Users.OnAdd(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) applyOrders(ctx context.Context, overview initializer.Overview, signal *remote.Signal) error {
	if signal == nil {
		return nil
	}
	if signal.Full {
		s.logger.Info("full order resync requested")
		if err := s.enqueueDeleteAll(ctx, model.EntityOrders); err != nil {
			return err
		}
		return s.bootstrap.BatchCreateOrders(ctx, overview, model.ActionReinit)
	}

	for _, id := range signal.IDs {
		if err := s.adapters.Orders.OnDelete(ctx, id); err != nil {
			return err
		}
		if err := s.adapters.Orders.OnAdd(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) enqueueDeleteAll(ctx context.Context, entityType model.EntityType) error {
	payload, err := model.MarshalPayload(&model.IDListPayload{})
	if err != nil {
		return err
	}
	if _, err := s.queue.EnqueueBulk(ctx, model.ActionDeleteAll, entityType, payload); err != nil {
		return fmt.Errorf("failed to queue %s wipe: %w", entityType, err)
	}
	return nil
}
