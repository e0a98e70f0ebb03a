package initializer

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/pkg/logger"
)

// Overview is the slice of the remote API the initializer needs: the
// credential check and per-entity id enumeration. *remote.OverviewEndpoint
// satisfies it.
type Overview interface {
	All(ctx context.Context) error
	Products(ctx context.Context) ([]int64, error)
	Categories(ctx context.Context) ([]int64, error)
	Users(ctx context.Context) ([]int64, error)
	Orders(ctx context.Context) ([]int64, error)
}

// Service performs the one-time bulk bootstrap: diff local ids against
// the remote service's known ids and enqueue chunked init jobs for the
// difference. Reinit mode (full resync) skips the diff.
type Service struct {
	queue     repository.QueueRepository
	catalog   repository.CatalogRepository
	chunkSize int
	logger    *logger.Logger

	// The products overview is consulted twice per bootstrap (product
	// diff and variant parent filter); a short cache avoids the second
	// round-trip.
	overview *gocache.Cache
}

func NewService(queue repository.QueueRepository, catalog repository.CatalogRepository, chunkSize int, log *logger.Logger) *Service {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	return &Service{
		queue:     queue,
		catalog:   catalog,
		chunkSize: chunkSize,
		logger:    log.WithComponent("initializer"),
		overview:  gocache.New(time.Minute, 5*time.Minute),
	}
}

// MaybeSyncData validates credentials and, if bootstrap has never been
// queued, enqueues init jobs for every entity type. A 401 from the
// credential check surfaces as a typed unauthorized error; the caller
// renders it distinctly from generic failures.
func (s *Service) MaybeSyncData(ctx context.Context, overview Overview) error {
	if err := overview.All(ctx); err != nil {
		return err
	}

	exists, err := s.queue.ExistsAction(ctx, model.ActionInit)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	s.logger.Info("starting bulk bootstrap")

	if err := s.BatchCreateProducts(ctx, overview, model.ActionInit); err != nil {
		return err
	}
	if err := s.BatchCreateVariants(ctx, overview, model.ActionInit); err != nil {
		return err
	}
	if err := s.BatchCreateCategories(ctx, overview, model.ActionInit); err != nil {
		return err
	}
	if err := s.BatchCreateUsers(ctx, overview, model.ActionInit); err != nil {
		return err
	}
	return s.BatchCreateOrders(ctx, overview, model.ActionInit)
}

func (s *Service) BatchCreateProducts(ctx context.Context, overview Overview, action model.Action) error {
	local, err := s.catalog.ProductIDs(ctx)
	if err != nil {
		return err
	}

	var existing []int64
	if action == model.ActionInit {
		existing, err = s.remoteProductIDs(ctx, overview)
		if err != nil {
			return err
		}
	}

	return s.enqueueChunks(ctx, action, model.EntityProducts, diff(local, existing))
}

// BatchCreateVariants excludes variants whose parent product is already
// known remotely, so a partial earlier run is not re-created.
func (s *Service) BatchCreateVariants(ctx context.Context, overview Overview, action model.Action) error {
	var knownProducts []int64
	if action == model.ActionInit {
		var err error
		knownProducts, err = s.remoteProductIDs(ctx, overview)
		if err != nil {
			return err
		}
	}

	local, err := s.catalog.CombinationIDs(ctx, knownProducts)
	if err != nil {
		return err
	}

	return s.enqueueChunks(ctx, action, model.EntityVariants, local)
}

func (s *Service) BatchCreateCategories(ctx context.Context, overview Overview, action model.Action) error {
	local, err := s.catalog.CategoryIDs(ctx)
	if err != nil {
		return err
	}

	var existing []int64
	if action == model.ActionInit {
		existing, err = overview.Categories(ctx)
		if err != nil {
			return err
		}
	}

	return s.enqueueChunks(ctx, action, model.EntityCategories, diff(local, existing))
}

func (s *Service) BatchCreateUsers(ctx context.Context, overview Overview, action model.Action) error {
	local, err := s.catalog.CustomerIDs(ctx)
	if err != nil {
		return err
	}

	var existing []int64
	if action == model.ActionInit {
		existing, err = overview.Users(ctx)
		if err != nil {
			return err
		}
	}

	return s.enqueueChunks(ctx, action, model.EntityUsers, diff(local, existing))
}

func (s *Service) BatchCreateOrders(ctx context.Context, overview Overview, action model.Action) error {
	local, err := s.catalog.OrderIDs(ctx)
	if err != nil {
		return err
	}

	var existing []int64
	if action == model.ActionInit {
		existing, err = overview.Orders(ctx)
		if err != nil {
			return err
		}
	}

	return s.enqueueChunks(ctx, action, model.EntityOrders, diff(local, existing))
}

func (s *Service) enqueueChunks(ctx context.Context, action model.Action, entityType model.EntityType, ids []int64) error {
	for _, chunk := range chunks(ids, s.chunkSize) {
		payload, err := model.MarshalPayload(&model.IDListPayload{IDs: chunk})
		if err != nil {
			return err
		}
		if _, err := s.queue.EnqueueBulk(ctx, action, entityType, payload); err != nil {
			return fmt.Errorf("failed to enqueue %s chunk for %s: %w", action, entityType, err)
		}
	}

	s.logger.Info("bootstrap chunks queued",
		"entity_type", entityType, "action", action,
		"ids", len(ids), "chunks", (len(ids)+s.chunkSize-1)/s.chunkSize)
	return nil
}

func (s *Service) remoteProductIDs(ctx context.Context, overview Overview) ([]int64, error) {
	if ids, ok := s.overview.Get("products"); ok {
		return ids.([]int64), nil
	}

	ids, err := overview.Products(ctx)
	if err != nil {
		return nil, err
	}
	s.overview.Set("products", ids, gocache.DefaultExpiration)
	return ids, nil
}

// diff returns the members of local absent from existing, preserving
// local's order.
func diff(local, existing []int64) []int64 {
	if len(existing) == 0 {
		return local
	}

	known := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	missing := make([]int64, 0, len(local))
	for _, id := range local {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func chunks(ids []int64, size int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}

	out := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
