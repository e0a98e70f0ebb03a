package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/merchpulse/storesync/config"
	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/remote"
	"github.com/merchpulse/storesync/internal/repository"
	syncsvc "github.com/merchpulse/storesync/internal/service/sync"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/metrics"
)

// ClientFactory builds a remote client for a credential pair. Credentials
// can change between ticks (reconnect with a new key), so the client is
// constructed per tick rather than held.
type ClientFactory func(creds *repository.Credentials) *remote.Client

// group is one dispatchable (action, entity type) pairing. Bulk groups
// carry id-list payloads and take one job per pass; row groups drain up
// to the batch limit into a single remote call.
type group struct {
	action model.Action
	entity model.EntityType
	bulk   bool
}

// passOrder fixes dispatch priority: bootstrap chunks first, wipes before
// the reinit chunks that rebuild after them, then per-entity mutations
// with every delete group ahead of its create/update groups, events last.
// Delete-first keeps two pending pairings correct: a reconciler heal
// (delete + re-create of the same id) lands as delete then create, and
// the product/variant crossover never leaves both forms remote at once
// (product deletes precede variant creates, variant deletes precede the
// bare-product re-create).
var passOrder = []group{
	{model.ActionInit, model.EntityProducts, true},
	{model.ActionInit, model.EntityVariants, true},
	{model.ActionInit, model.EntityCategories, true},
	{model.ActionInit, model.EntityUsers, true},
	{model.ActionInit, model.EntityOrders, true},

	{model.ActionDeleteAll, model.EntityProducts, true},
	{model.ActionDeleteAll, model.EntityVariants, true},
	{model.ActionDeleteAll, model.EntityCategories, true},
	{model.ActionDeleteAll, model.EntityUsers, true},
	{model.ActionDeleteAll, model.EntityOrders, true},

	{model.ActionReinit, model.EntityProducts, true},
	{model.ActionReinit, model.EntityVariants, true},
	{model.ActionReinit, model.EntityCategories, true},
	{model.ActionReinit, model.EntityUsers, true},
	{model.ActionReinit, model.EntityOrders, true},

	{model.ActionDelete, model.EntityProducts, false},
	{model.ActionDelete, model.EntityVariants, false},

	{model.ActionCreate, model.EntityProducts, false},
	{model.ActionUpdate, model.EntityProducts, false},

	{model.ActionCreate, model.EntityVariants, false},
	{model.ActionUpdate, model.EntityVariants, false},

	{model.ActionDelete, model.EntityCategories, false},
	{model.ActionCreate, model.EntityCategories, false},
	{model.ActionUpdate, model.EntityCategories, false},

	{model.ActionDelete, model.EntityUsers, false},
	{model.ActionCreate, model.EntityUsers, false},
	{model.ActionUpdate, model.EntityUsers, false},

	{model.ActionCreate, model.EntityGuestUsers, false},

	{model.ActionDelete, model.EntityOrders, false},
	{model.ActionCreate, model.EntityOrders, false},
	{model.ActionCancel, model.EntityOrders, false},

	{model.ActionTrack, model.EntityEvents, false},
}

// Service drains the job queue toward the remote API. Each tick is gated
// by a persisted minimum interval and a cross-process lock, then runs a
// bounded number of passes; each pass takes the highest-priority group
// with pending work and sends one batch call for it.
type Service struct {
	queue    repository.QueueRepository
	catalog  repository.CatalogRepository
	settings repository.SettingsRepository
	builder  *syncsvc.Builder
	clients  ClientFactory
	locker   Locker
	metrics  *metrics.Metrics
	cfg      config.SyncConfig
	logger   *logger.Logger
}

func NewService(
	queue repository.QueueRepository,
	catalog repository.CatalogRepository,
	settings repository.SettingsRepository,
	builder *syncsvc.Builder,
	clients ClientFactory,
	locker Locker,
	m *metrics.Metrics,
	cfg config.SyncConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		queue:    queue,
		catalog:  catalog,
		settings: settings,
		builder:  builder,
		clients:  clients,
		locker:   locker,
		metrics:  m,
		cfg:      cfg,
		logger:   log.WithComponent("dispatcher"),
	}
}

// MaybeTick runs a tick if the minimum interval has elapsed and no other
// process is ticking. Both the API and the worker call this; the gate and
// lock make the overlap harmless.
func (s *Service) MaybeTick(ctx context.Context) error {
	last, err := s.settings.LastRun(ctx, repository.GateDispatch)
	if err != nil {
		return err
	}
	if time.Since(last) < s.cfg.DispatchInterval {
		return nil
	}

	acquired, err := s.locker.Acquire(ctx, "dispatch", s.cfg.DispatchInterval)
	if err != nil {
		return err
	}
	if !acquired {
		s.metrics.TicksSkipped.Inc()
		return nil
	}
	defer func() {
		if err := s.locker.Release(ctx, "dispatch"); err != nil {
			s.logger.Error(err, "failed to release dispatch lock")
		}
	}()

	if err := s.settings.SetLastRun(ctx, repository.GateDispatch, time.Now()); err != nil {
		return err
	}
	return s.Tick(ctx)
}

// Tick runs up to the configured number of passes. It is a no-op when the
// store is not connected.
func (s *Service) Tick(ctx context.Context) error {
	started := time.Now()
	defer func() {
		s.metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	creds, err := s.settings.Credentials(ctx)
	if err != nil {
		return err
	}
	if creds == nil {
		return nil
	}
	client := s.clients(creds)

	for i := 0; i < s.cfg.PassesPerTick; i++ {
		worked, err := s.pass(ctx, client)
		if err != nil {
			return err
		}
		if !worked {
			break
		}
	}

	s.updatePendingGauge(ctx)
	return nil
}

// pass dispatches the first group in priority order that has pending
// jobs. It reports whether any work was found.
func (s *Service) pass(ctx context.Context, client *remote.Client) (bool, error) {
	for _, g := range passOrder {
		limit := s.cfg.BatchLimit
		if g.bulk {
			// Bulk jobs already carry a full chunk of ids; one per pass
			// keeps remote call sizes bounded.
			limit = 1
		}

		jobs, err := s.queue.NextPendingBatch(ctx, g.entity, g.action, limit)
		if err != nil {
			return false, err
		}
		if len(jobs) == 0 {
			continue
		}
		return true, s.dispatch(ctx, client, g, jobs)
	}
	return false, nil
}

// dispatch sends one remote batch call for the group and maps the HTTP
// class onto job statuses: 2xx success, 5xx stays pending for the next
// tick, anything else is a permanent failure. Transport-level errors
// (breaker open, retries exhausted) leave the jobs pending and abort the
// tick. A panic while projecting records fails the in-flight jobs rather
// than wedging them.
func (s *Service) dispatch(ctx context.Context, client *remote.Client, g group, jobs []*model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Errorf("%v", r), "panic while dispatching", "action", g.action, "entity_type", g.entity)
			s.markJobs(ctx, g, jobs, model.JobStatusFailure)
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()

	jobs, err = s.failUndecodable(ctx, g, jobs)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	var res *remote.Response
	if g.bulk {
		res, err = s.callBulk(ctx, client, g, jobs[0])
	} else {
		res, err = s.callBatch(ctx, client, g, jobs)
	}
	if err != nil {
		if apperrors.IsUnauthorized(err) {
			s.markJobs(ctx, g, jobs, model.JobStatusFailure)
		}
		return err
	}

	switch {
	case res == nil || res.Success():
		s.markJobs(ctx, g, jobs, model.JobStatusSuccess)
	case res.ServerError():
		s.metrics.JobsRequeued.Add(float64(len(jobs)))
		s.logger.Warn("remote server error, jobs stay pending",
			"action", g.action, "entity_type", g.entity, "status", res.HTTPCode, "jobs", len(jobs))
	default:
		s.logger.Warn("remote rejected batch",
			"action", g.action, "entity_type", g.entity, "status", res.HTTPCode, "jobs", len(jobs))
		s.markJobs(ctx, g, jobs, model.JobStatusFailure)
	}
	return nil
}

// failUndecodable marks jobs with corrupt payloads as failed and returns
// the dispatchable remainder.
func (s *Service) failUndecodable(ctx context.Context, g group, jobs []*model.Job) ([]*model.Job, error) {
	good := jobs[:0]
	for _, job := range jobs {
		if _, err := job.DecodePayload(); err != nil {
			s.logger.Error(err, "undecodable job payload", "job_id", job.ID)
			if uerr := s.queue.UpdateStatus(ctx, job.ID, model.JobStatusFailure); uerr != nil {
				return nil, uerr
			}
			s.metrics.JobsProcessed.WithLabelValues(string(g.entity), string(g.action), "failure").Inc()
			continue
		}
		good = append(good, job)
	}
	return good, nil
}

// callBatch builds the wire body for a row group and performs the remote
// call. Create bodies are bare records with ids embedded; update bodies
// are the stored payloads, which carry ids alongside the partial record;
// delete bodies are the key shape each collection expects.
func (s *Service) callBatch(ctx context.Context, client *remote.Client, g group, jobs []*model.Job) (*remote.Response, error) {
	switch g.entity {
	case model.EntityProducts, model.EntityVariants:
		return s.callProductBatch(ctx, client, g, jobs)
	case model.EntityCategories:
		return s.callCategoryBatch(ctx, client, g, jobs)
	case model.EntityUsers:
		return s.callUserBatch(ctx, client, g, jobs)
	case model.EntityGuestUsers:
		return s.callGuestUserBatch(ctx, client, jobs)
	case model.EntityOrders:
		return s.callOrderBatch(ctx, client, g, jobs)
	case model.EntityEvents:
		return s.callEventBatch(ctx, client, jobs)
	}
	return nil, fmt.Errorf("no dispatch route for %s/%s", g.action, g.entity)
}

func (s *Service) callProductBatch(ctx context.Context, client *remote.Client, g group, jobs []*model.Job) (*remote.Response, error) {
	payloads := make([]*model.ProductPayload, 0, len(jobs))
	for _, job := range jobs {
		p, err := job.ProductPayload()
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}

	switch g.action {
	case model.ActionCreate:
		items := make([]*model.ProductRecord, 0, len(payloads))
		for _, p := range payloads {
			items = append(items, p.Item)
		}
		return client.Products.BatchCreate(ctx, items)
	case model.ActionUpdate:
		return client.Products.BatchUpdate(ctx, payloads)
	case model.ActionDelete:
		keys := make([]*model.ProductPayload, 0, len(payloads))
		for _, p := range payloads {
			keys = append(keys, &model.ProductPayload{ProductID: p.ProductID, VariantID: p.VariantID})
		}
		return client.Products.BatchDelete(ctx, keys)
	}
	return nil, fmt.Errorf("no dispatch route for %s/%s", g.action, g.entity)
}

func (s *Service) callCategoryBatch(ctx context.Context, client *remote.Client, g group, jobs []*model.Job) (*remote.Response, error) {
	payloads := make([]*model.CategoryPayload, 0, len(jobs))
	for _, job := range jobs {
		p, err := job.DecodePayload()
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p.(*model.CategoryPayload))
	}

	switch g.action {
	case model.ActionCreate:
		items := make([]*model.CategoryRecord, 0, len(payloads))
		for _, p := range payloads {
			items = append(items, p.Item)
		}
		return client.Categories.BatchCreate(ctx, items)
	case model.ActionUpdate:
		return client.Categories.BatchUpdate(ctx, payloads)
	case model.ActionDelete:
		ids := make([]int64, 0, len(payloads))
		for _, p := range payloads {
			ids = append(ids, p.CategoryID)
		}
		return client.Categories.BatchDelete(ctx, ids)
	}
	return nil, fmt.Errorf("no dispatch route for %s/%s", g.action, g.entity)
}

func (s *Service) callUserBatch(ctx context.Context, client *remote.Client, g group, jobs []*model.Job) (*remote.Response, error) {
	payloads := make([]*model.UserPayload, 0, len(jobs))
	for _, job := range jobs {
		p, err := job.DecodePayload()
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p.(*model.UserPayload))
	}

	switch g.action {
	case model.ActionCreate:
		items := make([]*model.UserRecord, 0, len(payloads))
		for _, p := range payloads {
			items = append(items, p.Item)
		}
		return client.Users.BatchCreate(ctx, items)
	case model.ActionUpdate:
		return client.Users.BatchUpdate(ctx, payloads)
	case model.ActionDelete:
		ids := make([]int64, 0, len(payloads))
		for _, p := range payloads {
			ids = append(ids, p.UserID)
		}
		return client.Users.BatchDelete(ctx, ids)
	}
	return nil, fmt.Errorf("no dispatch route for %s/%s", g.action, g.entity)
}

// callGuestUserBatch folds guest pseudo-users into the users collection,
// deduplicated by email since several orders can share a guest.
func (s *Service) callGuestUserBatch(ctx context.Context, client *remote.Client, jobs []*model.Job) (*remote.Response, error) {
	seen := make(map[string]struct{}, len(jobs))
	items := make([]*model.UserRecord, 0, len(jobs))
	for _, job := range jobs {
		p, err := job.DecodePayload()
		if err != nil {
			return nil, err
		}
		item := p.(*model.GuestUserPayload).Item
		if item == nil {
			continue
		}
		if _, dup := seen[item.Email]; dup {
			continue
		}
		seen[item.Email] = struct{}{}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return client.Users.BatchCreate(ctx, items)
}

func (s *Service) callOrderBatch(ctx context.Context, client *remote.Client, g group, jobs []*model.Job) (*remote.Response, error) {
	payloads := make([]*model.OrderPayload, 0, len(jobs))
	for _, job := range jobs {
		p, err := job.DecodePayload()
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p.(*model.OrderPayload))
	}

	switch g.action {
	case model.ActionCreate:
		items := make([]*model.OrderRecord, 0, len(payloads))
		for _, p := range payloads {
			items = append(items, p.Item)
		}
		return client.Orders.BatchCreate(ctx, items)
	case model.ActionCancel:
		ids := make([]int64, 0, len(payloads))
		for _, p := range payloads {
			ids = append(ids, p.OrderID)
		}
		return client.Orders.BatchCancel(ctx, ids)
	case model.ActionDelete:
		ids := make([]int64, 0, len(payloads))
		for _, p := range payloads {
			ids = append(ids, p.OrderID)
		}
		return client.Orders.BatchDelete(ctx, ids)
	}
	return nil, fmt.Errorf("no dispatch route for %s/%s", g.action, g.entity)
}

func (s *Service) callEventBatch(ctx context.Context, client *remote.Client, jobs []*model.Job) (*remote.Response, error) {
	events := make([]*model.EventPayload, 0, len(jobs))
	for _, job := range jobs {
		p, err := job.DecodePayload()
		if err != nil {
			return nil, err
		}
		events = append(events, p.(*model.EventPayload))
	}
	return client.Events.BatchTrack(ctx, events)
}

// callBulk processes one id-list job: load the named entities from the
// catalog, project current records and send them as a single create
// batch. Entities that vanished since the chunk was queued are skipped.
// A nil response means the whole chunk vanished; the job still succeeds.
func (s *Service) callBulk(ctx context.Context, client *remote.Client, g group, job *model.Job) (*remote.Response, error) {
	if g.action == model.ActionDeleteAll {
		return s.callDeleteAll(ctx, client, g.entity)
	}

	list, err := job.IDList()
	if err != nil {
		return nil, err
	}

	switch g.entity {
	case model.EntityProducts:
		items := make([]*model.ProductRecord, 0, len(list.IDs))
		for _, id := range list.IDs {
			product, err := s.catalog.Product(ctx, id)
			if apperrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			combos, err := s.catalog.Combinations(ctx, id)
			if err != nil {
				return nil, err
			}
			// Combined products ship through their variant chunks.
			if len(combos) > 0 {
				continue
			}
			item, err := s.builder.ProductRecord(ctx, product, true)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if len(items) == 0 {
			return nil, nil
		}
		return client.Products.BatchCreate(ctx, items)

	case model.EntityVariants:
		items := make([]*model.ProductRecord, 0, len(list.IDs))
		for _, id := range list.IDs {
			combination, err := s.catalog.Combination(ctx, id)
			if apperrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			product, err := s.catalog.Product(ctx, combination.ProductID)
			if apperrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			item, err := s.builder.VariantRecord(ctx, combination, product, true)
			if err != nil {
				return nil, err
			}
			if item == nil {
				continue
			}
			items = append(items, item)
		}
		if len(items) == 0 {
			return nil, nil
		}
		return client.Products.BatchCreate(ctx, items)

	case model.EntityCategories:
		items := make([]*model.CategoryRecord, 0, len(list.IDs))
		for _, id := range list.IDs {
			category, err := s.catalog.Category(ctx, id)
			if apperrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			items = append(items, s.builder.CategoryRecord(category, true))
		}
		if len(items) == 0 {
			return nil, nil
		}
		return client.Categories.BatchCreate(ctx, items)

	case model.EntityUsers:
		items := make([]*model.UserRecord, 0, len(list.IDs))
		for _, id := range list.IDs {
			customer, err := s.catalog.Customer(ctx, id)
			if apperrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			items = append(items, s.builder.UserRecord(customer, true))
		}
		if len(items) == 0 {
			return nil, nil
		}
		return client.Users.BatchCreate(ctx, items)

	case model.EntityOrders:
		return s.callBulkOrders(ctx, client, list.IDs)
	}
	return nil, fmt.Errorf("no bulk route for %s/%s", g.action, g.entity)
}

// callBulkOrders uploads an order chunk. Guest pseudo-users ship first so
// the orders referencing them attribute correctly; the order call's
// outcome decides the job status.
func (s *Service) callBulkOrders(ctx context.Context, client *remote.Client, ids []int64) (*remote.Response, error) {
	orders := make([]*model.OrderRecord, 0, len(ids))
	guests := make([]*model.UserRecord, 0)
	seen := make(map[string]struct{})

	for _, id := range ids {
		order, err := s.catalog.Order(ctx, id)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if order.Customer != nil && order.Customer.Guest {
			guest := s.builder.GuestUserRecord(order)
			if _, dup := seen[guest.Email]; !dup {
				seen[guest.Email] = struct{}{}
				guests = append(guests, guest)
			}
		}
		orders = append(orders, s.builder.OrderRecord(order, true))
	}

	if len(guests) > 0 {
		res, err := client.Users.BatchCreate(ctx, guests)
		if err != nil {
			return nil, err
		}
		if !res.Success() {
			return res, nil
		}
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return client.Orders.BatchCreate(ctx, orders)
}

func (s *Service) callDeleteAll(ctx context.Context, client *remote.Client, entity model.EntityType) (*remote.Response, error) {
	switch entity {
	case model.EntityProducts, model.EntityVariants:
		return client.Products.DeleteAll(ctx)
	case model.EntityCategories:
		return client.Categories.DeleteAll(ctx)
	case model.EntityUsers:
		return client.Users.DeleteAll(ctx)
	case model.EntityOrders:
		return client.Orders.DeleteAll(ctx)
	}
	return nil, fmt.Errorf("no delete_all route for %s", entity)
}

func (s *Service) markJobs(ctx context.Context, g group, jobs []*model.Job, status model.JobStatus) {
	ids := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	if err := s.queue.UpdateStatusBatch(ctx, ids, status); err != nil {
		s.logger.Error(err, "failed to update job statuses", "jobs", len(ids), "status", status)
		return
	}

	label := "failure"
	if status == model.JobStatusSuccess {
		label = "success"
	}
	s.metrics.JobsProcessed.WithLabelValues(string(g.entity), string(g.action), label).Add(float64(len(ids)))
}

func (s *Service) updatePendingGauge(ctx context.Context) {
	counts, err := s.queue.CountsByEntityAndStatus(ctx)
	if err != nil {
		s.logger.Error(err, "failed to count queue")
		return
	}
	pending := 0
	for _, c := range counts {
		if c.Status == model.JobStatusPending {
			pending += c.Count
		}
	}
	s.metrics.QueuePending.Set(float64(pending))
}
