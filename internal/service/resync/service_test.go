package resync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/remote"
	"github.com/merchpulse/storesync/internal/repository/repositorytest"
	"github.com/merchpulse/storesync/internal/service/initializer"
	syncsvc "github.com/merchpulse/storesync/internal/service/sync"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/metrics"
)

// Shared across tests; prometheus collectors register globally.
var testMetrics = metrics.New("resync_test")

type fakeSyncRemote struct {
	data *remote.SyncData
	err  error
}

func (f *fakeSyncRemote) Sync(context.Context) (*remote.SyncData, error) {
	return f.data, f.err
}

type fakeOverview struct {
	products []int64
}

func (f *fakeOverview) All(context.Context) error                   { return nil }
func (f *fakeOverview) Products(context.Context) ([]int64, error)   { return f.products, nil }
func (f *fakeOverview) Categories(context.Context) ([]int64, error) { return nil, nil }
func (f *fakeOverview) Users(context.Context) ([]int64, error)      { return nil, nil }
func (f *fakeOverview) Orders(context.Context) ([]int64, error)     { return nil, nil }

func newTestService(t *testing.T) (*Service, *repositorytest.FakeQueue, *repositorytest.FakeCatalog) {
	t.Helper()
	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	log := logger.NewLogger(nil)
	builder := syncsvc.NewBuilder(catalog, "https://shop.example", 6)
	adapters := syncsvc.NewAdapters(queue, catalog, builder, testMetrics, log)
	bootstrap := initializer.NewService(queue, catalog, 200, log)
	return NewService(queue, catalog, adapters, bootstrap, log), queue, catalog
}

func TestRunNoSignalsIsNoop(t *testing.T) {
	svc, queue, _ := newTestService(t)
	require.NoError(t, svc.Run(context.Background(), &fakeSyncRemote{data: &remote.SyncData{}}, &fakeOverview{}))
	assert.Empty(t, queue.Jobs)
}

func TestRunFullProductResync(t *testing.T) {
	svc, queue, catalog := newTestService(t)
	catalog.Products[1] = &model.Product{ID: 1}
	catalog.Products[2] = &model.Product{ID: 2}
	catalog.Combos[10] = &model.Combination{ID: 10, ProductID: 2}

	data := &remote.SyncData{Products: &remote.Signal{Full: true}}
	require.NoError(t, svc.Run(context.Background(), &fakeSyncRemote{data: data}, &fakeOverview{}))

	wipes := queue.PendingByGroup(model.ActionDeleteAll, model.EntityProducts)
	require.Len(t, wipes, 1)
	assert.Nil(t, wipes[0].EntityID)

	productChunks := queue.PendingByGroup(model.ActionReinit, model.EntityProducts)
	require.Len(t, productChunks, 1)
	list, err := productChunks[0].IDList()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, list.IDs)

	variantChunks := queue.PendingByGroup(model.ActionReinit, model.EntityVariants)
	require.Len(t, variantChunks, 1)
}

func TestRunProductIDListRecreates(t *testing.T) {
	svc, queue, catalog := newTestService(t)
	catalog.Products[1] = &model.Product{ID: 1, Name: "Lamp"}

	data := &remote.SyncData{Products: &remote.Signal{IDs: []int64{1}}}
	require.NoError(t, svc.Run(context.Background(), &fakeSyncRemote{data: data}, &fakeOverview{}))

	require.Len(t, queue.PendingByGroup(model.ActionDelete, model.EntityProducts), 1)
	require.Len(t, queue.PendingByGroup(model.ActionCreate, model.EntityProducts), 1)
}

func TestRunProductIDListFansOutVariants(t *testing.T) {
	svc, queue, catalog := newTestService(t)
	catalog.Products[1] = &model.Product{ID: 1}
	catalog.Combos[10] = &model.Combination{ID: 10, ProductID: 1}
	catalog.Combos[11] = &model.Combination{ID: 11, ProductID: 1}

	data := &remote.SyncData{Products: &remote.Signal{IDs: []int64{1}}}
	require.NoError(t, svc.Run(context.Background(), &fakeSyncRemote{data: data}, &fakeOverview{}))

	assert.Len(t, queue.PendingByGroup(model.ActionDelete, model.EntityProducts), 1)
	assert.Len(t, queue.PendingByGroup(model.ActionDelete, model.EntityVariants), 2)
	assert.Len(t, queue.PendingByGroup(model.ActionCreate, model.EntityVariants), 2)
	assert.Empty(t, queue.PendingByGroup(model.ActionCreate, model.EntityProducts))
}

func TestRunVanishedEntityOnlyDeletes(t *testing.T) {
	svc, queue, _ := newTestService(t)

	data := &remote.SyncData{
		Users:  &remote.Signal{IDs: []int64{9}},
		Orders: &remote.Signal{IDs: []int64{4}},
	}
	require.NoError(t, svc.Run(context.Background(), &fakeSyncRemote{data: data}, &fakeOverview{}))

	assert.Len(t, queue.PendingByGroup(model.ActionDelete, model.EntityUsers), 1)
	assert.Empty(t, queue.PendingByGroup(model.ActionCreate, model.EntityUsers))
	assert.Len(t, queue.PendingByGroup(model.ActionDelete, model.EntityOrders), 1)
	assert.Empty(t, queue.PendingByGroup(model.ActionCreate, model.EntityOrders))
}

func TestRunFullUserResync(t *testing.T) {
	svc, queue, catalog := newTestService(t)
	catalog.Customers[1] = &model.Customer{ID: 1, Email: "a@example.com"}

	data := &remote.SyncData{Users: &remote.Signal{Full: true}}
	require.NoError(t, svc.Run(context.Background(), &fakeSyncRemote{data: data}, &fakeOverview{}))

	assert.Len(t, queue.PendingByGroup(model.ActionDeleteAll, model.EntityUsers), 1)
	assert.Len(t, queue.PendingByGroup(model.ActionReinit, model.EntityUsers), 1)
}
