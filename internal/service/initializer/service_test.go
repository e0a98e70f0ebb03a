package initializer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository/repositorytest"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
	"github.com/merchpulse/storesync/pkg/logger"
)

// fakeOverview satisfies Overview with canned remote id sets.
type fakeOverview struct {
	allErr     error
	products   []int64
	categories []int64
	users      []int64
	orders     []int64

	productCalls int
}

func (f *fakeOverview) All(context.Context) error { return f.allErr }

func (f *fakeOverview) Products(context.Context) ([]int64, error) {
	f.productCalls++
	return f.products, nil
}

func (f *fakeOverview) Categories(context.Context) ([]int64, error) { return f.categories, nil }
func (f *fakeOverview) Users(context.Context) ([]int64, error)      { return f.users, nil }
func (f *fakeOverview) Orders(context.Context) ([]int64, error)     { return f.orders, nil }

func seedProducts(catalog *repositorytest.FakeCatalog, n int) {
	for i := 1; i <= n; i++ {
		catalog.Products[int64(i)] = &model.Product{ID: int64(i)}
	}
}

func TestMaybeSyncDataChunksLargeCatalogs(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	seedProducts(catalog, 450)

	svc := NewService(queue, catalog, 200, logger.NewLogger(nil))
	require.NoError(t, svc.MaybeSyncData(context.Background(), &fakeOverview{}))

	jobs := queue.PendingByGroup(model.ActionInit, model.EntityProducts)
	require.Len(t, jobs, 3)

	sizes := make([]int, 0, 3)
	for _, job := range jobs {
		list, err := job.IDList()
		require.NoError(t, err)
		assert.Nil(t, job.EntityID)
		sizes = append(sizes, len(list.IDs))
	}
	assert.Equal(t, []int{200, 200, 50}, sizes)
}

func TestMaybeSyncDataSkipsRemoteKnownIDs(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	seedProducts(catalog, 5)

	svc := NewService(queue, catalog, 200, logger.NewLogger(nil))
	overview := &fakeOverview{products: []int64{2, 4}}
	require.NoError(t, svc.MaybeSyncData(context.Background(), overview))

	jobs := queue.PendingByGroup(model.ActionInit, model.EntityProducts)
	require.Len(t, jobs, 1)
	list, err := jobs[0].IDList()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 5}, list.IDs)
}

func TestMaybeSyncDataIdempotent(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	seedProducts(catalog, 3)

	svc := NewService(queue, catalog, 200, logger.NewLogger(nil))
	require.NoError(t, svc.MaybeSyncData(context.Background(), &fakeOverview{}))
	require.NoError(t, svc.MaybeSyncData(context.Background(), &fakeOverview{}))

	assert.Len(t, queue.PendingByGroup(model.ActionInit, model.EntityProducts), 1)
}

func TestMaybeSyncDataPropagatesCredentialError(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	svc := NewService(queue, repositorytest.NewFakeCatalog(), 200, logger.NewLogger(nil))

	overview := &fakeOverview{allErr: apperrors.Unauthorized(nil)}
	err := svc.MaybeSyncData(context.Background(), overview)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Empty(t, queue.Jobs)
}

func TestVariantsExcludeRemoteKnownParents(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	catalog.Products[1] = &model.Product{ID: 1}
	catalog.Products[2] = &model.Product{ID: 2}
	catalog.Combos[10] = &model.Combination{ID: 10, ProductID: 1}
	catalog.Combos[20] = &model.Combination{ID: 20, ProductID: 2}

	svc := NewService(queue, catalog, 200, logger.NewLogger(nil))
	overview := &fakeOverview{products: []int64{1}}
	require.NoError(t, svc.BatchCreateVariants(context.Background(), overview, model.ActionInit))

	jobs := queue.PendingByGroup(model.ActionInit, model.EntityVariants)
	require.Len(t, jobs, 1)
	list, err := jobs[0].IDList()
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, list.IDs)
}

func TestProductsOverviewFetchedOnce(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	seedProducts(catalog, 2)

	svc := NewService(queue, catalog, 200, logger.NewLogger(nil))
	overview := &fakeOverview{}
	require.NoError(t, svc.MaybeSyncData(context.Background(), overview))

	assert.Equal(t, 1, overview.productCalls)
}

func TestReinitSkipsDiff(t *testing.T) {
	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	seedProducts(catalog, 3)

	svc := NewService(queue, catalog, 200, logger.NewLogger(nil))
	overview := &fakeOverview{products: []int64{1, 2, 3}}
	require.NoError(t, svc.BatchCreateProducts(context.Background(), overview, model.ActionReinit))

	jobs := queue.PendingByGroup(model.ActionReinit, model.EntityProducts)
	require.Len(t, jobs, 1)
	list, err := jobs[0].IDList()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, list.IDs)
	assert.Equal(t, 0, overview.productCalls)
}
