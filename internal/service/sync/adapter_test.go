package sync

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository/repositorytest"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/metrics"
)

// Shared across tests; prometheus collectors register globally.
var testMetrics = metrics.New("sync_test")

func newTestAdapters(t *testing.T) (*Adapters, *repositorytest.FakeQueue, *repositorytest.FakeCatalog) {
	t.Helper()
	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	builder := NewBuilder(catalog, "https://shop.example", 6)
	adapters := NewAdapters(queue, catalog, builder, testMetrics, logger.NewLogger(nil))
	return adapters, queue, catalog
}

func TestProductAdapterAdd(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Products[1] = &model.Product{ID: 1, Name: "Lamp", Price: 25}

	require.NoError(t, adapters.Products.OnAdd(context.Background(), 1))

	jobs := queue.PendingByGroup(model.ActionCreate, model.EntityProducts)
	require.Len(t, jobs, 1)

	payload, err := jobs[0].ProductPayload()
	require.NoError(t, err)
	assert.Equal(t, int64(1), payload.ProductID)
	assert.Equal(t, model.NoVariants, payload.VariantID)
	require.NotNil(t, payload.Item)
	assert.Equal(t, "Lamp", payload.Item.Name)
}

func TestProductAdapterAddSilentForCombinedProduct(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Products[1] = &model.Product{ID: 1, Name: "Shirt"}
	catalog.Combos[10] = &model.Combination{ID: 10, ProductID: 1}

	require.NoError(t, adapters.Products.OnAdd(context.Background(), 1))
	assert.Empty(t, queue.Jobs)
}

func TestProductAdapterAddVanished(t *testing.T) {
	adapters, queue, _ := newTestAdapters(t)
	require.NoError(t, adapters.Products.OnAdd(context.Background(), 99))
	assert.Empty(t, queue.Jobs)
}

func TestProductAdapterUpdateDowngradesToDelete(t *testing.T) {
	adapters, queue, _ := newTestAdapters(t)

	require.NoError(t, adapters.Products.OnUpdate(context.Background(), 42))

	jobs := queue.PendingByGroup(model.ActionDelete, model.EntityProducts)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(42), *jobs[0].EntityID)
}

func TestProductAdapterUpdateFansOutToVariants(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Products[1] = &model.Product{ID: 1, Name: "Shirt", Price: 30}
	catalog.Combos[10] = &model.Combination{ID: 10, ProductID: 1}
	catalog.Combos[11] = &model.Combination{ID: 11, ProductID: 1}

	require.NoError(t, adapters.Products.OnUpdate(context.Background(), 1))

	assert.Empty(t, queue.PendingByGroup(model.ActionUpdate, model.EntityProducts))
	jobs := queue.PendingByGroup(model.ActionUpdate, model.EntityVariants)
	require.Len(t, jobs, 2)
}

func TestProductAdapterUpdateCoalesces(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Products[1] = &model.Product{ID: 1, Name: "Lamp"}

	require.NoError(t, adapters.Products.OnUpdate(context.Background(), 1))
	require.NoError(t, adapters.Products.OnUpdate(context.Background(), 1))
	require.NoError(t, adapters.Products.OnQuantityChange(context.Background(), 1))

	assert.Len(t, queue.PendingByGroup(model.ActionUpdate, model.EntityProducts), 1)
}

func TestVariantAdapterFirstVariantRetiresBareProduct(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Products[1] = &model.Product{ID: 1, Name: "Shirt", Price: 30}
	catalog.Combos[10] = &model.Combination{ID: 10, ProductID: 1, Stock: 3}

	require.NoError(t, adapters.Variants.OnAdd(context.Background(), 10))

	deletes := queue.PendingByGroup(model.ActionDelete, model.EntityProducts)
	require.Len(t, deletes, 1)
	assert.Equal(t, int64(1), *deletes[0].EntityID)

	creates := queue.PendingByGroup(model.ActionCreate, model.EntityVariants)
	require.Len(t, creates, 1)
	payload, err := creates[0].ProductPayload()
	require.NoError(t, err)
	assert.Equal(t, "10", payload.VariantID)
}

func TestVariantAdapterSecondVariantLeavesProductAlone(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Products[1] = &model.Product{ID: 1}
	catalog.Combos[10] = &model.Combination{ID: 10, ProductID: 1}
	catalog.Combos[11] = &model.Combination{ID: 11, ProductID: 1}

	require.NoError(t, adapters.Variants.OnAdd(context.Background(), 11))

	assert.Empty(t, queue.PendingByGroup(model.ActionDelete, model.EntityProducts))
	assert.Len(t, queue.PendingByGroup(model.ActionCreate, model.EntityVariants), 1)
}

func TestVariantAdapterLastDeleteRecreatesBareProduct(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Products[1] = &model.Product{ID: 1, Name: "Shirt"}

	require.NoError(t, adapters.Variants.OnDelete(context.Background(), 10, 1))

	deletes := queue.PendingByGroup(model.ActionDelete, model.EntityVariants)
	require.Len(t, deletes, 1)

	creates := queue.PendingByGroup(model.ActionCreate, model.EntityProducts)
	require.Len(t, creates, 1)
	payload, err := creates[0].ProductPayload()
	require.NoError(t, err)
	assert.Equal(t, model.NoVariants, payload.VariantID)
}

func TestOrderAdapterGuestOrderQueuesPseudoUser(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Orders[5] = &model.Order{
		ID:         5,
		CustomerID: 7,
		Currency:   "EUR",
		Customer:   &model.Customer{ID: 7, Email: "guest@example.com", Guest: true},
	}

	require.NoError(t, adapters.Orders.OnAdd(context.Background(), 5))

	guests := queue.PendingByGroup(model.ActionCreate, model.EntityGuestUsers)
	require.Len(t, guests, 1)

	orders := queue.PendingByGroup(model.ActionCreate, model.EntityOrders)
	require.Len(t, orders, 1)

	decoded, err := orders[0].DecodePayload()
	require.NoError(t, err)
	record := decoded.(*model.OrderPayload).Item
	assert.Equal(t, "guest@example.com", record.UserID)
}

func TestOrderAdapterStatusChangeOnlyCancels(t *testing.T) {
	adapters, queue, _ := newTestAdapters(t)

	require.NoError(t, adapters.Orders.OnStatusChange(context.Background(), 5, 3))
	assert.Empty(t, queue.Jobs)

	require.NoError(t, adapters.Orders.OnStatusChange(context.Background(), 5, 6))
	require.NoError(t, adapters.Orders.OnStatusChange(context.Background(), 5, 6))
	assert.Len(t, queue.PendingByGroup(model.ActionCancel, model.EntityOrders), 1)
}

func TestCartAdapterSkipsGuestsAndAnonymous(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Customers[7] = &model.Customer{ID: 7, Guest: true}

	require.NoError(t, adapters.Carts.OnCartSave(context.Background(), nil))
	require.NoError(t, adapters.Carts.OnCartSave(context.Background(), &model.Cart{CustomerID: 0}))
	require.NoError(t, adapters.Carts.OnCartSave(context.Background(), &model.Cart{CustomerID: 7}))
	require.NoError(t, adapters.Carts.OnCartSave(context.Background(), &model.Cart{CustomerID: 99}))

	assert.Empty(t, queue.Jobs)
}

func TestCartAdapterCoalescesByCustomer(t *testing.T) {
	adapters, queue, catalog := newTestAdapters(t)
	catalog.Customers[7] = &model.Customer{ID: 7, Email: "c@example.com"}

	cart := &model.Cart{
		CustomerID: 7,
		Currency:   "EUR",
		Lines:      []model.CartLine{{ProductID: 1, Quantity: 2, UnitPrice: 9.5}},
	}
	require.NoError(t, adapters.Carts.OnCartSave(context.Background(), cart))

	cart.Lines = append(cart.Lines, model.CartLine{ProductID: 2, Quantity: 1, UnitPrice: 4})
	require.NoError(t, adapters.Carts.OnCartSave(context.Background(), cart))

	jobs := queue.PendingByGroup(model.ActionTrack, model.EntityEvents)
	require.Len(t, jobs, 1)

	decoded, err := jobs[0].DecodePayload()
	require.NoError(t, err)
	event := decoded.(*model.EventPayload)
	assert.Equal(t, "7", event.User.UserID)
	assert.Len(t, event.Event.Cart, 2)
	assert.Equal(t, "https://shop.example/cart", event.Event.CartLink)
}

func TestAdapterCountsEnqueuedJobs(t *testing.T) {
	adapters, _, catalog := newTestAdapters(t)
	catalog.Products[1] = &model.Product{ID: 1, Name: "Lamp"}

	before := testutil.ToFloat64(testMetrics.JobsEnqueued.WithLabelValues("products", "create"))
	require.NoError(t, adapters.Products.OnAdd(context.Background(), 1))
	after := testutil.ToFloat64(testMetrics.JobsEnqueued.WithLabelValues("products", "create"))
	assert.Equal(t, before+1, after)
}
