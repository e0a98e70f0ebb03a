package hooks

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository/repositorytest"
	syncsvc "github.com/merchpulse/storesync/internal/service/sync"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/metrics"
	"github.com/merchpulse/storesync/pkg/validator"
)

// Shared across tests; prometheus collectors register globally.
var testMetrics = metrics.New("hooks_test")

func newTestRouter(t *testing.T) (*gin.Engine, *repositorytest.FakeQueue, *repositorytest.FakeCatalog) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	log := logger.NewLogger(nil)
	builder := syncsvc.NewBuilder(catalog, "https://shop.example", 6)
	adapters := syncsvc.NewAdapters(queue, catalog, builder, testMetrics, log)

	engine := gin.New()
	group := engine.Group("/api/v1")
	NewHandler(adapters, validator.New(), log).RegisterRoutes(group)
	return engine, queue, catalog
}

func post(engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)
	return rec
}

func TestProductAddHookEnqueues(t *testing.T) {
	engine, queue, catalog := newTestRouter(t)
	catalog.Products[10] = &model.Product{ID: 10, Name: "Lamp"}

	rec := post(engine, "/api/v1/hooks/products/add", `{"product_id":10}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.PendingByGroup(model.ActionCreate, model.EntityProducts), 1)
}

func TestProductHookRejectsMissingID(t *testing.T) {
	engine, queue, _ := newTestRouter(t)

	rec := post(engine, "/api/v1/hooks/products/add", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, queue.Jobs)
}

func TestUnknownOpReturnsNotFound(t *testing.T) {
	engine, queue, catalog := newTestRouter(t)
	catalog.Products[10] = &model.Product{ID: 10, Name: "Lamp"}

	rec := post(engine, "/api/v1/hooks/products/archive", `{"product_id":10}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, queue.Jobs)
}

func TestOrderStatusHookCancelsAtCancelledState(t *testing.T) {
	engine, queue, _ := newTestRouter(t)

	rec := post(engine, "/api/v1/hooks/orders/status", `{"order_id":7,"state_id":6}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, queue.PendingByGroup(model.ActionCancel, model.EntityOrders), 1)
}
