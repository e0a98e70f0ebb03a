package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchpulse/storesync/config"
	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/remote"
	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/internal/repository/repositorytest"
	syncsvc "github.com/merchpulse/storesync/internal/service/sync"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/metrics"
)

// Shared across tests; prometheus collectors register globally.
var testMetrics = metrics.New("dispatcher_test")

type fakeLocker struct {
	mu      sync.Mutex
	denied  bool
	holders map[string]bool
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied {
		return false, nil
	}
	if l.holders == nil {
		l.holders = make(map[string]bool)
	}
	if l.holders[key] {
		return false, nil
	}
	l.holders[key] = true
	return true, nil
}

func (l *fakeLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holders, key)
	return nil
}

// recordingServer captures remote calls and answers with a fixed status.
type recordingServer struct {
	mu       sync.Mutex
	status   int
	requests []string
	server   *httptest.Server
}

func newRecordingServer(status int) *recordingServer {
	rs := &recordingServer{status: status}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.requests = append(rs.requests, r.Method+" "+r.URL.Path)
		status := rs.status
		rs.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}))
	return rs
}

func (rs *recordingServer) calls() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.requests...)
}

type testEnv struct {
	svc      *Service
	queue    *repositorytest.FakeQueue
	catalog  *repositorytest.FakeCatalog
	settings *repositorytest.FakeSettings
	locker   *fakeLocker
	server   *recordingServer
}

func newTestEnv(t *testing.T, status int) *testEnv {
	t.Helper()
	rs := newRecordingServer(status)
	t.Cleanup(rs.server.Close)

	queue := repositorytest.NewFakeQueue()
	catalog := repositorytest.NewFakeCatalog()
	settings := repositorytest.NewFakeSettings()
	require.NoError(t, settings.SetCredentials(context.Background(), &repository.Credentials{
		APIKey: "key", APISecret: "secret",
	}))

	log := logger.NewLogger(nil)
	builder := syncsvc.NewBuilder(catalog, "https://shop.example", 6)

	factory := func(creds *repository.Credentials) *remote.Client {
		return remote.NewClient(remote.Config{
			BaseURL:   rs.server.URL,
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			// One attempt per call keeps 5xx tests deterministic.
			MaxRetries: 1,
			RateLimit:  1000,
			RateBurst:  1000,
		}, testMetrics, log)
	}

	locker := &fakeLocker{}
	cfg := config.SyncConfig{
		ChunkSize:        200,
		BatchLimit:       200,
		PassesPerTick:    1,
		DispatchInterval: 20 * time.Second,
	}
	svc := NewService(queue, catalog, settings, builder, factory, locker, testMetrics, cfg, log)
	return &testEnv{svc: svc, queue: queue, catalog: catalog, settings: settings, locker: locker, server: rs}
}

func enqueueProductCreate(t *testing.T, env *testEnv, id int64) *model.Job {
	t.Helper()
	payload, err := model.MarshalPayload(&model.ProductPayload{
		ProductID: id,
		VariantID: model.NoVariants,
		Item:      &model.ProductRecord{ProductID: id, VariantID: model.NoVariants, Name: "P"},
	})
	require.NoError(t, err)
	jobID, err := env.queue.Enqueue(context.Background(), model.ActionCreate, model.EntityProducts, id, payload)
	require.NoError(t, err)
	for _, job := range env.queue.Jobs {
		if job.ID == jobID {
			return job
		}
	}
	t.Fatalf("job %d not found", jobID)
	return nil
}

func TestTickSuccessMarksJobs(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	job := enqueueProductCreate(t, env, 1)

	require.NoError(t, env.svc.Tick(context.Background()))

	assert.Equal(t, model.JobStatusSuccess, job.Status)
	assert.NotNil(t, job.ExecutedAt)
	assert.Equal(t, []string{"POST /v1/products"}, env.server.calls())
}

func TestTickServerErrorKeepsJobsPending(t *testing.T) {
	env := newTestEnv(t, http.StatusServiceUnavailable)
	job := enqueueProductCreate(t, env, 1)

	require.NoError(t, env.svc.Tick(context.Background()))

	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Nil(t, job.ExecutedAt)
}

func TestTickClientErrorFailsJobs(t *testing.T) {
	env := newTestEnv(t, http.StatusUnprocessableEntity)
	job := enqueueProductCreate(t, env, 1)

	require.NoError(t, env.svc.Tick(context.Background()))

	assert.Equal(t, model.JobStatusFailure, job.Status)
	assert.NotNil(t, job.ExecutedAt)
}

func TestTickUnauthorizedFailsJobsAndAborts(t *testing.T) {
	env := newTestEnv(t, http.StatusUnauthorized)
	job := enqueueProductCreate(t, env, 1)

	err := env.svc.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Equal(t, model.JobStatusFailure, job.Status)
}

func TestTickWithoutCredentialsIsNoop(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	require.NoError(t, env.settings.DeleteCredentials(context.Background()))
	enqueueProductCreate(t, env, 1)

	require.NoError(t, env.svc.Tick(context.Background()))
	assert.Empty(t, env.server.calls())
}

func TestPassPrefersBootstrapChunks(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.catalog.Products[1] = &model.Product{ID: 1, Name: "Lamp"}

	payload, err := model.MarshalPayload(&model.IDListPayload{IDs: []int64{1}})
	require.NoError(t, err)
	_, err = env.queue.EnqueueBulk(context.Background(), model.ActionInit, model.EntityProducts, payload)
	require.NoError(t, err)
	rowJob := enqueueProductCreate(t, env, 2)

	require.NoError(t, env.svc.Tick(context.Background()))

	// One pass, so only the init chunk went out.
	assert.Equal(t, []string{"POST /v1/products"}, env.server.calls())
	assert.Equal(t, model.JobStatusPending, rowJob.Status)
	initJobs := env.queue.PendingByGroup(model.ActionInit, model.EntityProducts)
	assert.Empty(t, initJobs)
}

func TestBulkChunkSkipsVanishedEntities(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	payload, err := model.MarshalPayload(&model.IDListPayload{IDs: []int64{1, 2}})
	require.NoError(t, err)
	jobID, err := env.queue.EnqueueBulk(context.Background(), model.ActionInit, model.EntityProducts, payload)
	require.NoError(t, err)

	require.NoError(t, env.svc.Tick(context.Background()))

	// Whole chunk vanished: no remote call, the job still completes.
	assert.Empty(t, env.server.calls())
	for _, job := range env.queue.Jobs {
		if job.ID == jobID {
			assert.Equal(t, model.JobStatusSuccess, job.Status)
		}
	}
}

func TestDeleteDispatchesBeforeRecreateOfSameEntity(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.catalog.Products[1] = &model.Product{ID: 1, Name: "Lamp"}

	// A reconciler heal leaves a delete and a re-create pending for the
	// same id; the stale-delete must reach the remote side first.
	deletePayload, err := model.MarshalPayload(&model.ProductPayload{ProductID: 1, VariantID: model.NoVariants})
	require.NoError(t, err)
	_, err = env.queue.Enqueue(context.Background(), model.ActionDelete, model.EntityProducts, 1, deletePayload)
	require.NoError(t, err)
	createJob := enqueueProductCreate(t, env, 1)

	require.NoError(t, env.svc.Tick(context.Background()))
	require.NoError(t, env.svc.Tick(context.Background()))

	assert.Equal(t, []string{"DELETE /v1/products", "POST /v1/products"}, env.server.calls())
	assert.Equal(t, model.JobStatusSuccess, createJob.Status)
}

func TestVariantDeleteDispatchesBeforeBareProductRecreate(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.catalog.Products[1] = &model.Product{ID: 1, Name: "Lamp"}

	// Removing the last variant re-creates the bare product; the remote
	// side must never hold both forms, so the variant delete goes first.
	variantPayload, err := model.MarshalPayload(&model.ProductPayload{ProductID: 1, VariantID: "10"})
	require.NoError(t, err)
	_, err = env.queue.Enqueue(context.Background(), model.ActionDelete, model.EntityVariants, 10, variantPayload)
	require.NoError(t, err)
	enqueueProductCreate(t, env, 1)

	require.NoError(t, env.svc.Tick(context.Background()))
	require.NoError(t, env.svc.Tick(context.Background()))

	assert.Equal(t, []string{"DELETE /v1/products", "POST /v1/products"}, env.server.calls())
}

func TestReusedNaturalKeyReachesTerminalStateTwice(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.catalog.Products[1] = &model.Product{ID: 1, Name: "Lamp"}

	first := enqueueProductCreate(t, env, 1)
	require.NoError(t, env.svc.Tick(context.Background()))
	assert.Equal(t, model.JobStatusSuccess, first.Status)

	// The terminal row is history; the same natural key enqueues and
	// completes again without colliding with it.
	second := enqueueProductCreate(t, env, 1)
	require.NotEqual(t, first.ID, second.ID)
	require.NoError(t, env.svc.Tick(context.Background()))

	assert.Equal(t, model.JobStatusSuccess, first.Status)
	assert.Equal(t, model.JobStatusSuccess, second.Status)
	assert.Len(t, env.server.calls(), 2)
}

func TestBulkChunkSkipsCombinedProducts(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.catalog.Products[1] = &model.Product{ID: 1, Name: "Shirt"}
	env.catalog.Combos[10] = &model.Combination{ID: 10, ProductID: 1}

	payload, err := model.MarshalPayload(&model.IDListPayload{IDs: []int64{1}})
	require.NoError(t, err)
	jobID, err := env.queue.EnqueueBulk(context.Background(), model.ActionInit, model.EntityProducts, payload)
	require.NoError(t, err)

	require.NoError(t, env.svc.Tick(context.Background()))

	// Combined products ship through variant chunks, never as bare records.
	assert.Empty(t, env.server.calls())
	for _, job := range env.queue.Jobs {
		if job.ID == jobID {
			assert.Equal(t, model.JobStatusSuccess, job.Status)
		}
	}
}

func TestDeleteAllVariantsFoldsIntoProducts(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	payload, err := model.MarshalPayload(&model.IDListPayload{})
	require.NoError(t, err)
	_, err = env.queue.EnqueueBulk(context.Background(), model.ActionDeleteAll, model.EntityVariants, payload)
	require.NoError(t, err)

	require.NoError(t, env.svc.Tick(context.Background()))
	assert.Equal(t, []string{"DELETE /v1/products/all"}, env.server.calls())
}

func TestBulkOrdersShipGuestsFirst(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	guest := &model.Customer{ID: 7, Email: "guest@example.com", Guest: true}
	env.catalog.Orders[1] = &model.Order{ID: 1, CustomerID: 7, Customer: guest}
	env.catalog.Orders[2] = &model.Order{ID: 2, CustomerID: 7, Customer: guest}

	payload, err := model.MarshalPayload(&model.IDListPayload{IDs: []int64{1, 2}})
	require.NoError(t, err)
	_, err = env.queue.EnqueueBulk(context.Background(), model.ActionInit, model.EntityOrders, payload)
	require.NoError(t, err)

	require.NoError(t, env.svc.Tick(context.Background()))
	assert.Equal(t, []string{"POST /v1/users", "POST /v1/orders"}, env.server.calls())
}

func TestMaybeTickRespectsGate(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	enqueueProductCreate(t, env, 1)
	require.NoError(t, env.settings.SetLastRun(context.Background(), repository.GateDispatch, time.Now()))

	require.NoError(t, env.svc.MaybeTick(context.Background()))
	assert.Empty(t, env.server.calls())
}

func TestMaybeTickRespectsLock(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	enqueueProductCreate(t, env, 1)
	env.locker.denied = true

	require.NoError(t, env.svc.MaybeTick(context.Background()))
	assert.Empty(t, env.server.calls())
}

func TestMaybeTickRunsWhenDue(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	job := enqueueProductCreate(t, env, 1)

	require.NoError(t, env.svc.MaybeTick(context.Background()))
	assert.Equal(t, model.JobStatusSuccess, job.Status)

	last, err := env.settings.LastRun(context.Background(), repository.GateDispatch)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, 5*time.Second)
}

func TestCancelDispatchesToCancelEndpoint(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	payload, err := model.MarshalPayload(&model.OrderPayload{OrderID: 9})
	require.NoError(t, err)
	_, err = env.queue.Enqueue(context.Background(), model.ActionCancel, model.EntityOrders, 9, payload)
	require.NoError(t, err)

	require.NoError(t, env.svc.Tick(context.Background()))
	assert.Equal(t, []string{"POST /v1/orders/cancel"}, env.server.calls())
}
