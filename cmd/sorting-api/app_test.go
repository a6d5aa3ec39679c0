package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	sortingapi "github.com/BearBump/SortBox/internal/api/sorting_api"
	"github.com/BearBump/SortBox/internal/broker/kafka"
	"github.com/BearBump/SortBox/internal/cache/rediscache"
	"github.com/BearBump/SortBox/internal/metrics"
	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/services/bags"
	"github.com/BearBump/SortBox/internal/services/catalog"
	"github.com/BearBump/SortBox/internal/services/sortedbags"
	"github.com/BearBump/SortBox/internal/services/wizard"
	"github.com/BearBump/SortBox/internal/storage/memsorting"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct {
	messages [][2]string
	done     chan struct{}
}

func (c *fakeConsumer) Consume(ctx context.Context, handler kafka.Handler) error {
	for _, m := range c.messages {
		if err := handler(ctx, []byte(m[0]), []byte(m[1])); err != nil {
			return err
		}
	}
	close(c.done)
	<-ctx.Done()
	return nil
}

type testEnv struct {
	store  *memsorting.Store
	deps   sortingAPIDeps
	sorted *sortedbags.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := rediscache.NewClient(mr.Addr())
	store := memsorting.New()
	reg := newRegistry()
	m := metrics.New(reg)
	log := zerolog.Nop()

	cat := catalog.New(store, rediscache.New(rc), time.Minute, m, log)
	bagSvc := bags.New(store, nil, m, log, bags.Options{})
	sorted := sortedbags.New(store, m, log, nil)
	api := sortingapi.New(sortingapi.Deps{
		Catalog:    cat,
		Bags:       bagSvc,
		SortedBags: sorted,
		Wizard:     wizard.New(cat, rediscache.NewDraftStore(rc, time.Hour), rediscache.NewLimiter(rc), bagSvc, m, log, wizard.Options{}),
		Metrics:    m,
		Log:        log,
	})
	return &testEnv{
		store:  store,
		sorted: sorted,
		deps: sortingAPIDeps{
			api:      api,
			gatherer: reg,
			ready: []readyCheck{
				{name: "redis", check: rediscache.New(rc).Ping},
			},
			log: log,
		},
	}
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRunSortingAPI_ServesEndpoints(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := sortingAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: writeSwagger(t),
		onListen:    func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runSortingAPI(ctx, opts, env.deps) }()

	base := "http://" + <-addrCh

	code, body := get(t, base+"/swagger.json")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"swagger"`)

	code, _ = get(t, base+"/healthz")
	require.Equal(t, http.StatusOK, code)

	code, body = get(t, base+"/readyz")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "ready")

	code, _ = get(t, base+"/sockets")
	require.Equal(t, http.StatusOK, code)

	code, body = get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "sorting_http_requests_total")
	require.Contains(t, body, "go_goroutines")

	cancel()
	select {
	case err := <-errCh:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting server to stop")
	}
}

func TestRunSortingAPI_NotReady(t *testing.T) {
	env := newTestEnv(t)
	env.deps.ready = append(env.deps.ready, readyCheck{
		name:  "postgres",
		check: func(context.Context) error { return errors.New("connection refused") },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := sortingAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: writeSwagger(t),
		onListen:    func(httpAddr string) { addrCh <- httpAddr },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- runSortingAPI(ctx, opts, env.deps) }()

	code, body := get(t, "http://"+<-addrCh+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Contains(t, body, `"check":"postgres"`)

	cancel()
	<-errCh
}

func TestRunSortingAPI_AppliesShipmentUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	so := &models.Socket{SocketID: "S1", Name: "S1", IsActive: true}
	require.NoError(t, env.store.CreateSocket(ctx, so))
	bt := &models.BagType{Name: "T", Code: "T", Order: 1, Source: models.BagSourceIn, IsActive: true, SocketID: so.ID}
	require.NoError(t, env.store.CreateBagType(ctx, bt))
	bag, err := bags.New(env.store, nil, nil, zerolog.Nop(), bags.Options{}).Create(ctx, models.BagCreateInput{
		SocketID: so.ID, BagTypeID: bt.ID, Processed: true,
	})
	require.NoError(t, err)
	sb, err := env.sorted.Create(ctx, models.SortedBagInput{
		BagID: bag.ID, Destination: models.DestinationRetail, TrackingNumber: "TRK-1",
	})
	require.NoError(t, err)

	cons := &fakeConsumer{
		messages: [][2]string{
			{"TRK-1", `{"status":"SHIPPED"}`},
			{"TRK-1", `not json`},
			{"TRK-404", `{"status":"delivered"}`},
		},
		done: make(chan struct{}),
	}
	env.deps.shipments = cons
	env.deps.shipmentHandler = env.sorted.HandleShipmentMessage

	opts := sortingAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: writeSwagger(t),
		topic:       "shipping.status-updated",
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- runSortingAPI(runCtx, opts, env.deps) }()

	select {
	case <-cons.done:
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not drain messages")
	}

	got, err := env.sorted.Get(ctx, sb.ID)
	require.NoError(t, err)
	require.Equal(t, models.ShipmentStatusShipped, got.Status)
	require.NotNil(t, got.ShippedAt)

	cancel()
	require.True(t, errors.Is(<-errCh, context.Canceled))
}

func TestRunSortingAPI_MissingSwagger(t *testing.T) {
	env := newTestEnv(t)
	err := runSortingAPI(context.Background(), sortingAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "nope.json"),
	}, env.deps)
	require.Error(t, err)
	require.Contains(t, err.Error(), "swagger file not found")
}
