package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/SortBox/config"
	sortingapi "github.com/BearBump/SortBox/internal/api/sorting_api"
	"github.com/BearBump/SortBox/internal/broker/kafka"
	"github.com/BearBump/SortBox/internal/cache/rediscache"
	"github.com/BearBump/SortBox/internal/logging"
	"github.com/BearBump/SortBox/internal/metrics"
	"github.com/BearBump/SortBox/internal/services/bags"
	"github.com/BearBump/SortBox/internal/services/catalog"
	"github.com/BearBump/SortBox/internal/services/sortedbags"
	"github.com/BearBump/SortBox/internal/services/wizard"
	"github.com/BearBump/SortBox/internal/storage/pgsorting"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

type sortingAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    sortingAPIOpts
	deps    sortingAPIDeps
	log     zerolog.Logger
	closers []func()
}

func mustBootstrapSortingAPI() *sortingAPIApp {
	// .env is optional, real deployments pass the environment directly
	_ = godotenv.Load()

	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	log := logging.New(logging.Options{
		ServiceName: "sorting-api",
		Level:       logging.ParseLevel(cfg.Sorting.LogLevel),
		Format:      cfg.Sorting.LogFormat,
	})

	httpAddr := cfg.Sorting.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	separator := cfg.Sorting.SeparatorSocketID
	if separator == "" {
		separator = "SEP"
	}
	consumerGroup := cfg.Kafka.ConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "sorting-api"
	}
	eventsTopic := cfg.Kafka.BagEventsTopicName
	if eventsTopic == "" {
		eventsTopic = "sorting.bag-events"
	}
	shipmentsTopic := cfg.Kafka.ShipmentUpdatesTopicName
	if shipmentsTopic == "" {
		shipmentsTopic = "shipping.status-updated"
	}
	cacheTTL := secondsOr(cfg.Sorting.CatalogCacheTTLSeconds, 5*time.Minute)
	draftTTL := secondsOr(cfg.Sorting.WizardDraftTTLSeconds, time.Hour)
	guardWindow := secondsOr(cfg.Sorting.CommitGuardSeconds, 10*time.Second)

	app := &sortingAPIApp{log: log}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second, log)
	app.closers = append(app.closers, st.Close)

	rc := rediscache.NewClient(cfg.Redis.Addr())
	app.closers = append(app.closers, func() { _ = rc.Close() })
	cache := rediscache.New(rc)

	reg := newRegistry()
	m := metrics.New(reg)

	var events bags.EventPublisher
	brokers := cfg.Kafka.Brokers()
	if len(brokers) > 0 {
		producer := kafka.NewProducer(brokers)
		app.closers = append(app.closers, func() { _ = producer.Close() })
		events = producer
	} else {
		log.Warn().Msg("kafka is not configured, bag events are not published")
	}

	catalogSvc := catalog.New(st, cache, cacheTTL, m, log)
	bagSvc := bags.New(st, events, m, log, bags.Options{
		SeparatorSocketID: separator,
		EventsTopic:       eventsTopic,
	})
	sortedSvc := sortedbags.New(st, m, log, nil)
	wizardSvc := wizard.New(catalogSvc, rediscache.NewDraftStore(rc, draftTTL), rediscache.NewLimiter(rc), bagSvc, m, log, wizard.Options{
		GuardWindow: guardWindow,
	})

	deps := sortingAPIDeps{
		api: sortingapi.New(sortingapi.Deps{
			Catalog:    catalogSvc,
			Bags:       bagSvc,
			SortedBags: sortedSvc,
			Wizard:     wizardSvc,
			Metrics:    m,
			Log:        log,
		}),
		gatherer: reg,
		ready: []readyCheck{
			{name: "postgres", check: st.Ping},
			{name: "redis", check: cache.Ping},
		},
		log: log,
	}
	if cfg.Kafka.ConsumeShipmentUpdates && len(brokers) > 0 {
		consumer := kafka.NewConsumer(brokers, shipmentsTopic, consumerGroup, log)
		app.closers = append(app.closers, func() { _ = consumer.Close() })
		deps.shipments = consumer
		deps.shipmentHandler = sortedSvc.HandleShipmentMessage
	}

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.opts = sortingAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         shipmentsTopic,
		consumerGroup: consumerGroup,
	}
	app.deps = deps
	return app
}

// newRegistry is the registry /metrics serves: runtime and process collectors
// plus whatever the services register on it.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func secondsOr(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration, log zerolog.Logger) *pgsorting.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgsorting.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		log.Warn().Err(err).Msg("postgres is not ready, retrying")
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

// Close releases resources in reverse order of acquisition.
func (a *sortingAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *sortingAPIApp) Run() error {
	return runSortingAPI(a.ctx, a.opts, a.deps)
}
