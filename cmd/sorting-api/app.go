package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	sortingapi "github.com/BearBump/SortBox/internal/api/sorting_api"
	"github.com/BearBump/SortBox/internal/broker/kafka"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
)

type sortingAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type shipmentConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

// readyCheck is one dependency probed by /readyz.
type readyCheck struct {
	name  string
	check func(ctx context.Context) error
}

type sortingAPIDeps struct {
	api *sortingapi.SortingAPI
	// shipments is nil when consume_shipment_updates is off.
	shipments       shipmentConsumer
	shipmentHandler kafka.Handler
	gatherer        prometheus.Gatherer
	ready           []readyCheck
	log             zerolog.Logger
}

func runSortingAPI(ctx context.Context, opts sortingAPIOpts, deps sortingAPIDeps) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runHTTPServer(gctx, lis, newRouter(opts, deps), deps.log)
	})
	if deps.shipments != nil {
		g.Go(func() error {
			deps.log.Info().Str("topic", opts.topic).Str("group", opts.consumerGroup).Msg("kafka consumer started")
			return deps.shipments.Consume(gctx, deps.shipmentHandler)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func newRouter(opts sortingAPIOpts, deps sortingAPIDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, c := range deps.ready {
			if err := c.check(ctx); err != nil {
				deps.log.Warn().Err(err).Str("check", c.name).Msg("not ready")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, `{"status":"unavailable","check":%q}`, c.name)
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	if deps.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	r.Mount("/", deps.api.Routes())
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", lis.Addr().String()).Msg("HTTP server listening")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
