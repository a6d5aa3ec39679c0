package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/BearBump/SortBox/config"
	"github.com/BearBump/SortBox/internal/cache/rediscache"
	"github.com/BearBump/SortBox/internal/logging"
	"github.com/BearBump/SortBox/internal/services/bags"
	"github.com/BearBump/SortBox/internal/services/catalog"
	"github.com/BearBump/SortBox/internal/storage/pgsorting"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// env is what the commands work against. Tests build one over the in-memory store.
type env struct {
	catalog *catalog.Service
	bags    *bags.Service
	in      io.Reader
	out     io.Writer
	close   func()
}

type envOpener func(cmd *cobra.Command) (*env, error)

// openEnv connects to the same postgres and redis as sorting-api. Catalog
// writes go through the redis cache so the API drops its cached lookups.
func openEnv(cmd *cobra.Command) (*env, error) {
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("configPath")
	}
	if path == "" {
		return nil, errors.New("config path is required: pass --config or set configPath")
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Options{
		ServiceName: "sortingctl",
		Level:       zerolog.WarnLevel,
		Format:      "console",
		Output:      cmd.ErrOrStderr(),
	})

	st, err := pgsorting.New(cfg.Database.ConnString())
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	rc := rediscache.NewClient(cfg.Redis.Addr())
	cache := rediscache.New(rc)

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		// каталог работает и без кэша, API просто дольше увидит изменения
		log.Warn().Err(err).Msg("redis unavailable, catalog cache is not invalidated")
	}

	cacheTTL := time.Duration(cfg.Sorting.CatalogCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	separator := cfg.Sorting.SeparatorSocketID
	if separator == "" {
		separator = "SEP"
	}

	return &env{
		catalog: catalog.New(st, cache, cacheTTL, nil, log),
		bags:    bags.New(st, nil, nil, log, bags.Options{SeparatorSocketID: separator}),
		in:      cmd.InOrStdin(),
		out:     cmd.OutOrStdout(),
		close: func() {
			_ = rc.Close()
			st.Close()
		},
	}, nil
}
