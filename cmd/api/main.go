package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bbsfolio/api/internal/app"
	"bbsfolio/api/internal/config"
	"bbsfolio/api/internal/contentsync"
	"bbsfolio/api/internal/export"
	"bbsfolio/api/internal/kv"
	"bbsfolio/api/internal/logging"
	"bbsfolio/api/internal/media"
	"bbsfolio/api/internal/metrics"
	"bbsfolio/api/internal/search"
	"bbsfolio/api/internal/session"
	"bbsfolio/api/internal/store"
)

const snapshotPrefix = "bbsfolio:"

var (
	cfg    = config.Load()
	logger *zap.Logger

	seedFile  string
	seedReset bool

	rollbackSteps int
)

var rootCmd = &cobra.Command{
	Use:   "bbsfolio-api",
	Short: "bbsfolio content API",
	Long: `Serves the BBS portfolio: sections with a cached snapshot, portfolio entries,
played-animation sessions, media uploads, search and export.

Run without a subcommand to serve.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(cfg.Debug)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply migrations and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	Long: `Applies every pending migration, or with --down rolls back the newest applied
ones. Migrations are built into the binary; --migrations points at a directory
instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if rollbackSteps > 0 {
			undone, err := store.RollbackMigrations(ctx, db, store.MigrationSource(cfg.MigrationsDir), rollbackSteps)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			logger.Info("migrations rolled back", zap.Strings("versions", undone))
			return nil
		}
		return migrate(ctx, db)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load sections and portfolio entries from a YAML file",
	Long: `Upserts sections by key and inserts portfolio entries.

Example:
  bbsfolio-api seed --file db/seed/content.yaml --reset`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection URL")
	flags.StringVar(&cfg.MigrationsDir, "migrations", cfg.MigrationsDir, "directory of .up.sql/.down.sql files (default: built in)")
	flags.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL; empty keeps the cache and sessions in memory")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logging")

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
		cmd.Flags().BoolVar(&cfg.AdminEnabled, "admin", cfg.AdminEnabled, "mount the /api/admin routes")
	}

	seedCmd.Flags().StringVar(&seedFile, "file", "db/seed/content.yaml", "seed YAML file")
	seedCmd.Flags().BoolVar(&seedReset, "reset", false, "delete every existing section first")
	migrateCmd.Flags().IntVar(&rollbackSteps, "down", 0, "roll back this many applied migrations instead of applying")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context) (*sql.DB, error) {
	pool := store.DefaultPool
	pool.MaxOpen, pool.MaxIdle = cfg.DBMaxOpenConns, cfg.DBMaxIdleConns
	db, err := store.OpenPool(ctx, cfg.DatabaseURL, pool)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	applied, err := store.ApplyMigrations(ctx, db, store.MigrationSource(cfg.MigrationsDir))
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}
	return nil
}

func runServe(ctx context.Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(ctx, db); err != nil {
		return err
	}
	dataStore := store.NewPostgresStore(db)

	var (
		cache  kv.Store
		played interface {
			Played(context.Context, string) (map[string]bool, error)
			MarkPlayed(context.Context, string, string) error
			End(context.Context, string) error
		}
		checks = []app.Check{{Name: "schema", Ping: store.SchemaCheck(db, store.MigrationSource(cfg.MigrationsDir))}}
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for snapshot and sessions")
		redisClient, err := kv.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisClient.Close()
		redisCache := kv.NewRedisStore(redisClient, snapshotPrefix)
		cache = redisCache
		played = session.NewRedisStore(redisClient, cfg.SessionTTL)
		checks = append(checks, app.Check{Name: "redis", Ping: redisCache.Ping})
	} else {
		logger.Warn("redis not configured, snapshot and sessions are in memory")
		cache = kv.NewMemoryStore()
		played = session.NewMemoryStore(cfg.SessionTTL)
	}

	m := metrics.New()
	loader := contentsync.NewLoader(dataStore, cache,
		contentsync.WithTTL(cfg.CacheTTL),
		contentsync.WithSnapshotKey(cfg.SnapshotKey),
		contentsync.WithObserver(m.ObserveLoad),
	)

	var primary search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		primary = meili
	}
	searchService := search.NewService(primary, search.NewPgFTS(db), logger)
	defer searchService.Wait()

	deps := app.Deps{
		Store:          dataStore,
		Loader:         loader,
		Played:         played,
		Search:         searchService,
		Exporter:       export.NewService(dataStore),
		Metrics:        m,
		Logger:         logger,
		PortfolioTitle: cfg.PortfolioTitle,
	}
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		objects, err := media.NewMinioStore(media.MinioConfig{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			UseSSL:        cfg.S3UseSSL,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("object storage bucket: %w", err)
		}
		deps.Uploader = media.NewUploader(objects)
		checks = append(checks, app.Check{Name: "objects", Ping: objects.Ping})
	} else {
		logger.Warn("object storage not configured, uploads disabled")
	}
	deps.Checks = checks
	service := app.New(deps)

	reindex(ctx, dataStore, searchService)

	httpServer := app.NewHTTPServer(service, app.HTTPOptions{
		CORSOrigin:     cfg.CORSOrigin,
		AdminEnabled:   cfg.AdminEnabled,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Metrics:        m.Handler(),
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bbsfolio API listening", zap.String("addr", cfg.Addr), zap.Bool("admin", cfg.AdminEnabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Warm the snapshot so the first visitor does not pay for the fetch.
		result := loader.Load(gctx, false)
		logger.Info("sections warmed", zap.String("source", string(result.Source)), zap.Int("count", len(result.Sections)))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func reindex(ctx context.Context, dataStore *store.PostgresStore, searchService *search.Service) {
	sections, err := dataStore.ListSections(ctx)
	if err != nil {
		logger.Warn("reindex skipped", zap.Error(err))
		return
	}
	entries, err := dataStore.ListPortfolio(ctx)
	if err != nil {
		logger.Warn("reindex skipped", zap.Error(err))
		return
	}
	searchService.ReindexAll(sections, entries)
}

func runSeed(ctx context.Context) error {
	seed, err := store.LoadSeed(seedFile)
	if err != nil {
		return err
	}
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrate(ctx, db); err != nil {
		return err
	}

	stats, err := store.NewPostgresStore(db).ApplySeed(ctx, seed, seedReset)
	if err != nil {
		return err
	}
	logger.Info("seeded",
		zap.String("file", seedFile),
		zap.Bool("reset", seedReset),
		zap.Int64("deleted", stats.Deleted),
		zap.Int("sections", stats.Sections),
		zap.Int("portfolio", stats.Portfolio))

	// A running server would keep serving its snapshot until the TTL runs out.
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil
	}
	redisClient, err := kv.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Warn("snapshot not invalidated", zap.Error(err))
		return nil
	}
	defer redisClient.Close()
	if err := kv.NewRedisStore(redisClient, snapshotPrefix).Delete(ctx, cfg.SnapshotKey); err != nil {
		logger.Warn("snapshot not invalidated", zap.Error(err))
	}
	return nil
}
