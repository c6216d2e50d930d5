// Package app builds the service dependency graph and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/api"
	"github.com/JakeFAU/affiche/internal/cache"
	cachememory "github.com/JakeFAU/affiche/internal/cache/memory"
	cachepostgres "github.com/JakeFAU/affiche/internal/cache/postgres"
	cacheredis "github.com/JakeFAU/affiche/internal/cache/redis"
	"github.com/JakeFAU/affiche/internal/config"
	"github.com/JakeFAU/affiche/internal/enricher"
	"github.com/JakeFAU/affiche/internal/export"
	collyfetcher "github.com/JakeFAU/affiche/internal/fetcher/colly"
	"github.com/JakeFAU/affiche/internal/identity"
	"github.com/JakeFAU/affiche/internal/logging"
	"github.com/JakeFAU/affiche/internal/metrics"
	"github.com/JakeFAU/affiche/internal/movie"
	"github.com/JakeFAU/affiche/internal/pipeline"
	"github.com/JakeFAU/affiche/internal/policy/ratelimit"
	"github.com/JakeFAU/affiche/internal/pool"
	gcppublisher "github.com/JakeFAU/affiche/internal/publisher/pubsub"
	"github.com/JakeFAU/affiche/internal/resolver"
	"github.com/JakeFAU/affiche/internal/scanner"
	gcsstorage "github.com/JakeFAU/affiche/internal/storage/gcs"
	localstorage "github.com/JakeFAU/affiche/internal/storage/local"
)

const readHeaderTimeout = 5 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	cache        *cache.Cache
	orchestrator *pipeline.Orchestrator
	apiServer    *api.Server
	exporter     *export.Exporter

	redisStore    *cacheredis.Store
	postgresStore *cachepostgres.Store
	storage       *storage.Client
	publisher     *gcppublisher.Publisher
}

// CrawlResult is the outcome of a one-shot crawl.
type CrawlResult struct {
	TopCount int                    `json:"top_count"`
	PopLevel int                    `json:"pop_level"`
	Movies   []movie.EnrichedRecord `json:"movies"`
	Snapshot *export.Snapshot       `json:"snapshot,omitempty"`
}

// Build creates the logger from cfg, installs it globally and builds the application.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return New(ctx, cfg, logger)
}

// New builds the application around an existing logger.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("export_backend", cfg.Export.Backend),
		zap.Int("workers", cfg.Pipeline.Workers),
	)

	store, err := a.setupCache(ctx)
	if err != nil {
		a.closeInfrastructure()
		return nil, err
	}
	a.cache = cache.New(store, cfg.Cache.TTL, logger)

	if err := a.setupPipeline(); err != nil {
		a.closeInfrastructure()
		return nil, err
	}
	if err := a.setupExporter(ctx); err != nil {
		a.closeInfrastructure()
		return nil, err
	}

	a.apiServer = api.NewServer(a.orchestrator, a.cache, api.Options{
		DefaultTopCount: cfg.Pipeline.TopCount,
		DefaultPopLevel: cfg.Pipeline.PopLevel,
		Ready:           a.Ready,
	}, logger)
	return a, nil
}

func (a *App) setupCache(ctx context.Context) (cache.Store, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		store, err := cacheredis.New(ctx, cacheredis.Config{
			Addr:     a.cfg.Cache.Redis.Addr,
			Password: a.cfg.Cache.Redis.Password,
			DB:       a.cfg.Cache.Redis.DB,
			Prefix:   a.cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache init failed: %w", err)
		}
		a.redisStore = store
		a.logger.Info("using redis cache", zap.String("addr", a.cfg.Cache.Redis.Addr))
		return store, nil
	case config.CachePostgres:
		store, err := cachepostgres.New(ctx, cachepostgres.Config{
			DSN:      a.cfg.Cache.Postgres.DSN,
			Table:    a.cfg.Cache.Postgres.Table,
			MaxConns: a.cfg.Cache.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres cache init failed: %w", err)
		}
		a.postgresStore = store
		a.logger.Info("using postgres cache", zap.String("table", a.cfg.Cache.Postgres.Table))
		return store, nil
	default:
		a.logger.Info("using in-memory cache")
		return cachememory.New(), nil
	}
}

func (a *App) setupPipeline() error {
	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS: a.cfg.Fetch.PerHostRPS,
		Burst:      a.cfg.Fetch.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		Timeout: a.cfg.Fetch.Timeout,
		Limiter: limiter,
	}, a.logger)
	a.logger.Debug("fetcher config",
		zap.Duration("timeout", a.cfg.Fetch.Timeout),
		zap.Bool("rate_limited", limiter.Enabled()),
	)

	orchestrator, err := pipeline.New(pipeline.Deps{
		Identity: identity.New(identity.Config{
			ProxyListURL:   a.cfg.Sources.ProxyProviderURL,
			ProxyToken:     a.cfg.Sources.ProxyToken,
			UserAgentsFile: a.cfg.Sources.UserAgentsFile,
		}, fetcher, a.cache, a.logger),
		Scanner: scanner.New(scanner.Config{
			ListingURL: a.cfg.Sources.ListingURL,
			MinDelay:   a.cfg.Fetch.MinDelay,
			MaxDelay:   a.cfg.Fetch.MaxDelay,
		}, fetcher, a.cache, a.logger),
		Resolver: resolver.New(resolver.Config{
			SearchURL: a.cfg.Sources.SearchURL,
			MinDelay:  a.cfg.Fetch.MinDelay,
			MaxDelay:  a.cfg.Fetch.MaxDelay,
		}, fetcher, a.cache, a.logger),
		Enricher: enricher.New(enricher.Config{
			MinDelay: a.cfg.Fetch.DetailMinDelay,
			MaxDelay: a.cfg.Fetch.DetailMaxDelay,
		}, fetcher, a.cache, a.logger),
		Pool:  pool.New(a.cfg.Pipeline.Workers, a.logger),
		Cache: a.cache,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}
	a.orchestrator = orchestrator
	return nil
}

func (a *App) setupExporter(ctx context.Context) error {
	var blobStore export.BlobStore
	switch a.cfg.Export.Backend {
	case config.ExportLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Export.Dir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		blobStore = store
		a.logger.Info("using local snapshot export", zap.String("dir", a.cfg.Export.Dir))
	case config.ExportGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Export.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		blobStore = store
		a.logger.Info("using GCS snapshot export", zap.String("bucket", a.cfg.Export.Bucket))
	default:
		a.logger.Debug("snapshot export disabled")
		return nil
	}

	var publisher export.Publisher
	if a.cfg.Export.PubSub.Topic != "" {
		p, err := gcppublisher.Dial(ctx, a.cfg.Export.PubSub.ProjectID, a.cfg.Export.PubSub.Topic)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = p
		publisher = p
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Export.PubSub.ProjectID),
			zap.String("topic", a.cfg.Export.PubSub.Topic),
		)
	}

	exporter, err := export.New(blobStore, publisher, a.cfg.Export.Prefix, a.logger)
	if err != nil {
		return fmt.Errorf("exporter init failed: %w", err)
	}
	a.exporter = exporter
	return nil
}

// Config returns the configuration the application was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Ready pings the shared cache backends.
func (a *App) Ready(ctx context.Context) error {
	if a.redisStore != nil {
		if err := a.redisStore.Ping(ctx); err != nil {
			return err
		}
	}
	if a.postgresStore != nil {
		if err := a.postgresStore.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Crawl runs the pipeline once and, when exportSnapshot is set, writes the result as a snapshot.
// A snapshot that was written but could not be announced is returned along with the error.
func (a *App) Crawl(ctx context.Context, topCount, popLevel int, exportSnapshot bool) (CrawlResult, error) {
	result := CrawlResult{TopCount: topCount, PopLevel: popLevel}
	if exportSnapshot && a.exporter == nil {
		return result, fmt.Errorf("export requested but export.backend is %q", a.cfg.Export.Backend)
	}

	records, err := a.orchestrator.Run(ctx, topCount, popLevel)
	if err != nil {
		return result, fmt.Errorf("crawl failed: %w", err)
	}
	result.Movies = records
	if !exportSnapshot {
		return result, nil
	}

	snap, err := a.exporter.Export(ctx, records)
	if snap.URI != "" {
		result.Snapshot = &snap
	}
	if err != nil {
		return result, fmt.Errorf("export failed: %w", err)
	}
	return result, nil
}

// Run serves HTTP until ctx is canceled or a termination signal arrives, then drains the server.
// The caller still owns Close.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases backend connections and flushes the logger.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			a.logger.Warn("redis cache close failed", zap.Error(err))
		}
		a.redisStore = nil
	}
	if a.postgresStore != nil {
		a.postgresStore.Close()
		a.postgresStore = nil
	}
}
