// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/api"
	memorycache "github.com/osvhub/osv-discovery/internal/cache/memory"
	rediscache "github.com/osvhub/osv-discovery/internal/cache/redis"
	"github.com/osvhub/osv-discovery/internal/clock/system"
	"github.com/osvhub/osv-discovery/internal/config"
	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/discovery"
	"github.com/osvhub/osv-discovery/internal/dispatcher"
	collyfetcher "github.com/osvhub/osv-discovery/internal/fetcher/colly"
	headlessfetcher "github.com/osvhub/osv-discovery/internal/fetcher/headless"
	"github.com/osvhub/osv-discovery/internal/hash/sha256"
	"github.com/osvhub/osv-discovery/internal/headless/detector"
	"github.com/osvhub/osv-discovery/internal/id/uuid"
	"github.com/osvhub/osv-discovery/internal/imo"
	"github.com/osvhub/osv-discovery/internal/logging"
	"github.com/osvhub/osv-discovery/internal/marketplace"
	"github.com/osvhub/osv-discovery/internal/media"
	"github.com/osvhub/osv-discovery/internal/metrics"
	"github.com/osvhub/osv-discovery/internal/mosva"
	"github.com/osvhub/osv-discovery/internal/policy/ratelimit"
	"github.com/osvhub/osv-discovery/internal/progress"
	progresssinks "github.com/osvhub/osv-discovery/internal/progress/sinks"
	memorypublisher "github.com/osvhub/osv-discovery/internal/publisher/memory"
	gcppublisher "github.com/osvhub/osv-discovery/internal/publisher/pubsub"
	queueMemory "github.com/osvhub/osv-discovery/internal/queue/memory"
	"github.com/osvhub/osv-discovery/internal/session"
	gcsstorage "github.com/osvhub/osv-discovery/internal/storage/gcs"
	localstorage "github.com/osvhub/osv-discovery/internal/storage/local"
	memoryStorage "github.com/osvhub/osv-discovery/internal/storage/memory"
	miniostorage "github.com/osvhub/osv-discovery/internal/storage/minio"
	pgstore "github.com/osvhub/osv-discovery/internal/storage/postgres"
	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/telemetry"
	"github.com/osvhub/osv-discovery/internal/vessel"
	"github.com/osvhub/osv-discovery/internal/worker"
	"github.com/osvhub/osv-discovery/internal/ws"
)

const (
	serviceName          = "osv-discovery"
	memoryPublisherLimit = 1000
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	version         string
	clock           crawler.Clock
	ids             crawler.IDGenerator
	apiServer       *api.Server
	wsHub           *ws.Hub
	dispatch        *dispatcher.Dispatcher
	runner          *session.Runner
	progressHub     *progress.Hub
	queue           *queueMemory.Queue
	repo            store.Repository
	pgRepo          *pgstore.Repository
	cache           crawler.Cache
	redis           *rediscache.Cache
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	headless        *headlessfetcher.Fetcher
	healthChecks    []api.HealthCheck
	tracerProvider  *sdktrace.TracerProvider
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger, version string) (*App, error) {
	logger.Info("creating application",
		zap.String("version", version),
		zap.String("addr", cfg.Dashboard.Addr()),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("publisher_backend", cfg.Publisher.Backend),
		zap.Int("max_workers", cfg.Crawler.MaxWorkers),
		zap.Float64("rate_limit_delay", cfg.Crawler.RateLimitDelay),
	)
	return &App{
		cfg:     cfg,
		logger:  logger,
		version: version,
		clock:   system.New(),
		ids:     uuid.New(),
	}, nil
}

// Run starts the dashboard and session workers and blocks until the context
// is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Workers()))
		a.dispatch.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.wsHub.RunStats(ctx, a.repo,
			time.Duration(a.cfg.Dashboard.AutoRefreshSeconds)*time.Second,
			time.Duration(a.cfg.Dashboard.ErrorRefreshSecs)*time.Second,
		)
	}()

	srv := &http.Server{
		Addr:              a.cfg.Dashboard.Addr(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")
	a.wsHub.Notify("server", "dashboard shutting down", "warning")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.wsHub.Close(shutdownCtx); err != nil {
		a.logger.Warn("websocket hub close failed", zap.Error(err))
	}
	a.queue.Close()
	wg.Wait()

	return a.Close(shutdownCtx)
}

// RunSession executes one session in the foreground, bypassing the queue.
func (a *App) RunSession(ctx context.Context, opts crawler.SessionOptions) (sess vessel.CrawlSession, err error) {
	id, err := a.ids.NewID()
	if err != nil {
		return sess, fmt.Errorf("generate session id: %w", err)
	}
	if opts.Type == "" {
		opts.Type = crawler.SessionFull
	}
	sess = a.runner.Run(ctx, crawler.QueueItem{
		SessionID: id,
		Options:   opts,
		Attempt:   1,
		Submitted: a.clock.Now().Unix(),
	})
	return sess, nil
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

//nolint:gocognit // Shutdown logic is linear but extensive, ignoring complexity check
func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pgRepo != nil {
		a.pgRepo.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	app, err := NewApp(cfg, logger, version)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	app.tracerProvider, err = telemetry.InitTracerProvider(ctx, serviceName, version)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	metrics.Init()

	app.logger.Info("building application dependencies")
	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}

	if err = setupCache(ctx, app); err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	app.wsHub = ws.NewHub(ws.Config{}, app.clock, logger.Named("ws"))

	progressEmitter, err := setupProgress(ctx, app)
	if err != nil {
		return nil, err
	}

	if err = setupRunner(app, blobStore, publisher, progressEmitter); err != nil {
		return nil, err
	}

	app.queue = queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	app.dispatch = setupDispatcher(app)

	var market api.MarketplaceStats
	if cfg.Marketplace.Enabled {
		market = marketplace.NewSyncer(app.repo, nil, "", logger)
	}
	app.apiServer = api.NewServer(api.Deps{
		Repo:        app.repo,
		Sessions:    app.dispatch,
		Hub:         app.wsHub,
		Marketplace: market,
		Queue:       app.queue,
		Checks:      app.healthChecks,
		IDs:         app.ids,
		Clock:       app.clock,
		Version:     version,
	}, *cfg, logger.Named("api"))

	return app, nil
}

// Migrate applies the embedded schema to the configured database.
func Migrate(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	dsn := cfg.Database.ConnString()
	if dsn == "" {
		return errors.New("database.dsn or database.host must be set to migrate")
	}
	repo, err := pgstore.New(ctx, pgstore.Config{DSN: dsn, MaxConns: 1})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema applied")
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func setupDatabase(ctx context.Context, app *App) error {
	dsn := app.cfg.Database.ConnString()
	if dsn == "" {
		app.logger.Warn("no database configured, using in-memory repository; data is lost on exit")
		app.repo = memoryStorage.NewRepository(nil)
		return nil
	}
	repo, err := pgstore.New(ctx, pgstore.Config{
		DSN:      dsn,
		MaxConns: int32(app.cfg.Database.MaxConns), //nolint:gosec // bounded by config validation
	})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	if app.cfg.Database.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return fmt.Errorf("auto migrate failed: %w", err)
		}
		app.logger.Info("schema applied")
	}
	app.pgRepo = repo
	app.repo = repo
	app.logger.Info("postgres repository initialized", zap.Int("max_conns", app.cfg.Database.MaxConns))
	return nil
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	var blobStore crawler.BlobStore
	var err error
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		bucket := app.cfg.Storage.GCS.Bucket
		blobStore, err = gcsstorage.New(app.storage, gcsstorage.Config{Bucket: bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.healthChecks = append(app.healthChecks, api.HealthCheck{
			Name: "blob_store",
			Check: func(ctx context.Context) error {
				_, err := app.storage.Bucket(bucket).Attrs(ctx)
				return err
			},
		})
		app.logger.Debug("GCS storage backend", zap.String("bucket", bucket))
	case "minio":
		app.logger.Info("using MinIO storage backend")
		mc := app.cfg.Storage.Minio
		blobStore, err = miniostorage.New(ctx, miniostorage.Config{
			Endpoint:  mc.Endpoint,
			AccessKey: mc.AccessKey,
			SecretKey: mc.SecretKey,
			Bucket:    mc.Bucket,
			Region:    mc.Region,
			UseSSL:    mc.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio blob store init failed: %w", err)
		}
		app.logger.Debug("MinIO storage backend", zap.String("endpoint", mc.Endpoint), zap.String("bucket", mc.Bucket))
	case "local":
		app.logger.Info("using local storage backend")
		blobStore, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local storage backend", zap.String("path", app.cfg.Storage.Local.BaseDir))
	default:
		app.logger.Info("using in-memory storage backend")
		blobStore = memoryStorage.NewBlobStore()
	}
	return blobStore, nil
}

func setupCache(ctx context.Context, app *App) error {
	switch app.cfg.Cache.Backend {
	case "redis":
		rc := app.cfg.Cache.Redis
		c, err := rediscache.New(ctx, rediscache.Config{
			Addr:      rc.Addr,
			Password:  rc.Password,
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("redis cache init failed: %w", err)
		}
		app.redis = c
		app.cache = c
		app.healthChecks = append(app.healthChecks, api.HealthCheck{Name: "cache", Check: c.Ping})
		app.logger.Info("using redis IMO cache", zap.String("addr", rc.Addr))
	case "none":
		app.logger.Info("IMO lookup cache disabled")
	default:
		c := memorycache.New(nil)
		app.cache = c
		app.healthChecks = append(app.healthChecks, api.HealthCheck{Name: "cache", Check: c.Ping})
		app.logger.Info("using in-memory IMO cache")
	}
	return nil
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	pc := app.cfg.Publisher
	switch pc.Backend {
	case "pubsub":
		var err error
		app.pubsubClient, err = pubsub.NewClient(ctx, pc.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubPublisher = gcppublisher.New(app.pubsubClient.Publisher(pc.Topic))
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", pc.ProjectID),
			zap.String("topic", pc.Topic),
		)
		return app.pubsubPublisher, nil
	case "none":
		app.logger.Info("event publishing disabled")
		return nil, nil
	default:
		app.logger.Info("using in-memory publisher")
		return memorypublisher.New(memoryPublisherLimit), nil
	}
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(app.logger.Named("progress_log")),
		promSink,
		progresssinks.NewStoreSink(app.repo, app.logger.Named("progress_store")),
		progresssinks.NewBroadcastSink(app.wsHub),
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Int("sinks", len(sinkList)),
	)
	return app.progressHub, nil
}

func setupRunner(
	app *App,
	blobStore crawler.BlobStore,
	publisher crawler.Publisher,
	emitter progress.Emitter,
) error {
	cfg := app.cfg
	logger := app.logger
	retry := crawler.NewRetryPolicy(
		cfg.Crawler.MaxRetries,
		time.Duration(cfg.Crawler.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Crawler.BackoffMaxMs)*time.Millisecond,
	)

	limiter := ratelimit.New(ratelimit.Config{
		Delay:     cfg.Crawler.Delay(),
		Overrides: imo.DomainDelays(imo.DefaultSources),
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
		MaxBodyBytes:  cfg.Crawler.MaxBodyBytes,
	}, limiter)
	logger.Info("using colly fetcher",
		zap.String("user_agent", cfg.Crawler.UserAgent),
		zap.Duration("rate_limit_delay", cfg.Crawler.Delay()),
	)

	mediaFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
		MaxBodyBytes:  media.BodyLimit(cfg.Media.MaxFileBytes),
	}, limiter)

	loaderCfg := discovery.LoaderConfig{
		Fetcher: fetcher,
		Retry:   retry,
		Logger:  logger.Named("loader"),
	}
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
			ScrollPasses:      cfg.Headless.ScrollPasses,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed, continuing without it", zap.Error(err))
		} else {
			app.headless = hf
			loaderCfg.Headless = hf
			loaderCfg.Detector = detector.NewHeuristic(cfg.Headless.PromotionThresh)
			logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}
	loader := discovery.NewLoader(loaderCfg)
	blocklist := crawler.NewDomainBlocklist(cfg.Crawler.BlockedDomains)

	deps := session.Deps{
		Repo:      app.repo,
		Directory: mosva.Directory{Dir: cfg.Mosva.DataDir, Logger: logger.Named("mosva")},
		Resolver:  discovery.NewResolver(loader, logger.Named("resolver")),
		Pages:     discovery.NewPages(loader, blocklist, logger.Named("pages")),
		Loader:    loader,
		Collector: media.NewCollector(fetcher, emitter, app.clock, media.CollectorConfig{
			MaxPhotos:    cfg.Media.MaxPhotosPerVessel,
			TrustedHosts: cfg.Media.TrustedHosts,
			Retry:        retry,
		}, logger.Named("media")),
		Downloader: media.NewDownloader(mediaFetcher, blobStore, sha256.New(), media.DownloaderConfig{
			Prefix:       cfg.Media.Prefix,
			MaxFileBytes: cfg.Media.MaxFileBytes,
			Retry:        retry,
		}, logger.Named("download")),
		Emitter:   emitter,
		Publisher: publisher,
		Clock:     app.clock,
		Logger:    logger.Named("session"),
	}
	if cfg.Enrichment.Enabled {
		deps.Enricher = imo.NewEngine(fetcher, app.cache, emitter, app.clock, imo.Config{
			CacheTTL:          cfg.Enrichment.CacheTTL,
			SkipAfterFailures: cfg.Enrichment.SkipAfterFailures,
			SkipCooldown:      cfg.Enrichment.SkipCooldown,
			Retry:             retry,
		}, logger)
	}
	if cfg.Marketplace.Enabled {
		deps.Marketplace = marketplace.NewSyncer(app.repo, publisher, cfg.Publisher.Topic, logger.Named("marketplace"))
	}

	app.runner = session.NewRunner(deps, session.Config{
		MaxWorkers:  cfg.Crawler.MaxWorkers,
		BatchDelay:  cfg.Crawler.Delay(),
		Marketplace: cfg.Marketplace.Enabled,
		Topic:       cfg.Publisher.Topic,
	})
	return nil
}

func setupDispatcher(app *App) *dispatcher.Dispatcher {
	workers := make([]*worker.Worker, 0, app.cfg.Crawler.SessionWorkers)
	for i := 0; i < app.cfg.Crawler.SessionWorkers; i++ {
		workers = append(workers, worker.New(
			app.queue,
			app.runner,
			app.clock,
			worker.Config{},
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	app.logger.Info("session workers configured",
		zap.Int("workers", len(workers)),
		zap.Int("queue_depth", app.queue.Cap()),
	)
	return dispatcher.New(app.queue, workers)
}
