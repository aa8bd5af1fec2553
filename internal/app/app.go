// Package app builds and owns the harvester's long-lived services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/pubsub"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/api"
	"github.com/JakeFAU/recipe-harvester/internal/batch"
	"github.com/JakeFAU/recipe-harvester/internal/clock"
	"github.com/JakeFAU/recipe-harvester/internal/config"
	"github.com/JakeFAU/recipe-harvester/internal/discover"
	"github.com/JakeFAU/recipe-harvester/internal/extract"
	collyfetcher "github.com/JakeFAU/recipe-harvester/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/recipe-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/recipe-harvester/internal/fetcher/promote"
	"github.com/JakeFAU/recipe-harvester/internal/id/uuid"
	"github.com/JakeFAU/recipe-harvester/internal/logging"
	"github.com/JakeFAU/recipe-harvester/internal/pipeline"
	"github.com/JakeFAU/recipe-harvester/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/recipe-harvester/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/recipe-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/recipe-harvester/internal/recipe"
	"github.com/JakeFAU/recipe-harvester/internal/reference"
	gcsstorage "github.com/JakeFAU/recipe-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/recipe-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/recipe-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/recipe-harvester/internal/storage/postgres"
	"github.com/JakeFAU/recipe-harvester/internal/telemetry"
)

// ServiceName identifies the harvester in traces.
const ServiceName = "recipe-harvester"

// RunCompletedEvent is the "event" attribute on run notifications.
const RunCompletedEvent = "harvest.run.completed"

// Options select how the application is assembled.
type Options struct {
	ConfigPath string
	// DryRun keeps registrations, recipes and notifications in memory.
	DryRun  bool
	Version string
	// Logger overrides the configured logger (tests).
	Logger *zap.Logger
}

// App holds the services shared by the CLI commands.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store    recipe.Store
	runs     recipe.RunRecorder
	refs     recipe.ReferenceWriter
	pg       *pgstore.Store
	archive  recipe.BlobStore
	gcs      *gcsstorage.BlobStore
	pubsub   *pubsub.Client
	gcpPub   *gcppublisher.Publisher
	headless *headlessfetcher.Fetcher
	tracer   *sdktrace.TracerProvider

	harvester  *pipeline.Harvester
	references *reference.Loader
	feeds      *discover.Feed
	ops        *api.Server
}

// Build loads configuration and wires every dependency. On error, whatever
// was already opened is closed again.
func Build(ctx context.Context, opts Options) (app *App, err error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		if logger, err = logging.New(cfg.Logging.Development); err != nil {
			return nil, err
		}
	}

	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	exporter, err := telemetry.NewExporter(ctx, telemetry.ExporterConfig{
		GRPCEndpoint: cfg.Tracing.GRPCEndpoint,
		HTTPEndpoint: cfg.Tracing.HTTPEndpoint,
		Headers:      cfg.Tracing.Headers,
	})
	if err != nil {
		return app, fmt.Errorf("trace exporter init failed: %w", err)
	}
	app.tracer, err = telemetry.InitTracerProvider(ctx, ServiceName, opts.Version, exporter)
	if err != nil {
		return app, fmt.Errorf("tracer init failed: %w", err)
	}
	if err = app.setupStore(ctx, opts.DryRun); err != nil {
		return app, err
	}
	if err = app.setupArchive(ctx); err != nil {
		return app, err
	}
	publisher, err := app.setupPublisher(ctx, opts.DryRun)
	if err != nil {
		return app, err
	}
	batchers, err := app.setupFetchers()
	if err != nil {
		return app, err
	}
	extractors, err := extract.NewRegistry(cfg.Sources)
	if err != nil {
		return app, fmt.Errorf("extractor registry init failed: %w", err)
	}

	app.harvester = pipeline.New(
		pipeline.Config{
			PersistChunkSize: cfg.Harvest.PersistChunkSize,
			PendingOnly:      cfg.Harvest.PendingOnly,
			ArchivePrefix:    cfg.Archive.Prefix,
			Topic:            cfg.PubSub.Topic,
			Sources:          cfg.Sources,
		},
		batchers,
		extractors,
		app.store,
		app.runs,
		app.archive,
		publisher,
		uuid.New(),
		clock.System{},
		logger,
	)

	if cfg.Reference.Enabled() {
		ref := cfg.Reference
		headers := make(http.Header, len(ref.Headers))
		for k, v := range ref.Headers {
			headers.Set(k, v)
		}
		app.references = reference.New(reference.Config{
			Source:      ref.Source,
			URLTemplate: ref.URLTemplate,
			PageSize:    ref.PageSize,
			TotalCount:  ref.TotalCount,
			Headers:     headers,
		}, batchers[ref.FetchMode], app.refs, logger)
	}

	var ready api.Pinger
	if app.pg != nil {
		ready = app.pg
	}
	app.ops = api.NewServer(ready, logger.Named("ops"))

	logger.Info("application built",
		zap.Strings("sources", cfg.SourceNames()),
		zap.Bool("dry_run", opts.DryRun),
		zap.String("archive", cfg.Archive.Backend),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Bool("reference", cfg.Reference.Enabled()),
	)
	return app, nil
}

func (a *App) setupStore(ctx context.Context, dryRun bool) error {
	if dryRun {
		a.logger.Info("dry run: using in-memory store")
		mem := memorystorage.NewStore(clock.System{})
		a.store, a.runs, a.refs = mem, mem, mem
		return nil
	}
	if a.cfg.DB.DSN == "" {
		return errors.New("db.dsn is required unless --dry-run is set")
	}
	if a.cfg.DB.MigrateOnStart {
		version, dirty, err := pgstore.Migrate(a.cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("migrate on start: %w", err)
		}
		a.logger.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	pg, err := pgstore.New(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pg = pg
	a.store, a.runs, a.refs = pg, pg, pg
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcs = store
		a.archive = store
		a.logger.Info("archiving documents to gcs", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return fmt.Errorf("local archive init failed: %w", err)
		}
		a.archive = store
		a.logger.Info("archiving documents locally", zap.String("dir", a.cfg.Archive.Dir))
	default:
		a.logger.Debug("document archive disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context, dryRun bool) (recipe.Publisher, error) {
	if a.cfg.PubSub.Topic == "" {
		return nil, nil
	}
	if dryRun {
		a.logger.Info("dry run: run events are kept in memory", zap.String("topic", a.cfg.PubSub.Topic))
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsub = client
	a.gcpPub = gcppublisher.New(client, RunCompletedEvent)
	a.logger.Info("pubsub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return a.gcpPub, nil
}

func (a *App) setupFetchers() (map[string]pipeline.Batcher, error) {
	limiter := ratelimit.New(ratelimit.Config{RatePerSecond: a.cfg.HTTP.RatePerSecond})
	httpFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgents:    a.cfg.HTTP.UserAgents,
		RespectRobots: a.cfg.HTTP.RespectRobots,
		Timeout:       a.cfg.RequestTimeout(),
		Limiter:       limiter,
	})
	a.feeds = discover.NewFeed(httpFetcher, a.logger.Named("discover"))
	batchCfg := batch.Config{BatchSize: a.cfg.Harvest.BatchSize}
	batchers := map[string]pipeline.Batcher{
		config.FetchModeHTTP: batch.New(batchCfg, httpFetcher, a.logger),
	}
	a.logger.Info("http fetcher ready",
		zap.Int("user_agents", len(a.cfg.HTTP.UserAgents)),
		zap.Bool("respect_robots", a.cfg.HTTP.RespectRobots),
		zap.Int("batch_size", a.cfg.Harvest.BatchSize),
	)

	if a.cfg.Headless.Enabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgents:        a.cfg.HTTP.UserAgents,
			NavigationTimeout: a.cfg.NavTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = headless
		batchers[config.FetchModeHeadless] = batch.New(batchCfg, headless, a.logger)
		auto := promote.New(httpFetcher, headless, promote.NewHeuristic(a.cfg.Headless.PromoteThreshold), a.logger)
		batchers[config.FetchModeAuto] = batch.New(batchCfg, auto, a.logger)
		a.logger.Info("headless fetcher ready", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	}
	return batchers, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Registry returns the reference resolver.
func (a *App) Registry() recipe.Registry { return a.store }

// Harvester returns the pipeline.
func (a *App) Harvester() *pipeline.Harvester { return a.harvester }

// References returns the ingredient reference loader, or nil when no
// reference API is configured.
func (a *App) References() *reference.Loader { return a.references }

// Feeds returns the feed discoverer used to register addresses from RSS/Atom.
func (a *App) Feeds() *discover.Feed { return a.feeds }

// Ops returns the operational HTTP server.
func (a *App) Ops() *api.Server { return a.ops }

// Close releases every service that was opened.
func (a *App) Close(ctx context.Context) error {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.gcpPub != nil {
		a.gcpPub.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
	return nil
}
