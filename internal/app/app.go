// Package app initializes and holds long-lived application services, acting as
// a dependency injection container.
package app

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Cyphercomp/pokefetch/internal/clock/system"
	"github.com/Cyphercomp/pokefetch/internal/config"
	"github.com/Cyphercomp/pokefetch/internal/dispatcher"
	"github.com/Cyphercomp/pokefetch/internal/fetcher/rest"
	"github.com/Cyphercomp/pokefetch/internal/hash/sha256"
	idgen "github.com/Cyphercomp/pokefetch/internal/id/uuid"
	"github.com/Cyphercomp/pokefetch/internal/logging"
	"github.com/Cyphercomp/pokefetch/internal/metrics"
	"github.com/Cyphercomp/pokefetch/internal/pokedex"
	"github.com/Cyphercomp/pokefetch/internal/progress"
	"github.com/Cyphercomp/pokefetch/internal/progress/sinks"
	pubsubpublisher "github.com/Cyphercomp/pokefetch/internal/publisher/pubsub"
	"github.com/Cyphercomp/pokefetch/internal/ratelimit"
	"github.com/Cyphercomp/pokefetch/internal/storage/gcs"
	"github.com/Cyphercomp/pokefetch/internal/storage/local"
	storememory "github.com/Cyphercomp/pokefetch/internal/storage/memory"
	"github.com/Cyphercomp/pokefetch/internal/worker"
)

// App holds the shared, long-lived services for the application. It is built
// once at startup and handed to the command that needs it.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	runStore   pokedex.RunStore
	blobStore  pokedex.BlobStore
	failureLog pokedex.FailureLog
	hub        *progress.Hub
	dispatcher *dispatcher.Dispatcher
	closers    []func() error
}

// New creates and initializes an App from the configuration, failing fast if
// any service cannot be built.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	return newApp(ctx, cfg, prometheus.DefaultRegisterer)
}

func newApp(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	metrics.Init()

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}

	if a.blobStore, err = a.buildBlobStore(ctx); err != nil {
		return nil, err
	}
	if a.failureLog, err = local.NewErrorLog(cfg.Storage.ErrorLog); err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	a.runStore = storememory.NewRunStore()

	publisher, topic, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("build prometheus sink: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
	)

	fetcher := rest.New(rest.Config{
		BaseURL:   cfg.API.BaseURL,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	})
	pacer := ratelimit.New(ratelimit.Config{
		RatePerSec: cfg.Fetch.RatePerSec,
		Burst:      cfg.Fetch.RateBurst,
	})
	hasher := sha256.New()
	clock := system.New()

	factory := func(queue pokedex.Queue, params pokedex.RunParameters) *worker.Worker {
		attempts := cfg.Retry.MaxAttempts
		if params.MaxAttempts > 0 {
			attempts = params.MaxAttempts
		}
		return worker.New(
			queue,
			a.runStore,
			a.blobStore,
			a.failureLog,
			fetcher,
			pokedex.NewExponentialRetryPolicy(attempts, cfg.BackoffInitial(), cfg.BackoffMax()),
			pacer,
			hasher,
			clock,
			a.hub,
			worker.Config{BlobPrefix: cfg.Storage.Prefix},
			logger,
		)
	}
	a.dispatcher = dispatcher.New(
		dispatcher.Config{
			Concurrency: cfg.Fetch.Concurrency,
			QueueDepth:  cfg.Fetch.QueueDepth,
			Topic:       topic,
		},
		a.runStore,
		publisher,
		clock,
		idgen.NewUUIDGenerator(),
		a.hub,
		factory,
		logger,
	)

	logger.Info("application services initialized",
		zap.String("storage_provider", cfg.Storage.Provider),
		zap.Bool("pubsub_enabled", cfg.PubSub.Enabled),
	)
	return a, nil
}

func (a *App) buildBlobStore(ctx context.Context) (pokedex.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "local":
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.OutputDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return store, nil
	case "memory":
		return storememory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", a.cfg.Storage.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context) (pokedex.Publisher, string, error) {
	if !a.cfg.PubSub.Enabled {
		return nil, "", nil
	}
	pub, err := pubsubpublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, "", fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	return pub, a.cfg.PubSub.TopicName, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunStore returns the in-memory run store.
func (a *App) RunStore() pokedex.RunStore {
	return a.runStore
}

// Dispatcher returns the run dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Close cancels in-flight runs and waits for them to wind down (bounded by
// ctx), then flushes the progress pipeline and releases external clients.
func (a *App) Close(ctx context.Context) {
	if err := a.dispatcher.Shutdown(ctx); err != nil {
		a.logger.Warn("dispatcher shutdown incomplete", zap.Error(err))
	}
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("service close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
