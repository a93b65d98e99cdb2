// Package app builds the long-lived services of a harvest run from
// configuration and owns their shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/cjeu-harvester/internal/clock/system"
	"github.com/JakeFAU/cjeu-harvester/internal/config"
	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/document"
	collyfetcher "github.com/JakeFAU/cjeu-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/cjeu-harvester/internal/id/uuid"
	"github.com/JakeFAU/cjeu-harvester/internal/metrics"
	"github.com/JakeFAU/cjeu-harvester/internal/pipeline"
	"github.com/JakeFAU/cjeu-harvester/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/cjeu-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/cjeu-harvester/internal/seen"
	"github.com/JakeFAU/cjeu-harvester/internal/sink"
)

// App holds the services shared by the CLI commands.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	seen     seen.Store
	sink     crawler.Sink
	notifier crawler.Notifier
	gcs      *storage.Client
	closers  []func() error
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// SeenStore returns the configured seen-set store.
func (a *App) SeenStore() seen.Store { return a.seen }

// Sink returns the configured dataset sink.
func (a *App) Sink() crawler.Sink { return a.sink }

// New initializes the storage, sink and notification backends named in cfg.
// It fails fast when a backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	store, err := a.newSeenStore(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize seen store: %w", err)
	}
	a.seen = store

	out, err := a.newSink(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize sink: %w", err)
	}
	a.sink = out

	if cfg.PubSub.TopicName != "" {
		logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", cfg.PubSub.TopicName))
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize notifier: %w", err)
		}
		a.notifier = pub
		a.closers = append(a.closers, pub.Close)
	}
	return a, nil
}

func (a *App) newSeenStore(ctx context.Context) (seen.Store, error) {
	switch a.cfg.Seen.Backend {
	case config.BackendFile:
		a.logger.Info("Using file seen store", zap.String("path", a.cfg.Seen.Path))
		return seen.NewFileStore(a.cfg.Seen.Path)
	case config.BackendGCS:
		client, err := a.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Using GCS seen store",
			zap.String("bucket", a.cfg.Seen.GCSBucket), zap.String("object", a.cfg.Seen.GCSObject))
		return seen.NewGCSStore(client, seen.GCSConfig{Bucket: a.cfg.Seen.GCSBucket, Object: a.cfg.Seen.GCSObject})
	case config.BackendMemory:
		a.logger.Info("Using in-memory seen store. Progress will not survive the run.")
		return seen.NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown seen backend: %s", a.cfg.Seen.Backend)
	}
}

func (a *App) newSink(ctx context.Context) (crawler.Sink, error) {
	sc := a.cfg.Sink
	switch sc.Backend {
	case config.BackendFile:
		a.logger.Info("Using file sink", zap.String("dir", sc.Dir))
		return sink.NewFileSink(sink.FileConfig{BaseDir: sc.Dir})
	case config.BackendGCS:
		client, err := a.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Using GCS sink", zap.String("bucket", sc.GCSBucket), zap.String("prefix", sc.GCSPrefix))
		return sink.NewGCSSink(client, sink.GCSConfig{Bucket: sc.GCSBucket, Prefix: sc.GCSPrefix})
	case config.BackendPostgres:
		a.logger.Info("Connecting to PostgreSQL...", zap.String("table", sc.Postgres.Table))
		pg, err := sink.NewPostgresSink(ctx, sink.PostgresConfig{
			DSN:             sc.Postgres.DSN,
			Table:           sc.Postgres.Table,
			MaxConns:        int32(sc.Postgres.MaxOpenConns), //nolint:gosec // validated small value
			MaxConnLifetime: time.Hour,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	case config.BackendHuggingFace:
		a.logger.Info("Using Hugging Face sink", zap.String("repo", sc.HuggingFace.Repo))
		return sink.NewHuggingFaceSink(nil, sink.HuggingFaceConfig{
			Repo:     sc.HuggingFace.Repo,
			Revision: sc.HuggingFace.Revision,
			Token:    sc.HuggingFace.Token,
			Endpoint: sc.HuggingFace.Endpoint,
			Dir:      sc.HuggingFace.Dir,
			Timeout:  a.cfg.HTTP.Timeout(),
		})
	case config.BackendMemory:
		a.logger.Info("Using in-memory sink. Records will be discarded.")
		return sink.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown sink backend: %s", sc.Backend)
	}
}

// storageClient lazily creates one GCS client shared by the seen store and
// the sink.
func (a *App) storageClient(ctx context.Context) (*storage.Client, error) {
	if a.gcs != nil {
		return a.gcs, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	a.gcs = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Controller wires the fetch path and returns a run controller.
func (a *App) Controller() *pipeline.Controller {
	cfg := a.cfg
	limiter := ratelimit.New(ratelimit.Config{
		Interval: cfg.HTTP.RequestDelay(),
		Observer: metrics.ObserveRateLimitDelay,
	})
	retry := crawler.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries, cfg.HTTP.BackoffInitial(), cfg.HTTP.BackoffMax())
	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTP.Timeout(),
		MaxBodySize:   cfg.HTTP.MaxBodyBytes,
	})
	docs := document.New(document.Config{
		URLTemplate: cfg.Document.URLTemplate,
		Markers:     document.Markers{Start: cfg.Document.StartMarker, End: cfg.Document.EndMarker},
		Source:      cfg.Document.Source,
	}, pages, limiter, retry, a.logger.Named("document"))

	return pipeline.New(
		a.seen,
		pages,
		docs,
		a.sink,
		a.notifier,
		limiter,
		retry,
		system.New(),
		uuid.New(),
		pipeline.Config{
			IndexPages:     cfg.Index.Pages,
			Cap:            cfg.Pipeline.Cap,
			BatchSize:      cfg.Pipeline.BatchSize,
			SinkRetries:    cfg.Pipeline.SinkRetries,
			SinkBackoff:    cfg.HTTP.BackoffInitial(),
			SinkBackoffMax: cfg.HTTP.BackoffMax(),
			MarkMissesSeen: cfg.Pipeline.MarkMissesSeen,
		},
		a.logger,
	)
}

// PushMetrics sends the run's metrics to the configured Pushgateway, if any.
func (a *App) PushMetrics(ctx context.Context, runID string) {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.JobName, runID); err != nil {
		a.logger.Warn("Error pushing metrics", zap.Error(err))
	}
}

// OnClose registers fn to run when the App is closed, before the backends
// created by New.
func (a *App) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close shuts down every backend in reverse creation order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}
