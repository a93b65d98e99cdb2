// Package pipeline drives one incremental harvest run: load the seen set,
// discover identifiers on the index pages, drop what is already known, then
// fetch, batch and flush the rest while checkpointing progress after every
// batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cjeu-harvester/internal/batcher"
	"github.com/JakeFAU/cjeu-harvester/internal/celex"
	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/metrics"
	"github.com/JakeFAU/cjeu-harvester/internal/seen"
)

// Defaults applied by New when the config leaves a bound unset. DefaultCap
// and DefaultBatchSize are also upper bounds.
const (
	DefaultCap         = 250
	DefaultBatchSize   = batcher.DefaultMaxSize
	DefaultSinkRetries = 3
)

// Config bounds a run.
type Config struct {
	IndexPages []crawler.IndexPage
	// Cap is the maximum number of new identifiers processed per run.
	Cap       int
	BatchSize int
	// SinkRetries is the total number of append attempts per batch.
	SinkRetries    int
	SinkBackoff    time.Duration
	SinkBackoffMax time.Duration
	// MarkMissesSeen records identifiers whose documents lack the markers so
	// later runs skip them.
	MarkMissesSeen bool
}

// DocumentFetcher turns an identifier into a case record.
type DocumentFetcher interface {
	Fetch(ctx context.Context, id celex.ID) (crawler.CaseRecord, error)
}

// Controller runs the harvest state machine. It is single-use per Run call and
// not safe for concurrent runs.
type Controller struct {
	cfg       Config
	store     seen.Store
	pages     crawler.Fetcher
	documents DocumentFetcher
	sink      crawler.Sink
	notifier  crawler.Notifier
	limiter   crawler.Limiter
	retry     crawler.RetryPolicy
	clock     crawler.Clock
	ids       crawler.IDGenerator
	logger    *zap.Logger
}

// New wires a Controller. notifier, limiter, retry and ids may be nil.
func New(
	store seen.Store,
	pages crawler.Fetcher,
	documents DocumentFetcher,
	sink crawler.Sink,
	notifier crawler.Notifier,
	limiter crawler.Limiter,
	retry crawler.RetryPolicy,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if cfg.Cap <= 0 || cfg.Cap > DefaultCap {
		cfg.Cap = DefaultCap
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > DefaultBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SinkRetries <= 0 {
		cfg.SinkRetries = DefaultSinkRetries
	}
	if cfg.SinkBackoff <= 0 {
		cfg.SinkBackoff = time.Second
	}
	if cfg.SinkBackoffMax <= 0 {
		cfg.SinkBackoffMax = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:       cfg,
		store:     store,
		pages:     pages,
		documents: documents,
		sink:      sink,
		notifier:  notifier,
		limiter:   limiter,
		retry:     retry,
		clock:     clock,
		ids:       ids,
		logger:    logger.Named("pipeline"),
	}
}

// run carries the mutable state of a single Run call.
type run struct {
	report Report
	seen   seen.Set
	batch  *batcher.Batcher
	misses []celex.ID
	logger *zap.Logger
}

// Run executes one harvest. The returned error is non-nil exactly when the
// run ends in StateFail; the report is always populated.
func (c *Controller) Run(ctx context.Context) (Report, error) {
	r := &run{
		batch:  batcher.New(c.sink, c.cfg.BatchSize),
		logger: c.logger,
	}
	r.report.StartedAt = c.now()
	if c.ids != nil {
		id, err := c.ids.NewID()
		if err != nil {
			c.logger.Warn("generate run id failed", zap.Error(err))
		}
		r.report.RunID = id
		r.logger = c.logger.With(zap.String("run_id", id))
	}

	c.transition(r, StateInit)
	set, err := c.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, crawler.ErrStorageRead) {
			err = fmt.Errorf("%w: %v", crawler.ErrStorageRead, err)
		}
		return c.fail(r, fmt.Errorf("load seen set: %w", err))
	}
	if set == nil {
		set = seen.NewSet()
	}
	r.seen = set
	r.report.SeenSize = len(set)
	r.logger.Info("seen set loaded", zap.Int("identifiers", len(set)))

	c.transition(r, StateDiscover)
	discovered, err := c.discover(ctx, r)
	if err != nil {
		return c.fail(r, err)
	}

	c.transition(r, StateFilter)
	queue := c.filterCap(r, discovered)

	c.transition(r, StateProcess)
	if err := c.process(ctx, r, queue); err != nil {
		return c.fail(r, err)
	}

	c.transition(r, StateDrain)
	if err := c.drain(ctx, r); err != nil {
		return c.fail(r, err)
	}

	c.transition(r, StateDone)
	r.report.FinishedAt = c.now()
	r.logger.Info("run finished", r.report.Fields()...)
	return r.report, nil
}

func (c *Controller) transition(r *run, next State) {
	r.report.State = next
	r.report.States = append(r.report.States, next)
	metrics.SetRunState(string(next), next.Terminal(), c.now())
	r.logger.Debug("state transition", zap.String("state", string(next)))
}

func (c *Controller) fail(r *run, err error) (Report, error) {
	c.transition(r, StateFail)
	r.report.FinishedAt = c.now()
	fields := append(r.report.Fields(), zap.Error(err))
	if pending := r.batch.Len(); pending > 0 {
		fields = append(fields, zap.Int("unflushed", pending))
	}
	r.logger.Error("run failed", fields...)
	return r.report, err
}

func (c *Controller) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock.Now()
}
