package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/cjeu-harvester/internal/batcher"
	"github.com/JakeFAU/cjeu-harvester/internal/celex"
	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/metrics"
)

// process fetches each queued identifier in order and flushes whenever the
// batch fills. Fetch failures and extraction misses skip the identifier; a
// batch the sink keeps rejecting or a canceled context ends the run.
func (c *Controller) process(ctx context.Context, r *run, queue []celex.ID) error {
	for _, id := range queue {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("process: %w", err)
		}
		r.report.Processed++
		rec, err := c.documents.Fetch(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("process %s: %w", id, ctx.Err())
			}
			c.skip(r, id, err)
			continue
		}
		r.report.Extracted++
		metrics.ObserveDocument("extracted")
		if err := r.batch.Add(rec); err != nil {
			return fmt.Errorf("queue %s: %w", id, err)
		}
		if r.batch.Full() {
			if err := c.flush(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) skip(r *run, id celex.ID, err error) {
	if errors.Is(err, crawler.ErrExtractionMiss) {
		r.report.ExtractionMisses++
		metrics.ObserveDocument("miss")
		if c.cfg.MarkMissesSeen {
			r.misses = append(r.misses, id)
		}
		r.logger.Warn("extraction miss", zap.String("celex", id.String()), zap.Error(err))
		return
	}
	r.report.FetchFailures++
	metrics.ObserveDocument("fetch_error")
	r.logger.Warn("document fetch failed", zap.String("celex", id.String()), zap.Error(err))
}

// flush sends the pending batch with bounded retries. On success the batch's
// identifiers and any recorded misses join the seen set, which is then
// checkpointed.
func (c *Controller) flush(ctx context.Context, r *run) error {
	if r.batch.Len() == 0 {
		return nil
	}
	retry := crawler.NewExponentialRetryPolicy(c.cfg.SinkRetries, c.cfg.SinkBackoff, c.cfg.SinkBackoffMax)
	var result batcher.FlushResult
	attempts, err := crawler.Retry(ctx, retry, func(ctx context.Context) error {
		var flushErr error
		result, flushErr = r.batch.Flush(ctx)
		if flushErr != nil {
			metrics.ObserveBatch("failure", r.batch.Len())
			r.logger.Warn("batch flush attempt failed",
				zap.Int("records", r.batch.Len()), zap.Error(flushErr))
		}
		return flushErr
	})
	if err != nil {
		return fmt.Errorf("flush batch after %d attempt(s): %w", attempts, err)
	}

	metrics.ObserveBatch("success", len(result.Identifiers))
	r.report.BatchesFlushed++
	r.report.RecordsFlushed += len(result.Identifiers)
	r.report.Locations = append(r.report.Locations, result.Location)
	r.seen.Add(result.Identifiers...)
	r.logger.Info("batch flushed",
		zap.Int("sequence", r.report.BatchesFlushed),
		zap.Int("records", len(result.Identifiers)),
		zap.String("location", result.Location))

	c.checkpoint(ctx, r)
	c.notify(ctx, r, result)
	return nil
}

// checkpoint folds recorded misses into the seen set and persists it. Persist
// failures are counted and logged; the run continues.
func (c *Controller) checkpoint(ctx context.Context, r *run) {
	if len(r.misses) > 0 {
		r.seen.Add(r.misses...)
		r.misses = r.misses[:0]
	}
	r.report.SeenSize = len(r.seen)
	if err := c.store.Persist(ctx, r.seen); err != nil {
		r.report.PersistFailures++
		metrics.ObservePersistFailure()
		r.logger.Error("seen set checkpoint failed", zap.Int("identifiers", len(r.seen)), zap.Error(err))
		return
	}
	metrics.SetSeenSetSize(len(r.seen))
}

func (c *Controller) notify(ctx context.Context, r *run, result batcher.FlushResult) {
	if c.notifier == nil {
		return
	}
	ids := make([]string, len(result.Identifiers))
	for i, id := range result.Identifiers {
		ids[i] = id.String()
	}
	notice := crawler.BatchNotice{
		RunID:       r.report.RunID,
		Sequence:    r.report.BatchesFlushed,
		Identifiers: ids,
		Location:    result.Location,
		FlushedAt:   c.now(),
	}
	if err := c.notifier.Notify(ctx, notice); err != nil {
		r.logger.Warn("batch notification failed", zap.Int("sequence", notice.Sequence), zap.Error(err))
	}
}

// drain flushes the partial batch and writes the final checkpoint.
func (c *Controller) drain(ctx context.Context, r *run) error {
	if r.batch.Len() > 0 {
		return c.flush(ctx, r)
	}
	c.checkpoint(ctx, r)
	return nil
}
