package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/cjeu-harvester/internal/celex"
	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/metrics"
)

// ErrNoIndexPages is returned when every attempted index page failed.
var ErrNoIndexPages = errors.New("no index page could be fetched")

// discover returns the union of identifiers across every configured index
// page in page order then in-page order. Every page is scanned on every run so
// identifiers deferred by the cap are found again later.
func (c *Controller) discover(ctx context.Context, r *run) ([]celex.ID, error) {
	year := c.now().Year()

	var (
		ids       []celex.ID
		known     = make(map[celex.ID]struct{})
		attempted int
		lastErr   error
	)
	for _, page := range c.cfg.IndexPages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("discover: %w", err)
		}
		attempted++
		found, err := c.scanPage(ctx, r, page, year)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("discover: %w", ctx.Err())
			}
			r.report.IndexFailures++
			lastErr = err
			r.logger.Warn("index page failed", zap.String("url", page.URL), zap.Error(err))
			continue
		}
		for _, id := range found {
			if _, dup := known[id]; dup {
				continue
			}
			known[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	r.report.IndexPages = attempted
	r.report.Discovered = len(ids)
	metrics.ObserveIdentifiers("discovered", len(ids))

	if attempted > 0 && r.report.IndexFailures == attempted {
		return nil, fmt.Errorf("%w: %d page(s), last error: %v", ErrNoIndexPages, attempted, lastErr)
	}
	r.logger.Info("discovery complete",
		zap.Int("pages", attempted),
		zap.Int("failed_pages", r.report.IndexFailures),
		zap.Int("identifiers", len(ids)),
		zap.Int("malformed_links", r.report.MalformedLinks))
	return ids, nil
}

func (c *Controller) scanPage(ctx context.Context, r *run, page crawler.IndexPage, year int) ([]celex.ID, error) {
	var resp crawler.FetchResponse
	attempts, err := crawler.Retry(ctx, c.retry, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, page.URL); err != nil {
				return err
			}
		}
		var fetchErr error
		resp, fetchErr = c.pages.Fetch(ctx, crawler.FetchRequest{URL: page.URL})
		return fetchErr
	})
	if err != nil {
		status := "error"
		var fe *crawler.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			status = strconv.Itoa(fe.StatusCode)
		}
		metrics.ObservePage("index", page.URL, status, 0, 0)
		if fe != nil {
			out := *fe
			out.URL = page.URL
			out.Attempts = attempts
			return nil, &out
		}
		return nil, &crawler.FetchError{URL: page.URL, Attempts: attempts, Err: err}
	}
	metrics.ObservePage("index", page.URL, strconv.Itoa(resp.StatusCode), len(resp.Body), resp.Duration)

	pageYear := page.Year
	if pageYear == 0 {
		pageYear = year
	}
	base := resp.URL
	if base == "" {
		base = page.URL
	}
	extraction, err := celex.Extract(bytes.NewReader(resp.Body), base, celex.Context{
		Sector: page.Sector,
		Year:   pageYear,
	})
	if err != nil {
		return nil, fmt.Errorf("extract identifiers from %s: %w", page.URL, err)
	}
	r.report.MalformedLinks += extraction.Malformed
	r.logger.Debug("index page scanned",
		zap.String("url", page.URL),
		zap.Int("identifiers", len(extraction.IDs)),
		zap.Int("malformed", extraction.Malformed))
	return extraction.IDs, nil
}

// filterCap drops identifiers already in the seen set and truncates the rest
// to the configured cap, keeping discovery order.
func (c *Controller) filterCap(r *run, discovered []celex.ID) []celex.ID {
	queue := make([]celex.ID, 0, len(discovered))
	for _, id := range discovered {
		if r.seen.Has(id) {
			r.report.AlreadySeen++
			continue
		}
		queue = append(queue, id)
	}
	if len(queue) > c.cfg.Cap {
		r.report.Deferred = len(queue) - c.cfg.Cap
		queue = queue[:c.cfg.Cap]
	}
	r.report.Queued = len(queue)
	metrics.ObserveIdentifiers("already_seen", r.report.AlreadySeen)
	metrics.ObserveIdentifiers("deferred", r.report.Deferred)
	metrics.ObserveIdentifiers("queued", r.report.Queued)
	r.logger.Info("identifiers queued",
		zap.Int("queued", r.report.Queued),
		zap.Int("already_seen", r.report.AlreadySeen),
		zap.Int("deferred", r.report.Deferred))
	return queue
}
