// Package document resolves a CELEX identifier to its EUR-Lex page and
// extracts the marker-delimited text span into a case record.
package document

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/cjeu-harvester/internal/celex"
	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/metrics"
)

// DefaultURLTemplate points at the Dutch HTML rendition of a document.
const DefaultURLTemplate = "https://eur-lex.europa.eu/legal-content/NL/TXT/HTML/?uri=CELEX:{celex}"

// Config controls URL construction and extraction.
type Config struct {
	URLTemplate string
	Markers     Markers
	Source      string
}

// Fetcher retrieves and extracts single documents.
type Fetcher struct {
	cfg     Config
	fetcher crawler.Fetcher
	limiter crawler.Limiter
	retry   crawler.RetryPolicy
	logger  *zap.Logger
}

// New constructs a Fetcher. limiter and retry may be nil.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	limiter crawler.Limiter,
	retry crawler.RetryPolicy,
	logger *zap.Logger,
) *Fetcher {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.Markers.Start == "" || cfg.Markers.End == "" {
		cfg.Markers = DefaultMarkers
	}
	if cfg.Source == "" {
		cfg.Source = "CJEU"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: limiter,
		retry:   retry,
		logger:  logger,
	}
}

// URL builds the canonical source URL for an identifier.
func (f *Fetcher) URL(id celex.ID) string {
	return strings.ReplaceAll(f.cfg.URLTemplate, "{celex}", id.String())
}

// Fetch retrieves the document for id and extracts its content. Transport
// failures are retried per the policy and then surface as *crawler.FetchError;
// a page without the markers yields crawler.ErrExtractionMiss.
func (f *Fetcher) Fetch(ctx context.Context, id celex.ID) (crawler.CaseRecord, error) {
	target := f.URL(id)
	var resp crawler.FetchResponse
	attempts, err := crawler.Retry(ctx, f.retry, func(ctx context.Context) error {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, target); err != nil {
				return err
			}
		}
		var fetchErr error
		resp, fetchErr = f.fetcher.Fetch(ctx, crawler.FetchRequest{URL: target})
		if fetchErr != nil {
			f.logger.Debug("document fetch attempt failed",
				zap.String("celex", id.String()), zap.Error(fetchErr))
		}
		return fetchErr
	})
	if err != nil {
		fe := asFetchError(target, attempts, err)
		status := "error"
		if fe.StatusCode != 0 {
			status = strconv.Itoa(fe.StatusCode)
		}
		metrics.ObservePage("document", target, status, 0, 0)
		return crawler.CaseRecord{}, fe
	}
	metrics.ObservePage("document", target, strconv.Itoa(resp.StatusCode), len(resp.Body), resp.Duration)

	text, err := TextContent(resp.Body)
	if err != nil {
		return crawler.CaseRecord{}, fmt.Errorf("%w: %v", crawler.ErrExtractionMiss, err)
	}
	content, err := Between(text, f.cfg.Markers)
	if err != nil {
		return crawler.CaseRecord{}, err
	}
	return crawler.CaseRecord{
		Identifier: id,
		URL:        target,
		Content:    content,
		Source:     f.cfg.Source,
	}, nil
}

func asFetchError(target string, attempts int, err error) *crawler.FetchError {
	var fe *crawler.FetchError
	if errors.As(err, &fe) {
		out := *fe
		out.URL = target
		out.Attempts = attempts
		return &out
	}
	return &crawler.FetchError{URL: target, Attempts: attempts, Err: err}
}
