// Package batcher accumulates case records and flushes them to the dataset
// sink in bounded batches.
package batcher

import (
	"context"
	"errors"

	"github.com/JakeFAU/cjeu-harvester/internal/celex"
	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

// DefaultMaxSize is the batch size used when none is configured. It is also
// the largest batch a Batcher will hold.
const DefaultMaxSize = 100

// ErrFull is returned by Add when the batch already holds MaxSize records.
var ErrFull = errors.New("batch is full")

// FlushResult describes a batch accepted by the sink.
type FlushResult struct {
	Identifiers []celex.ID
	Location    string
	Records     int
}

// Batcher owns the records between extraction and flush. It is not safe for
// concurrent use.
type Batcher struct {
	sink    crawler.Sink
	maxSize int
	records []crawler.CaseRecord
}

// New returns a Batcher writing to sink. A maxSize outside 1..DefaultMaxSize
// selects DefaultMaxSize.
func New(sink crawler.Sink, maxSize int) *Batcher {
	if maxSize <= 0 || maxSize > DefaultMaxSize {
		maxSize = DefaultMaxSize
	}
	return &Batcher{
		sink:    sink,
		maxSize: maxSize,
		records: make([]crawler.CaseRecord, 0, maxSize),
	}
}

// MaxSize reports the configured batch bound.
func (b *Batcher) MaxSize() int { return b.maxSize }

// Len reports the number of pending records.
func (b *Batcher) Len() int { return len(b.records) }

// Full reports whether the batch reached its bound.
func (b *Batcher) Full() bool { return len(b.records) >= b.maxSize }

// Pending returns the identifiers of the pending records in insertion order.
func (b *Batcher) Pending() []celex.ID {
	ids := make([]celex.ID, len(b.records))
	for i, rec := range b.records {
		ids[i] = rec.Identifier
	}
	return ids
}

// Add appends rec to the batch.
func (b *Batcher) Add(rec crawler.CaseRecord) error {
	if b.Full() {
		return ErrFull
	}
	b.records = append(b.records, rec)
	return nil
}

// Flush sends the pending records to the sink as one append. On failure the
// batch is kept unchanged and the error is a *crawler.SinkError.
func (b *Batcher) Flush(ctx context.Context) (FlushResult, error) {
	if len(b.records) == 0 {
		return FlushResult{}, nil
	}
	batch := make([]crawler.CaseRecord, len(b.records))
	copy(batch, b.records)

	location, err := b.sink.Append(ctx, batch)
	if err != nil {
		return FlushResult{}, &crawler.SinkError{Records: len(batch), Err: err}
	}
	result := FlushResult{
		Identifiers: b.Pending(),
		Location:    location,
		Records:     len(batch),
	}
	b.records = b.records[:0]
	return result, nil
}
