package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Sink appends a batch of records to the external dataset as one logical
// operation. Implementations must behave as an upsert so a re-sent batch does
// not create duplicates. The returned string locates the written batch.
type Sink interface {
	Append(ctx context.Context, records []CaseRecord) (string, error)
}

// Notifier announces flushed batches to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, notice BatchNotice) error
}

// Limiter paces outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// RetryPolicy decides whether and when a failed operation is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
