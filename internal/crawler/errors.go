package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageRead marks unreadable or corrupt seen-set state. Fatal for a run.
	ErrStorageRead = errors.New("seen-set storage read failed")
	// ErrStorageWrite marks a failed seen-set persist. Surfaced, never fatal.
	ErrStorageWrite = errors.New("seen-set storage write failed")
	// ErrExtractionMiss marks a document whose marker phrases were not found.
	ErrExtractionMiss = errors.New("extraction markers not found")
)

// FetchError wraps a network or HTTP failure for a single URL.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SinkError wraps a failed batch append.
type SinkError struct {
	Records int
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink append of %d record(s): %v", e.Records, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
