package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

// MemorySink keeps batches in memory, keyed by shard name like the file sink.
// Used for dry runs and tests.
type MemorySink struct {
	mu       sync.Mutex
	shards   map[string][]crawler.CaseRecord
	order    []string
	appends  int
	failures []error
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{shards: make(map[string][]crawler.CaseRecord)}
}

// FailNext queues errors returned by the next Append calls, one per call.
func (s *MemorySink) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Append stores a copy of the batch.
func (s *MemorySink) Append(_ context.Context, records []crawler.CaseRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		if err != nil {
			return "", err
		}
	}
	if err := validate(records); err != nil {
		return "", err
	}
	name := shardName(records)
	if _, ok := s.shards[name]; !ok {
		s.order = append(s.order, name)
	}
	s.shards[name] = append([]crawler.CaseRecord(nil), records...)
	return fmt.Sprintf("memory://%s", name), nil
}

// Batches returns the stored batches in first-write order.
func (s *MemorySink) Batches() [][]crawler.CaseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]crawler.CaseRecord, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, append([]crawler.CaseRecord(nil), s.shards[name]...))
	}
	return out
}

// Records returns every stored record across batches.
func (s *MemorySink) Records() []crawler.CaseRecord {
	var out []crawler.CaseRecord
	for _, batch := range s.Batches() {
		out = append(out, batch...)
	}
	return out
}

// Appends reports how many Append calls were made, failed ones included.
func (s *MemorySink) Appends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}
