package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// State is a run controller phase.
type State string

// Run phases in the order a successful run visits them.
const (
	StateInit     State = "init"
	StateDiscover State = "discover"
	StateFilter   State = "filter_cap"
	StateProcess  State = "process"
	StateDrain    State = "drain"
	StateDone     State = "done"
	StateFail     State = "fail"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFail
}

// Report summarizes one run.
type Report struct {
	RunID  string
	State  State
	States []State

	IndexPages       int
	IndexFailures    int
	Discovered       int
	MalformedLinks   int
	AlreadySeen      int
	Deferred         int
	Queued           int
	Processed        int
	Extracted        int
	FetchFailures    int
	ExtractionMisses int
	BatchesFlushed   int
	RecordsFlushed   int
	PersistFailures  int
	SeenSize         int
	Locations        []string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Fields renders the report for structured logging.
func (r Report) Fields() []zap.Field {
	return []zap.Field{
		zap.String("run_id", r.RunID),
		zap.String("state", string(r.State)),
		zap.Int("index_pages", r.IndexPages),
		zap.Int("index_failures", r.IndexFailures),
		zap.Int("discovered", r.Discovered),
		zap.Int("malformed_links", r.MalformedLinks),
		zap.Int("already_seen", r.AlreadySeen),
		zap.Int("deferred", r.Deferred),
		zap.Int("queued", r.Queued),
		zap.Int("processed", r.Processed),
		zap.Int("extracted", r.Extracted),
		zap.Int("fetch_failures", r.FetchFailures),
		zap.Int("extraction_misses", r.ExtractionMisses),
		zap.Int("batches_flushed", r.BatchesFlushed),
		zap.Int("records_flushed", r.RecordsFlushed),
		zap.Int("persist_failures", r.PersistFailures),
		zap.Int("seen_size", r.SeenSize),
		zap.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)),
	}
}
