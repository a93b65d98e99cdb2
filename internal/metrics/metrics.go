// Package metrics exposes Prometheus collectors for harvest runs. A run is a
// short-lived batch job, so collectors live on a dedicated registry that is
// pushed to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Registry holds every harvester collector.
	Registry *prometheus.Registry

	harvesterPagesTotal              *prometheus.CounterVec
	harvesterBytesTotal              *prometheus.CounterVec
	harvesterFetchDurationSeconds    *prometheus.HistogramVec
	harvesterDocumentsTotal          *prometheus.CounterVec
	harvesterIdentifiersTotal        *prometheus.CounterVec
	harvesterBatchesTotal            *prometheus.CounterVec
	harvesterRecordsFlushedTotal     prometheus.Counter
	harvesterSeenSetSize             prometheus.Gauge
	harvesterRunState                *prometheus.GaugeVec
	harvesterLastRunTimestamp        prometheus.Gauge
	harvesterRateLimitDelaysSeconds  *prometheus.HistogramVec
	harvesterSeenPersistFailureTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		Registry = prometheus.NewRegistry()
		factory := promauto.With(Registry)

		harvesterPagesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		harvesterBytesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		harvesterFetchDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by page kind.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		)

		harvesterDocumentsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_documents_total",
				Help: "Documents processed, labeled by outcome (extracted, miss, fetch_error).",
			},
			[]string{"outcome"},
		)

		harvesterIdentifiersTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_identifiers_total",
				Help: "Identifiers seen during discovery, labeled by stage (discovered, already_seen, deferred, queued).",
			},
			[]string{"stage"},
		)

		harvesterBatchesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_batches_total",
				Help: "Batch flush attempts, labeled by status.",
			},
			[]string{"status"},
		)

		harvesterRecordsFlushedTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_records_flushed_total",
				Help: "Total number of case records accepted by the sink.",
			},
		)

		harvesterSeenSetSize = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_seen_set_size",
				Help: "Number of identifiers in the seen set after the last checkpoint.",
			},
		)

		harvesterRunState = factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvester_run_state",
				Help: "1 for the state the run is currently in, 0 otherwise.",
			},
			[]string{"state"},
		)

		harvesterLastRunTimestamp = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_last_run_timestamp_seconds",
				Help: "Unix time the last run reached a terminal state.",
			},
		)

		harvesterRateLimitDelaysSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		harvesterSeenPersistFailureTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_seen_persist_failures_total",
				Help: "Seen-set checkpoints that could not be written.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObservePage records one page fetch. kind is "index" or "document".
func ObservePage(kind, rawURL, status string, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	harvesterPagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		harvesterBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	if duration > 0 {
		harvesterFetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObserveDocument counts one processed identifier by outcome.
func ObserveDocument(outcome string) {
	Init()
	harvesterDocumentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveIdentifiers adds n identifiers to the given discovery stage.
func ObserveIdentifiers(stage string, n int) {
	Init()
	if n > 0 {
		harvesterIdentifiersTotal.WithLabelValues(stage).Add(float64(n))
	}
}

// ObserveBatch records a flush attempt and, on success, its record count.
func ObserveBatch(status string, records int) {
	Init()
	harvesterBatchesTotal.WithLabelValues(status).Inc()
	if status == "success" && records > 0 {
		harvesterRecordsFlushedTotal.Add(float64(records))
	}
}

// SetSeenSetSize records the seen-set cardinality after a checkpoint.
func SetSeenSetSize(n int) {
	Init()
	harvesterSeenSetSize.Set(float64(n))
}

// ObservePersistFailure counts a failed seen-set checkpoint.
func ObservePersistFailure() {
	Init()
	harvesterSeenPersistFailureTotal.Inc()
}

// SetRunState marks state as the current one. terminal also stamps the last
// run timestamp.
func SetRunState(state string, terminal bool, now time.Time) {
	Init()
	harvesterRunState.Reset()
	harvesterRunState.WithLabelValues(state).Set(1)
	if terminal {
		harvesterLastRunTimestamp.Set(float64(now.Unix()))
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	harvesterRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// Push sends the registry to a Pushgateway, grouped by run ID.
func Push(ctx context.Context, gatewayURL, job, runID string) error {
	Init()
	if gatewayURL == "" {
		return nil
	}
	if job == "" {
		job = "cjeu_harvester"
	}
	pusher := push.New(gatewayURL, job).Gatherer(Registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
