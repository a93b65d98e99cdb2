// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

// Seen-set and sink backend names.
const (
	BackendFile        = "file"
	BackendGCS         = "gcs"
	BackendMemory      = "memory"
	BackendPostgres    = "postgres"
	BackendHuggingFace = "huggingface"
)

// Upper bounds on the per-run pipeline knobs.
const (
	MaxCap       = 250
	MaxBatchSize = 100
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Index    IndexConfig    `mapstructure:"index"`
	Document DocumentConfig `mapstructure:"document"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Seen     SeenConfig     `mapstructure:"seen"`
	Sink     SinkConfig     `mapstructure:"sink"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures page fetching, retries and politeness.
type HTTPConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	RequestDelayMs   int    `mapstructure:"request_delay_ms"`
	RespectRobots    bool   `mapstructure:"respect_robots"`
	MaxBodyBytes     int    `mapstructure:"max_body_bytes"`
}

// IndexConfig lists the listing pages scanned for identifiers.
type IndexConfig struct {
	Pages []crawler.IndexPage `mapstructure:"pages"`
}

// DocumentConfig controls how case documents are located and cut.
type DocumentConfig struct {
	URLTemplate string `mapstructure:"url_template"`
	StartMarker string `mapstructure:"start_marker"`
	EndMarker   string `mapstructure:"end_marker"`
	Source      string `mapstructure:"source"`
}

// PipelineConfig bounds a single run.
type PipelineConfig struct {
	Cap            int  `mapstructure:"cap"`
	BatchSize      int  `mapstructure:"batch_size"`
	SinkRetries    int  `mapstructure:"sink_retries"`
	MarkMissesSeen bool `mapstructure:"mark_misses_seen"`
}

// SeenConfig selects where the seen set is persisted.
type SeenConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSObject string `mapstructure:"gcs_object"`
}

// SinkConfig selects and configures the dataset sink.
type SinkConfig struct {
	Backend     string            `mapstructure:"backend"`
	Dir         string            `mapstructure:"dir"`
	GCSBucket   string            `mapstructure:"gcs_bucket"`
	GCSPrefix   string            `mapstructure:"gcs_prefix"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	HuggingFace HuggingFaceConfig `mapstructure:"huggingface"`
}

// PostgresConfig controls access to the relational sink.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// HuggingFaceConfig identifies the Hub dataset repository.
type HuggingFaceConfig struct {
	Repo     string `mapstructure:"repo"`
	Revision string `mapstructure:"revision"`
	Token    string `mapstructure:"token"`
	Endpoint string `mapstructure:"endpoint"`
	Dir      string `mapstructure:"dir"`
}

// PubSubConfig holds metadata for batch notifications. Empty topic disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig points at an optional Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// DefaultIndexPages are the Curia listing pages crawled when none are configured.
func DefaultIndexPages() []crawler.IndexPage {
	return []crawler.IndexPage{
		{URL: "https://curia.europa.eu/en/content/juris/c2_juris.htm", Sector: "C"},
		{URL: "https://curia.europa.eu/en/content/juris/t2_juris.htm", Sector: "T"},
		{URL: "https://curia.europa.eu/en/content/juris/c1_juris.htm", Sector: "C"},
		{URL: "https://curia.europa.eu/en/content/juris/f1_juris.htm", Sector: "F"},
	}
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CELEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Index.Pages) == 0 {
		cfg.Index.Pages = DefaultIndexPages()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; cjeu-harvester/0.1)")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.request_delay_ms", 1000)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_body_bytes", 20<<20)
	v.SetDefault("document.url_template", "https://eur-lex.europa.eu/legal-content/NL/TXT/HTML/?uri=CELEX:{celex}")
	v.SetDefault("document.start_marker", "Trefwoorden")
	v.SetDefault("document.end_marker", "Dictum")
	v.SetDefault("document.source", "CJEU")
	v.SetDefault("pipeline.cap", MaxCap)
	v.SetDefault("pipeline.batch_size", MaxBatchSize)
	v.SetDefault("pipeline.sink_retries", 3)
	v.SetDefault("pipeline.mark_misses_seen", true)
	v.SetDefault("seen.backend", BackendFile)
	v.SetDefault("seen.path", "processed_celex_numbers.json")
	v.SetDefault("seen.gcs_object", "processed_celex_numbers.json")
	v.SetDefault("sink.backend", BackendFile)
	v.SetDefault("sink.dir", "dataset")
	v.SetDefault("sink.gcs_prefix", "cjeu")
	v.SetDefault("sink.postgres.table", "cjeu_cases")
	v.SetDefault("sink.postgres.max_open_conns", 4)
	v.SetDefault("sink.huggingface.repo", "vGassen/CJEU-Curia-Dutch-Court-Cases")
	v.SetDefault("sink.huggingface.revision", "main")
	v.SetDefault("sink.huggingface.endpoint", "https://huggingface.co")
	v.SetDefault("sink.huggingface.dir", "data")
	v.SetDefault("metrics.job_name", "cjeu_harvester")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.HTTP.RequestDelayMs < 0 {
		return fmt.Errorf("http.request_delay_ms must be >= 0")
	}
	if c.Pipeline.Cap <= 0 || c.Pipeline.Cap > MaxCap {
		return fmt.Errorf("pipeline.cap must be between 1 and %d", MaxCap)
	}
	if c.Pipeline.BatchSize <= 0 || c.Pipeline.BatchSize > MaxBatchSize {
		return fmt.Errorf("pipeline.batch_size must be between 1 and %d", MaxBatchSize)
	}
	if c.Pipeline.SinkRetries <= 0 {
		return fmt.Errorf("pipeline.sink_retries must be > 0")
	}
	if !strings.Contains(c.Document.URLTemplate, "{celex}") {
		return fmt.Errorf("document.url_template must contain {celex}")
	}
	if c.Document.StartMarker == "" || c.Document.EndMarker == "" {
		return fmt.Errorf("document markers must be set")
	}
	for i, page := range c.Index.Pages {
		if page.URL == "" {
			return fmt.Errorf("index.pages[%d].url is required", i)
		}
		if page.Sector == "" {
			return fmt.Errorf("index.pages[%d].sector is required", i)
		}
	}

	switch c.Seen.Backend {
	case BackendFile:
		if c.Seen.Path == "" {
			return fmt.Errorf("seen.path must be set for the file backend")
		}
	case BackendGCS:
		if c.Seen.GCSBucket == "" || c.Seen.GCSObject == "" {
			return fmt.Errorf("seen.gcs_bucket and seen.gcs_object must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown seen.backend %q", c.Seen.Backend)
	}

	switch c.Sink.Backend {
	case BackendFile:
		if c.Sink.Dir == "" {
			return fmt.Errorf("sink.dir must be set for the file backend")
		}
	case BackendGCS:
		if c.Sink.GCSBucket == "" {
			return fmt.Errorf("sink.gcs_bucket must be set for the gcs backend")
		}
	case BackendPostgres:
		if c.Sink.Postgres.DSN == "" {
			return fmt.Errorf("sink.postgres.dsn must be set for the postgres backend")
		}
	case BackendHuggingFace:
		if c.Sink.HuggingFace.Repo == "" {
			return fmt.Errorf("sink.huggingface.repo must be set for the huggingface backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown sink.backend %q", c.Sink.Backend)
	}

	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// Timeout converts the HTTP timeout into a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial retry backoff into a duration.
func (c HTTPConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the retry backoff ceiling into a duration.
func (c HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// RequestDelay converts the politeness delay into a duration.
func (c HTTPConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}
