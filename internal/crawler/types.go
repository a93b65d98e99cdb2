package crawler

import (
	"net/http"
	"time"

	"github.com/JakeFAU/cjeu-harvester/internal/celex"
)

// IndexPage is one listing page enumerating links to case documents.
type IndexPage struct {
	URL string `mapstructure:"url" json:"url"`
	// Sector is the court letter used to expand numdoc links (C, T or F).
	Sector string `mapstructure:"sector" json:"sector"`
	// Year is the year context for numdoc links; zero means the current year.
	Year int `mapstructure:"year" json:"year"`
}

// CaseRecord is one extracted document ready for the dataset sink.
type CaseRecord struct {
	Identifier celex.ID `json:"-"`
	URL        string   `json:"URL"`
	Content    string   `json:"Content"`
	Source     string   `json:"Source"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// BatchNotice announces a batch that reached the sink.
type BatchNotice struct {
	RunID       string    `json:"run_id"`
	Sequence    int       `json:"sequence"`
	Identifiers []string  `json:"identifiers"`
	Location    string    `json:"location"`
	FlushedAt   time.Time `json:"flushed_at"`
}
