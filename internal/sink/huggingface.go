package sink

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/hash/sha256"
)

// DefaultHubEndpoint is the public Hugging Face Hub.
const DefaultHubEndpoint = "https://huggingface.co"

// HuggingFaceConfig identifies the dataset repository that receives shards.
type HuggingFaceConfig struct {
	Repo     string
	Revision string
	Token    string
	Endpoint string
	// Dir is the path inside the repository where shards are committed.
	Dir     string
	Timeout time.Duration
}

// HuggingFaceSink commits each batch as a JSONL file to a Hub dataset
// repository. Committing the same shard path again replaces its content.
type HuggingFaceSink struct {
	client   *http.Client
	endpoint string
	repo     string
	revision string
	token    string
	dir      string
}

// TokenFromEnv returns the Hub token from the environment variables the
// Hugging Face tooling reads.
func TokenFromEnv() string {
	for _, key := range []string{"HF_TOKEN", "HUGGING_FACE_HUB_TOKEN"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// NewHuggingFaceSink validates cfg and returns a sink. A nil client selects a
// client with cfg.Timeout.
func NewHuggingFaceSink(client *http.Client, cfg HuggingFaceConfig) (*HuggingFaceSink, error) {
	if strings.Count(cfg.Repo, "/") != 1 {
		return nil, fmt.Errorf("huggingface repo must be <owner>/<name>, got %q", cfg.Repo)
	}
	token := cfg.Token
	if token == "" {
		token = TokenFromEnv()
	}
	if token == "" {
		return nil, fmt.Errorf("huggingface token is required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultHubEndpoint
	}
	revision := cfg.Revision
	if revision == "" {
		revision = "main"
	}
	dir := strings.Trim(cfg.Dir, "/")
	if dir == "" {
		dir = "data"
	}
	return &HuggingFaceSink{
		client:   client,
		endpoint: endpoint,
		repo:     cfg.Repo,
		revision: revision,
		token:    token,
		dir:      dir,
	}, nil
}

type commitOperation struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type commitHeader struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

type commitFile struct {
	Content  string `json:"content"`
	Path     string `json:"path"`
	Encoding string `json:"encoding"`
}

type commitResponse struct {
	CommitURL string `json:"commitUrl"`
	CommitOID string `json:"commitOid"`
}

// Append commits the batch shard and returns the commit URL, or an hf:// URI
// for the file when the Hub does not report one.
func (s *HuggingFaceSink) Append(ctx context.Context, records []crawler.CaseRecord) (string, error) {
	if err := validate(records); err != nil {
		return "", err
	}
	data, err := encodeJSONL(records)
	if err != nil {
		return "", err
	}
	filePath := path.Join(s.dir, shardName(records))

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	ops := []commitOperation{
		{Key: "header", Value: commitHeader{
			Summary:     fmt.Sprintf("Add %d case records", len(records)),
			Description: "sha256:" + sha256.Hash(data),
		}},
		{Key: "file", Value: commitFile{
			Content:  base64.StdEncoding.EncodeToString(data),
			Path:     filePath,
			Encoding: "base64",
		}},
	}
	for _, op := range ops {
		if err := enc.Encode(op); err != nil {
			return "", fmt.Errorf("encode commit: %w", err)
		}
	}

	url := fmt.Sprintf("%s/api/datasets/%s/commit/%s", s.endpoint, s.repo, s.revision)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("build commit request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("commit to %s: %w", s.repo, err)
	}
	defer func() { _ = resp.Body.Close() }()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("commit to %s: status %d: %s", s.repo, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var out commitResponse
	if err := json.Unmarshal(payload, &out); err == nil && out.CommitURL != "" {
		return out.CommitURL, nil
	}
	return fmt.Sprintf("hf://datasets/%s/%s", s.repo, filePath), nil
}
