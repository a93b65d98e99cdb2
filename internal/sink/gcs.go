package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/hash/sha256"
)

// GCSConfig captures the parameters required to write shards to GCS.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSSink writes each batch as a JSONL object in a bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates a GCS-backed sink.
func NewGCSSink(client *storage.Client, cfg GCSConfig) (*GCSSink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Append uploads the batch shard and returns a gs:// URI. The object upload
// is atomic, so a batch is either fully visible or absent.
func (s *GCSSink) Append(ctx context.Context, records []crawler.CaseRecord) (string, error) {
	if err := validate(records); err != nil {
		return "", err
	}
	data, err := encodeJSONL(records)
	if err != nil {
		return "", err
	}
	name := path.Join(s.prefix, shardName(records))
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/x-ndjson"
	writer.Metadata = map[string]string{
		"records": strconv.Itoa(len(records)),
		"sha256":  sha256.Hash(data),
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}
