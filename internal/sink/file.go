package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

// FileConfig captures the parameters for the local filesystem sink.
type FileConfig struct {
	// BaseDir is the root directory where shards will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// FileSink writes each batch as a JSONL shard on the local filesystem.
type FileSink struct {
	baseDir string
}

// NewFileSink creates a new local filesystem sink.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &FileSink{baseDir: cfg.BaseDir}, nil
}

// Append writes the batch to its shard via temp file and rename and returns a
// file:// URI.
func (s *FileSink) Append(ctx context.Context, records []crawler.CaseRecord) (string, error) {
	if err := validate(records); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	data, err := encodeJSONL(records)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.baseDir, shardName(records))
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write shard: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to publish shard: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}
