package seen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

// FileStore keeps the seen-set in a local JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store, creating the parent directory when
// needed.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("seen file path is required")
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create seen directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat seen directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("seen directory path is not a directory")
	}
	return &FileStore{path: path}, nil
}

// Load reads the set; a missing file is the first run.
func (s *FileStore) Load(_ context.Context) (Set, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", crawler.ErrStorageRead, s.path, err)
	}
	set, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", crawler.ErrStorageRead, s.path, err)
	}
	return set, nil
}

// Persist writes to a temp file in the same directory, syncs it and renames
// it over the previous state.
func (s *FileStore) Persist(ctx context.Context, set Set) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", crawler.ErrStorageWrite, err)
	}
	data, err := encode(set)
	if err != nil {
		return fmt.Errorf("%w: %v", crawler.ErrStorageWrite, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", crawler.ErrStorageWrite, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp: %v", crawler.ErrStorageWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync temp: %v", crawler.ErrStorageWrite, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp: %v", crawler.ErrStorageWrite, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename: %v", crawler.ErrStorageWrite, err)
	}
	return nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}
