package seen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

// GCSConfig locates the seen-set object.
type GCSConfig struct {
	Bucket string
	Object string
}

// objectIO reads and conditionally replaces one object. generation 0 means
// the object does not exist.
type objectIO interface {
	Read(ctx context.Context) ([]byte, int64, error)
	Write(ctx context.Context, data []byte, generation int64) (int64, error)
}

var errObjectMissing = errors.New("object does not exist")

// GCSStore keeps the seen-set in a Cloud Storage object. Writes carry a
// generation precondition, so a concurrent run that replaced the object
// makes Persist fail instead of silently losing its identifiers.
type GCSStore struct {
	obj objectIO

	mu         sync.Mutex
	generation int64
}

// NewGCSStore creates a GCS-backed store.
func NewGCSStore(client *storage.Client, cfg GCSConfig) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &GCSStore{obj: &gcsObject{handle: client.Bucket(cfg.Bucket).Object(cfg.Object)}}, nil
}

// Load reads the object and remembers its generation for the next Persist.
func (s *GCSStore) Load(ctx context.Context) (Set, error) {
	data, gen, err := s.obj.Read(ctx)
	if errors.Is(err, errObjectMissing) {
		s.setGeneration(0)
		return NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrStorageRead, err)
	}
	set, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrStorageRead, err)
	}
	s.setGeneration(gen)
	return set, nil
}

// Persist uploads the set. Object uploads are atomic: readers observe either
// the previous or the new generation.
//
// A write can commit on the server and still report an error. Persist then
// re-reads the object and, if it holds exactly the bytes just written, adopts
// its generation so later writes keep passing the precondition.
func (s *GCSStore) Persist(ctx context.Context, set Set) error {
	data, err := encode(set)
	if err != nil {
		return fmt.Errorf("%w: %v", crawler.ErrStorageWrite, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, err := s.obj.Write(ctx, data, s.generation)
	if err != nil {
		if committed, ok := s.committedGeneration(ctx, data); ok {
			s.generation = committed
			return nil
		}
		return fmt.Errorf("%w: %v", crawler.ErrStorageWrite, err)
	}
	s.generation = gen
	return nil
}

func (s *GCSStore) committedGeneration(ctx context.Context, data []byte) (int64, bool) {
	stored, gen, err := s.obj.Read(ctx)
	if err != nil || !bytes.Equal(stored, data) {
		return 0, false
	}
	return gen, true
}

func (s *GCSStore) setGeneration(gen int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation = gen
}

type gcsObject struct {
	handle *storage.ObjectHandle
}

func (o *gcsObject) Read(ctx context.Context) ([]byte, int64, error) {
	r, err := o.handle.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, errObjectMissing
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read object: %w", err)
	}
	return data, r.Attrs.Generation, nil
}

func (o *gcsObject) Write(ctx context.Context, data []byte, generation int64) (int64, error) {
	cond := storage.Conditions{DoesNotExist: true}
	if generation > 0 {
		cond = storage.Conditions{GenerationMatch: generation}
	}
	writer := o.handle.If(cond).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return 0, fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return 0, fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("close writer: %w", err)
	}
	return writer.Attrs().Generation, nil
}
