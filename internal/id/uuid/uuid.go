// Package uuid generates run identifiers.
package uuid

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator creates UUID v7 run IDs. Their embedded timestamp orders runs
// chronologically in logs, notices and Pushgateway groupings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// StartedAt extracts the creation time embedded in a run ID.
func StartedAt(runID string) (time.Time, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run id: %w", err)
	}
	if id.Version() != 7 {
		return time.Time{}, fmt.Errorf("run id %s is version %d, want 7", runID, id.Version())
	}
	// The first 48 bits of a v7 UUID are Unix milliseconds.
	ms := int64(binary.BigEndian.Uint64(id[:8]) >> 16)
	return time.UnixMilli(ms).UTC(), nil
}
