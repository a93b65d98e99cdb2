package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySinkUpsertsByShard(t *testing.T) {
	t.Parallel()

	s := NewMemorySink()
	loc, err := s.Append(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, "memory://"+shardName(sampleRecords()), loc)

	_, err = s.Append(context.Background(), sampleRecords())
	require.NoError(t, err)

	assert.Len(t, s.Batches(), 1)
	assert.Len(t, s.Records(), 2)
	assert.Equal(t, 2, s.Appends())
}

func TestMemorySinkFailNext(t *testing.T) {
	t.Parallel()

	s := NewMemorySink()
	boom := errors.New("boom")
	s.FailNext(boom, nil)

	_, err := s.Append(context.Background(), sampleRecords())
	require.ErrorIs(t, err, boom)

	_, err = s.Append(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Len(t, s.Batches(), 1)
}
