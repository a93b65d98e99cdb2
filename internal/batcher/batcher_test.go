package batcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cjeu-harvester/internal/celex"
	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

// MockSink is a mock implementation of the crawler.Sink interface.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Append(ctx context.Context, records []crawler.CaseRecord) (string, error) {
	args := m.Called(ctx, records)
	return args.String(0), args.Error(1)
}

func record(n int) crawler.CaseRecord {
	id := celex.ID(fmt.Sprintf("62020CJ%04d", n))
	return crawler.CaseRecord{
		Identifier: id,
		URL:        "https://eur-lex.europa.eu/legal-content/NL/TXT/HTML/?uri=CELEX:" + id.String(),
		Content:    "content",
		Source:     "CJEU",
	}
}

func TestNewDefaultsMaxSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultMaxSize, New(nil, 0).MaxSize())
	assert.Equal(t, 5, New(nil, 5).MaxSize())
	assert.Equal(t, DefaultMaxSize, New(nil, 500).MaxSize())
}

func TestAddRefusesToExceedMax(t *testing.T) {
	t.Parallel()

	b := New(nil, 2)
	require.NoError(t, b.Add(record(1)))
	assert.False(t, b.Full())
	require.NoError(t, b.Add(record(2)))
	assert.True(t, b.Full())

	err := b.Add(record(3))
	require.ErrorIs(t, err, ErrFull)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []celex.ID{"62020CJ0001", "62020CJ0002"}, b.Pending())
}

func TestFlushEmptyIsNoop(t *testing.T) {
	t.Parallel()

	sink := new(MockSink)
	b := New(sink, 3)

	res, err := b.Flush(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Identifiers)
	sink.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestFlushSuccessClearsBatch(t *testing.T) {
	t.Parallel()

	sink := new(MockSink)
	b := New(sink, 3)
	require.NoError(t, b.Add(record(1)))
	require.NoError(t, b.Add(record(2)))

	sink.On("Append", mock.Anything, []crawler.CaseRecord{record(1), record(2)}).
		Return("file:///tmp/batch.jsonl", nil).Once()

	res, err := b.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []celex.ID{"62020CJ0001", "62020CJ0002"}, res.Identifiers)
	assert.Equal(t, "file:///tmp/batch.jsonl", res.Location)
	assert.Equal(t, 2, res.Records)
	assert.Zero(t, b.Len())
	sink.AssertExpectations(t)
}

func TestFlushFailureRetainsBatch(t *testing.T) {
	t.Parallel()

	sink := new(MockSink)
	b := New(sink, 3)
	require.NoError(t, b.Add(record(1)))

	boom := errors.New("dataset unavailable")
	sink.On("Append", mock.Anything, mock.Anything).Return("", boom).Once()

	_, err := b.Flush(context.Background())
	require.Error(t, err)
	var sinkErr *crawler.SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, 1, sinkErr.Records)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []celex.ID{"62020CJ0001"}, b.Pending())

	sink.On("Append", mock.Anything, []crawler.CaseRecord{record(1)}).Return("loc", nil).Once()
	res, err := b.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []celex.ID{"62020CJ0001"}, res.Identifiers)
	sink.AssertExpectations(t)
}

func TestFlushHandsSinkACopy(t *testing.T) {
	t.Parallel()

	sink := new(MockSink)
	b := New(sink, 2)
	require.NoError(t, b.Add(record(1)))

	sink.On("Append", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			recs := args.Get(1).([]crawler.CaseRecord)
			recs[0].Content = "mutated"
		}).
		Return("", errors.New("fail")).Once()

	_, err := b.Flush(context.Background())
	require.Error(t, err)
	require.NoError(t, b.Add(record(2)))

	sink.On("Append", mock.Anything, []crawler.CaseRecord{record(1), record(2)}).Return("loc", nil).Once()
	_, err = b.Flush(context.Background())
	require.NoError(t, err)
	sink.AssertExpectations(t)
}
