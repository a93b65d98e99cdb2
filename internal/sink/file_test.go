package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

func sampleRecords() []crawler.CaseRecord {
	return []crawler.CaseRecord{
		{
			Identifier: "62020CJ0123",
			URL:        "https://eur-lex.europa.eu/legal-content/NL/TXT/HTML/?uri=CELEX:62020CJ0123",
			Content:    "Trefwoorden\nprejudiciële verwijzing <art. 267>\nDictum",
			Source:     "CJEU",
		},
		{
			Identifier: "62021CJ0456",
			URL:        "https://eur-lex.europa.eu/legal-content/NL/TXT/HTML/?uri=CELEX:62021CJ0456",
			Content:    "Trefwoorden\nvrij verkeer\nDictum",
			Source:     "CJEU",
		},
	}
}

func TestShardNameIsOrderIndependent(t *testing.T) {
	t.Parallel()

	recs := sampleRecords()
	reversed := []crawler.CaseRecord{recs[1], recs[0]}

	name := shardName(recs)
	assert.Equal(t, name, shardName(reversed))
	assert.True(t, strings.HasPrefix(name, "batch-"))
	assert.True(t, strings.HasSuffix(name, ".jsonl"))
	assert.NotEqual(t, name, shardName(recs[:1]))
}

func TestEncodeJSONLColumns(t *testing.T) {
	t.Parallel()

	data, err := encodeJSONL(sampleRecords())
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)

	var row map[string]string
	require.NoError(t, json.Unmarshal(lines[0], &row))
	assert.Len(t, row, 3)
	assert.Equal(t, "CJEU", row["Source"])
	assert.Contains(t, row["URL"], "62020CJ0123")
	assert.Contains(t, row["Content"], "<art. 267>")
	assert.Contains(t, string(lines[0]), "<art. 267>")
}

func TestValidateRejectsBadBatches(t *testing.T) {
	t.Parallel()

	require.Error(t, validate(nil))
	require.Error(t, validate([]crawler.CaseRecord{{Identifier: "62020CJ0123"}}))
	require.NoError(t, validate(sampleRecords()))
}

func TestNewFileSinkValidation(t *testing.T) {
	t.Parallel()

	_, err := NewFileSink(FileConfig{BaseDir: "  "})
	require.Error(t, err)

	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = NewFileSink(FileConfig{BaseDir: file})
	require.Error(t, err)

	nested := filepath.Join(dir, "a", "b")
	s, err := NewFileSink(FileConfig{BaseDir: nested})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.DirExists(t, nested)
}

func TestFileSinkAppendIsUpsert(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileSink(FileConfig{BaseDir: dir})
	require.NoError(t, err)

	loc, err := s.Append(context.Background(), sampleRecords())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(loc, "file://"))

	again, err := s.Append(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, loc, again)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(strings.TrimPrefix(loc, "file://"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		count++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 2, count)
}

func TestFileSinkAppendHonorsContext(t *testing.T) {
	t.Parallel()

	s, err := NewFileSink(FileConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Append(ctx, sampleRecords())
	require.ErrorIs(t, err, context.Canceled)
}
