package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cjeu-harvester/internal/celex"
	"github.com/JakeFAU/cjeu-harvester/internal/clock/system"
	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/document"
	collyfetcher "github.com/JakeFAU/cjeu-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/cjeu-harvester/internal/id/uuid"
	"github.com/JakeFAU/cjeu-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/cjeu-harvester/internal/seen"
	"github.com/JakeFAU/cjeu-harvester/internal/sink"
)

const e2eIndex = `<html><body>
<a href="/NL/TXT/HTML/?uri=CELEX:62020CJ0123">C-123/20</a>
<a href="https://eur-lex.europa.eu/legal-content/EN/TXT/?CELEX=62021CJ0456">C-456/21</a>
<a href="javascript:openDoc('numdoc=789000')">C-789/20</a>
<a href="javascript:openDoc('numdoc=12')">malformed</a>
<a href="/about.htm">about</a>
</body></html>`

func newCuriaServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/c2_juris.htm", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, e2eIndex)
	})
	mux.HandleFunc("/NL/TXT/HTML/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Query().Get("uri"), "CELEX:")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><head><title>%s</title><script>var Dictum = 1;</script></head><body>
<div class="header">Arrest van het Hof</div>
<p class="title">Trefwoorden</p>
<p>Prejudiciële verwijzing in zaak %s</p>
<p class="title">Dictum</p>
<p>Het Hof verklaart voor recht</p>
</body></html>`, id, id)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestEndToEndHarvest(t *testing.T) {
	t.Parallel()

	server := newCuriaServer(t)
	dir := t.TempDir()

	store, err := seen.NewFileStore(filepath.Join(dir, "processed_celex_numbers.json"))
	require.NoError(t, err)
	out, err := sink.NewFileSink(sink.FileConfig{BaseDir: filepath.Join(dir, "dataset")})
	require.NoError(t, err)

	pages := collyfetcher.New(collyfetcher.Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	limiter := ratelimit.New(ratelimit.Config{})
	retry := crawler.NewExponentialRetryPolicy(2, time.Millisecond, time.Millisecond)
	docs := document.New(document.Config{
		URLTemplate: server.URL + "/NL/TXT/HTML/?uri=CELEX:{celex}",
	}, pages, limiter, retry, nil)

	controller := New(store, pages, docs, out, nil, limiter, retry,
		system.NewFixed(time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC)),
		uuid.New(),
		Config{
			IndexPages:     []crawler.IndexPage{{URL: server.URL + "/c2_juris.htm", Sector: "C"}},
			SinkBackoff:    time.Millisecond,
			MarkMissesSeen: true,
		}, nil)

	report, err := controller.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, 3, report.Discovered)
	assert.Equal(t, 1, report.MalformedLinks)
	assert.Equal(t, 1, report.BatchesFlushed)
	assert.Equal(t, 3, report.RecordsFlushed)

	set, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []celex.ID{"62020CJ0123", "62020CJ0789", "62021CJ0456"}, set.Sorted())

	require.Len(t, report.Locations, 1)
	f, err := os.Open(strings.TrimPrefix(report.Locations[0], "file://"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"URL":"`+server.URL+`/NL/TXT/HTML/?uri=CELEX:62020CJ0123"`)
	assert.Contains(t, lines[0], `"Content":"Prejudiciële verwijzing in zaak 62020CJ0123"`)
	assert.Contains(t, lines[0], `"Source":"CJEU"`)

	again, err := controller.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, again.AlreadySeen)
	assert.Zero(t, again.BatchesFlushed)
}
