package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/cjeu-harvester/internal/celex"
	"github.com/JakeFAU/cjeu-harvester/internal/clock/system"
	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/document"
	"github.com/JakeFAU/cjeu-harvester/internal/seen"
	"github.com/JakeFAU/cjeu-harvester/internal/sink"
)

const (
	docTemplate = "https://eur-lex.test/NL/{celex}"
	indexURL    = "https://curia.test/c2_juris.htm"
)

// fakeWeb serves canned pages keyed by URL. Unknown URLs are 404s.
type fakeWeb struct {
	mu     sync.Mutex
	pages  map[string]string
	fail   map[string]int
	calls  map[string]int
	onCall func(url string)
}

func newFakeWeb() *fakeWeb {
	return &fakeWeb{
		pages: make(map[string]string),
		fail:  make(map[string]int),
		calls: make(map[string]int),
	}
}

func (w *fakeWeb) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	w.mu.Lock()
	w.calls[req.URL]++
	hook := w.onCall
	body, ok := w.pages[req.URL]
	status, failing := w.fail[req.URL]
	w.mu.Unlock()

	if hook != nil {
		hook(req.URL)
	}
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, err
	}
	if failing {
		return crawler.FetchResponse{}, &crawler.FetchError{URL: req.URL, StatusCode: status, Err: fmt.Errorf("status %d", status)}
	}
	if !ok {
		return crawler.FetchResponse{}, &crawler.FetchError{URL: req.URL, StatusCode: http.StatusNotFound, Err: fmt.Errorf("not found")}
	}
	return crawler.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Body:       []byte(body),
		Duration:   time.Millisecond,
	}, nil
}

func (w *fakeWeb) Calls(url string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[url]
}

func (w *fakeWeb) TotalCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, n := range w.calls {
		total += n
	}
	return total
}

func docURL(id celex.ID) string {
	return strings.ReplaceAll(docTemplate, "{celex}", id.String())
}

func caseID(year, serial int) celex.ID {
	return celex.ID(fmt.Sprintf("6%04dCJ%04d", year, serial))
}

func indexHTML(ids ...celex.ID) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<li><a href="https://eur-lex.europa.eu/legal-content/EN/TXT/?uri=CELEX:%s">%s</a></li>`, id, id)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func judgmentHTML(id celex.ID) string {
	return fmt.Sprintf(`<html><body><p>Arrest %s</p><h2>Trefwoorden</h2><p>Samenvatting van %s</p><h2>Dictum</h2><p>Het Hof verklaart</p></body></html>`, id, id)
}

// publish adds an index page listing ids plus a valid judgment for each.
func (w *fakeWeb) publish(pageURL string, ids ...celex.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pages[pageURL] = indexHTML(ids...)
	for _, id := range ids {
		w.pages[docURL(id)] = judgmentHTML(id)
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []crawler.BatchNotice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notice crawler.BatchNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

type staticIDs struct{}

func (staticIDs) NewID() (string, error) { return "run-test", nil }

type harness struct {
	web      *fakeWeb
	store    *seen.MemoryStore
	sink     *sink.MemorySink
	notifier *recordingNotifier
	cfg      Config
}

func newHarness(pages ...crawler.IndexPage) *harness {
	if len(pages) == 0 {
		pages = []crawler.IndexPage{{URL: indexURL, Sector: "C"}}
	}
	return &harness{
		web:      newFakeWeb(),
		store:    seen.NewMemoryStore(nil),
		sink:     sink.NewMemorySink(),
		notifier: &recordingNotifier{},
		cfg: Config{
			IndexPages:     pages,
			Cap:            DefaultCap,
			BatchSize:      DefaultBatchSize,
			SinkRetries:    3,
			SinkBackoff:    time.Millisecond,
			SinkBackoffMax: time.Millisecond,
			MarkMissesSeen: true,
		},
	}
}

func (h *harness) controller() *Controller {
	docs := document.New(document.Config{URLTemplate: docTemplate}, h.web, nil, nil, nil)
	return New(
		h.store,
		h.web,
		docs,
		h.sink,
		h.notifier,
		nil,
		nil,
		system.NewFixed(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)),
		staticIDs{},
		h.cfg,
		nil,
	)
}

func (h *harness) run(ctx context.Context) (Report, error) {
	return h.controller().Run(ctx)
}
