package celex

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var numdocPattern = regexp.MustCompile(`(?i)(?:^|[?&'"\s(,;])numdoc=([^&'"\s),;]+)`)

// Extraction is the outcome of scanning one index page.
type Extraction struct {
	// IDs are the distinct identifiers in first-seen order.
	IDs []ID
	// Malformed counts links that looked like case links but did not parse.
	Malformed int
}

// Extract scans every hyperlink of an index page and returns the CELEX
// identifiers it references. Hrefs are resolved against baseURL. Links that
// carry neither a CELEX parameter nor a numdoc parameter are ignored.
func Extract(r io.Reader, baseURL string, pageCtx Context) (Extraction, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return Extraction{}, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Extraction{}, fmt.Errorf("parse index html: %w", err)
	}

	var out Extraction
	seen := make(map[ID]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		id, ok, err := fromHref(strings.TrimSpace(href), base, pageCtx)
		switch {
		case err != nil:
			out.Malformed++
		case !ok:
		default:
			if _, dup := seen[id]; dup {
				return
			}
			seen[id] = struct{}{}
			out.IDs = append(out.IDs, id)
		}
	})
	return out, nil
}

// fromHref reports ok=false when the link is not a case link at all, and a
// non-nil error when it is one but its value is malformed.
func fromHref(href string, base *url.URL, pageCtx Context) (ID, bool, error) {
	if href == "" {
		return "", false, nil
	}
	if !strings.HasPrefix(strings.ToLower(href), "javascript:") {
		if id, ok, err := fromQuery(href, base); ok || err != nil {
			return id, ok, err
		}
	}
	m := numdocPattern.FindStringSubmatch(href)
	if m == nil {
		return "", false, nil
	}
	raw, err := url.QueryUnescape(m[1])
	if err != nil {
		return "", true, fmt.Errorf("%w: numdoc escape: %v", ErrMalformed, err)
	}
	id, err := FromNumdoc(raw, pageCtx)
	if err != nil {
		return "", true, err
	}
	return id, true, nil
}

func fromQuery(href string, base *url.URL) (ID, bool, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false, nil
	}
	query := base.ResolveReference(ref).Query()
	if value, ok := lookupFold(query, "CELEX"); ok {
		id, err := Parse(value)
		return id, true, err
	}
	if value, ok := lookupFold(query, "uri"); ok && strings.HasPrefix(strings.ToUpper(value), "CELEX:") {
		id, err := Parse(value)
		return id, true, err
	}
	return "", false, nil
}

// lookupFold prefers the exact key, then the lexically first key that matches
// name case-insensitively.
func lookupFold(query url.Values, name string) (string, bool) {
	if values := query[name]; len(values) > 0 {
		return values[0], true
	}
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values := query[key]; strings.EqualFold(key, name) && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}
