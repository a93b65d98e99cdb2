package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

// Markers delimit the extracted span of a judgment page.
type Markers struct {
	Start string
	End   string
}

// DefaultMarkers are the Dutch headings around the keywords and summary.
var DefaultMarkers = Markers{Start: "Trefwoorden", End: "Dictum"}

var blockElements = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {}, "dd": {}, "div": {},
	"dl": {}, "dt": {}, "footer": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"header": {}, "hr": {}, "li": {}, "main": {}, "nav": {}, "ol": {}, "p": {}, "pre": {},
	"section": {}, "table": {}, "td": {}, "th": {}, "tr": {}, "ul": {},
}

// TextContent flattens an HTML page into text. Scripts and styles are dropped
// and block-level elements are separated by newlines so words in adjacent
// paragraphs do not run together.
func TextContent(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse document html: %w", err)
	}
	doc.Find("script, style, noscript, head").Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		writeText(&b, n)
	}
	return b.String(), nil
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if _, ok := blockElements[n.Data]; ok {
			b.WriteByte('\n')
			defer b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

// Between returns the trimmed text strictly between the first start marker
// and the first end marker. It returns crawler.ErrExtractionMiss when either
// marker is absent, the start does not precede the end, or the span is empty.
func Between(text string, m Markers) (string, error) {
	start := strings.Index(text, m.Start)
	if start < 0 {
		return "", fmt.Errorf("%w: start marker %q absent", crawler.ErrExtractionMiss, m.Start)
	}
	end := strings.Index(text, m.End)
	if end < 0 {
		return "", fmt.Errorf("%w: end marker %q absent", crawler.ErrExtractionMiss, m.End)
	}
	from := start + len(m.Start)
	if from > end {
		return "", fmt.Errorf("%w: start marker follows end marker", crawler.ErrExtractionMiss)
	}
	content := strings.TrimSpace(text[from:end])
	if content == "" {
		return "", fmt.Errorf("%w: empty span", crawler.ErrExtractionMiss)
	}
	return content, nil
}
