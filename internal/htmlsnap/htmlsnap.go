// Package htmlsnap condenses a rendered page into a short diagnostic summary
// for failure logs.
package htmlsnap

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kuitang/smokerun/internal/logutil"
)

const (
	maxHeadings    = 5
	maxTextPreview = 500
)

// Snapshot is what a failure log shows about the page.
type Snapshot struct {
	Title    string
	Headings []string
	Text     string
}

// Summarize extracts title, leading headings and a visible-text preview.
// Script, style and template contents are ignored.
func Summarize(html string) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Snapshot{}, err
	}
	doc.Find("script, style, noscript, template").Remove()

	snap := Snapshot{
		Title: collapse(doc.Find("title").First().Text()),
	}
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := collapse(s.Text()); text != "" {
			snap.Headings = append(snap.Headings, text)
		}
		return len(snap.Headings) < maxHeadings
	})
	snap.Text = logutil.TruncateForLog(collapse(doc.Find("body").Text()), maxTextPreview)
	return snap, nil
}

// Attrs returns key/value pairs for slog.
func (s Snapshot) Attrs() []any {
	return []any{
		"page_title", s.Title,
		"page_headings", strings.Join(s.Headings, " | "),
		"page_text", s.Text,
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
