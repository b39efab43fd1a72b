// Package browsertest provides an in-memory browser.Launcher whose pages are
// static HTML documents queried with goquery. It records every call so tests
// can check ordering and release behaviour without a real browser.
package browsertest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kuitang/smokerun/internal/browser"
	"github.com/kuitang/smokerun/internal/errs"
)

// ClickFunc mutates the current document in response to a click.
type ClickFunc func(p *Page)

// Launcher serves pages from Site, keyed by URL path.
type Launcher struct {
	Site map[string]string
	// OnClick hooks run when the selector is clicked; unhooked clicks on
	// links follow their href.
	OnClick map[string]ClickFunc

	LaunchErr   error
	NewPageErr  error
	CloseErr    error
	FailOnShots bool

	mu       sync.Mutex
	sessions []*Session
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Canceled, "launch browser", err)
	}
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	s := &Session{launcher: l}
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Sessions returns every session launched so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// Session is a fake browser process.
type Session struct {
	launcher *Launcher

	mu         sync.Mutex
	closeCalls int
	releases   int
	closeErr   error
	pages      []*Page
}

// NewPage implements browser.Session.
func (s *Session) NewPage(opts browser.PageOptions) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releases > 0 {
		return nil, browser.ErrSessionClosed
	}
	if s.launcher.NewPageErr != nil {
		return nil, s.launcher.NewPageErr
	}
	p := &Page{session: s, opts: opts}
	s.pages = append(s.pages, p)
	return p, nil
}

// Close implements browser.Session. Only the first call releases; later calls
// return the first result.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.releases == 0 {
		s.releases++
		s.closeErr = s.launcher.CloseErr
	}
	return s.closeErr
}

// Releases returns how many times the session actually released.
func (s *Session) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// CloseCalls returns how many times Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Pages returns the pages opened in this session.
func (s *Session) Pages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Page(nil), s.pages...)
}

func (s *Session) released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases > 0
}

// Page is a fake tab holding one parsed document.
type Page struct {
	session *Session
	opts    browser.PageOptions

	url   string
	doc   *goquery.Document
	calls []string
	slept time.Duration
}

// Options returns the options the page was opened with.
func (p *Page) Options() browser.PageOptions { return p.opts }

// Calls returns the recorded operations, e.g. "goto http://x/", "click #btn".
func (p *Page) Calls() []string { return append([]string(nil), p.calls...) }

// Slept returns the total fixed-wait time requested.
func (p *Page) Slept() time.Duration { return p.slept }

// Doc exposes the current document to click hooks.
func (p *Page) Doc() *goquery.Document { return p.doc }

// SetText replaces the text of every element matching selector.
func (p *Page) SetText(selector, text string) {
	if p.doc != nil {
		p.doc.Find(selector).SetText(text)
	}
}

// Load replaces the current document with the route's HTML.
func (p *Page) Load(route string) error {
	html, ok := p.session.launcher.Site[route]
	if !ok {
		return errs.New(errs.Navigation, "net::ERR_HTTP_RESPONSE_CODE_FAILURE 404 "+route)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return errs.Wrap(errs.Internal, "parse "+route, err)
	}
	p.doc = doc
	return nil
}

func (p *Page) record(format string, args ...any) error {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
	if p.session.released() {
		return browser.ErrSessionClosed
	}
	return nil
}

// Goto loads the route for rawURL from the site.
func (p *Page) Goto(rawURL string) error {
	if err := p.record("goto %s", rawURL); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return errs.Wrap(errs.Navigation, "navigate to "+rawURL, err)
	}
	route := u.Path
	if route == "" {
		route = "/"
	}
	if err := p.Load(route); err != nil {
		return errs.Wrap(errs.Navigation, "navigate to "+rawURL, err)
	}
	p.url = rawURL
	return nil
}

// WaitVisible fails with a timeout when selector matches nothing.
func (p *Page) WaitVisible(selector string, timeout time.Duration) error {
	if err := p.record("wait %s", selector); err != nil {
		return err
	}
	if p.find(selector).Length() == 0 {
		return errs.New(errs.Timeout, fmt.Sprintf("wait for %s timed out after %s", selector, timeout))
	}
	return nil
}

// Sleep records d without waiting.
func (p *Page) Sleep(d time.Duration) error {
	if err := p.record("sleep %s", d); err != nil {
		return err
	}
	p.slept += d
	return nil
}

// Click runs the route hook or follows the href of the matched element.
func (p *Page) Click(selector string, timeout time.Duration) error {
	if err := p.record("click %s", selector); err != nil {
		return err
	}
	sel := p.find(selector)
	if sel.Length() == 0 {
		return errs.New(errs.Timeout, fmt.Sprintf("click %s timed out after %s", selector, timeout))
	}
	if hook, ok := p.session.launcher.OnClick[selector]; ok {
		hook(p)
		return nil
	}
	if href, ok := sel.Attr("href"); ok && p.url != "" {
		base, err := url.Parse(p.url)
		if err != nil {
			return errs.Wrap(errs.Internal, "resolve link", err)
		}
		ref, err := url.Parse(href)
		if err != nil {
			return errs.Wrap(errs.Internal, "resolve link", err)
		}
		next := base.ResolveReference(ref)
		if err := p.Load(next.Path); err != nil {
			return err
		}
		p.url = next.String()
	}
	return nil
}

// Title returns the document title.
func (p *Page) Title() (string, error) {
	if err := p.record("title"); err != nil {
		return "", err
	}
	if p.doc == nil {
		return "", nil
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

// InnerText returns the trimmed text of the first match.
func (p *Page) InnerText(selector string, timeout time.Duration) (string, error) {
	if err := p.record("text %s", selector); err != nil {
		return "", err
	}
	sel := p.find(selector)
	if sel.Length() == 0 {
		return "", errs.New(errs.Timeout, fmt.Sprintf("read text of %s timed out after %s", selector, timeout))
	}
	return strings.TrimSpace(sel.Text()), nil
}

// ExpectText compares the first match against expected.
func (p *Page) ExpectText(selector, expected string, exact bool, timeout time.Duration) error {
	if err := p.record("expect %s %q", selector, expected); err != nil {
		return err
	}
	sel := p.find(selector)
	if sel.Length() == 0 {
		return errs.New(errs.Mismatch, fmt.Sprintf("expected %s to exist within %s", selector, timeout))
	}
	got := strings.TrimSpace(sel.Text())
	if exact && got == strings.TrimSpace(expected) {
		return nil
	}
	if !exact && strings.Contains(got, expected) {
		return nil
	}
	return errs.New(errs.Mismatch, fmt.Sprintf("expected %s text %q to match %q", selector, got, expected))
}

// Screenshot returns a fixed PNG.
func (p *Page) Screenshot(fullPage bool) ([]byte, error) {
	if err := p.record("screenshot full=%t", fullPage); err != nil {
		return nil, err
	}
	if p.session.launcher.FailOnShots {
		return nil, errs.New(errs.Internal, "screenshot failed")
	}
	return PNG(), nil
}

// URL returns the current page URL.
func (p *Page) URL() string { return p.url }

// Content returns the rendered document HTML.
func (p *Page) Content() (string, error) {
	if err := p.record("content"); err != nil {
		return "", err
	}
	if p.doc == nil {
		return "", nil
	}
	return p.doc.Html()
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.calls = append(p.calls, "close")
	return nil
}

// find supports CSS selectors and Playwright's text= engine; for text= the
// innermost element whose text contains the literal wins.
func (p *Page) find(selector string) *goquery.Selection {
	if p.doc == nil {
		return &goquery.Selection{}
	}
	literal, ok := strings.CutPrefix(selector, "text=")
	if !ok {
		return p.doc.Find(selector).First()
	}
	literal = strings.Trim(literal, `"'`)
	var match *goquery.Selection
	p.doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), literal) {
			return true
		}
		inner := false
		s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
			inner = strings.Contains(c.Text(), literal)
			return !inner
		})
		if inner {
			return true
		}
		match = s
		return false
	})
	if match == nil {
		return &goquery.Selection{}
	}
	return match
}

// PNG returns a valid 1x1 PNG.
func PNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 0x2a, G: 0x2a, B: 0x2a, A: 0xff})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

var _ browser.Launcher = (*Launcher)(nil)
