package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/smokerun/internal/errs"
	"github.com/kuitang/smokerun/internal/obs"
)

// Supported browser engines.
const (
	Chromium = "chromium"
	Firefox  = "firefox"
	WebKit   = "webkit"
)

const (
	// DefaultTimeout bounds every driver wait when a page has no explicit timeout.
	DefaultTimeout = 5 * time.Second

	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
)

// Options configures the Playwright launcher.
type Options struct {
	// Browser is chromium, firefox or webkit.
	Browser  string
	Headless bool
	SlowMo   time.Duration
	Width    int
	Height   int
	// Install downloads the driver and browser before the first run.
	Install bool
}

// PlaywrightLauncher launches sessions through playwright-go.
type PlaywrightLauncher struct {
	opts Options
}

// NewPlaywrightLauncher returns a launcher with opts.
func NewPlaywrightLauncher(opts Options) *PlaywrightLauncher {
	if opts.Browser == "" {
		opts.Browser = Chromium
	}
	if opts.Width <= 0 {
		opts.Width = defaultViewportWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultViewportHeight
	}
	return &PlaywrightLauncher{opts: opts}
}

// Launch starts the driver and a browser process.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Canceled, "launch browser", err)
	}

	if l.opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{l.opts.Browser}}); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "install playwright", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "start playwright", err)
	}

	var browserType playwright.BrowserType
	switch strings.ToLower(l.opts.Browser) {
	case Chromium:
		browserType = pw.Chromium
	case Firefox:
		browserType = pw.Firefox
	case WebKit:
		browserType = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown browser %q", l.opts.Browser))
	}

	b, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		SlowMo:   playwright.Float(float64(l.opts.SlowMo.Milliseconds())),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "launch "+l.opts.Browser, err)
	}

	obs.Pkg("browser").Debug("browser launched", "browser", l.opts.Browser, "headless", l.opts.Headless)
	return &playwrightSession{
		browser: b,
		width:   l.opts.Width,
		height:  l.opts.Height,
		rel: &releaser{
			closeBrowser: func() error { return b.Close() },
			stopDriver:   pw.Stop,
		},
	}, nil
}

// releaser closes the browser and stops the driver once. Later calls return
// the first result.
type releaser struct {
	closeBrowser func() error
	stopDriver   func() error

	closed atomic.Bool
	once   sync.Once
	err    error
}

func (r *releaser) release() error {
	r.once.Do(func() {
		r.closed.Store(true)
		var closeErrs []error
		if err := r.closeBrowser(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("close browser: %w", err))
		}
		if err := r.stopDriver(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("stop playwright: %w", err))
		}
		r.err = errors.Join(closeErrs...)
		obs.Pkg("browser").Debug("browser released", "error", r.err)
	})
	return r.err
}

func (r *releaser) released() bool { return r.closed.Load() }

type playwrightSession struct {
	browser playwright.Browser
	width   int
	height  int
	rel     *releaser
}

func (s *playwrightSession) NewPage(opts PageOptions) (Page, error) {
	if s.rel.released() {
		return nil, ErrSessionClosed
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pageOpts := playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: s.width, Height: s.height},
	}
	if len(opts.Headers) > 0 {
		pageOpts.ExtraHttpHeaders = opts.Headers
	}
	page, err := s.browser.NewPage(pageOpts)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "open page", err)
	}
	page.SetDefaultTimeout(millis(timeout))
	page.SetDefaultNavigationTimeout(millis(timeout))
	return &playwrightPage{session: s, page: page, timeout: timeout}, nil
}

func (s *playwrightSession) Close() error {
	return s.rel.release()
}

type playwrightPage struct {
	session *playwrightSession
	page    playwright.Page
	timeout time.Duration
}

func (p *playwrightPage) live() error {
	if p.session.rel.released() {
		return ErrSessionClosed
	}
	return nil
}

func (p *playwrightPage) Goto(url string) error {
	if err := p.live(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(millis(p.timeout)),
	})
	if err != nil {
		return errs.Wrap(errs.Navigation, "navigate to "+url, err)
	}
	return nil
}

func (p *playwrightPage) WaitVisible(selector string, timeout time.Duration) error {
	if err := p.live(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(millis(p.or(timeout))),
	})
	if err != nil {
		return classify("wait for "+selector, err, errs.Internal)
	}
	return nil
}

func (p *playwrightPage) Sleep(d time.Duration) error {
	if err := p.live(); err != nil {
		return err
	}
	p.page.WaitForTimeout(millis(d))
	return nil
}

func (p *playwrightPage) Click(selector string, timeout time.Duration) error {
	if err := p.live(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(millis(p.or(timeout))),
	})
	if err != nil {
		return classify("click "+selector, err, errs.Internal)
	}
	return nil
}

func (p *playwrightPage) Title() (string, error) {
	if err := p.live(); err != nil {
		return "", err
	}
	title, err := p.page.Title()
	if err != nil {
		return "", classify("read title", err, errs.Internal)
	}
	return title, nil
}

func (p *playwrightPage) InnerText(selector string, timeout time.Duration) (string, error) {
	if err := p.live(); err != nil {
		return "", err
	}
	text, err := p.page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(millis(p.or(timeout))),
	})
	if err != nil {
		return "", classify("read text of "+selector, err, errs.Internal)
	}
	return text, nil
}

func (p *playwrightPage) ExpectText(selector, expected string, exact bool, timeout time.Duration) error {
	if err := p.live(); err != nil {
		return err
	}
	assertions := playwright.NewPlaywrightAssertions(millis(p.or(timeout)))
	locator := assertions.Locator(p.page.Locator(selector).First())
	var err error
	if exact {
		err = locator.ToHaveText(expected)
	} else {
		err = locator.ToContainText(expected)
	}
	if err != nil {
		verb := "contain"
		if exact {
			verb = "equal"
		}
		return errs.Wrap(errs.Mismatch, fmt.Sprintf("expected %s to %s %q", selector, verb, expected), err)
	}
	return nil
}

func (p *playwrightPage) Screenshot(fullPage bool) ([]byte, error) {
	if err := p.live(); err != nil {
		return nil, err
	}
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, classify("screenshot", err, errs.Internal)
	}
	return data, nil
}

func (p *playwrightPage) URL() string {
	if p.session.rel.released() {
		return ""
	}
	return p.page.URL()
}

func (p *playwrightPage) Content() (string, error) {
	if err := p.live(); err != nil {
		return "", err
	}
	content, err := p.page.Content()
	if err != nil {
		return "", classify("read content", err, errs.Internal)
	}
	return content, nil
}

func (p *playwrightPage) Close() error {
	if p.session.rel.released() {
		return nil
	}
	return p.page.Close()
}

func (p *playwrightPage) or(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return p.timeout
}

// classify maps driver errors onto error codes; fallback is used for anything
// that is not a timeout or a closed target.
func classify(op string, err error, fallback errs.Code) error {
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return errs.Wrap(errs.Timeout, op+" timed out", err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return errs.Wrap(errs.Unavailable, op+": browser closed", err)
	default:
		return errs.Wrap(fallback, op, err)
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
