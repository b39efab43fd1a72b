// Package browser wraps the browser driver behind a small Session/Page surface.
// A Session owns one browser process and must be closed exactly once; a Page
// is a single tab owned by its Session and is unusable after the Session closes.
package browser

import (
	"context"
	"time"

	"github.com/kuitang/smokerun/internal/errs"
)

// Page is one navigable browsing context reused across steps.
type Page interface {
	Goto(url string) error
	WaitVisible(selector string, timeout time.Duration) error
	Sleep(d time.Duration) error
	Click(selector string, timeout time.Duration) error
	Title() (string, error)
	InnerText(selector string, timeout time.Duration) (string, error)
	// ExpectText polls until the first element matching selector has text
	// equal to (exact) or containing expected.
	ExpectText(selector, expected string, exact bool, timeout time.Duration) error
	Screenshot(fullPage bool) ([]byte, error)
	URL() string
	Content() (string, error)
	Close() error
}

// PageOptions configures a new page.
type PageOptions struct {
	Timeout time.Duration
	Headers map[string]string
}

// Session is a browser process under automated control.
type Session interface {
	NewPage(opts PageOptions) (Page, error)
	// Close releases the browser. Calls after the first return the first result.
	Close() error
}

// Launcher acquires sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// ErrSessionClosed is returned by pages used after their session was released.
var ErrSessionClosed = errs.New(errs.FailedPrecondition, "page used after session release")
