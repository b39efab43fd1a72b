// Package browser runs the built-in scenarios through real Playwright against
// an httptest stand-in for each snapshot of the target site.
package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	smokebrowser "github.com/kuitang/smokerun/internal/browser"
)

// CODING AGENT RULE: never introduce a larger timeout anywhere in tests/browser.
const browserMaxTimeout = 5 * time.Second

const counterScript = `<script>
document.getElementById("inc-btn").addEventListener("click", function () {
  var d = document.querySelector("div.text-4xl");
  d.textContent = String(parseInt(d.textContent, 10) + 1);
});
</script>`

const helloScript = `<script>
fetch("/api/hello").then(function (r) { return r.json(); }).then(function (d) {
  document.querySelector(".font-mono").textContent = d.message;
});
</script>`

const heroScript = `<script>
setTimeout(function () {
  var h = document.createElement("div");
  h.id = "hero-text";
  h.innerHTML = "<h1>Develop with <span>ZhinStack</span></h1>";
  document.getElementById("hero").appendChild(h);
}, 300);
</script>`

// sites maps each snapshot to its routes. Pages render in the browser: the
// landing hero appears late, the counter and the About message are scripted.
var sites = map[string]map[string]string{
	"landing": {
		"/": page("ZhinStack - Build for the web", `<section id="hero"></section>`+heroScript),
	},
	"rebranding": {
		"/":        page("ZhinNX", `<h1>ZhinNX</h1><section><h2>THE TECH STACK</h2></section>`),
		"/plugins": page("Plugins - ZhinNX", `<h1>Plugin Marketplace</h1><ul><li>zhinnx-font</li></ul>`),
		"/docs/intro/what-is-zhinnx": page("Docs - ZhinNX",
			`<aside><h4>GETTING STARTED</h4></aside><main><h1>What is ZhinNX?</h1></main>`),
	},
	"zhin": {
		"/": page("zhinnx", `<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<h1>Welcome to zhinnx</h1>
<div class="counter"><div class="text-4xl">0</div><button id="inc-btn">+</button></div>`+counterScript),
		"/about": page("About - zhinnx", `<nav><a href="/">Home</a></nav>
<h1>About zhinnx</h1><p class="font-mono">Loading data from backend...</p>`+helloScript),
	},
	"zhinnx": {
		"/":     page("ZhinNX", `<h1>ZhinNX</h1>`),
		"/font": page("Font Builder", `<h1>Font Builder</h1>`),
		"/ytdl": page("YTDL", `<h1>YouTube Downloader</h1>`),
	},
}

func page(title, body string) string {
	return "<!doctype html><html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

// RequestLog records request paths and headers seen by a site.
type RequestLog struct {
	mu      sync.Mutex
	paths   []string
	headers []http.Header
}

// Paths returns the requested paths in order.
func (l *RequestLog) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

// Header returns the first value of name across all recorded requests.
func (l *RequestLog) Header(name string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range l.headers {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// StartSite serves the named snapshot until the test ends.
func StartSite(t *testing.T, name string) (*httptest.Server, *RequestLog) {
	t.Helper()

	routes, ok := sites[name]
	if !ok {
		t.Fatalf("no site for snapshot %q", name)
	}
	log := &RequestLog{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/hello", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Hello from zhinnx!"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		html, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/favicon") {
			log.mu.Lock()
			log.paths = append(log.paths, r.URL.Path)
			log.headers = append(log.headers, r.Header.Clone())
			log.mu.Unlock()
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

var (
	availOnce sync.Once
	availErr  error
)

// Launcher returns a headless Playwright launcher. Skips the test if Playwright
// or the browser is not installed, and under -short.
func Launcher(t *testing.T) smokebrowser.Launcher {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in -short mode")
	}

	l := smokebrowser.NewPlaywrightLauncher(smokebrowser.Options{Headless: true})
	availOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), browserMaxTimeout)
		defer cancel()
		s, err := l.Launch(ctx)
		if err != nil {
			availErr = err
			return
		}
		availErr = s.Close()
	})
	if availErr != nil {
		t.Skip("Playwright not available:", availErr)
	}
	return l
}
