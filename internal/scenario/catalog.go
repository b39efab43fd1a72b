package scenario

import (
	"sort"
	"time"
)

// Navigate loads route relative to the scenario base URL.
func Navigate(route string) Step { return Step{Kind: KindNavigate, Target: route} }

// WaitSelector waits until selector is visible.
func WaitSelector(selector string) Step { return Step{Kind: KindWaitSelector, Target: selector} }

// WaitText waits until an element containing text is visible.
func WaitText(text string) Step { return Step{Kind: KindWaitText, Target: text} }

// Sleep pauses for d.
func Sleep(d time.Duration) Step { return Step{Kind: KindSleep, Duration: d} }

// Click clicks the first element matching selector once.
func Click(selector string) Step { return Step{Kind: KindClick, Target: selector} }

// ClickN clicks the first element matching selector n times.
func ClickN(selector string, n int) Step {
	return Step{Kind: KindClick, Target: selector, Count: n}
}

// AssertTitle compares the document title against expected.
func AssertTitle(match Match, expected string) Step {
	return Step{Kind: KindAssertTitle, Match: match, Expected: expected}
}

// AssertText reads the text of selector once and compares it against expected.
func AssertText(selector string, match Match, expected string) Step {
	return Step{Kind: KindAssertText, Target: selector, Match: match, Expected: expected}
}

// ExpectText retries until the text of selector matches expected.
func ExpectText(selector string, match Match, expected string) Step {
	return Step{Kind: KindExpectText, Target: selector, Match: match, Expected: expected}
}

// Screenshot captures the viewport to p.
func Screenshot(p string) Step { return Step{Kind: KindScreenshot, Path: p} }

// FullPageScreenshot captures the whole page to p.
func FullPageScreenshot(p string) Step {
	return Step{Kind: KindScreenshot, Path: p, FullPage: true}
}

// The built-in scenarios target successive versions of the same site, so their
// brand strings disagree. Each one is kept as written against its snapshot.
var builtins = []Scenario{
	{
		Name:        "landing",
		Description: "Landing page hero, title and heading",
		Policy:      PolicyContinue,
		Steps: []Step{
			Navigate("/"),
			WaitSelector("#hero-text"),
			// hero animation runs for 1s
			Sleep(1500 * time.Millisecond),
			FullPageScreenshot("landing_screenshot.png"),
			AssertTitle(MatchContains, "ZhinStack"),
			AssertText("h1", MatchContains, "Develop with"),
		},
	},
	{
		Name:            "rebranding",
		Description:     "Home, plugin marketplace and docs after the rebrand",
		Policy:          PolicyContinue,
		ErrorScreenshot: "error_rebrand.png",
		Steps: []Step{
			Navigate("/"),
			WaitText("THE TECH STACK"),
			Screenshot("home_rebrand.png"),
			Navigate("/plugins"),
			WaitText("Plugin Marketplace"),
			Screenshot("marketplace.png"),
			Navigate("/docs/intro/what-is-zhinnx"),
			WaitText("What is ZhinNX?"),
			WaitText("GETTING STARTED"),
			Screenshot("docs.png"),
		},
	},
	{
		Name:        "zhin",
		Description: "Counter interaction and client-side routing to About",
		Policy:      PolicyAbort,
		Steps: []Step{
			Navigate("/"),
			ExpectText("h1", MatchContains, "Welcome to zhinnx"),
			ClickN("#inc-btn", 2),
			ExpectText("div.text-4xl", MatchEquals, "2"),
			Screenshot("home.png"),
			Click("text=About"),
			ExpectText("h1", MatchContains, "About zhinnx"),
			ExpectText(".font-mono", MatchContains, "Hello from zhinnx!"),
			Screenshot("about.png"),
		},
	},
	{
		Name:            "zhinnx",
		Description:     "Home, font builder and YouTube downloader pages",
		Policy:          PolicyContinue,
		ErrorScreenshot: "error.png",
		Steps: []Step{
			Navigate("/"),
			WaitText("ZhinNX"),
			Screenshot("home.png"),
			Navigate("/font"),
			WaitText("Font Builder"),
			Screenshot("font.png"),
			Navigate("/ytdl"),
			WaitText("YouTube Downloader"),
			Screenshot("ytdl.png"),
		},
	},
}

// Builtins returns copies of the built-in scenarios in catalog order.
func Builtins() []Scenario {
	out := make([]Scenario, len(builtins))
	for i, s := range builtins {
		out[i] = s
		out[i].Steps = append([]Step(nil), s.Steps...)
	}
	return out
}

// Lookup returns the named scenario from set.
func Lookup(set []Scenario, name string) (Scenario, bool) {
	for _, s := range set {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Names returns the sorted scenario names in set.
func Names(set []Scenario) []string {
	names := make([]string, 0, len(set))
	for _, s := range set {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}
