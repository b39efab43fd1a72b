package browsertest

import (
	"strconv"
	"strings"
)

// Snapshot pages for each built-in scenario, in their final rendered state.
// The target site changed brand between snapshots, so each scenario gets its own.
var snapshots = map[string]map[string]string{
	"landing": {
		"/": `<html><head><title>ZhinStack - Build for the web</title></head><body>
<section><div id="hero-text"><h1>Develop with <span>ZhinStack</span></h1></div></section>
</body></html>`,
	},
	"rebranding": {
		"/": `<html><head><title>ZhinNX</title></head><body>
<h1>ZhinNX</h1><section><h2>THE TECH STACK</h2></section>
</body></html>`,
		"/plugins": `<html><head><title>Plugins - ZhinNX</title></head><body>
<h1>Plugin Marketplace</h1><ul><li>zhinnx-font</li><li>zhinnx-ytdl</li></ul>
</body></html>`,
		"/docs/intro/what-is-zhinnx": `<html><head><title>Docs - ZhinNX</title></head><body>
<aside><h4>GETTING STARTED</h4><a href="/docs/intro/what-is-zhinnx">Intro</a></aside>
<main><h1>What is ZhinNX?</h1></main>
</body></html>`,
	},
	"zhin": {
		"/": `<html><head><title>zhinnx</title></head><body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<h1>Welcome to zhinnx</h1>
<div class="counter"><div class="text-4xl">0</div><button id="inc-btn">+</button></div>
</body></html>`,
		"/about": `<html><head><title>About - zhinnx</title></head><body>
<nav><a href="/">Home</a></nav>
<h1>About zhinnx</h1><p class="font-mono">Hello from zhinnx!</p>
</body></html>`,
	},
	"zhinnx": {
		"/": `<html><head><title>ZhinNX</title></head><body><h1>ZhinNX</h1></body></html>`,
		"/font": `<html><head><title>Font Builder</title></head><body><h1>Font Builder</h1></body></html>`,
		"/ytdl": `<html><head><title>YTDL</title></head><body><h1>YouTube Downloader</h1></body></html>`,
	},
}

// SnapshotSite returns a fresh launcher serving the named scenario's snapshot.
// The counter button on the zhin snapshot increments its display on click.
func SnapshotSite(name string) *Launcher {
	site := make(map[string]string, len(snapshots[name]))
	for route, html := range snapshots[name] {
		site[route] = html
	}
	return &Launcher{
		Site: site,
		OnClick: map[string]ClickFunc{
			"#inc-btn": incrementCounter,
		},
	}
}

func incrementCounter(p *Page) {
	display := p.Doc().Find("div.text-4xl").First()
	n, _ := strconv.Atoi(strings.TrimSpace(display.Text()))
	display.SetText(strconv.Itoa(n + 1))
}
