package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildAbsolute builds an absolute URL from a base origin and a route.
func BuildAbsolute(base, route string) string {
	base = NormalizeBaseURL(base)
	if route == "" {
		return base
	}
	if IsAbsolute(route) {
		return route
	}
	if strings.HasPrefix(route, "/") {
		return base + route
	}
	return base + "/" + route
}

// IsAbsolute reports whether route already carries an http(s) scheme.
func IsAbsolute(route string) bool {
	return strings.HasPrefix(route, "http://") || strings.HasPrefix(route, "https://")
}

// CheckBaseURL returns an error unless base is an http(s) URL with a host.
func CheckBaseURL(base string) error {
	base = NormalizeBaseURL(base)
	if base == "" {
		return fmt.Errorf("base URL is empty")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("base URL %q: %w", base, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base URL %q must use http or https", base)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL %q has no host", base)
	}
	return nil
}

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}
