// Package scenario defines verification scenarios: an ordered list of browser
// steps run against one base URL, plus the policy that decides whether a failed
// step fails the process.
package scenario

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kuitang/smokerun/internal/errs"
	"github.com/kuitang/smokerun/internal/urlutil"
)

// Kind is the action a step performs.
type Kind string

const (
	KindNavigate     Kind = "navigate"
	KindWaitSelector Kind = "wait_selector"
	KindWaitText     Kind = "wait_text"
	KindSleep        Kind = "sleep"
	KindClick        Kind = "click"
	KindAssertTitle  Kind = "assert_title"
	KindAssertText   Kind = "assert_text"
	KindExpectText   Kind = "expect_text"
	KindScreenshot   Kind = "screenshot"
)

// Kinds lists every known step kind.
var Kinds = []Kind{
	KindNavigate,
	KindWaitSelector,
	KindWaitText,
	KindSleep,
	KindClick,
	KindAssertTitle,
	KindAssertText,
	KindExpectText,
	KindScreenshot,
}

// Match selects how observed text is compared with the expected literal.
type Match string

const (
	MatchContains Match = "contains"
	MatchEquals   Match = "equals"
)

// Policy decides what a failed step means for the process.
type Policy string

const (
	// PolicyContinue logs the failure, captures the error screenshot and
	// still reports success to the caller.
	PolicyContinue Policy = "continue"
	// PolicyAbort stops at the first failure and exits non-zero.
	PolicyAbort Policy = "abort"
)

// ParsePolicy returns the policy named by s.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyContinue:
		return PolicyContinue, nil
	case PolicyAbort:
		return PolicyAbort, nil
	default:
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("unknown policy %q (want continue or abort)", s))
	}
}

const (
	DefaultBaseURL = "http://localhost:3000"
	DefaultTimeout = 5 * time.Second
)

// Step is one action. Steps have no identity beyond their position.
type Step struct {
	Kind     Kind          `yaml:"kind"`
	Name     string        `yaml:"name,omitempty"`
	Target   string        `yaml:"target,omitempty"`
	Expected string        `yaml:"expected,omitempty"`
	Match    Match         `yaml:"match,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
	Count    int           `yaml:"count,omitempty"`
	Path     string        `yaml:"path,omitempty"`
	FullPage bool          `yaml:"full_page,omitempty"`
}

// MatchMode returns the step's match mode, defaulting to contains.
func (s Step) MatchMode() Match {
	if s.Match == "" {
		return MatchContains
	}
	return s.Match
}

// Clicks returns how many times a click step clicks.
func (s Step) Clicks() int {
	if s.Count <= 0 {
		return 1
	}
	return s.Count
}

// Selector returns the selector the step waits on or reads from.
func (s Step) Selector() string {
	if s.Kind == KindWaitText {
		return TextSelector(s.Target)
	}
	return s.Target
}

// TextSelector builds a Playwright text selector for a literal.
func TextSelector(text string) string {
	return "text=" + text
}

// Describe returns the console progress line for the step.
func (s Step) Describe() string {
	if s.Name != "" {
		return s.Name
	}
	switch s.Kind {
	case KindNavigate:
		return "Navigating to " + s.Target
	case KindWaitSelector:
		return "Waiting for " + s.Target
	case KindWaitText:
		return fmt.Sprintf("Waiting for text %q", s.Target)
	case KindSleep:
		return "Sleeping " + s.Duration.String()
	case KindClick:
		if s.Clicks() > 1 {
			return fmt.Sprintf("Clicking %s x%d", s.Target, s.Clicks())
		}
		return "Clicking " + s.Target
	case KindAssertTitle:
		return fmt.Sprintf("Checking title %s %q", s.MatchMode(), s.Expected)
	case KindAssertText, KindExpectText:
		return fmt.Sprintf("Checking %s %s %q", s.Target, s.MatchMode(), s.Expected)
	case KindScreenshot:
		return "Taking screenshot " + s.Path
	default:
		return string(s.Kind)
	}
}

// Compare reports whether observed satisfies expected under mode.
func Compare(mode Match, observed, expected string) bool {
	switch mode {
	case MatchEquals:
		return strings.TrimSpace(observed) == strings.TrimSpace(expected)
	default:
		return strings.Contains(observed, expected)
	}
}

// Scenario is one self-contained verification script.
type Scenario struct {
	Name            string            `yaml:"name"`
	Description     string            `yaml:"description,omitempty"`
	BaseURL         string            `yaml:"base_url,omitempty"`
	Timeout         time.Duration     `yaml:"timeout,omitempty"`
	Policy          Policy            `yaml:"policy,omitempty"`
	ErrorScreenshot string            `yaml:"error_screenshot,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	Steps           []Step            `yaml:"steps"`
}

// Defaults fills scenario fields left empty.
type Defaults struct {
	BaseURL string
	Timeout time.Duration
	Policy  Policy
	// ForcePolicy overrides the scenario's own policy when set.
	ForcePolicy Policy
	// ForceBaseURL overrides the scenario's own base URL when set.
	ForceBaseURL string
}

// Resolve returns a copy of s with defaults applied.
func (s Scenario) Resolve(d Defaults) Scenario {
	out := s
	out.Steps = append([]Step(nil), s.Steps...)
	if d.ForceBaseURL != "" {
		out.BaseURL = d.ForceBaseURL
	}
	if out.BaseURL == "" {
		out.BaseURL = d.BaseURL
	}
	if out.BaseURL == "" {
		out.BaseURL = DefaultBaseURL
	}
	out.BaseURL = urlutil.NormalizeBaseURL(out.BaseURL)
	if out.Timeout <= 0 {
		out.Timeout = d.Timeout
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if d.ForcePolicy != "" {
		out.Policy = d.ForcePolicy
	}
	if out.Policy == "" {
		out.Policy = d.Policy
	}
	if out.Policy == "" {
		out.Policy = PolicyContinue
	}
	return out
}

// Validate checks the scenario and every step.
func (s Scenario) Validate() error {
	var problems []string
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(s.Steps) == 0 {
		problems = append(problems, "at least one step is required")
	}
	if s.BaseURL != "" {
		if err := urlutil.CheckBaseURL(s.BaseURL); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if s.Timeout < 0 {
		problems = append(problems, "timeout must not be negative")
	}
	if s.Policy != "" && s.Policy != PolicyContinue && s.Policy != PolicyAbort {
		problems = append(problems, fmt.Sprintf("unknown policy %q", s.Policy))
	}
	if s.ErrorScreenshot != "" {
		if err := checkArtifactPath(s.ErrorScreenshot); err != nil {
			problems = append(problems, "error_screenshot: "+err.Error())
		}
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			problems = append(problems, fmt.Sprintf("step %d (%s): %v", i+1, step.Kind, err))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	name := s.Name
	if name == "" {
		name = "<unnamed>"
	}
	return errs.New(errs.InvalidArgument, fmt.Sprintf("scenario %s: %s", name, strings.Join(problems, "; ")))
}

func (s Step) validate() error {
	switch s.Match {
	case "", MatchContains, MatchEquals:
	default:
		return fmt.Errorf("unknown match %q", s.Match)
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if s.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}

	switch s.Kind {
	case KindNavigate:
		if s.Target == "" {
			return fmt.Errorf("target route is required")
		}
	case KindWaitSelector, KindWaitText, KindClick:
		if s.Target == "" {
			return fmt.Errorf("target is required")
		}
	case KindSleep:
		if s.Duration <= 0 {
			return fmt.Errorf("duration is required")
		}
	case KindAssertTitle:
		if s.Expected == "" {
			return fmt.Errorf("expected is required")
		}
	case KindAssertText, KindExpectText:
		if s.Target == "" {
			return fmt.Errorf("target is required")
		}
		if s.Expected == "" {
			return fmt.Errorf("expected is required")
		}
	case KindScreenshot:
		if s.Path == "" {
			return fmt.Errorf("path is required")
		}
		return checkArtifactPath(s.Path)
	case "":
		return fmt.Errorf("kind is required")
	default:
		return fmt.Errorf("unknown kind")
	}
	return nil
}

func checkArtifactPath(p string) error {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q must be relative", p)
	}
	clean := path.Clean(filepath.ToSlash(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q escapes the output directory", p)
	}
	if !strings.EqualFold(path.Ext(clean), ".png") {
		return fmt.Errorf("path %q must end in .png", p)
	}
	return nil
}
