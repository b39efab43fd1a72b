// Package runner executes verification scenarios step by step against one
// browser session per scenario.
//
// A run moves linearly through
//
//	START -> SESSION_OPEN -> PAGE_OPEN -> STEP_1 .. STEP_N -> SESSION_CLOSE -> END
//
// and a failed step detours through error capture (console line, diagnostics,
// optional error screenshot) before rejoining at SESSION_CLOSE. The session is
// released on every path, exactly once.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/kuitang/smokerun/internal/artifacts"
	"github.com/kuitang/smokerun/internal/browser"
	"github.com/kuitang/smokerun/internal/errs"
	"github.com/kuitang/smokerun/internal/htmlsnap"
	"github.com/kuitang/smokerun/internal/logutil"
	"github.com/kuitang/smokerun/internal/obs"
	"github.com/kuitang/smokerun/internal/scenario"
	"github.com/kuitang/smokerun/internal/urlutil"
)

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult records one executed (or skipped) step.
type StepResult struct {
	Index    int // 1-based
	Step     scenario.Step
	Status   StepStatus
	Err      error
	Duration time.Duration
	// Observed holds the title or text read by assert steps.
	Observed  string
	Artifacts []string
}

// Result is the outcome of one scenario run.
type Result struct {
	Scenario   scenario.Scenario
	RunID      string
	Steps      []StepResult
	Err        error
	ReleaseErr error
	Artifacts  []string
	Started    time.Time
	Finished   time.Time
}

// Failed reports whether any part of the run failed.
func (r Result) Failed() bool { return r.Err != nil }

// ExitCode is non-zero only for failures under the abort policy. An unset
// policy means continue.
func (r Result) ExitCode() int {
	if r.Err == nil || r.Scenario.Policy != scenario.PolicyAbort {
		return 0
	}
	return errs.ExitCodeOf(r.Err)
}

// ExitCode returns the exit status of the first result with a non-zero code.
func ExitCode(results []Result) int {
	for _, r := range results {
		if code := r.ExitCode(); code != 0 {
			return code
		}
	}
	return 0
}

// Options configures a Runner.
type Options struct {
	Launcher browser.Launcher
	Sinks    artifacts.Multi
	// Console receives human progress lines; nil discards them.
	Console io.Writer
}

// Runner runs scenarios. It holds no per-run state.
type Runner struct {
	launcher browser.Launcher
	sinks    artifacts.Multi
	console  io.Writer
}

// New returns a Runner.
func New(opts Options) *Runner {
	console := opts.Console
	if isNilWriter(console) {
		console = io.Discard
	}
	return &Runner{
		launcher: opts.Launcher,
		sinks:    opts.Sinks,
		console:  console,
	}
}

// isNilWriter also catches typed nil pointers such as (*bytes.Buffer)(nil).
func isNilWriter(w io.Writer) bool {
	if w == nil {
		return true
	}
	v := reflect.ValueOf(w)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// RunAll runs each scenario in order, each in its own session.
func (r *Runner) RunAll(ctx context.Context, set []scenario.Scenario) []Result {
	results := make([]Result, 0, len(set))
	for _, s := range set {
		results = append(results, r.Run(ctx, s))
	}
	return results
}

// Run executes s. It never panics past its boundary and always releases the
// session it acquired.
func (r *Runner) Run(ctx context.Context, s scenario.Scenario) (res Result) {
	res = Result{
		Scenario: s,
		RunID:    obs.NewRunID(),
		Started:  time.Now(),
	}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: res.RunID, Scenario: s.Name})
	logger := obs.From(ctx)

	var session browser.Session
	defer func() {
		if p := recover(); p != nil {
			res.Err = errs.New(errs.Internal, fmt.Sprintf("panic during run: %v", p))
			logger.Error("run panicked", "panic", fmt.Sprint(p))
		}
		if session != nil {
			if err := session.Close(); err != nil {
				res.ReleaseErr = err
				logger.Error("release browser", "error", err)
				if res.Err == nil {
					res.Err = errs.Wrap(errs.Unavailable, "release browser", err)
				}
			}
		}
		r.finish(logger, s, &res)
	}()

	if err := s.Validate(); err != nil {
		res.Err = err
		return res
	}

	fmt.Fprintf(r.console, "=== %s (%s) ===\n", s.Name, s.BaseURL)
	logger.Info("scenario started", "base_url", s.BaseURL, "steps", len(s.Steps), "policy", s.Policy)

	var err error
	session, err = r.launcher.Launch(ctx)
	if err != nil {
		session = nil
		res.Err = err
		res.Steps = skipped(s.Steps, 0)
		return res
	}

	if len(s.Headers) > 0 {
		logger.Debug("extra request headers", "headers", logutil.FormatHeadersForLog(s.Headers))
	}
	page, err := session.NewPage(browser.PageOptions{Timeout: s.Timeout, Headers: s.Headers})
	if err != nil {
		res.Err = err
		res.Steps = skipped(s.Steps, 0)
		return res
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("close page", "error", err)
		}
	}()

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			res.Err = errs.Wrap(errs.Canceled, "run canceled", err)
			res.Steps = append(res.Steps, skipped(s.Steps[i:], i)...)
			return res
		}

		stepCtx := obs.WithCorrelation(ctx, obs.Correlation{Step: i + 1, StepKind: string(step.Kind)})
		sr := r.runStep(stepCtx, s, page, i+1, step)
		res.Steps = append(res.Steps, sr)
		res.Artifacts = append(res.Artifacts, sr.Artifacts...)
		if sr.Err == nil {
			continue
		}

		res.Err = sr.Err
		shots := r.captureError(stepCtx, s, page, sr.Err)
		res.Artifacts = append(res.Artifacts, shots...)
		res.Steps = append(res.Steps, skipped(s.Steps[i+1:], i+1)...)
		return res
	}
	return res
}

// finish stamps the end time and reports the verdict. It must not panic.
func (r *Runner) finish(logger *slog.Logger, s scenario.Scenario, res *Result) {
	res.Finished = time.Now()
	elapsed := res.Finished.Sub(res.Started).Milliseconds()
	if res.Err != nil {
		fmt.Fprintf(r.console, "Verification Failed: %s\n", errs.MessageOf(res.Err))
		logger.Warn("scenario failed",
			"code", errs.CodeOf(res.Err),
			"error", res.Err.Error(),
			"policy", s.Policy,
			"elapsed_ms", elapsed,
		)
		return
	}
	fmt.Fprintln(r.console, "Verification Passed")
	logger.Info("scenario passed", "elapsed_ms", elapsed)
}

func (r *Runner) runStep(ctx context.Context, s scenario.Scenario, page browser.Page, index int, step scenario.Step) StepResult {
	logger := obs.From(ctx)
	sr := StepResult{Index: index, Step: step}
	fmt.Fprintf(r.console, "%s...\n", step.Describe())

	started := time.Now()
	sr.Observed, sr.Artifacts, sr.Err = r.exec(ctx, s, page, step)
	sr.Duration = time.Since(started)

	if sr.Err != nil {
		sr.Status = StepFailed
		fmt.Fprintf(r.console, "Error: %v\n", sr.Err)
		logger.Warn("step failed",
			"desc", step.Describe(),
			"code", errs.CodeOf(sr.Err),
			"error", sr.Err.Error(),
			"duration_ms", sr.Duration.Milliseconds(),
		)
		return sr
	}
	sr.Status = StepPassed
	logger.Info("step passed", "desc", step.Describe(), "duration_ms", sr.Duration.Milliseconds())
	return sr
}

func (r *Runner) exec(ctx context.Context, s scenario.Scenario, page browser.Page, step scenario.Step) (string, []string, error) {
	switch step.Kind {
	case scenario.KindNavigate:
		return "", nil, page.Goto(urlutil.BuildAbsolute(s.BaseURL, step.Target))

	case scenario.KindWaitSelector, scenario.KindWaitText:
		return "", nil, page.WaitVisible(step.Selector(), s.Timeout)

	case scenario.KindSleep:
		return "", nil, page.Sleep(step.Duration)

	case scenario.KindClick:
		for n := 0; n < step.Clicks(); n++ {
			if err := page.Click(step.Target, s.Timeout); err != nil {
				return "", nil, err
			}
		}
		return "", nil, nil

	case scenario.KindAssertTitle:
		title, err := page.Title()
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(r.console, "Title: %s\n", title)
		return title, nil, compare("title", step, title)

	case scenario.KindAssertText:
		text, err := page.InnerText(step.Target, s.Timeout)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(r.console, "%s: %s\n", step.Target, text)
		return text, nil, compare(step.Target, step, text)

	case scenario.KindExpectText:
		exact := step.MatchMode() == scenario.MatchEquals
		return "", nil, page.ExpectText(step.Target, step.Expected, exact, s.Timeout)

	case scenario.KindScreenshot:
		locs, err := r.screenshot(ctx, s, page, step.Path, step.FullPage)
		if err != nil {
			return "", locs, err
		}
		fmt.Fprintf(r.console, "Captured %s\n", step.Path)
		return "", locs, nil

	default:
		return "", nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown step kind %q", step.Kind))
	}
}

func (r *Runner) screenshot(ctx context.Context, s scenario.Scenario, page browser.Page, p string, fullPage bool) ([]string, error) {
	data, err := page.Screenshot(fullPage)
	if err != nil {
		return nil, err
	}
	locs, err := r.sinks.SaveAll(ctx, artifacts.Artifact{Scenario: s.Name, Path: p}, data)
	if err != nil {
		return locs, errs.Wrap(errs.Internal, "store screenshot", err)
	}
	obs.From(ctx).Debug("screenshot stored", "path", p, "locations", locs, "bytes", len(data))
	return locs, nil
}

// captureError logs page diagnostics and takes the error screenshot. Its own
// failures are logged and never replace the step error.
func (r *Runner) captureError(ctx context.Context, s scenario.Scenario, page browser.Page, cause error) []string {
	logger := obs.From(ctx)

	attrs := []any{"url", page.URL(), "cause", cause.Error()}
	if content, err := page.Content(); err == nil {
		if snap, err := htmlsnap.Summarize(content); err == nil {
			attrs = append(attrs, snap.Attrs()...)
		}
	}
	logger.Info("page at failure", attrs...)

	if s.ErrorScreenshot == "" {
		return nil
	}
	locs, err := r.screenshot(ctx, s, page, s.ErrorScreenshot, false)
	if err != nil {
		logger.Warn("error screenshot failed", "error", err.Error())
		return locs
	}
	fmt.Fprintf(r.console, "Captured %s\n", s.ErrorScreenshot)
	return locs
}

func compare(what string, step scenario.Step, observed string) error {
	if scenario.Compare(step.MatchMode(), observed, step.Expected) {
		return nil
	}
	return errs.New(errs.Mismatch, fmt.Sprintf("%s %q does not %s %q", what, observed, verb(step.MatchMode()), step.Expected))
}

func verb(m scenario.Match) string {
	if m == scenario.MatchEquals {
		return "equal"
	}
	return "contain"
}

func skipped(steps []scenario.Step, offset int) []StepResult {
	out := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		out = append(out, StepResult{Index: offset + i + 1, Step: step, Status: StepSkipped})
	}
	return out
}
