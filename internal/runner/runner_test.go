package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/smokerun/internal/artifacts"
	"github.com/kuitang/smokerun/internal/browser"
	"github.com/kuitang/smokerun/internal/browser/browsertest"
	"github.com/kuitang/smokerun/internal/errs"
	"github.com/kuitang/smokerun/internal/scenario"
)

const fakeBase = "http://fake.test"

func builtin(t *testing.T, name string) scenario.Scenario {
	t.Helper()
	s, ok := scenario.Lookup(scenario.Builtins(), name)
	require.True(t, ok, "missing builtin %s", name)
	return s.Resolve(scenario.Defaults{BaseURL: fakeBase})
}

func newRunner(l *browsertest.Launcher, dir string, console io.Writer) *Runner {
	return New(Options{
		Launcher: l,
		Sinks:    artifacts.Multi{artifacts.FileSink{Dir: dir}},
		Console:  console,
	})
}

func onlySession(t *testing.T, l *browsertest.Launcher) *browsertest.Session {
	t.Helper()
	sessions := l.Sessions()
	require.Len(t, sessions, 1)
	return sessions[0]
}

func statuses(res Result) []StepStatus {
	out := make([]StepStatus, 0, len(res.Steps))
	for _, s := range res.Steps {
		out = append(out, s.Status)
	}
	return out
}

func TestBuiltins_PassAgainstSnapshots(t *testing.T) {
	want := map[string][]string{
		"landing":    {"landing_screenshot.png"},
		"rebranding": {"home_rebrand.png", "marketplace.png", "docs.png"},
		"zhin":       {"home.png", "about.png"},
		"zhinnx":     {"home.png", "font.png", "ytdl.png"},
	}
	for _, name := range scenario.Names(scenario.Builtins()) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			l := browsertest.SnapshotSite(name)
			var console bytes.Buffer

			res := newRunner(l, dir, &console).Run(context.Background(), builtin(t, name))
			require.NoError(t, res.Err, console.String())
			assert.Equal(t, 0, res.ExitCode())
			assert.Equal(t, 1, onlySession(t, l).CloseCalls())
			assert.Contains(t, console.String(), "Verification Passed")
			for _, shot := range want[name] {
				assert.FileExists(t, filepath.Join(dir, shot))
			}
			assert.Len(t, res.Artifacts, len(want[name]))
		})
	}
}

func TestRun_LandingConsoleAndWaits(t *testing.T) {
	l := browsertest.SnapshotSite("landing")
	var console bytes.Buffer

	res := newRunner(l, t.TempDir(), &console).Run(context.Background(), builtin(t, "landing"))
	require.NoError(t, res.Err)

	out := console.String()
	assert.Contains(t, out, "Navigating to /")
	assert.Contains(t, out, "Title: ZhinStack - Build for the web")
	assert.Contains(t, out, "h1: Develop with ZhinStack")

	page := onlySession(t, l).Pages()[0]
	assert.Equal(t, 1500*time.Millisecond, page.Slept())
	calls := page.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "goto http://fake.test/", calls[0])
	assert.Contains(t, calls, "screenshot full=true")
	assert.Equal(t, "close", calls[len(calls)-1])
}

func TestRun_CounterReachesTwo(t *testing.T) {
	l := browsertest.SnapshotSite("zhin")
	res := newRunner(l, t.TempDir(), nil).Run(context.Background(), builtin(t, "zhin"))
	require.NoError(t, res.Err)

	clicks := 0
	for _, c := range onlySession(t, l).Pages()[0].Calls() {
		if c == "click #inc-btn" {
			clicks++
		}
	}
	assert.Equal(t, 2, clicks)
	assert.Equal(t, "http://fake.test/about", onlySession(t, l).Pages()[0].URL())
}

func TestRun_ContinuePolicyFailureSkipsRestAndCapturesError(t *testing.T) {
	l := browsertest.SnapshotSite("rebranding")
	delete(l.Site, "/plugins")
	dir := t.TempDir()
	var console bytes.Buffer

	res := newRunner(l, dir, &console).Run(context.Background(), builtin(t, "rebranding"))
	require.Error(t, res.Err)
	assert.Equal(t, errs.Navigation, errs.CodeOf(res.Err))
	assert.Equal(t, 0, res.ExitCode(), "continue policy reports but exits cleanly")
	assert.Equal(t, 1, onlySession(t, l).CloseCalls())

	assert.Equal(t, []StepStatus{
		StepPassed, StepPassed, StepPassed,
		StepFailed,
		StepSkipped, StepSkipped, StepSkipped, StepSkipped, StepSkipped, StepSkipped,
	}, statuses(res))
	assert.Equal(t, 4, res.Steps[3].Index)

	assert.FileExists(t, filepath.Join(dir, "home_rebrand.png"))
	assert.FileExists(t, filepath.Join(dir, "error_rebrand.png"))
	assert.NoFileExists(t, filepath.Join(dir, "marketplace.png"))

	out := console.String()
	assert.Contains(t, out, "Error: ")
	assert.Contains(t, out, "Captured error_rebrand.png")
	assert.Contains(t, out, "Verification Failed: ")
}

func TestRun_AbortPolicyMismatchExitCode(t *testing.T) {
	l := browsertest.SnapshotSite("zhin")
	l.OnClick = nil // counter never moves

	res := newRunner(l, t.TempDir(), nil).Run(context.Background(), builtin(t, "zhin"))
	require.Error(t, res.Err)
	assert.Equal(t, errs.Mismatch, errs.CodeOf(res.Err))
	assert.Equal(t, errs.ExitCode(errs.Mismatch), res.ExitCode())
	assert.Equal(t, StepFailed, res.Steps[3].Status)
	assert.Equal(t, StepSkipped, res.Steps[len(res.Steps)-1].Status)
	assert.Equal(t, 1, onlySession(t, l).CloseCalls())
}

func TestRun_ErrorScreenshotFailureKeepsStepError(t *testing.T) {
	l := browsertest.SnapshotSite("landing")
	l.FailOnShots = true
	s := scenario.Scenario{
		Name:            "missing",
		ErrorScreenshot: "error.png",
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.WaitText("No such text"),
		},
	}.Resolve(scenario.Defaults{BaseURL: fakeBase, Policy: scenario.PolicyAbort})

	res := newRunner(l, t.TempDir(), nil).Run(context.Background(), s)
	require.Error(t, res.Err)
	assert.Equal(t, errs.Timeout, errs.CodeOf(res.Err))
	assert.Equal(t, errs.ExitCode(errs.Timeout), res.ExitCode())
	assert.Empty(t, res.Artifacts)
	assert.Equal(t, 1, onlySession(t, l).CloseCalls())
}

func TestRun_LaunchFailure(t *testing.T) {
	l := browsertest.SnapshotSite("landing")
	l.LaunchErr = errs.New(errs.Unavailable, "browser not installed")

	res := newRunner(l, t.TempDir(), nil).Run(context.Background(), builtin(t, "landing"))
	require.Error(t, res.Err)
	assert.Equal(t, errs.Unavailable, errs.CodeOf(res.Err))
	assert.Empty(t, l.Sessions())
	require.Len(t, res.Steps, 6)
	for _, s := range res.Steps {
		assert.Equal(t, StepSkipped, s.Status)
	}
}

func TestRun_PageOpenFailureReleasesSession(t *testing.T) {
	l := browsertest.SnapshotSite("landing")
	l.NewPageErr = errs.New(errs.Unavailable, "no context")

	res := newRunner(l, t.TempDir(), nil).Run(context.Background(), builtin(t, "landing"))
	require.Error(t, res.Err)
	assert.Equal(t, 1, onlySession(t, l).CloseCalls())
}

func TestRun_ReleaseError(t *testing.T) {
	t.Run("surfaces when steps passed", func(t *testing.T) {
		l := browsertest.SnapshotSite("landing")
		l.CloseErr = errors.New("browser crashed on exit")

		res := newRunner(l, t.TempDir(), nil).Run(context.Background(), builtin(t, "landing"))
		require.Error(t, res.Err)
		assert.Equal(t, errs.Unavailable, errs.CodeOf(res.Err))
		assert.ErrorIs(t, res.Err, l.CloseErr)
		assert.Equal(t, l.CloseErr, res.ReleaseErr)
	})

	t.Run("never masks step failure", func(t *testing.T) {
		l := browsertest.SnapshotSite("landing")
		l.CloseErr = errors.New("browser crashed on exit")
		delete(l.Site, "/")

		res := newRunner(l, t.TempDir(), nil).Run(context.Background(), builtin(t, "landing"))
		require.Error(t, res.Err)
		assert.Equal(t, errs.Navigation, errs.CodeOf(res.Err))
		assert.Equal(t, l.CloseErr, res.ReleaseErr)
	})
}

func TestRun_CancelBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := browsertest.SnapshotSite("zhin")
	l.OnClick["#inc-btn"] = func(p *browsertest.Page) { cancel() }

	res := newRunner(l, t.TempDir(), nil).Run(ctx, builtin(t, "zhin"))
	require.Error(t, res.Err)
	assert.Equal(t, errs.Canceled, errs.CodeOf(res.Err))
	assert.Equal(t, []StepStatus{StepPassed, StepPassed, StepPassed}, statuses(res)[:3])
	assert.Equal(t, StepSkipped, res.Steps[3].Status)
	assert.Equal(t, 1, onlySession(t, l).CloseCalls())
}

func TestRun_PanicIsContained(t *testing.T) {
	l := browsertest.SnapshotSite("zhin")
	l.OnClick["#inc-btn"] = func(p *browsertest.Page) { panic("hook blew up") }

	var res Result
	require.NotPanics(t, func() {
		res = newRunner(l, t.TempDir(), nil).Run(context.Background(), builtin(t, "zhin"))
	})
	require.Error(t, res.Err)
	assert.Equal(t, errs.Internal, errs.CodeOf(res.Err))
	assert.Contains(t, res.Err.Error(), "hook blew up")
	assert.Equal(t, 1, onlySession(t, l).CloseCalls())
}

func TestRun_InvalidScenarioNeverLaunches(t *testing.T) {
	l := browsertest.SnapshotSite("landing")
	s := scenario.Scenario{Name: "empty", Policy: scenario.PolicyAbort, BaseURL: fakeBase}

	res := newRunner(l, t.TempDir(), nil).Run(context.Background(), s)
	require.Error(t, res.Err)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(res.Err))
	assert.Equal(t, errs.ExitCode(errs.InvalidArgument), res.ExitCode())
	assert.Empty(t, l.Sessions())
}

func TestRun_HeadersReachPage(t *testing.T) {
	l := browsertest.SnapshotSite("landing")
	s := builtin(t, "landing")
	s.Headers = map[string]string{"Authorization": "Bearer secret", "X-Env": "staging"}

	res := newRunner(l, t.TempDir(), nil).Run(context.Background(), s)
	require.NoError(t, res.Err)
	opts := onlySession(t, l).Pages()[0].Options()
	assert.Equal(t, s.Headers, opts.Headers)
	assert.Equal(t, scenario.DefaultTimeout, opts.Timeout)
}

func TestRunAll_OneSessionPerScenario(t *testing.T) {
	l := browsertest.SnapshotSite("zhinnx")
	set := []scenario.Scenario{builtin(t, "zhinnx"), builtin(t, "zhinnx")}

	results := newRunner(l, t.TempDir(), nil).RunAll(context.Background(), set)
	require.Len(t, results, 2)
	require.Len(t, l.Sessions(), 2)
	for _, s := range l.Sessions() {
		assert.Equal(t, 1, s.CloseCalls())
	}
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
}

func TestExitCode_FirstNonZero(t *testing.T) {
	abort := func(code errs.Code) Result {
		return Result{Scenario: scenario.Scenario{Policy: scenario.PolicyAbort}, Err: errs.New(code, "x")}
	}
	cont := Result{Scenario: scenario.Scenario{Policy: scenario.PolicyContinue}, Err: errs.New(errs.Timeout, "x")}
	pass := Result{Scenario: scenario.Scenario{Policy: scenario.PolicyAbort}}

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 0, ExitCode([]Result{pass, cont}))
	assert.Equal(t, errs.ExitCode(errs.Mismatch), ExitCode([]Result{cont, abort(errs.Mismatch), abort(errs.Timeout)}))
}

// Whatever mix of present and missing selectors a scenario waits on, the run
// passes a prefix of steps, fails at most one, skips the rest and releases once.
func testRun_StepOutcomeShape(t *rapid.T) {
	present := rapid.SliceOfN(rapid.Bool(), 1, 8).Draw(t, "present")
	steps := []scenario.Step{scenario.Navigate("/")}
	for _, ok := range present {
		if ok {
			steps = append(steps, scenario.WaitSelector("#hero-text"))
		} else {
			steps = append(steps, scenario.WaitSelector("#missing"))
		}
	}
	s := scenario.Scenario{Name: "shape", Steps: steps}.Resolve(scenario.Defaults{BaseURL: fakeBase})

	l := browsertest.SnapshotSite("landing")
	res := New(Options{Launcher: l}).Run(context.Background(), s)

	if len(l.Sessions()) != 1 || l.Sessions()[0].CloseCalls() != 1 {
		t.Fatalf("session not released exactly once")
	}
	if len(res.Steps) != len(steps) {
		t.Fatalf("got %d step results for %d steps", len(res.Steps), len(steps))
	}

	firstMissing := -1
	for i, ok := range present {
		if !ok {
			firstMissing = i + 1
			break
		}
	}
	for i, sr := range res.Steps {
		var want StepStatus
		switch {
		case firstMissing < 0 || i < firstMissing:
			want = StepPassed
		case i == firstMissing:
			want = StepFailed
		default:
			want = StepSkipped
		}
		if sr.Status != want {
			t.Fatalf("step %d: status %s, want %s", i+1, sr.Status, want)
		}
	}
	if (firstMissing < 0) != (res.Err == nil) {
		t.Fatalf("err = %v with firstMissing = %d", res.Err, firstMissing)
	}
}

func TestRun_StepOutcomeShape(t *testing.T) {
	rapid.Check(t, testRun_StepOutcomeShape)
}

type panickingLauncher struct{}

func (panickingLauncher) Launch(context.Context) (browser.Session, error) {
	panic("driver exploded")
}

func TestRun_PanicBeforeSessionIsContained(t *testing.T) {
	var res Result
	require.NotPanics(t, func() {
		res = New(Options{Launcher: panickingLauncher{}}).Run(context.Background(), builtin(t, "landing"))
	})
	require.Error(t, res.Err)
	assert.Equal(t, errs.Internal, errs.CodeOf(res.Err))
	assert.Contains(t, res.Err.Error(), "driver exploded")
	assert.False(t, res.Finished.IsZero())
}

func TestNew_TypedNilConsoleDiscards(t *testing.T) {
	var console *bytes.Buffer
	l := browsertest.SnapshotSite("landing")

	var res Result
	require.NotPanics(t, func() {
		res = New(Options{Launcher: l, Console: console}).Run(context.Background(), builtin(t, "landing"))
	})
	require.NoError(t, res.Err)
}

func TestResult_UnsetPolicyMeansContinue(t *testing.T) {
	l := browsertest.SnapshotSite("landing")
	s := scenario.Scenario{
		Name:    "unresolved",
		BaseURL: fakeBase,
		Steps:   []scenario.Step{scenario.Navigate("/missing")},
	}

	res := newRunner(l, t.TempDir(), nil).Run(context.Background(), s)
	require.Error(t, res.Err)
	assert.Equal(t, errs.Navigation, errs.CodeOf(res.Err))
	assert.Equal(t, scenario.Policy(""), res.Scenario.Policy)
	assert.Equal(t, 0, res.ExitCode())
}

func TestRun_ErrorScreenshotIsViewportOnly(t *testing.T) {
	l := browsertest.SnapshotSite("zhinnx")
	delete(l.Site, "/font")
	dir := t.TempDir()

	res := newRunner(l, dir, nil).Run(context.Background(), builtin(t, "zhinnx"))
	require.Error(t, res.Err)
	assert.FileExists(t, filepath.Join(dir, "error.png"))

	calls := onlySession(t, l).Pages()[0].Calls()
	var shots []string
	for _, c := range calls {
		if strings.HasPrefix(c, "screenshot ") {
			shots = append(shots, c)
		}
	}
	// home.png then error.png, both viewport captures
	assert.Equal(t, []string{"screenshot full=false", "screenshot full=false"}, shots)
}
