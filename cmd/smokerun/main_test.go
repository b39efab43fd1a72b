package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/smokerun/internal/browser"
	"github.com/kuitang/smokerun/internal/browser/browsertest"
	"github.com/kuitang/smokerun/internal/errs"
	"github.com/kuitang/smokerun/internal/scenario"
)

func testApp(l *browsertest.Launcher) (*app, *bytes.Buffer) {
	var out bytes.Buffer
	return &app{
		stdout: &out,
		stderr: &out,
		newLauncher: func(browser.Options) browser.Launcher {
			return l
		},
	}, &out
}

func TestList_Table(t *testing.T) {
	a, out := testApp(nil)
	require.Equal(t, 0, a.execute(context.Background(), []string{"list"}))
	for _, name := range scenario.Names(scenario.Builtins()) {
		assert.Contains(t, out.String(), name)
	}
	assert.Contains(t, out.String(), "abort")
}

func TestList_YAMLRoundTrips(t *testing.T) {
	a, out := testApp(nil)
	require.Equal(t, 0, a.execute(context.Background(), []string{"list", "--yaml"}))

	set, err := scenario.Parse(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, scenario.Names(scenario.Builtins()), scenario.Names(set))
}

func TestRun_PassingScenario(t *testing.T) {
	dir := t.TempDir()
	a, out := testApp(browsertest.SnapshotSite("landing"))

	code := a.execute(context.Background(), []string{"run", "landing", "--out", dir, "--base-url", "http://fake.test"})
	require.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "smokerun starting...")
	assert.Contains(t, out.String(), "Target:  http://fake.test")
	assert.Contains(t, out.String(), "Verification Passed")
	assert.Regexp(t, `landing\s+PASS\s+6/6 steps`, out.String())
	assert.FileExists(t, filepath.Join(dir, "landing_screenshot.png"))
}

func TestRun_AbortFailureSetsExitCode(t *testing.T) {
	l := browsertest.SnapshotSite("zhin")
	l.OnClick = nil
	a, out := testApp(l)

	code := a.execute(context.Background(), []string{"run", "zhin", "--out", t.TempDir(), "--base-url", "http://fake.test"})
	assert.Equal(t, errs.ExitCode(errs.Mismatch), code)
	assert.Contains(t, out.String(), "FAIL")
}

func TestRun_ForcedContinueExitsCleanly(t *testing.T) {
	l := browsertest.SnapshotSite("zhin")
	l.OnClick = nil
	a, out := testApp(l)

	code := a.execute(context.Background(), []string{"run", "zhin", "--policy", "continue", "--out", t.TempDir(), "--base-url", "http://fake.test"})
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "FAIL (continue)")
}

func TestRun_InvalidInput(t *testing.T) {
	cases := map[string][]string{
		"unknown scenario": {"run", "nope"},
		"bad policy":       {"run", "--policy", "sometimes"},
		"missing file":     {"run", "--file", filepath.Join(t.TempDir(), "absent.yaml")},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			a, out := testApp(browsertest.SnapshotSite("landing"))
			assert.Equal(t, errs.ExitCode(errs.InvalidArgument), a.execute(context.Background(), args))
			assert.Contains(t, out.String(), "Error:")
		})
	}
}
