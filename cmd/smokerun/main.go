// smokerun drives a real browser through scripted verification scenarios
// against a running web app and reports a pass/fail verdict per scenario.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuitang/smokerun/internal/browser"
	"github.com/kuitang/smokerun/internal/errs"
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// app holds what commands need from the outside world.
type app struct {
	stdout      io.Writer
	stderr      io.Writer
	newLauncher func(browser.Options) browser.Launcher
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		newLauncher: func(opts browser.Options) browser.Launcher {
			return browser.NewPlaywrightLauncher(opts)
		},
	}
	code := a.execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return errs.ExitCodeOf(err)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smokerun",
		Short:         "Browser smoke tests for a running web app",
		Long:          "Runs scripted browser scenarios (navigate, wait, click, assert, screenshot) against a target origin and exits non-zero on fail-fast failures.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.AddCommand(a.runCmd(), a.listCmd())
	return root
}
