package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/smokerun/internal/artifacts"
	"github.com/kuitang/smokerun/internal/config"
	"github.com/kuitang/smokerun/internal/errs"
	"github.com/kuitang/smokerun/internal/obs"
	"github.com/kuitang/smokerun/internal/runner"
	"github.com/kuitang/smokerun/internal/s3client"
	"github.com/kuitang/smokerun/internal/scenario"
)

type runFlags struct {
	file      string
	overrides config.Overrides
	quiet     bool
}

func (a *app) runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run scenarios against the target",
		Long:  "Runs the named scenarios, or every scenario when none are named, each in its own browser session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "", "YAML scenario file (default: built-in catalog)")
	flags.StringVar(&f.overrides.BaseURL, "base-url", "", "Target origin, overrides every scenario (env SMOKERUN_BASE_URL)")
	flags.StringVarP(&f.overrides.OutputDir, "out", "o", "", "Screenshot directory (env SMOKERUN_OUTPUT_DIR, default verification)")
	flags.StringVar(&f.overrides.Policy, "policy", "", "Force continue or abort for every scenario (env SMOKERUN_POLICY)")
	flags.DurationVar(&f.overrides.Timeout, "timeout", 0, "Default wait timeout (env SMOKERUN_TIMEOUT, default 5s)")
	flags.StringVar(&f.overrides.Browser, "browser", "", "chromium, firefox or webkit (env SMOKERUN_BROWSER)")
	flags.BoolVar(&f.overrides.Headed, "headed", false, "Show the browser window")
	flags.StringVar(&f.overrides.LogFormat, "log-format", "", "json or text (env SMOKERUN_LOG_FORMAT)")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress console progress lines")
	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string, f runFlags) error {
	ctx := cmd.Context()

	cfg, err := config.Load(f.overrides)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "load configuration", err)
	}
	obs.Init(obs.ParseFormat(cfg.LogFormat))
	if !f.quiet {
		cfg.PrintSummary(a.stderr)
	}

	set, err := loadSet(f.file)
	if err != nil {
		return err
	}
	set, err = selectScenarios(set, args)
	if err != nil {
		return err
	}
	defaults := cfg.Defaults()
	for i := range set {
		set[i] = set[i].Resolve(defaults)
	}

	sinks := artifacts.Multi{artifacts.FileSink{Dir: cfg.OutputDir}}
	if cfg.S3Enabled() {
		client, err := s3client.New(ctx, cfg.S3Config())
		if err != nil {
			return errs.Wrap(errs.Unavailable, "configure s3 mirror", err)
		}
		sinks = append(sinks, artifacts.S3Sink{Client: client})
	}

	r := runner.New(runner.Options{
		Launcher: a.newLauncher(cfg.BrowserOptions()),
		Sinks:    sinks,
		Console:  a.console(f.quiet),
	})
	results := r.RunAll(ctx, set)
	a.printSummary(results)

	if code := runner.ExitCode(results); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func (a *app) console(quiet bool) io.Writer {
	if quiet {
		return nil
	}
	return a.stdout
}

func (a *app) printSummary(results []runner.Result) {
	fmt.Fprintln(a.stdout)
	for _, res := range results {
		verdict := "PASS"
		if res.Failed() {
			verdict = "FAIL"
			if res.ExitCode() == 0 {
				verdict = "FAIL (continue)"
			}
		}
		passed := 0
		for _, s := range res.Steps {
			if s.Status == runner.StepPassed {
				passed++
			}
		}
		fmt.Fprintf(a.stdout, "%-16s %-16s %d/%d steps  %s\n",
			res.Scenario.Name, verdict, passed, len(res.Steps),
			res.Finished.Sub(res.Started).Round(time.Millisecond))
	}
}

func loadSet(file string) ([]scenario.Scenario, error) {
	if file == "" {
		return scenario.Builtins(), nil
	}
	return scenario.LoadFile(file)
}

func selectScenarios(set []scenario.Scenario, names []string) ([]scenario.Scenario, error) {
	if len(names) == 0 {
		return set, nil
	}
	out := make([]scenario.Scenario, 0, len(names))
	for _, name := range names {
		s, ok := scenario.Lookup(set, name)
		if !ok {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown scenario %q (have %v)", name, scenario.Names(set)))
		}
		out = append(out, s)
	}
	return out, nil
}
