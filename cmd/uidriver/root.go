package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	k6metrics "go.k6.io/k6/metrics"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/browser"
	"github.com/editorqa/uidriver/common"
	"github.com/editorqa/uidriver/driver"
	"github.com/editorqa/uidriver/env"
	"github.com/editorqa/uidriver/k6ext"
	"github.com/editorqa/uidriver/log"
	"github.com/editorqa/uidriver/pwsession"
	"github.com/editorqa/uidriver/trace"
)

const version = "0.3.0"

// Session backends.
const (
	backendCDP        = "cdp"
	backendPlaywright = "playwright"
)

// errTestsFailed makes the process exit with 1 without printing an error.
var errTestsFailed = errors.New("some tests failed")

type runFlags struct {
	envFiles       []string
	backend        string
	headless       bool
	timeout        time.Duration
	screenshotsDir string
	logLevel       string
	traces         string
	summary        bool
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string) int {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errTestsFailed):
		return 1
	default:
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		return 2
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "uidriver",
		Short:         "Drive a web UI through scripted user journeys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newRunCmd(), newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the uidriver version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "uidriver v%s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <script.js>...",
		Short: "Run scenario scripts",
		Long: `Run scenario scripts written with describe/test blocks and the
driver helpers (loadUri, findByText, clickXpath, ...).

Settings are read from the environment and from .env files, flags win.

Examples:
  uidriver run test/project-loading.js
  uidriver run --backend playwright --headless=false test/*.js`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScripts(cmd, f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "env files to load")
	flags.StringVar(&f.backend, "backend", "", "session backend: cdp or playwright (env "+env.Backend+")")
	flags.BoolVar(&f.headless, "headless", true, "run the browser without a window (env "+env.Headless+")")
	flags.DurationVar(&f.timeout, "timeout", 0, "timeout of each find or click (env "+env.Timeout+")")
	flags.StringVar(&f.screenshotsDir, "screenshots", "", "save a screenshot of failed steps here (env "+env.ScreenshotsDir+")")
	flags.StringVar(&f.logLevel, "log-level", "", "log level (env "+env.LogLevel+")")
	flags.StringVar(&f.traces, "traces", "", "write the spans of driver operations to this file (env "+env.TracesOutput+")")
	flags.BoolVar(&f.summary, "summary", true, "print driver timing metrics")

	return cmd
}

func runScripts(cmd *cobra.Command, f runFlags, scripts []string) error {
	ctx := cmd.Context()
	if err := env.Load(f.envFiles...); err != nil {
		return err //nolint:wrapcheck
	}
	lookup := env.Lookup

	logger, err := newLogger(cmd.ErrOrStderr(), lookup, f.logLevel)
	if err != nil {
		return err
	}

	launchOpts := common.NewLaunchOptions()
	if err := launchOpts.Parse(lookup, logger); err != nil {
		return fmt.Errorf("parsing launch options: %w", err)
	}
	driverOpts := driver.NewOptions()
	if err := driverOpts.Parse(lookup); err != nil {
		return fmt.Errorf("parsing driver options: %w", err)
	}
	applyFlags(cmd, f, launchOpts, driverOpts)

	backend := f.backend
	if backend == "" {
		backend, _ = lookup(env.Backend)
	}
	factory, err := newSessionFactory(backend, launchOpts, logger)
	if err != nil {
		return err
	}

	registry := k6metrics.NewRegistry()
	samples := make(chan k6metrics.SampleContainer, 64)
	summary := k6ext.NewSummary()
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		summary.Collect(context.WithoutCancel(ctx), samples)
	}()

	harness := driver.NewHarness(factory, driverOpts, logger)
	harness.SetObserver(k6ext.NewRecorder(registry, samples))

	tracesOutput := f.traces
	if tracesOutput == "" {
		tracesOutput, _ = lookup(env.TracesOutput)
	}
	if tracesOutput != "" {
		shutdown, err := setupTracing(ctx, harness, tracesOutput, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}
	defer func() {
		// Scripts usually quit in afterAll, a leftover session is closed here.
		if err := harness.Quit(context.WithoutCancel(ctx)); err != nil {
			logger.Errorf("uidriver:run", "quitting leftover session: %v", err)
		}
	}()

	runner := browser.NewRunner(harness, logger)
	out := cmd.OutOrStdout()
	ok := true
	for _, script := range scripts {
		report, err := runner.RunFile(ctx, script)
		if err != nil {
			return err //nolint:wrapcheck
		}
		printReport(out, report)
		ok = ok && report.OK()
	}

	close(samples)
	<-collected
	if f.summary {
		printSummary(out, summary.Metrics())
	}

	if !ok {
		return errTestsFailed
	}
	return nil
}

// setupTracing makes the harness drivers record spans to the file at
// path. The returned func flushes and closes the file.
func setupTracing(ctx context.Context, h *driver.Harness, path string, logger *log.Logger) (func(), error) {
	out, err := os.Create(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("creating traces output: %w", err)
	}
	prov, err := trace.NewProvider(out, version)
	if err != nil {
		_ = out.Close()
		return nil, err //nolint:wrapcheck
	}
	h.SetTracer(trace.NewTracer(prov, logger, map[string]string{"uidriver.run.id": h.RunID()}))

	return func() {
		if err := prov.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Errorf("uidriver:run", "flushing traces: %v", err)
		}
		if err := out.Close(); err != nil {
			logger.Errorf("uidriver:run", "closing traces output: %v", err)
		}
	}, nil
}

func applyFlags(cmd *cobra.Command, f runFlags, lo *common.LaunchOptions, do *driver.Options) {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		lo.Headless = f.headless
	}
	if flags.Changed("timeout") {
		do.Timeout = f.timeout
	}
	if flags.Changed("screenshots") {
		do.ScreenshotsDir = f.screenshotsDir
	}
	do.WindowSize = lo.WindowSize
}

func newLogger(w io.Writer, lookup env.LookupFunc, level string) (*log.Logger, error) {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.WarnLevel)
	logger := log.New(l, nil)

	if level == "" {
		level, _ = lookup(env.LogLevel)
	}
	if level != "" {
		if err := logger.SetLevel(level); err != nil {
			return nil, err //nolint:wrapcheck
		}
	}
	if filter, ok := lookup(env.LogCategoryFilter); ok {
		if err := logger.SetCategoryFilter(filter); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", env.LogCategoryFilter, err)
		}
	}

	return logger, nil
}

func newSessionFactory(backend string, opts *common.LaunchOptions, logger *log.Logger) (api.SessionFactory, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", backendCDP:
		return &common.BrowserType{Options: opts, Logger: logger}, nil
	case backendPlaywright:
		return &pwsession.Factory{Options: opts, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q, use %q or %q", backend, backendCDP, backendPlaywright)
	}
}

func printReport(w io.Writer, report *browser.Report) {
	fmt.Fprintf(w, "\n%s\n", color.New(color.Bold).Sprint(report.File))
	for _, res := range report.Results {
		switch res.Status {
		case browser.StatusPassed:
			fmt.Fprintf(w, "  %s %s %s\n", color.GreenString("✓"), res.Name,
				color.HiBlackString("(%s)", res.Duration.Round(time.Millisecond)))
		case browser.StatusSkipped:
			fmt.Fprintf(w, "  %s %s\n", color.YellowString("○ skipped"), res.Name)
		default:
			fmt.Fprintf(w, "  %s %s\n", color.RedString("✕"), res.Name)
			fmt.Fprintf(w, "      %s\n", color.RedString("%s", res.Message))
		}
	}
	fmt.Fprintf(w, "\nTests: %s, %s, %s, %d total (%s)\n",
		color.RedString("%d failed", report.Count(browser.StatusFailed)),
		color.YellowString("%d skipped", report.Count(browser.StatusSkipped)),
		color.GreenString("%d passed", report.Count(browser.StatusPassed)),
		len(report.Results), report.Elapsed.Round(time.Millisecond))
}

func printSummary(w io.Writer, metrics []k6ext.MetricSummary) {
	if len(metrics) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, m := range metrics {
		keys := make([]string, 0, len(m.Values))
		for k := range m.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%.2f", k, m.Values[k]))
		}
		fmt.Fprintf(w, "  %s %s\n", color.CyanString("%-30s", m.Name), strings.Join(parts, " "))
	}
}
