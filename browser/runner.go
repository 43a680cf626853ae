// Package browser runs scenario scripts written in JavaScript against a
// driver, in the style of a describe/test suite.
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/editorqa/uidriver/driver"
	"github.com/editorqa/uidriver/log"
)

type testCase struct {
	name string
	fn   goja.Callable
	skip bool
}

// suite is a describe block. Its items are tests and nested suites, in
// declaration order.
type suite struct {
	name      string
	beforeAll []goja.Callable
	afterAll  []goja.Callable
	items     []suiteItem
}

type suiteItem struct {
	test  *testCase
	suite *suite
}

// Runner runs scenario scripts. The driver helpers of a script share the
// session of the runner's harness.
type Runner struct {
	harness *driver.Harness
	logger  *log.Logger
}

// NewRunner returns a Runner driving the sessions of harness.
func NewRunner(harness *driver.Harness, logger *log.Logger) *Runner {
	return &Runner{harness: harness, logger: logger}
}

// RunFile runs the scenario script at path.
func (r *Runner) RunFile(ctx context.Context, path string) (*Report, error) {
	src, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading scenario script: %w", err)
	}
	return r.Run(ctx, path, string(src))
}

// Run loads the script src, collecting its suites and tests, then runs
// them in order. It only returns an error when the script itself cannot
// be loaded: test failures are in the report.
func (r *Runner) Run(ctx context.Context, name, src string) (*Report, error) {
	start := time.Now()

	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	vu := &scriptVU{
		ctx:     ctx,
		rt:      rt,
		harness: r.harness,
		logger:  r.logger,
		root:    &suite{},
	}
	vu.current = vu.root
	if err := vu.install(); err != nil {
		return nil, fmt.Errorf("setting up script runtime: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { rt.Interrupt(ctx.Err()) })
	defer stop()

	if _, err := rt.RunScript(name, src); err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}

	report := &Report{File: name}
	vu.runSuite(vu.root, "", report)
	report.Elapsed = time.Since(start)

	return report, nil
}

// scriptVU is the state of one script run. It is only used from the
// goroutine running the script.
type scriptVU struct {
	ctx     context.Context
	rt      *goja.Runtime
	harness *driver.Harness
	logger  *log.Logger

	root    *suite
	current *suite
}

func (vu *scriptVU) driver() (*driver.Driver, error) {
	return vu.harness.GetDriver(vu.ctx) //nolint:wrapcheck
}

func (vu *scriptVU) runSuite(s *suite, prefix string, report *Report) {
	name := joinName(prefix, s.name)

	var hookErr error
	for _, fn := range s.beforeAll {
		if err := vu.call(fn); err != nil {
			hookErr = fmt.Errorf("beforeAll: %w", err)
			break
		}
	}

	for _, it := range s.items {
		switch {
		case it.suite != nil && hookErr != nil:
			vu.failSuite(it.suite, name, hookErr, report)
		case it.suite != nil:
			vu.runSuite(it.suite, name, report)
		case it.test.skip:
			vu.record(report, Result{Name: joinName(name, it.test.name), Status: StatusSkipped})
		case hookErr != nil:
			vu.record(report, Result{
				Name:    joinName(name, it.test.name),
				Status:  StatusFailed,
				Message: hookErr.Error(),
			})
		default:
			vu.runTest(it.test, name, report)
		}
	}

	for _, fn := range s.afterAll {
		if err := vu.call(fn); err != nil {
			vu.record(report, Result{
				Name:    joinName(name, "afterAll"),
				Status:  StatusFailed,
				Message: err.Error(),
			})
		}
	}
}

// failSuite fails every test under s, whose parent's beforeAll failed.
func (vu *scriptVU) failSuite(s *suite, prefix string, cause error, report *Report) {
	name := joinName(prefix, s.name)
	for _, it := range s.items {
		switch {
		case it.suite != nil:
			vu.failSuite(it.suite, name, cause, report)
		case it.test.skip:
			vu.record(report, Result{Name: joinName(name, it.test.name), Status: StatusSkipped})
		default:
			vu.record(report, Result{Name: joinName(name, it.test.name), Status: StatusFailed, Message: cause.Error()})
		}
	}
}

func (vu *scriptVU) runTest(tc *testCase, prefix string, report *Report) {
	name := joinName(prefix, tc.name)
	vu.logger.Debugf("Runner:runTest", "running %q", name)

	start := time.Now()
	err := vu.call(tc.fn)
	res := Result{Name: name, Status: StatusPassed, Duration: time.Since(start)}
	if err != nil {
		res.Status = StatusFailed
		res.Message = err.Error()
	}
	vu.record(report, res)
}

func (vu *scriptVU) record(report *Report, res Result) {
	switch res.Status {
	case StatusFailed:
		vu.logger.Warnf("Runner:record", "%s %q: %s", res.Status, res.Name, res.Message)
	default:
		vu.logger.Infof("Runner:record", "%s %q in %s", res.Status, res.Name, res.Duration)
	}
	report.add(res)
}

// call runs a script function, turning exceptions and Go panics into
// errors.
func (vu *scriptVU) call(fn goja.Callable) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if err := vu.ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}
	if _, err := fn(goja.Undefined()); err != nil {
		return scriptError(err)
	}
	return nil
}

// scriptError strips the JS stack from exceptions.
func scriptError(err error) error {
	if ex, ok := err.(*goja.Exception); ok { //nolint:errorlint
		return fmt.Errorf("%s", ex.Value().String())
	}
	if ie, ok := err.(*goja.InterruptedError); ok { //nolint:errorlint
		return fmt.Errorf("interrupted: %v", ie.Value())
	}
	return err
}

func joinName(prefix, name string) string {
	return strings.TrimSpace(prefix + " " + name)
}
