package tests

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/mccutchen/go-httpbin/httpbin"
	"github.com/stretchr/testify/require"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/common"
	"github.com/editorqa/uidriver/driver"
	"github.com/editorqa/uidriver/env"
	"github.com/editorqa/uidriver/log"
	"github.com/editorqa/uidriver/pwsession"
)

// testDriver is a driver attached to a real browser, plus a test server
// with httpbin and the static pages under testdata/static.
type testDriver struct {
	t testing.TB
	*driver.Driver

	ctx     context.Context
	harness *driver.Harness
	srv     *httptest.Server
}

type testDriverOptions struct {
	backend string
	opts    *driver.Options
}

type testDriverOption func(*testDriverOptions)

// withBackend selects the session backend, "cdp" or "playwright".
func withBackend(backend string) testDriverOption {
	return func(o *testDriverOptions) { o.backend = backend }
}

// withTimeout sets the timeout of every find and click.
func withTimeout(d time.Duration) testDriverOption {
	return func(o *testDriverOptions) { o.opts.Timeout = d }
}

// withScreenshots saves failure screenshots to dir.
func withScreenshots(dir string) testDriverOption {
	return func(o *testDriverOptions) { o.opts.ScreenshotsDir = dir }
}

// newTestDriver launches a browser and returns a driver for it. The test
// is skipped in short mode or when no browser can be started.
func newTestDriver(tb testing.TB, opts ...testDriverOption) *testDriver {
	tb.Helper()

	if testing.Short() {
		tb.Skip("skipping browser test in short mode")
	}

	o := testDriverOptions{opts: driver.NewOptions()}
	o.backend, _ = env.Lookup(env.Backend)
	o.opts.Timeout = 3 * time.Second
	o.opts.PollInterval = 50 * time.Millisecond
	for _, opt := range opts {
		opt(&o)
	}

	launchOpts := common.NewLaunchOptions()
	if err := launchOpts.Parse(env.Lookup, log.NewNullLogger()); err != nil {
		tb.Fatalf("parsing launch options: %v", err)
	}
	o.opts.WindowSize = launchOpts.WindowSize

	var factory api.SessionFactory
	switch o.backend {
	case "", "cdp":
		if _, err := common.FindExecutable(launchOpts.ExecutablePath, exec.LookPath); err != nil &&
			launchOpts.WSURL == "" {
			tb.Skipf("skipping browser test: %v", err)
		}
		factory = &common.BrowserType{Options: launchOpts, Logger: log.NewNullLogger()}
	case "playwright":
		factory = &pwsession.Factory{Options: launchOpts, Logger: log.NewNullLogger()}
	default:
		tb.Fatalf("unknown backend %q", o.backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	tb.Cleanup(cancel)

	h := driver.NewHarness(factory, o.opts, log.NewNullLogger())
	d, err := h.GetDriver(ctx)
	if err != nil {
		if o.backend == "playwright" {
			tb.Skipf("skipping playwright test: %v", err)
		}
		tb.Fatalf("starting browser: %v", err)
	}
	tb.Cleanup(func() {
		if err := h.Quit(context.Background()); err != nil {
			tb.Logf("quitting browser: %v", err)
		}
	})

	srv := httptest.NewServer(newTestMux())
	tb.Cleanup(srv.Close)

	return &testDriver{
		t:       tb,
		Driver:  d,
		ctx:     ctx,
		harness: h,
		srv:     srv,
	}
}

func newTestMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("testdata/static"))))
	mux.Handle("/", httpbin.New().Handler())
	return mux
}

// URL returns the test server URL of path.
func (d *testDriver) URL(path string) string {
	return d.srv.URL + path
}

// staticURL returns the URL of a page under testdata/static.
func (d *testDriver) staticURL(path string) string {
	return d.URL("/static/" + strings.TrimPrefix(path, "/"))
}

// load navigates to uri and fails the test on error.
func (d *testDriver) load(uri string) {
	d.t.Helper()
	require.NoError(d.t, d.LoadURI(d.ctx, uri))
}

// text returns the text content of the element with id.
func (d *testDriver) text(id string) string {
	d.t.Helper()
	el, err := d.FindByXPath(d.ctx, `//*[@id="`+id+`"]`)
	require.NoError(d.t, err)
	return el.Text
}

// isTimeout tells whether err is a driver timeout.
func isTimeout(err error) bool {
	return errors.Is(err, driver.ErrTimeout)
}
