// Package driver provides retrying find, click and navigation primitives
// over a browser session, for scripting user journeys through a web UI.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/k6ext"
	"github.com/editorqa/uidriver/log"
	"github.com/editorqa/uidriver/storage"
	"github.com/editorqa/uidriver/trace"
)

// failureScreenshotTimeout bounds the screenshot taken after a failed
// operation, whose own context may already be done.
const failureScreenshotTimeout = 5 * time.Second

// Observer is notified of the outcome of every driver operation.
type Observer interface {
	Observe(ctx context.Context, op string, elapsed time.Duration, outcome string)
}

// Driver issues retrying primitives against one browser session. It is
// not safe for concurrent use: calls are expected one at a time.
type Driver struct {
	id        string
	session   api.Session
	opts      *Options
	logger    *log.Logger
	observer  Observer
	tracer    *trace.Tracer
	persister storage.FilePersister
}

// New returns a Driver over session. A nil opts uses NewOptions().
func New(session api.Session, opts *Options, logger *log.Logger) *Driver {
	if opts == nil {
		opts = NewOptions()
	}
	return &Driver{
		id:        uuid.NewString(),
		session:   session,
		opts:      opts,
		logger:    logger,
		tracer:    trace.NewNoopTracer(),
		persister: &storage.DirPersister{Dir: opts.ScreenshotsDir},
	}
}

// SetObserver sets the observer notified of every operation.
func (d *Driver) SetObserver(o Observer) {
	d.observer = o
}

// SetTracer sets the tracer recording every operation. A nil tracer
// records nothing.
func (d *Driver) SetTracer(t *trace.Tracer) {
	if t == nil {
		t = trace.NewNoopTracer()
	}
	d.tracer = t
}

// ID identifies the driver in traces.
func (d *Driver) ID() string {
	return d.id
}

// Session returns the underlying browser session.
func (d *Driver) Session() api.Session {
	return d.session
}

// Options returns the driver options.
func (d *Driver) Options() *Options {
	return d.opts
}

// LoadURI navigates to uri. A path without a scheme is loaded as a file,
// keeping its fragment. Once loaded, the page's beforeunload handler is
// cleared and the window is resized to the configured size.
func (d *Driver) LoadURI(ctx context.Context, uri string) (err error) {
	d.logger.Debugf("Driver:LoadURI", "uri:%q", uri)

	start := time.Now()
	target, err := NormalizeURI(uri)
	if err != nil {
		return &NavigationError{URI: uri, Err: err}
	}

	ctx, span := d.tracer.TraceNavigation(ctx, d.id, target)
	defer func() { trace.End(span, err) }()

	nctx, cancel := context.WithTimeout(ctx, d.opts.NavigationTimeout)
	defer cancel()

	err = d.session.Navigate(nctx, target)
	if err == nil {
		_, err = d.session.Evaluate(nctx, "window.onbeforeunload = null")
	}
	if err == nil && d.opts.WindowSize != (api.Size{}) {
		err = d.session.SetWindowSize(nctx, d.opts.WindowSize)
	}
	elapsed := time.Since(start)

	if err == nil {
		d.observe(ctx, k6ext.OpLoadURI, elapsed, k6ext.OutcomeOK)
		return nil
	}

	outcome := k6ext.OutcomeError
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		outcome = k6ext.OutcomeTimeout
		err = timeoutError(d.opts.NavigationTimeout, err)
	}
	d.observe(ctx, k6ext.OpLoadURI, elapsed, outcome)
	nerr := &NavigationError{URI: target, Elapsed: elapsed, Err: err}
	d.failureScreenshot(ctx, k6ext.OpLoadURI, target)

	return nerr
}

// NormalizeURI turns a filesystem path into a file:// URI, keeping a
// trailing #fragment. URIs with a scheme are returned as is.
func NormalizeURI(uri string) (string, error) {
	if uri == "" {
		return "", errors.New("empty URI")
	}
	// A single letter scheme is a Windows drive.
	if u, err := url.Parse(uri); err == nil && len(u.Scheme) > 1 {
		return uri, nil
	}

	p, fragment, _ := strings.Cut(uri, "#")
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", p, err)
	}
	abs = filepath.ToSlash(abs)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	u := url.URL{Scheme: "file", Path: abs, Fragment: fragment}

	return u.String(), nil
}

// FindByText waits for a visible element whose text equals text, in the
// first of scopes if given.
func (d *Driver) FindByText(ctx context.Context, text string, scopes ...Scope) (api.Element, error) {
	return d.find(ctx, ByText(text).within(scopes))
}

// FindByXPath waits for a visible element matching xpath. With a scope,
// xpath is evaluated relative to the scope's root.
func (d *Driver) FindByXPath(ctx context.Context, xpath string, scopes ...Scope) (api.Element, error) {
	return d.find(ctx, ByXPath(xpath).within(scopes))
}

// Find waits for a visible element matching loc.
func (d *Driver) Find(ctx context.Context, loc Locator) (api.Element, error) {
	return d.find(ctx, loc)
}

func (d *Driver) find(ctx context.Context, loc Locator) (_ api.Element, err error) {
	d.logger.Debugf("Driver:find", "locator:%s", loc)

	ctx, span := d.startSpan(ctx, k6ext.OpFind, loc)
	defer func() { trace.End(span, err) }()

	xpath, scope := loc.Compile()
	var found api.Element
	res, err := Poll(ctx, d.opts.PollInterval, d.opts.Timeout, func(ctx context.Context) (bool, error) {
		els, err := d.session.QueryXPath(ctx, xpath, scope)
		if err != nil {
			return false, retryable(err)
		}
		if i := firstVisible(els); i >= 0 {
			found = els[i]
			return true, nil
		}
		return false, nil
	})
	d.observeResult(ctx, k6ext.OpFind, res, err)

	switch {
	case err != nil:
		return api.Element{}, &NotFoundError{Locator: loc, Elapsed: res.Elapsed, Err: err}
	case !res.Matched:
		d.failureScreenshot(ctx, k6ext.OpFind, loc.String())
		return api.Element{}, &NotFoundError{
			Locator: loc,
			Elapsed: res.Elapsed,
			Err:     timeoutError(d.opts.Timeout, res.LastErr),
		}
	}

	return found, nil
}

// NotExistsByXPath waits until no visible element matches xpath. It
// returns at once when nothing matches on the first query.
func (d *Driver) NotExistsByXPath(ctx context.Context, xpath string) error {
	return d.notExists(ctx, ByXPath(xpath))
}

// NotExists waits until no visible element matches loc.
func (d *Driver) NotExists(ctx context.Context, loc Locator) error {
	return d.notExists(ctx, loc)
}

func (d *Driver) notExists(ctx context.Context, loc Locator) (err error) {
	d.logger.Debugf("Driver:notExists", "locator:%s", loc)

	ctx, span := d.startSpan(ctx, k6ext.OpNotExists, loc)
	defer func() { trace.End(span, err) }()

	xpath, scope := loc.Compile()
	var count int
	res, err := Poll(ctx, d.opts.PollInterval, d.opts.Timeout, func(ctx context.Context) (bool, error) {
		els, err := d.session.QueryXPath(ctx, xpath, scope)
		if err != nil {
			return false, retryable(err)
		}
		count = countVisible(els)
		return count == 0, nil
	})
	d.observeResult(ctx, k6ext.OpNotExists, res, err)

	switch {
	case err != nil:
		return &StillExistsError{Locator: loc, Count: count, Elapsed: res.Elapsed, Err: err}
	case !res.Matched:
		d.failureScreenshot(ctx, k6ext.OpNotExists, loc.String())
		return &StillExistsError{
			Locator: loc,
			Count:   count,
			Elapsed: res.Elapsed,
			Err:     timeoutError(d.opts.Timeout, res.LastErr),
		}
	}

	return nil
}

// ElementIsVisible reports whether a visible element matches xpath right
// now, without waiting.
func (d *Driver) ElementIsVisible(ctx context.Context, xpath string) (bool, error) {
	els, err := d.session.QueryXPath(ctx, xpath, "")
	if err != nil {
		return false, fmt.Errorf("querying %q: %w", xpath, err)
	}
	return firstVisible(els) >= 0, nil
}

// ClickText clicks the first visible element whose text equals text.
func (d *Driver) ClickText(ctx context.Context, text string, scopes ...Scope) error {
	return d.click(ctx, ByText(text).within(scopes), api.MouseButtonLeft)
}

// ClickXPath clicks the first visible element matching xpath.
func (d *Driver) ClickXPath(ctx context.Context, xpath string, scopes ...Scope) error {
	return d.click(ctx, ByXPath(xpath).within(scopes), api.MouseButtonLeft)
}

// ClickButton clicks the button labelled text, directly or in a child.
func (d *Driver) ClickButton(ctx context.Context, text string) error {
	lit := xpathLiteral(text)
	return d.click(ctx, ByXPath("//button[descendant-or-self::*[text()="+lit+"]]"), api.MouseButtonLeft)
}

// RightClickText opens the context menu of the first visible element
// whose text equals text.
func (d *Driver) RightClickText(ctx context.Context, text string, scopes ...Scope) error {
	return d.click(ctx, ByText(text).within(scopes), api.MouseButtonRight)
}

// Click clicks the first visible element matching loc with button.
func (d *Driver) Click(ctx context.Context, loc Locator, button api.MouseButton) error {
	return d.click(ctx, loc, button)
}

// click retries until a visible match accepts the click. A match that
// stays obscured or disabled fails with a ClickError, no match at all
// with a NotFoundError.
func (d *Driver) click(ctx context.Context, loc Locator, button api.MouseButton) (err error) {
	d.logger.Debugf("Driver:click", "locator:%s button:%s", loc, button)

	ctx, span := d.startSpan(ctx, k6ext.OpClick, loc, attribute.String("uidriver.button", string(button)))
	defer func() { trace.End(span, err) }()

	xpath, scope := loc.Compile()
	var found bool
	res, err := Poll(ctx, d.opts.PollInterval, d.opts.Timeout, func(ctx context.Context) (bool, error) {
		els, err := d.session.QueryXPath(ctx, xpath, scope)
		if err != nil {
			return false, retryable(err)
		}
		i := firstVisible(els)
		if i < 0 {
			return false, nil
		}
		found = true
		if err := d.session.Click(ctx, xpath, scope, els[i].Index, button); err != nil {
			return false, retryable(err)
		}
		return true, nil
	})
	d.observeResult(ctx, k6ext.OpClick, res, err)

	if err == nil && res.Matched {
		return nil
	}
	if err == nil {
		err = timeoutError(d.opts.Timeout, res.LastErr)
		d.failureScreenshot(ctx, k6ext.OpClick, loc.String())
	}
	if found {
		return &ClickError{Locator: loc, Elapsed: res.Elapsed, Err: err}
	}
	return &NotFoundError{Locator: loc, Elapsed: res.Elapsed, Err: err}
}

// TypeText types text into the focused element.
func (d *Driver) TypeText(ctx context.Context, text string) error {
	if err := d.session.InsertText(ctx, text); err != nil {
		return fmt.Errorf("typing text: %w", err)
	}
	return nil
}

// PressKey presses key, e.g. "Enter" or "Control+a", on the focused
// element.
func (d *Driver) PressKey(ctx context.Context, key string) error {
	if err := d.session.PressKey(ctx, key); err != nil {
		return fmt.Errorf("pressing %q: %w", key, err)
	}
	return nil
}

// AcceptAlert waits for a JavaScript dialog and accepts it.
func (d *Driver) AcceptAlert(ctx context.Context) error {
	return d.handleDialog(ctx, true)
}

// DismissAlert waits for a JavaScript dialog and dismisses it.
func (d *Driver) DismissAlert(ctx context.Context) error {
	return d.handleDialog(ctx, false)
}

func (d *Driver) handleDialog(ctx context.Context, accept bool) (err error) {
	d.logger.Debugf("Driver:handleDialog", "accept:%t", accept)

	ctx, span := d.tracer.TraceAPICall(ctx, d.id, "driver."+k6ext.OpDialog)
	defer func() { trace.End(span, err) }()

	res, err := Poll(ctx, d.opts.PollInterval, d.opts.Timeout, func(ctx context.Context) (bool, error) {
		err := d.session.HandleDialog(ctx, accept)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, api.ErrNoDialog):
			return false, nil
		default:
			return false, retryable(err)
		}
	})
	d.observeResult(ctx, k6ext.OpDialog, res, err)

	action := "dismissing"
	if accept {
		action = "accepting"
	}
	switch {
	case err != nil:
		return fmt.Errorf("%s dialog: %w", action, err)
	case !res.Matched:
		lastErr := res.LastErr
		if lastErr == nil {
			lastErr = api.ErrNoDialog
		}
		return fmt.Errorf("%s dialog: %w", action, timeoutError(d.opts.Timeout, lastErr))
	}
	d.tracer.AddEvent(d.id, "dialog", attribute.Bool("accepted", accept))

	return nil
}

// WindowSize returns the size of the browser window.
func (d *Driver) WindowSize(ctx context.Context) (api.Size, error) {
	s, err := d.session.WindowSize(ctx)
	if err != nil {
		return api.Size{}, fmt.Errorf("getting window size: %w", err)
	}
	return s, nil
}

// SetWindowSize resizes the browser window.
func (d *Driver) SetWindowSize(ctx context.Context, size api.Size) error {
	if err := d.session.SetWindowSize(ctx, size); err != nil {
		return fmt.Errorf("setting window size to %s: %w", size, err)
	}
	return nil
}

// Screenshot captures the page as PNG and writes it to path, relative to
// the screenshots directory if set.
func (d *Driver) Screenshot(ctx context.Context, path string) error {
	buf, err := d.session.Screenshot(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "capturing screenshot")
	}
	if err := d.persister.Persist(ctx, path, bytes.NewReader(buf)); err != nil {
		return pkgerrors.Wrapf(err, "saving screenshot to %q", path)
	}
	return nil
}

// GetLogs drains the console entries collected since the previous call.
// Entries containing the default ignored messages, or any of ignore, are
// dropped. The result is never nil.
func (d *Driver) GetLogs(ctx context.Context, ignore ...string) ([]api.LogEntry, error) {
	entries, err := d.session.Logs(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting logs: %w", err)
	}

	ignored := append(append([]string(nil), d.opts.IgnoredLogs...), ignore...)
	out := make([]api.LogEntry, 0, len(entries))
	for _, e := range entries {
		if !containsAny(e.Text, ignored) {
			out = append(out, e)
		}
	}

	return out, nil
}

// failureScreenshot saves the page after a failed operation when a
// screenshots directory is set.
func (d *Driver) failureScreenshot(ctx context.Context, op, label string) {
	if d.opts.ScreenshotsDir == "" {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureScreenshotTimeout)
	defer cancel()

	name := storage.SafeFileName(fmt.Sprintf("%s_%s_%s", time.Now().Format("20060102T150405.000"), op, label), ".png")
	if err := d.Screenshot(sctx, name); err != nil {
		d.logger.Warnf("Driver:failureScreenshot", "op:%s label:%q err:%v", op, label, err)
		return
	}
	d.logger.Infof("Driver:failureScreenshot", "saved %q", filepath.Join(d.opts.ScreenshotsDir, name))
}

// startSpan starts the span of an operation on loc.
func (d *Driver) startSpan(ctx context.Context, op string, loc Locator, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	attrs = append(attrs, attribute.String("uidriver.locator", loc.String()))
	return d.tracer.TraceAPICall(ctx, d.id, "driver."+op, oteltrace.WithAttributes(attrs...))
}

func (d *Driver) observeResult(ctx context.Context, op string, res PollResult, err error) {
	outcome := k6ext.OutcomeOK
	switch {
	case err != nil:
		outcome = k6ext.OutcomeError
	case !res.Matched:
		outcome = k6ext.OutcomeTimeout
	}
	d.observe(ctx, op, res.Elapsed, outcome)
}

func (d *Driver) observe(ctx context.Context, op string, elapsed time.Duration, outcome string) {
	if d.observer == nil {
		return
	}
	d.observer.Observe(ctx, op, elapsed, outcome)
}

// retryable marks the session errors that no amount of waiting fixes as
// permanent.
func retryable(err error) error {
	if errors.Is(err, api.ErrSessionClosed) || errors.Is(err, api.ErrDialogOpen) {
		return Permanent(err)
	}
	return err
}

func firstVisible(els []api.Element) int {
	for i, el := range els {
		if el.Visible {
			return i
		}
	}
	return -1
}

func countVisible(els []api.Element) int {
	var n int
	for _, el := range els {
		if el.Visible {
			n++
		}
	}
	return n
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
