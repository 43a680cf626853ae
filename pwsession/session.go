// Package pwsession implements a browser session over Playwright, as an
// alternative to the built-in CDP client.
package pwsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/common"
	"github.com/editorqa/uidriver/common/js"
	"github.com/editorqa/uidriver/log"
)

// Factory creates Playwright sessions. It implements api.SessionFactory.
type Factory struct {
	Options *common.LaunchOptions
	Logger  *log.Logger
}

var _ api.SessionFactory = &Factory{}

// NewSession launches, or connects to, a browser and opens a page.
func (f *Factory) NewSession(ctx context.Context) (api.Session, error) {
	return Launch(ctx, f.Options, f.Logger)
}

// Session is a Playwright page under automation.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	logger  *log.Logger

	mu           sync.Mutex
	logs         []api.LogEntry
	dialog       playwright.Dialog
	dialogOpened chan struct{}
	closed       bool
}

var _ api.Session = &Session{}

// Launch starts the Playwright driver and a Chromium, or connects over CDP
// when opts.WSURL is set, then opens a page sized to opts.WindowSize.
// The Playwright driver and browsers must already be installed.
func Launch(ctx context.Context, opts *common.LaunchOptions, logger *log.Logger) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	var browser playwright.Browser
	if opts.WSURL != "" {
		logger.Infof("pwsession:Launch", "connecting over CDP to %q", opts.WSURL)
		browser, err = pw.Chromium.ConnectOverCDP(opts.WSURL, playwright.BrowserTypeConnectOverCDPOptions{
			Timeout: timeoutMS(ctx, opts.Timeout),
		})
	} else {
		logger.Infof("pwsession:Launch", "launching chromium headless:%t", opts.Headless)
		browser, err = pw.Chromium.Launch(launchOptions(ctx, opts))
	}
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{
			Width:  int(opts.WindowSize.Width),
			Height: int(opts.WindowSize.Height),
		},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("opening page: %w", err)
	}

	s := &Session{
		pw:           pw,
		browser:      browser,
		page:         page,
		logger:       logger,
		dialogOpened: make(chan struct{}, 1),
	}
	s.initEvents()

	return s, nil
}

func launchOptions(ctx context.Context, opts *common.LaunchOptions) playwright.BrowserTypeLaunchOptions {
	lo := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Timeout:  timeoutMS(ctx, opts.Timeout),
	}
	if opts.ExecutablePath != "" {
		lo.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	for _, a := range opts.Args {
		lo.Args = append(lo.Args, "--"+a)
	}
	return lo
}

func (s *Session) initEvents() {
	s.page.OnConsole(func(msg playwright.ConsoleMessage) {
		entry := api.LogEntry{
			Level:     api.ConsoleLevel(msg.Type()),
			Text:      msg.Text(),
			Source:    "console-api",
			Timestamp: time.Now(),
		}
		if loc := msg.Location(); loc != nil {
			entry.URL = loc.URL
		}
		s.addLog(entry)
	})
	s.page.OnPageError(func(err error) {
		s.addLog(api.LogEntry{
			Level:     "error",
			Text:      err.Error(),
			Source:    "exception",
			Timestamp: time.Now(),
		})
	})
	s.page.OnDialog(func(d playwright.Dialog) {
		s.logger.Debugf("pwsession:OnDialog", "type:%s message:%q", d.Type(), d.Message())

		s.mu.Lock()
		s.dialog = d
		s.mu.Unlock()
		select {
		case s.dialogOpened <- struct{}{}:
		default:
		}
	})
}

func (s *Session) addLog(e api.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
}

// checkScriptable fails when scripts cannot run: the session is closed or
// a dialog blocks the page.
func (s *Session) checkScriptable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return api.ErrSessionClosed
	case s.dialog != nil:
		return api.ErrDialogOpen
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.checkScriptable(ctx); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   timeoutMS(ctx, common.DefaultTimeout),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("navigating to %q: %w", url, err)
	}
	return nil
}

// Evaluate runs expression in the page and returns its JSON value.
func (s *Session) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	if err := s.checkScriptable(ctx); err != nil {
		return nil, err
	}
	v, err := s.page.Evaluate(expression)
	if err != nil {
		return nil, fmt.Errorf("evaluating script: %w", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding script result: %w", err)
	}
	return raw, nil
}

// QueryXPath returns a snapshot of the elements matching xpath.
func (s *Session) QueryXPath(ctx context.Context, xpath, scope string) ([]api.Element, error) {
	expr, err := js.Call("query", xpath, scope)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	raw, err := s.Evaluate(ctx, expr)
	if err != nil {
		return nil, fmt.Errorf("querying %q: %w", xpath, err)
	}
	return decodeElements(raw)
}

// Click clicks the center of the index-th element matching xpath. It
// returns as soon as the click opens a dialog.
func (s *Session) Click(ctx context.Context, xpath, scope string, index int, button api.MouseButton) error {
	expr, err := js.Call("clickPoint", xpath, scope, index)
	if err != nil {
		return err //nolint:wrapcheck
	}
	raw, err := s.Evaluate(ctx, expr)
	if err != nil {
		return fmt.Errorf("locating click point of %q: %w", xpath, err)
	}
	x, y, err := decodeClickPoint(raw)
	if err != nil {
		return fmt.Errorf("clicking %q: %w", xpath, err)
	}

	// A dialog opened before this click was already seen by checkScriptable.
	select {
	case <-s.dialogOpened:
	default:
	}

	done := make(chan error, 1)
	go func() {
		done <- s.page.Mouse().Click(x, y, playwright.MouseClickOptions{
			Button: mouseButton(button),
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("clicking %q: %w", xpath, err)
		}
	case <-s.dialogOpened:
		s.logger.Debugf("pwsession:Click", "xpath:%q opened a dialog", xpath)
	case <-ctx.Done():
		return fmt.Errorf("clicking %q: %w", xpath, ctx.Err())
	}

	return nil
}

// InsertText types text into the focused element.
func (s *Session) InsertText(ctx context.Context, text string) error {
	if err := s.checkScriptable(ctx); err != nil {
		return err
	}
	if err := s.page.Keyboard().Type(text); err != nil {
		return fmt.Errorf("typing text: %w", err)
	}
	return nil
}

// PressKey presses key, e.g. "Enter" or "Control+a".
func (s *Session) PressKey(ctx context.Context, key string) error {
	if err := s.checkScriptable(ctx); err != nil {
		return err
	}
	if err := s.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("pressing %q: %w", key, err)
	}
	return nil
}

// Logs drains the console entries collected since the previous call.
func (s *Session) Logs(context.Context) ([]api.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, api.ErrSessionClosed
	}
	out := s.logs
	s.logs = nil
	if out == nil {
		out = []api.LogEntry{}
	}
	return out, nil
}

// HandleDialog accepts or dismisses the open dialog.
func (s *Session) HandleDialog(ctx context.Context, accept bool) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}
	s.mu.Lock()
	d := s.dialog
	s.dialog = nil
	closed := s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return api.ErrSessionClosed
	case d == nil:
		return api.ErrNoDialog
	}

	var err error
	if accept {
		err = d.Accept()
	} else {
		err = d.Dismiss()
	}
	if err != nil {
		return fmt.Errorf("handling %s dialog: %w", d.Type(), err)
	}
	return nil
}

// WindowSize returns the page viewport size.
func (s *Session) WindowSize(ctx context.Context) (api.Size, error) {
	if err := ctx.Err(); err != nil {
		return api.Size{}, err //nolint:wrapcheck
	}
	vs := s.page.ViewportSize()
	if vs == nil {
		return api.Size{}, errors.New("page has no fixed viewport")
	}
	return api.Size{Width: int64(vs.Width), Height: int64(vs.Height)}, nil
}

// SetWindowSize resizes the page viewport.
func (s *Session) SetWindowSize(ctx context.Context, size api.Size) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}
	if err := s.page.SetViewportSize(int(size.Width), int(size.Height)); err != nil {
		return fmt.Errorf("setting viewport size to %s: %w", size, err)
	}
	return nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck
	}
	buf, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

// Quit closes the browser and stops the Playwright driver. It is safe to
// call more than once.
func (s *Session) Quit(context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing browser: %w", err))
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping playwright: %w", err))
	}
	return errors.Join(errs...)
}

func decodeElements(raw json.RawMessage) ([]api.Element, error) {
	var elems []api.Element
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("decoding elements: %w", err)
	}
	return elems, nil
}

func decodeClickPoint(raw json.RawMessage) (x, y float64, err error) {
	var pt struct {
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
		Error string  `json:"error"`
	}
	if err := json.Unmarshal(raw, &pt); err != nil {
		return 0, 0, fmt.Errorf("decoding click point: %w", err)
	}
	if pt.Error != "" {
		return 0, 0, fmt.Errorf("%w: %s", api.ErrNotInteractable, pt.Error)
	}
	return pt.X, pt.Y, nil
}

func mouseButton(b api.MouseButton) *playwright.MouseButton {
	if b == api.MouseButtonRight {
		return playwright.MouseButtonRight
	}
	return playwright.MouseButtonLeft
}

// timeoutMS returns the time left before the deadline of ctx, or def, in
// the milliseconds Playwright expects.
func timeoutMS(ctx context.Context, def time.Duration) *float64 {
	d := def
	if deadline, ok := ctx.Deadline(); ok {
		d = time.Until(deadline)
		if d < time.Millisecond {
			d = time.Millisecond
		}
	}
	return playwright.Float(float64(d.Milliseconds()))
}
