/*
 *
 * xk6-browser - a browser automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	cdplog "github.com/chromedp/cdproto/log"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/cdp"
	"github.com/editorqa/uidriver/common/js"
	"github.com/editorqa/uidriver/log"
)

// Ensure Browser implements the api.Session interface.
var _ api.Session = &Browser{}

const (
	BrowserStateOpen int64 = iota
	BrowserStateClosing
	BrowserStateClosed
)

// Browser is a CDP connection to a browser, attached to one page target.
type Browser struct {
	ctx      context.Context
	cancelFn context.CancelFunc

	state int64

	browserProc *BrowserProcess
	launchOpts  *LaunchOptions

	cdpClient *cdp.Client
	keyboard  *Keyboard

	targetID  string
	sessionID string

	// Cancel function to stop event listening
	evCancelFn context.CancelFunc

	logsMu sync.Mutex
	logs   []api.LogEntry

	dialogMu sync.Mutex
	dialog   *cdppage.EventJavascriptDialogOpening

	logger *log.Logger
}

// NewBrowser creates a new browser, connects to it, attaches to a page and
// returns it.
func NewBrowser(
	ctx context.Context,
	cancel context.CancelFunc,
	browserProc *BrowserProcess,
	launchOpts *LaunchOptions,
	logger *log.Logger,
) (*Browser, error) {
	b := newBrowser(ctx, cancel, browserProc, launchOpts, logger)
	if err := b.connect(); err != nil {
		b.cdpClient.Disconnect()
		return nil, err
	}
	return b, nil
}

// newBrowser returns a ready to use Browser without connecting to an actual browser.
func newBrowser(
	ctx context.Context,
	cancelFn context.CancelFunc,
	browserProc *BrowserProcess,
	launchOpts *LaunchOptions,
	logger *log.Logger,
) *Browser {
	client := cdp.NewClient(ctx, logger)
	return &Browser{
		ctx:         ctx,
		cdpClient:   client,
		keyboard:    NewKeyboard(client.Input),
		cancelFn:    cancelFn,
		state:       BrowserStateOpen,
		browserProc: browserProc,
		launchOpts:  launchOpts,
		logger:      logger,
	}
}

func (b *Browser) connect() error {
	b.logger.Debugf("Browser:connect", "wsURL:%q", b.browserProc.WsURL())
	if err := b.cdpClient.Connect(b.browserProc.WsURL()); err != nil {
		return fmt.Errorf("connecting to browser DevTools URL: %w", err)
	}

	go func() {
		<-b.cdpClient.Done()
		b.logger.Debugf("Browser:connect", "connection closed: %v", b.cdpClient.Err())
		if atomic.LoadInt64(&b.state) == BrowserStateOpen {
			b.browserProc.markDisconnected()
		}
	}()

	ctx, cancel := context.WithTimeout(b.ctx, b.launchOpts.Timeout)
	defer cancel()

	return b.attach(ctx)
}

// attach attaches to the first page target, or to a new one, and starts
// collecting its console messages and dialogs.
func (b *Browser) attach(ctx context.Context) error {
	targets, err := b.cdpClient.Target.GetTargets(ctx)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if t.Type == "page" {
			b.targetID = t.ID
			break
		}
	}
	if b.targetID == "" {
		if b.targetID, err = b.cdpClient.Target.CreateTarget(ctx, "about:blank"); err != nil {
			return err
		}
	}

	if b.sessionID, err = b.cdpClient.Target.AttachToTarget(ctx, b.targetID); err != nil {
		return err
	}
	b.logger.Debugf("Browser:attach", "tid:%v sid:%v", b.targetID, b.sessionID)

	b.initEvents()

	sctx := cdp.WithSessionID(ctx, b.sessionID)
	if err := b.cdpClient.Page.Enable(sctx); err != nil {
		return err
	}
	if err := b.cdpClient.Runtime.Enable(sctx); err != nil {
		return err
	}
	if err := b.cdpClient.Log.Enable(sctx); err != nil {
		return err
	}

	return nil
}

func (b *Browser) initEvents() {
	var cancelCtx context.Context
	cancelCtx, b.evCancelFn = context.WithCancel(b.ctx)

	events, unsubscribe := b.cdpClient.Subscribe(b.sessionCtx(cancelCtx),
		cdproto.EventRuntimeConsoleAPICalled,
		cdproto.EventRuntimeExceptionThrown,
		cdproto.EventLogEntryAdded,
		cdproto.EventPageJavascriptDialogOpening,
		cdproto.EventPageJavascriptDialogClosed,
	)

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-cancelCtx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				b.onEvent(event)
			}
		}
	}()
}

func (b *Browser) onEvent(event *cdp.Event) {
	switch ev := event.Data.(type) {
	case *cdpruntime.EventConsoleAPICalled:
		b.appendLog(consoleLogEntry(ev))
	case *cdpruntime.EventExceptionThrown:
		b.appendLog(exceptionLogEntry(ev))
	case *cdplog.EventEntryAdded:
		b.appendLog(browserLogEntry(ev))
	case *cdppage.EventJavascriptDialogOpening:
		b.logger.Debugf("Browser:onEvent", "dialog opening type:%s message:%q", ev.Type, ev.Message)
		b.dialogMu.Lock()
		b.dialog = ev
		b.dialogMu.Unlock()
	case *cdppage.EventJavascriptDialogClosed:
		b.logger.Debugf("Browser:onEvent", "dialog closed result:%t", ev.Result)
		b.dialogMu.Lock()
		b.dialog = nil
		b.dialogMu.Unlock()
	}
}

func (b *Browser) appendLog(entry api.LogEntry) {
	b.logsMu.Lock()
	defer b.logsMu.Unlock()
	b.logs = append(b.logs, entry)
}

func (b *Browser) sessionCtx(ctx context.Context) context.Context {
	return cdp.WithSessionID(ctx, b.sessionID)
}

func (b *Browser) openDialog() *cdppage.EventJavascriptDialogOpening {
	b.dialogMu.Lock()
	defer b.dialogMu.Unlock()
	return b.dialog
}

func (b *Browser) checkOpen() error {
	if atomic.LoadInt64(&b.state) != BrowserStateOpen {
		return api.ErrSessionClosed
	}
	return nil
}

// checkScriptable returns an error if scripts cannot run in the page.
func (b *Browser) checkScriptable() error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if d := b.openDialog(); d != nil {
		return fmt.Errorf("%w: %s %q", api.ErrDialogOpen, d.Type, d.Message)
	}
	return nil
}

// Navigate loads url in the page and waits for its load event. Navigating
// to a fragment of the current document returns without waiting.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.launchOpts.Timeout)
	defer cancel()
	sctx := b.sessionCtx(ctx)

	loaded, unsubscribe := b.cdpClient.Subscribe(sctx, cdproto.EventPageLoadEventFired)
	defer unsubscribe()

	loaderID, err := b.cdpClient.Page.Navigate(sctx, url)
	if err != nil {
		return err
	}
	if loaderID == "" {
		// Same-document navigation, e.g. only the fragment changed.
		return nil
	}

	select {
	case _, ok := <-loaded:
		if !ok {
			return fmt.Errorf("waiting for %q to load: %w", url, cdp.ErrConnectionClosed)
		}
		return nil
	case <-b.cdpClient.Done():
		return fmt.Errorf("waiting for %q to load: %w", url, cdp.ErrConnectionClosed)
	case <-ctx.Done():
		return fmt.Errorf("waiting for %q to load: %w", url, ctx.Err())
	}
}

// QueryXPath returns a snapshot of the elements matching xpath.
func (b *Browser) QueryXPath(ctx context.Context, xpath, scope string) ([]api.Element, error) {
	expr, err := js.Call("query", xpath, scope)
	if err != nil {
		return nil, err
	}
	raw, err := b.Evaluate(ctx, expr)
	if err != nil {
		return nil, fmt.Errorf("querying %q: %w", xpath, err)
	}

	var elems []api.Element
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("decoding elements matching %q: %w", xpath, err)
	}
	return elems, nil
}

type clickPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Error string  `json:"error"`
}

// Click clicks the center of the index-th element matching xpath. The
// click returns once dispatched, or as soon as it opens a JavaScript dialog,
// which would otherwise block it.
func (b *Browser) Click(ctx context.Context, xpath, scope string, index int, button api.MouseButton) error {
	expr, err := js.Call("clickPoint", xpath, scope, index)
	if err != nil {
		return err
	}
	raw, err := b.Evaluate(ctx, expr)
	if err != nil {
		return fmt.Errorf("locating click point of %q: %w", xpath, err)
	}
	var pt clickPoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return fmt.Errorf("decoding click point of %q: %w", xpath, err)
	}
	if pt.Error != "" {
		return fmt.Errorf("clicking %q: %w: %s", xpath, api.ErrNotInteractable, pt.Error)
	}

	sctx := b.sessionCtx(ctx)
	dialogs, unsubscribe := b.cdpClient.Subscribe(sctx, cdproto.EventPageJavascriptDialogOpening)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		done <- b.cdpClient.Input.MouseClick(sctx, pt.X, pt.Y, string(button))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("clicking %q: %w", xpath, err)
		}
		return nil
	case _, ok := <-dialogs:
		if !ok {
			return fmt.Errorf("clicking %q: %w", xpath, cdp.ErrConnectionClosed)
		}
		b.logger.Debugf("Browser:Click", "click on %q opened a dialog", xpath)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("clicking %q: %w", xpath, ctx.Err())
	}
}

// Evaluate evaluates expression in the page and returns its JSON value.
func (b *Browser) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	if err := b.checkScriptable(); err != nil {
		return nil, err
	}
	return b.cdpClient.Runtime.Evaluate(b.sessionCtx(ctx), expression) //nolint:wrapcheck
}

// InsertText types text into the focused element with a key press per
// character. Characters the keyboard layout lacks are inserted directly.
func (b *Browser) InsertText(ctx context.Context, text string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.keyboard.Type(b.sessionCtx(ctx), text)
}

// PressKey presses and releases key, e.g. "Enter" or "Control+a".
func (b *Browser) PressKey(ctx context.Context, key string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.keyboard.Press(b.sessionCtx(ctx), key)
}

// Logs drains the console entries collected since the previous call.
func (b *Browser) Logs(context.Context) ([]api.LogEntry, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	b.logsMu.Lock()
	defer b.logsMu.Unlock()
	logs := b.logs
	b.logs = nil
	if logs == nil {
		logs = []api.LogEntry{}
	}
	return logs, nil
}

// HandleDialog accepts or dismisses the open JavaScript dialog.
func (b *Browser) HandleDialog(ctx context.Context, accept bool) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.openDialog() == nil {
		return api.ErrNoDialog
	}
	if err := b.cdpClient.Page.HandleJavaScriptDialog(b.sessionCtx(ctx), accept); err != nil {
		return err //nolint:wrapcheck
	}

	b.dialogMu.Lock()
	b.dialog = nil
	b.dialogMu.Unlock()

	return nil
}

// WindowSize returns the size of the browser window.
func (b *Browser) WindowSize(ctx context.Context) (api.Size, error) {
	if err := b.checkOpen(); err != nil {
		return api.Size{}, err
	}
	_, w, h, err := b.cdpClient.Browser.GetWindowForTarget(ctx, b.targetID)
	if err != nil {
		return api.Size{}, err //nolint:wrapcheck
	}
	return api.Size{Width: w, Height: h}, nil
}

// SetWindowSize resizes the browser window.
func (b *Browser) SetWindowSize(ctx context.Context, size api.Size) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	windowID, _, _, err := b.cdpClient.Browser.GetWindowForTarget(ctx, b.targetID)
	if err != nil {
		return err //nolint:wrapcheck
	}
	return b.cdpClient.Browser.SetWindowBounds(ctx, windowID, size.Width, size.Height) //nolint:wrapcheck
}

// Screenshot captures the visible part of the page as PNG.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	return b.cdpClient.Page.CaptureScreenshot(b.sessionCtx(ctx)) //nolint:wrapcheck
}

// IsConnected returns whether the WebSocket connection to the browser process
// is active or not.
func (b *Browser) IsConnected() bool {
	return b.browserProc.connected()
}

// Version returns the controlled browser's version.
func (b *Browser) Version(ctx context.Context) (string, error) {
	_, product, _, _, _, err := b.cdpClient.Browser.GetVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("getting browser version: %w", err)
	}

	i := strings.Index(product, "/")
	if i == -1 {
		return product, nil
	}
	return product[i+1:], nil
}

// Quit closes the browser, or only disconnects from a remote one, and
// waits for the browser process to exit. Calling it again is a no-op.
func (b *Browser) Quit(ctx context.Context) error {
	b.logger.Debugf("Browser:Quit", "")
	if !atomic.CompareAndSwapInt64(&b.state, BrowserStateOpen, BrowserStateClosing) {
		// If we're already in a closing state then no need to continue.
		b.logger.Debugf("Browser:Quit", "already in a closing state")
		return nil
	}
	defer atomic.StoreInt64(&b.state, BrowserStateClosed)

	if b.evCancelFn != nil {
		b.evCancelFn()
	}
	b.browserProc.BeginClose()

	if b.browserProc.IsRemote() {
		b.cdpClient.Disconnect()
		b.cancelFn()
		return nil
	}

	if err := b.cdpClient.Browser.Close(ctx); err != nil && !errors.Is(err, cdp.ErrConnectionClosed) {
		b.logger.Debugf("Browser:Quit", "closing the browser: %v", err)
	}
	b.cdpClient.Disconnect()

	var err error
	select {
	case <-b.browserProc.Done():
	case <-ctx.Done():
		err = fmt.Errorf("waiting for browser process %d to exit: %w", b.browserProc.Pid(), ctx.Err())
	}
	// Kills the process if it did not exit on its own.
	b.browserProc.Kill()
	if err != nil {
		return err
	}

	return b.browserProc.Cleanup()
}

func consoleLogEntry(ev *cdpruntime.EventConsoleAPICalled) api.LogEntry {
	args := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		args = append(args, remoteObjectText(arg))
	}
	entry := api.LogEntry{
		Level:     api.ConsoleLevel(string(ev.Type)),
		Text:      strings.Join(args, " "),
		Source:    "console-api",
		Timestamp: timestamp(ev.Timestamp),
	}
	if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
		entry.URL = ev.StackTrace.CallFrames[0].URL
	}
	return entry
}

func exceptionLogEntry(ev *cdpruntime.EventExceptionThrown) api.LogEntry {
	entry := api.LogEntry{
		Level:     "error",
		Source:    "javascript",
		Timestamp: timestamp(ev.Timestamp),
	}
	if d := ev.ExceptionDetails; d != nil {
		entry.Text = d.Text
		entry.URL = d.URL
		if d.Exception != nil && d.Exception.Description != "" {
			entry.Text += " " + d.Exception.Description
		}
	}
	return entry
}

func browserLogEntry(ev *cdplog.EventEntryAdded) api.LogEntry {
	if ev.Entry == nil {
		return api.LogEntry{}
	}
	return api.LogEntry{
		Level:     api.ConsoleLevel(string(ev.Entry.Level)),
		Text:      ev.Entry.Text,
		Source:    string(ev.Entry.Source),
		URL:       ev.Entry.URL,
		Timestamp: timestamp(ev.Entry.Timestamp),
	}
}

func remoteObjectText(obj *cdpruntime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if len(obj.Value) > 0 {
		var s string
		if err := json.Unmarshal(obj.Value, &s); err == nil {
			return s
		}
		return string(obj.Value)
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}
	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}

func timestamp(ts *cdpruntime.Timestamp) time.Time {
	if ts == nil {
		return time.Now()
	}
	return ts.Time()
}
