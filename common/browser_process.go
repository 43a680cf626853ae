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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/editorqa/uidriver/browserprocess"
	"github.com/editorqa/uidriver/log"
	"github.com/editorqa/uidriver/storage"
)

const (
	remotePid = -1

	devToolsActivePortFile = "DevToolsActivePort"
	devToolsPollInterval   = 50 * time.Millisecond
)

// BrowserProcess is a browser the driver speaks CDP with, either launched
// locally or already running elsewhere. Losing the connection to it
// cancels its context unless it is being closed.
type BrowserProcess struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	pid     int
	dataDir *storage.Dir
	wsURL   string
	exited  <-chan struct{}

	lostOnce sync.Once
	lost     chan struct{}
	closing  atomic.Bool
}

// NewLocalBrowserProcess starts the browser at path and waits until it
// reports its DevTools WebSocket URL, at most timeout.
func NewLocalBrowserProcess(
	ctx context.Context, path string, args, env []string, dataDir *storage.Dir,
	timeout time.Duration, ctxCancel context.CancelFunc, logger *log.Logger,
) (*BrowserProcess, error) {
	cmd, exited, err := execute(ctx, path, args, env, dataDir, logger)
	if err != nil {
		return nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	wsURL, err := waitForDevToolsURL(tctx, dataDir.Dir, exited)
	if err != nil {
		ctxCancel()
		return nil, fmt.Errorf("getting DevTools URL: %w", err)
	}
	browserprocess.Register(ctx, logger, cmd.Process.Pid)

	p := &BrowserProcess{
		ctx:     ctx,
		cancel:  ctxCancel,
		logger:  logger,
		pid:     cmd.Process.Pid,
		dataDir: dataDir,
		wsURL:   wsURL,
		exited:  exited,
		lost:    make(chan struct{}),
	}
	go p.watch()

	return p, nil
}

// NewRemoteBrowserProcess returns a BrowserProcess for a browser that
// someone else launched and that listens on wsURL. It never exits.
func NewRemoteBrowserProcess(
	ctx context.Context, wsURL string, ctxCancel context.CancelFunc, logger *log.Logger,
) *BrowserProcess {
	p := &BrowserProcess{
		ctx:    ctx,
		cancel: ctxCancel,
		logger: logger,
		pid:    remotePid,
		wsURL:  wsURL,
		exited: make(chan struct{}),
		lost:   make(chan struct{}),
	}
	go p.watch()

	return p
}

func (p *BrowserProcess) watch() {
	select {
	case <-p.lost:
	case <-p.ctx.Done():
	}
	if !p.closing.Load() {
		p.cancel()
	}
}

func (p *BrowserProcess) markDisconnected() {
	p.lostOnce.Do(func() { close(p.lost) })
}

func (p *BrowserProcess) connected() bool {
	select {
	case <-p.lost:
		return false
	default:
		return true
	}
}

// BeginClose tells the process that losing the connection from now on is
// expected.
func (p *BrowserProcess) BeginClose() {
	p.logger.Debugf("BrowserProcess:BeginClose", "pid:%d", p.pid)
	p.closing.Store(true)
}

// Kill cancels the browser context, which kills a local browser.
func (p *BrowserProcess) Kill() {
	p.logger.Debugf("BrowserProcess:Kill", "pid:%d", p.pid)
	p.cancel()
}

// Done is closed when a local browser process has exited and its user data
// directory is removed.
func (p *BrowserProcess) Done() <-chan struct{} {
	return p.exited
}

// Cleanup removes the user data directory of a local browser. Call it
// once the process is done.
func (p *BrowserProcess) Cleanup() error {
	if p.dataDir == nil {
		return nil
	}
	return p.dataDir.Cleanup() //nolint:wrapcheck
}

// IsRemote reports whether the browser was not launched by us.
func (p *BrowserProcess) IsRemote() bool {
	return p.pid == remotePid
}

// WsURL returns the Websocket URL that the browser is listening on for CDP clients.
func (p *BrowserProcess) WsURL() string {
	return p.wsURL
}

// Pid returns the browser process ID, or -1 for a remote browser.
func (p *BrowserProcess) Pid() int {
	return p.pid
}

func execute(
	ctx context.Context, path string, args, env []string, dataDir *storage.Dir,
	logger *log.Logger,
) (*exec.Cmd, chan struct{}, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	killAfterParent(cmd)

	// Set up environment variable for process
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	// We must start the cmd before calling cmd.Wait, as otherwise the two
	// can run into a data race.
	err := cmd.Start()
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("starting browser %q: %w", path, err)
	}
	if ctx.Err() != nil {
		return nil, nil, fmt.Errorf("starting browser %q: %w", path, ctx.Err())
	}

	exited := make(chan struct{})
	go func() {
		defer func() {
			browserprocess.Unregister(cmd.Process.Pid)
			if err := dataDir.Cleanup(); err != nil {
				logger.Errorf("browser", "cleaning up the user data directory: %v", err)
			}
			close(exited)
		}()

		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			logger.Errorf("browser",
				"process with PID %d unexpectedly ended: %v",
				cmd.Process.Pid, err)
		}
	}()

	return cmd, exited, nil
}

// waitForDevToolsURL polls the DevToolsActivePort file the browser writes
// into its user data directory once it listens for CDP clients.
func waitForDevToolsURL(ctx context.Context, dataDir string, procDone <-chan struct{}) (string, error) {
	fpath := filepath.Join(dataDir, devToolsActivePortFile)

	ticker := time.NewTicker(devToolsPollInterval)
	defer ticker.Stop()

	for {
		wsURL, err := readDevToolsURL(fpath)
		if err == nil {
			return wsURL, nil
		}
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, errIncompleteDevToolsFile) {
			return "", err
		}

		select {
		case <-ticker.C:
		case <-procDone:
			return "", errors.New("browser process ended unexpectedly")
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for %q: %w", fpath, ctx.Err())
		}
	}
}

var errIncompleteDevToolsFile = errors.New("incomplete DevToolsActivePort file")

func readDevToolsURL(fpath string) (wsURL string, rerr error) {
	f, err := os.Open(fpath) //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("reading %q: %w", fpath, err)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = err
		}
	}()

	return parseDevToolsActivePort(f)
}

// parseDevToolsActivePort parses the port on the first line and the
// browser target path on the second line.
func parseDevToolsActivePort(r io.Reader) (string, error) {
	fs := bufio.NewScanner(r)
	fs.Split(bufio.ScanLines)
	portURI := make([]string, 0, 2)

	for fs.Scan() {
		if line := strings.TrimSpace(fs.Text()); line != "" {
			portURI = append(portURI, line)
		}
	}
	if err := fs.Err(); err != nil {
		return "", fmt.Errorf("scanning DevToolsActivePort: %w", err)
	}
	// The browser may not have finished writing the file yet.
	if len(portURI) < 2 {
		return "", errIncompleteDevToolsFile
	}
	if !strings.HasPrefix(portURI[1], "/devtools/browser/") {
		return "", fmt.Errorf("unexpected DevTools path %q", portURI[1])
	}

	return fmt.Sprintf("ws://127.0.0.1:%s%s", portURI[0], portURI[1]), nil
}
