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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/log"
	"github.com/editorqa/uidriver/storage"
)

// ErrExecutableNotFound is returned when no browser executable is given
// and none is installed in a known location.
var ErrExecutableNotFound = errors.New("no Chrome or Chromium executable found")

// BrowserType launches browsers, or connects to running ones, as
// configured by its LaunchOptions.
type BrowserType struct {
	Options *LaunchOptions
	Logger  *log.Logger
}

var _ api.SessionFactory = &BrowserType{}

// NewSession launches a browser and returns a session attached to its page.
func (bt *BrowserType) NewSession(ctx context.Context) (api.Session, error) {
	b, err := bt.Launch(ctx)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Launch starts a local browser, or connects to the one at Options.WSURL.
// The browser outlives ctx cancellation and keeps its values, such as the
// run ID, until Quit.
func (bt *BrowserType) Launch(ctx context.Context) (*Browser, error) {
	opts := bt.Options
	if opts == nil {
		opts = NewLaunchOptions()
	}

	bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var (
		proc *BrowserProcess
		err  error
	)
	if opts.WSURL != "" {
		proc = NewRemoteBrowserProcess(bctx, opts.WSURL, cancel, bt.Logger)
	} else if proc, err = bt.launchLocal(bctx, cancel, opts); err != nil {
		cancel()
		return nil, err
	}

	b, err := NewBrowser(bctx, cancel, proc, opts, bt.Logger)
	if err != nil {
		cancel()
		return nil, err
	}

	return b, nil
}

func (bt *BrowserType) launchLocal(ctx context.Context, cancel context.CancelFunc, opts *LaunchOptions) (*BrowserProcess, error) {
	path, err := FindExecutable(opts.ExecutablePath, exec.LookPath)
	if err != nil {
		return nil, err
	}

	var dataDir storage.Dir
	if err := dataDir.Make("", "uidriver-chromium-", ""); err != nil {
		return nil, fmt.Errorf("making the user data directory: %w", err)
	}

	args := prepareFlags(opts, dataDir.Dir)
	bt.Logger.Debugf("BrowserType:launchLocal", "path:%q args:%v", path, args)

	proc, err := NewLocalBrowserProcess(ctx, path, args, nil, &dataDir, opts.Timeout, cancel, bt.Logger)
	if err != nil {
		if cerr := dataDir.Cleanup(); cerr != nil {
			bt.Logger.Warnf("BrowserType:launchLocal", "cleaning up %q: %v", dataDir.Dir, cerr)
		}
		return nil, fmt.Errorf("launching browser %q: %w", path, err)
	}

	return proc, nil
}

// defaultFlags are the Chrome switches used for every local launch.
func defaultFlags(opts *LaunchOptions) map[string]any {
	f := map[string]any{
		"disable-background-networking":                      true,
		"disable-background-timer-throttling":                true,
		"disable-backgrounding-occluded-windows":              true,
		"disable-breakpad":                                   true,
		"disable-component-extensions-with-background-pages": true,
		"disable-component-update":                           true,
		"disable-default-apps":                               true,
		"disable-dev-shm-usage":                              true,
		"disable-extensions":                                 true,
		"disable-features":                                   "Translate,MediaRouter",
		"disable-hang-monitor":                               true,
		"disable-popup-blocking":                             true,
		"disable-prompt-on-repost":                           true,
		"disable-renderer-backgrounding":                     true,
		"disable-sync":                                       true,
		"metrics-recording-only":                             true,
		"no-default-browser-check":                           true,
		"no-first-run":                                       true,
		"password-store":                                     "basic",
		"use-mock-keychain":                                  true,
		"window-size":                                        fmt.Sprintf("%d,%d", opts.WindowSize.Width, opts.WindowSize.Height),
	}
	if opts.Headless {
		f["headless"] = true
		f["hide-scrollbars"] = true
		f["mute-audio"] = true
		f["blink-settings"] = "primaryHoverType=2,availableHoverTypes=2,primaryPointerType=4,availablePointerTypes=4"
	}

	return f
}

// prepareFlags merges the default flags with the user's arguments. An
// argument "name" or "name=value" sets a flag and "-name" removes it.
func prepareFlags(opts *LaunchOptions, userDataDir string) []string {
	flags := defaultFlags(opts)
	for _, arg := range opts.Args {
		if name, ok := removedFlag(arg); ok {
			delete(flags, name)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(strings.TrimSpace(arg), "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}

	// Must always be set.
	flags["remote-debugging-port"] = "0"
	flags["user-data-dir"] = userDataDir

	args := make([]string, 0, len(flags)+1)
	for name, value := range flags {
		switch v := value.(type) {
		case bool:
			if v {
				args = append(args, "--"+name)
			}
		default:
			args = append(args, fmt.Sprintf("--%s=%v", name, v))
		}
	}
	sort.Strings(args)

	return append(args, "about:blank")
}

// removedFlag reports the flag name of an argument such as "-mute-audio".
// Chrome switches themselves are written as "--name".
func removedFlag(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
		return "", false
	}
	name, _, _ := strings.Cut(arg[1:], "=")
	return name, name != ""
}

// FindExecutable returns path if it exists, or else the first Chrome or
// Chromium found on the PATH or in a known install location.
func FindExecutable(path string, lookPath func(string) (string, error)) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("browser executable %q: %w", path, err)
		}
		return path, nil
	}

	for _, name := range []string{
		"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome",
		"headless_shell", "headless-shell", "brave-browser", "microsoft-edge",
	} {
		if p, err := lookPath(name); err == nil {
			return p, nil
		}
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		}
	case "windows":
		for _, dir := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)"), os.Getenv("LocalAppData")} {
			if dir != "" {
				candidates = append(candidates, dir+`\Google\Chrome\Application\chrome.exe`)
			}
		}
	default:
		candidates = []string{"/snap/bin/chromium", "/usr/lib/chromium/chromium"}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	return "", ErrExecutableNotFound
}
