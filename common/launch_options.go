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
	"fmt"
	"strings"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/env"
	"github.com/editorqa/uidriver/log"
)

const (
	// DefaultTimeout bounds browser startup and page navigation.
	DefaultTimeout = 30 * time.Second

	// DefaultWindowWidth and DefaultWindowHeight match the window size the
	// editor tests are written for.
	DefaultWindowWidth  = 1024
	DefaultWindowHeight = 768
)

// LaunchOptions stores browser launch options.
type LaunchOptions struct {
	Args           []string
	Debug          bool
	ExecutablePath string
	Headless       bool
	Timeout        time.Duration
	WindowSize     api.Size

	// WSURL connects to an already running browser when set.
	WSURL string
}

// NewLaunchOptions returns a new LaunchOptions with the defaults.
func NewLaunchOptions() *LaunchOptions {
	return &LaunchOptions{
		Headless:   true,
		Timeout:    DefaultTimeout,
		WindowSize: api.Size{Width: DefaultWindowWidth, Height: DefaultWindowHeight},
	}
}

// launchEnv holds the launch options read from the environment. Unset
// variables stay invalid and keep the defaults.
type launchEnv struct {
	headless       null.Bool
	executablePath null.String
	wsURL          null.String
	windowSize     null.String
	logLevel       null.String
	timeout        null.Int
}

// Parse reads the launch options from the environment.
func (l *LaunchOptions) Parse(lookup env.LookupFunc, logger *log.Logger) error {
	le, err := readLaunchEnv(lookup)
	if err != nil {
		return err
	}

	l.Args = append(l.Args, env.List(lookup, env.BrowserArguments)...)
	if le.headless.Valid {
		l.Headless = le.headless.Bool
	}
	if le.executablePath.Valid {
		l.ExecutablePath = le.executablePath.String
	}
	if le.wsURL.Valid {
		l.WSURL = le.wsURL.String
	}
	if le.timeout.Valid {
		l.Timeout = time.Duration(le.timeout.Int64)
	}
	if le.windowSize.Valid {
		size, err := api.ParseSize(le.windowSize.String)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", env.WindowSize, err)
		}
		l.WindowSize = size
	}
	if le.logLevel.Valid {
		l.Debug = strings.EqualFold(le.logLevel.String, "debug") ||
			strings.EqualFold(le.logLevel.String, "trace")
	}

	if l.WSURL != "" && l.ExecutablePath != "" {
		logger.Warnf("LaunchOptions:Parse", "%s is set, ignoring %s=%q",
			env.WebSocketURL, env.ExecutablePath, l.ExecutablePath)
	}

	return nil
}

func readLaunchEnv(lookup env.LookupFunc) (launchEnv, error) {
	var le launchEnv

	if _, ok := lookup(env.Headless); ok {
		b, err := env.Bool(lookup, env.Headless, true)
		if err != nil {
			return le, err
		}
		le.headless = null.BoolFrom(b)
	}
	if d, ok := lookup(env.StartupTimeout); ok && strings.TrimSpace(d) != "" {
		t, err := env.Duration(lookup, env.StartupTimeout, DefaultTimeout)
		if err != nil {
			return le, err
		}
		le.timeout = null.IntFrom(int64(t))
	}
	le.executablePath = lookupString(lookup, env.ExecutablePath)
	le.wsURL = lookupString(lookup, env.WebSocketURL)
	le.windowSize = lookupString(lookup, env.WindowSize)
	le.logLevel = lookupString(lookup, env.LogLevel)

	return le, nil
}

func lookupString(lookup env.LookupFunc, key string) null.String {
	v, ok := lookup(key)
	if !ok {
		return null.String{}
	}
	return null.NewString(strings.TrimSpace(v), strings.TrimSpace(v) != "")
}
