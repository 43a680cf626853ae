package driver

import (
	"fmt"
	"time"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/env"
)

// Default timing of driver operations.
const (
	DefaultTimeout           = 5 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultNavigationTimeout = 30 * time.Second
)

// DefaultIgnoredLogs are console messages GetLogs drops unless told
// otherwise. Media playback interrupted by a pause is expected in the
// editor.
var DefaultIgnoredLogs = []string{ //nolint:gochecknoglobals
	"The play() request was interrupted by a call to pause()",
}

// Options configures a Driver.
type Options struct {
	// Timeout bounds each find, click and disappearance check.
	Timeout time.Duration
	// PollInterval is the delay between two DOM queries of a poll.
	PollInterval time.Duration
	// NavigationTimeout bounds LoadURI.
	NavigationTimeout time.Duration
	// WindowSize is applied after every LoadURI. A zero size keeps the
	// window as it is.
	WindowSize api.Size
	// IgnoredLogs are the default GetLogs filters.
	IgnoredLogs []string
	// ScreenshotsDir receives a screenshot of the page when an operation
	// fails, if set.
	ScreenshotsDir string
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{
		Timeout:           DefaultTimeout,
		PollInterval:      DefaultPollInterval,
		NavigationTimeout: DefaultNavigationTimeout,
		WindowSize:        api.Size{Width: 1024, Height: 768},
		IgnoredLogs:       append([]string(nil), DefaultIgnoredLogs...),
	}
}

// Parse reads the options from the environment.
func (o *Options) Parse(lookup env.LookupFunc) error {
	var err error
	if o.Timeout, err = env.Duration(lookup, env.Timeout, o.Timeout); err != nil {
		return err //nolint:wrapcheck
	}
	if o.PollInterval, err = env.Duration(lookup, env.PollInterval, o.PollInterval); err != nil {
		return err //nolint:wrapcheck
	}
	if o.NavigationTimeout, err = env.Duration(lookup, env.StartupTimeout, o.NavigationTimeout); err != nil {
		return err //nolint:wrapcheck
	}
	if v, ok := lookup(env.WindowSize); ok && v != "" {
		if o.WindowSize, err = api.ParseSize(v); err != nil {
			return fmt.Errorf("parsing %s: %w", env.WindowSize, err)
		}
	}
	if v, ok := lookup(env.ScreenshotsDir); ok {
		o.ScreenshotsDir = v
	}
	if o.PollInterval > o.Timeout {
		return fmt.Errorf("%s (%s) should not exceed %s (%s)",
			env.PollInterval, o.PollInterval, env.Timeout, o.Timeout)
	}

	return nil
}
