// Package env provides the environment variables that configure uidriver.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LookupFunc defines a function to look up a key from the environment.
type LookupFunc func(key string) (string, bool)

// Lookup is the default LookupFunc backed by the process environment.
func Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// EmptyLookup is a LookupFunc that always returns "" and false.
func EmptyLookup(string) (string, bool) { return "", false }

// ConstLookup is a LookupFunc that returns the given value if the given key
// matches the looked up key.
func ConstLookup(k, v string) LookupFunc {
	return func(key string) (string, bool) {
		if key == k {
			return v, true
		}
		return "", false
	}
}

// MapLookup is a LookupFunc backed by a map, mostly useful in tests.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Browser launch and connection.
const (
	// Backend selects the session backend: "cdp" (default) or "playwright".
	Backend = "UIDRIVER_BACKEND"

	// Headless runs the browser without a window when true (default).
	Headless = "UIDRIVER_HEADLESS"

	// ExecutablePath is the browser executable to launch.
	ExecutablePath = "UIDRIVER_EXECUTABLE_PATH"

	// BrowserArguments are extra command line arguments, comma separated.
	// An argument can be removed from the defaults with a leading "-".
	BrowserArguments = "UIDRIVER_ARGS"

	// WebSocketURL connects to an already running browser instead of
	// launching one.
	WebSocketURL = "UIDRIVER_WS_URL"

	// WindowSize is the browser window size as WIDTHxHEIGHT.
	WindowSize = "UIDRIVER_WINDOW_SIZE"
)

// Driver timing.
const (
	// Timeout bounds every poll-based driver operation, e.g. "5s".
	Timeout = "UIDRIVER_TIMEOUT"

	// PollInterval is the delay between two DOM queries of a poll, e.g. "100ms".
	PollInterval = "UIDRIVER_POLL_INTERVAL"

	// StartupTimeout bounds browser launch and page navigation.
	StartupTimeout = "UIDRIVER_STARTUP_TIMEOUT"
)

// Logging, artifacts and tests.
const (
	// LogLevel sets the logger level, e.g. "debug".
	LogLevel = "UIDRIVER_LOG"

	// LogCategoryFilter keeps only the log categories matching a regexp.
	LogCategoryFilter = "UIDRIVER_LOG_CATEGORY_FILTER"

	// ScreenshotsDir is where screenshots of failed operations are stored.
	ScreenshotsDir = "UIDRIVER_SCREENSHOTS_DIR"

	// TracesOutput is the file receiving the spans of driver operations,
	// as JSON. Tracing is off when unset.
	TracesOutput = "UIDRIVER_TRACES_OUTPUT"

	// EditorBuild points at the built editor index.html used by the
	// editor scenario tests.
	EditorBuild = "UIDRIVER_EDITOR_BUILD"
)

// Load reads the given .env files into the process environment. Variables
// already set in the environment win. Missing files are ignored.
func Load(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env files %v: %w", existing, err)
	}
	return nil
}

// Bool looks up key and parses it as a boolean.
// It returns def if the key is not set.
func Bool(lookup LookupFunc, key string, def bool) (bool, error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s should be a boolean: %w", key, err)
	}
	return b, nil
}

// Duration looks up key and parses it as a time.Duration.
// Bare integers are taken as milliseconds.
// It returns def if the key is not set.
func Duration(lookup LookupFunc, key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return def, nil
	}
	var d time.Duration
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else if d, err = time.ParseDuration(v); err != nil {
		return def, fmt.Errorf("%s should be a duration: %w", key, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("%s should be positive, got %s", key, d)
	}
	return d, nil
}

// List looks up key and splits it on commas, dropping empty items.
func List(lookup LookupFunc, key string) []string {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
