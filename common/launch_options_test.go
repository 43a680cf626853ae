package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/env"
	"github.com/editorqa/uidriver/log"
)

func TestLaunchOptionsParse(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		env    map[string]string
		assert func(*testing.T, *LaunchOptions)
		errMsg string
	}{
		"defaults": {
			assert: func(t *testing.T, lo *LaunchOptions) {
				t.Helper()
				assert.Equal(t, &LaunchOptions{
					Headless:   true,
					Timeout:    DefaultTimeout,
					WindowSize: api.Size{Width: 1024, Height: 768},
				}, lo)
			},
		},
		"headful": {
			env: map[string]string{env.Headless: "false"},
			assert: func(t *testing.T, lo *LaunchOptions) {
				t.Helper()
				assert.False(t, lo.Headless)
			},
		},
		"invalid_headless": {
			env:    map[string]string{env.Headless: "sometimes"},
			errMsg: env.Headless + " should be a boolean",
		},
		"all": {
			env: map[string]string{
				env.ExecutablePath:   "/usr/bin/chromium",
				env.BrowserArguments: "no-sandbox,-hide-scrollbars",
				env.StartupTimeout:   "10s",
				env.WindowSize:       "1280x720",
				env.LogLevel:         "debug",
			},
			assert: func(t *testing.T, lo *LaunchOptions) {
				t.Helper()
				assert.Equal(t, "/usr/bin/chromium", lo.ExecutablePath)
				assert.Equal(t, []string{"no-sandbox", "-hide-scrollbars"}, lo.Args)
				assert.Equal(t, 10*time.Second, lo.Timeout)
				assert.Equal(t, api.Size{Width: 1280, Height: 720}, lo.WindowSize)
				assert.True(t, lo.Debug)
			},
		},
		"blank_values_keep_defaults": {
			env: map[string]string{env.ExecutablePath: " ", env.StartupTimeout: ""},
			assert: func(t *testing.T, lo *LaunchOptions) {
				t.Helper()
				assert.Empty(t, lo.ExecutablePath)
				assert.Equal(t, DefaultTimeout, lo.Timeout)
			},
		},
		"remote": {
			env: map[string]string{env.WebSocketURL: "ws://127.0.0.1:9222/devtools/browser/abc"},
			assert: func(t *testing.T, lo *LaunchOptions) {
				t.Helper()
				assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", lo.WSURL)
			},
		},
		"invalid_window_size": {
			env:    map[string]string{env.WindowSize: "big"},
			errMsg: "parsing " + env.WindowSize,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			lo := NewLaunchOptions()
			err := lo.Parse(env.MapLookup(tt.env), log.NewNullLogger())
			if tt.errMsg != "" {
				require.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			tt.assert(t, lo)
		})
	}
}
