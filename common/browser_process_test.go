package common

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDevToolsActivePort(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		wsURL   string
		errMsg  string
	}{
		{
			name:    "ok",
			content: "41315\n/devtools/browser/d1d3f8eb-b362-4f12-9370-bd25778d0da7\n",
			wsURL:   "ws://127.0.0.1:41315/devtools/browser/d1d3f8eb-b362-4f12-9370-bd25778d0da7",
		},
		{
			name:    "ok/crlf_and_blank_lines",
			content: "\r\n41315\r\n\r\n/devtools/browser/abc\r\n",
			wsURL:   "ws://127.0.0.1:41315/devtools/browser/abc",
		},
		{
			name:    "err/incomplete",
			content: "41315\n",
			errMsg:  errIncompleteDevToolsFile.Error(),
		},
		{
			name:   "err/empty",
			errMsg: errIncompleteDevToolsFile.Error(),
		},
		{
			name:    "err/unexpected_path",
			content: "41315\n/json/version\n",
			errMsg:  `unexpected DevTools path "/json/version"`,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			wsURL, err := parseDevToolsActivePort(strings.NewReader(tc.content))
			if tc.errMsg != "" {
				require.ErrorContains(t, err, tc.errMsg)
				assert.Empty(t, wsURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wsURL, wsURL)
		})
	}
}

func TestWaitForDevToolsURL(t *testing.T) {
	t.Parallel()

	t.Run("written_late", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		go func() {
			time.Sleep(3 * devToolsPollInterval)
			fpath := filepath.Join(dir, devToolsActivePortFile)
			_ = os.WriteFile(fpath, []byte("9222\n/devtools/browser/late\n"), 0o600)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		wsURL, err := waitForDevToolsURL(ctx, dir, make(chan struct{}))
		require.NoError(t, err)
		assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/late", wsURL)
	})

	t.Run("premature_process_exit", func(t *testing.T) {
		t.Parallel()

		done := make(chan struct{})
		close(done)

		_, err := waitForDevToolsURL(context.Background(), t.TempDir(), done)
		assert.EqualError(t, err, "browser process ended unexpectedly")
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 2*devToolsPollInterval)
		defer cancel()

		_, err := waitForDevToolsURL(ctx, t.TempDir(), make(chan struct{}))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRemoteBrowserProcess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewRemoteBrowserProcess(ctx, "ws://127.0.0.1:9222/devtools/browser/x", cancel, nil)
	assert.True(t, p.IsRemote())
	assert.Equal(t, -1, p.Pid())
	assert.NoError(t, p.Cleanup())

	p.markDisconnected()
	p.markDisconnected()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("losing the connection should cancel the browser context")
	}
}
