package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/editorqa/uidriver/api"
)

func TestPrepareFlags(t *testing.T) {
	t.Parallel()

	opts := NewLaunchOptions()
	opts.WindowSize = api.Size{Width: 800, Height: 600}
	opts.Args = []string{"no-sandbox", "--lang=fr", "-mute-audio", "-disable-extensions", "disable-features=Translate"}

	args := prepareFlags(opts, "/tmp/profile")

	assert.Contains(t, args, "--headless")
	assert.Contains(t, args, "--no-sandbox")
	assert.Contains(t, args, "--lang=fr")
	assert.Contains(t, args, "--window-size=800,600")
	assert.Contains(t, args, "--disable-features=Translate")
	assert.Contains(t, args, "--remote-debugging-port=0")
	assert.Contains(t, args, "--user-data-dir=/tmp/profile")
	assert.NotContains(t, args, "--mute-audio")
	assert.NotContains(t, args, "--disable-extensions")
	assert.Equal(t, "about:blank", args[len(args)-1])
}

func TestPrepareFlagsHeadful(t *testing.T) {
	t.Parallel()

	opts := NewLaunchOptions()
	opts.Headless = false
	opts.Args = []string{"-user-data-dir", "-remote-debugging-port"}

	args := prepareFlags(opts, "/tmp/profile")
	assert.NotContains(t, args, "--headless")
	assert.Contains(t, args, "--remote-debugging-port=0")
	assert.Contains(t, args, "--user-data-dir=/tmp/profile")
}

func TestFindExecutable(t *testing.T) {
	t.Parallel()

	notFound := func(string) (string, error) { return "", errors.New("not found") }

	t.Run("explicit", func(t *testing.T) {
		t.Parallel()

		p := filepath.Join(t.TempDir(), "chrome")
		require.NoError(t, os.WriteFile(p, nil, 0o700))

		got, err := FindExecutable(p, notFound)
		require.NoError(t, err)
		assert.Equal(t, p, got)

		_, err = FindExecutable(p+"-missing", notFound)
		require.Error(t, err)
	})

	t.Run("lookup", func(t *testing.T) {
		t.Parallel()

		got, err := FindExecutable("", func(name string) (string, error) {
			if name == "google-chrome" {
				return "/opt/google/chrome/google-chrome", nil
			}
			return "", errors.New("not found")
		})
		require.NoError(t, err)
		assert.Equal(t, "/opt/google/chrome/google-chrome", got)
	})
}
