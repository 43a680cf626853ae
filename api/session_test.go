package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"1024x768", "1024,768", " 1024 X 768 "} {
		size, err := ParseSize(s)
		require.NoError(t, err, s)
		assert.Equal(t, Size{Width: 1024, Height: 768}, size)
		assert.Equal(t, "1024x768", size.String())
	}
	for _, s := range []string{"", "1024", "0x768", "axb", "1x2x3"} {
		_, err := ParseSize(s)
		assert.Error(t, err, s)
	}
}

func TestConsoleLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"log":     "info",
		"info":    "info",
		"verbose": "debug",
		"debug":   "debug",
		"warning": "warning",
		"warn":    "warning",
		"error":   "error",
		"assert":  "error",
	} {
		assert.Equal(t, want, ConsoleLevel(in), in)
	}
}
