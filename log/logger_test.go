package log

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level logrus.Level, filter *regexp.Regexp) (*Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	lg := logrus.New()
	lg.SetOutput(&buf)
	lg.SetLevel(level)
	lg.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})

	l := New(lg, filter)
	l.colorize = false

	return l, &buf
}

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	l, buf := newBufferLogger(t, logrus.InfoLevel, nil)
	l.Debugf("cdp", "hidden %d", 1)
	l.Infof("cdp", "shown %d", 2)

	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")
	assert.Contains(t, buf.String(), "category=cdp")
	assert.False(t, l.DebugMode())

	require.NoError(t, l.SetLevel("debug"))
	assert.True(t, l.DebugMode())
	require.Error(t, l.SetLevel("loud"))
}

func TestLoggerCategoryFilter(t *testing.T) {
	t.Parallel()

	l, buf := newBufferLogger(t, logrus.DebugLevel, regexp.MustCompile(`^Driver`))
	l.Debugf("cdp", "from cdp")
	l.Debugf("Driver:FindByXPath", "from driver")

	assert.NotContains(t, buf.String(), "from cdp")
	assert.Contains(t, buf.String(), "from driver")

	require.NoError(t, l.SetCategoryFilter(""))
	l.Debugf("cdp", "now visible")
	assert.Contains(t, buf.String(), "now visible")

	require.Error(t, l.SetCategoryFilter("("))
}

func TestNullLogger(t *testing.T) {
	t.Parallel()

	l := NewNullLogger()
	assert.NotPanics(t, func() {
		l.Errorf("any", "goes nowhere: %v", assert.AnError)
	})

	var nilLogger *Logger
	assert.NotPanics(t, func() {
		nilLogger.Infof("any", "nil logger")
	})
}
