package tests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/editorqa/uidriver/browser"
	"github.com/editorqa/uidriver/log"
)

func TestRunnerPlayground(t *testing.T) {
	d := newTestDriver(t)
	t.Setenv("PLAYGROUND_URL", d.staticURL("playground.html"))

	r := browser.NewRunner(d.harness, log.NewNullLogger())
	report, err := r.RunFile(d.ctx, "testdata/playground.js")
	require.NoError(t, err)

	require.Len(t, report.Results, 5)
	for _, res := range report.Results[:4] {
		assert.Equal(t, browser.StatusPassed, res.Status, "%s: %s", res.Name, res.Message)
	}
	last := report.Results[4]
	assert.Equal(t, "playground fails on a missing element", last.Name)
	assert.Equal(t, browser.StatusFailed, last.Status)
	assert.Contains(t, last.Message, `finding text "Sounds"`)
	assert.False(t, report.OK())
}
