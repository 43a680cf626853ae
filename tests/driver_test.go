package tests

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/driver"
)

func TestDriverFindWaitsForLateElements(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	d.load(d.staticURL("playground.html"))

	require.NoError(t, d.NotExistsByXPath(d.ctx, `//*[div[contains(@class, "loader_background")]]`))
	el, err := d.FindByXPath(d.ctx, `//*[span[text()="Costumes"]]`)
	require.NoError(t, err)
	assert.Equal(t, "div", el.Tag)
	assert.True(t, el.Visible)

	_, err = d.FindByText(d.ctx, "Costumes")
	require.NoError(t, err)

	// Text split across child nodes and padded by markup.
	el, err = d.FindByText(d.ctx, "Sprite name")
	require.NoError(t, err)
	assert.Equal(t, "p", el.Tag)
}

func TestDriverFindTimesOut(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t, withTimeout(300*time.Millisecond))
	d.load(d.staticURL("playground.html"))

	start := time.Now()
	_, err := d.FindByText(d.ctx, "Sounds")
	var nf *driver.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.True(t, isTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)

	_, err = d.FindByText(d.ctx, "Hidden")
	require.ErrorAs(t, err, &nf, "hidden elements are not found")

	visible, err := d.ElementIsVisible(d.ctx, `//span[text()="Hidden"]`)
	require.NoError(t, err)
	assert.False(t, visible)
}

func TestDriverNotExists(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t, withTimeout(200*time.Millisecond))
	d.load(d.staticURL("playground.html"))

	start := time.Now()
	require.NoError(t, d.NotExistsByXPath(d.ctx, `//*[@id="nothing-here"]`))
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	err := d.NotExistsByXPath(d.ctx, `//button`)
	var se *driver.StillExistsError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Count)
}

func TestDriverClick(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	d.load(d.staticURL("playground.html"))

	// The cover hides the page for a while, clicks retry until it is gone.
	require.NoError(t, d.ClickText(d.ctx, "Count", driver.BlocksTab))
	assert.Equal(t, "1", d.text("count"))

	require.NoError(t, d.ClickXPath(d.ctx, `//*[@id="count-btn"]`))
	assert.Equal(t, "2", d.text("count"))

	require.NoError(t, d.RightClickText(d.ctx, "Count"))
	assert.Equal(t, "menu", d.text("count"))
}

func TestDriverClickErrors(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t, withTimeout(500*time.Millisecond))
	d.load(d.staticURL("playground.html"))

	err := d.ClickText(d.ctx, "Disabled")
	var ce *driver.ClickError
	require.ErrorAs(t, err, &ce)
	assert.ErrorContains(t, err, "disabled")

	err = d.ClickText(d.ctx, "Count", driver.SoundsTab)
	var nf *driver.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDriverDialog(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	d.load(d.staticURL("playground.html"))

	require.NoError(t, d.ClickButton(d.ctx, "New"))
	require.NoError(t, d.AcceptAlert(d.ctx))
	assert.Equal(t, "reset", d.text("status"))

	require.NoError(t, d.ClickButton(d.ctx, "New"))
	require.NoError(t, d.DismissAlert(d.ctx))
	assert.Equal(t, "kept", d.text("status"))

	err := d.AcceptAlert(d.ctx)
	assert.ErrorIs(t, err, api.ErrNoDialog)
}

func TestDriverGetLogs(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	d.load(d.staticURL("playground.html"))
	_, err := d.FindByText(d.ctx, "Costumes")
	require.NoError(t, err)

	// The browser may report a missing favicon too.
	logs, err := d.GetLogs(d.ctx, "Failed to load resource")
	require.NoError(t, err)
	var ready bool
	for _, e := range logs {
		assert.NotContains(t, e.Text, "play() request", "the pause() warning is ignored")
		if e.Text == "playground ready" {
			ready = true
			assert.Equal(t, "info", e.Level)
		}
	}
	assert.True(t, ready, "missing console.log entry in %v", logs)

	logs, err = d.GetLogs(d.ctx)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestDriverTypeText(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	d.load(d.staticURL("playground.html"))

	require.NoError(t, d.ClickXPath(d.ctx, `//input[@id="name"]`))
	require.NoError(t, d.TypeText(d.ctx, "Scratch Cat"))
	require.NoError(t, d.PressKey(d.ctx, "Backspace"))

	raw, err := d.Session().Evaluate(d.ctx, `document.getElementById("name").value`)
	require.NoError(t, err)
	assert.JSONEq(t, `"Scratch Ca"`, string(raw))
}

func TestDriverLoadURI(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)

	// httpbin pages load like any other site.
	d.load(d.URL("/html"))
	_, err := d.FindByText(d.ctx, "Herman Melville - Moby-Dick")
	require.NoError(t, err)

	// Files load by path, keeping the fragment.
	page, err := filepath.Abs(filepath.Join("testdata", "static", "error.html"))
	require.NoError(t, err)
	d.load(page + "#999999999999999999999")
	_, err = d.FindByText(d.ctx, "Oops! Something went wrong.")
	require.NoError(t, err)

	size, err := d.WindowSize(d.ctx)
	require.NoError(t, err)
	assert.Equal(t, d.Options().WindowSize, size)

	err = d.LoadURI(d.ctx, "")
	var ne *driver.NavigationError
	require.ErrorAs(t, err, &ne)
}

func TestDriverLoadURIClearsBeforeUnload(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	d.load(d.staticURL("playground.html"))

	// The page sets a beforeunload handler, leaving it must not prompt.
	d.load(d.URL("/html"))
	_, err := d.FindByText(d.ctx, "Herman Melville - Moby-Dick")
	require.NoError(t, err)
}

func TestDriverScreenshots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := newTestDriver(t, withTimeout(200*time.Millisecond), withScreenshots(dir))
	d.load(d.staticURL("playground.html"))

	require.NoError(t, d.Screenshot(d.ctx, "page.png"))
	data, err := os.ReadFile(filepath.Join(dir, "page.png"))
	require.NoError(t, err)
	assert.True(t, len(data) > 8 && string(data[1:4]) == "PNG")

	_, err = d.FindByText(d.ctx, "Sounds")
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "a failed find saves a screenshot")
}

func TestHarnessReset(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	d.load(d.staticURL("playground.html"))

	nd, err := d.harness.Reset(d.ctx)
	require.NoError(t, err)
	assert.NotSame(t, d.Driver, nd)

	_, err = d.Session().QueryXPath(d.ctx, "//body", "")
	assert.True(t, errors.Is(err, api.ErrSessionClosed), "got %v", err)

	require.NoError(t, nd.LoadURI(d.ctx, d.staticURL("playground.html")))
	_, err = nd.FindByText(d.ctx, "Costumes")
	require.NoError(t, err)
}
