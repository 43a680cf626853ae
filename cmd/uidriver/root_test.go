package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/editorqa/uidriver/browser"
	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/common"
	"github.com/editorqa/uidriver/driver"
	"github.com/editorqa/uidriver/env"
	"github.com/editorqa/uidriver/k6ext"
	"github.com/editorqa/uidriver/log"
	"github.com/editorqa/uidriver/pwsession"
)

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := newRootCmd(&out, &out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "uidriver v"+version+"\n", out.String())
}

func TestRunCmdNeedsScript(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := newRootCmd(&out, &out)
	cmd.SetArgs([]string{"run"})
	assert.Error(t, cmd.Execute())
}

func TestNewSessionFactory(t *testing.T) {
	t.Parallel()

	opts := common.NewLaunchOptions()
	logger := log.NewNullLogger()

	f, err := newSessionFactory("", opts, logger)
	require.NoError(t, err)
	assert.IsType(t, &common.BrowserType{}, f)

	f, err = newSessionFactory(" Playwright ", opts, logger)
	require.NoError(t, err)
	assert.IsType(t, &pwsession.Factory{}, f)

	_, err = newSessionFactory("selenium", opts, logger)
	assert.ErrorContains(t, err, `unknown backend "selenium"`)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger, err := newLogger(&out, env.ConstLookup(env.LogLevel, "debug"), "")
	require.NoError(t, err)
	assert.True(t, logger.DebugMode())

	logger, err = newLogger(&out, env.ConstLookup(env.LogLevel, "debug"), "warn")
	require.NoError(t, err)
	assert.False(t, logger.DebugMode())

	_, err = newLogger(&out, env.ConstLookup(env.LogCategoryFilter, "(["), "")
	assert.ErrorContains(t, err, env.LogCategoryFilter)

	_, err = newLogger(&out, env.EmptyLookup, "loud")
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printReport(&out, &browser.Report{
		File: "project-loading.js",
		Results: []browser.Result{
			{Name: "Loading scratch gui Load a project by ID", Status: browser.StatusSkipped},
			{Name: "Loading scratch gui File > New", Status: browser.StatusPassed, Duration: time.Second},
			{Name: "Loading scratch gui Nonexistent", Status: browser.StatusFailed, Message: "finding text: timed out"},
		},
	})
	s := out.String()
	assert.Contains(t, s, "project-loading.js")
	assert.Contains(t, s, "Loading scratch gui File > New")
	assert.Contains(t, s, "finding text: timed out")
	assert.Contains(t, s, "1 failed")
	assert.Contains(t, s, "3 total")
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printSummary(&out, nil)
	assert.Empty(t, out.String())

	printSummary(&out, []k6ext.MetricSummary{
		{Name: "uidriver_find_duration", Values: map[string]float64{"max": 12, "avg": 3.5}},
	})
	assert.Contains(t, out.String(), "avg=3.50 max=12.00")
}

func TestSetupTracing(t *testing.T) {
	t.Parallel()

	factory := api.SessionFactoryFunc(func(context.Context) (api.Session, error) {
		return nil, assert.AnError
	})
	h := driver.NewHarness(factory, nil, log.NewNullLogger())
	path := filepath.Join(t.TempDir(), "traces.json")

	shutdown, err := setupTracing(context.Background(), h, path, log.NewNullLogger())
	require.NoError(t, err)
	shutdown()

	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = setupTracing(context.Background(), h, filepath.Join(t.TempDir(), "missing", "traces.json"), log.NewNullLogger())
	assert.ErrorContains(t, err, "creating traces output")
}
