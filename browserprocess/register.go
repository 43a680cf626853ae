// Package browserprocess keeps track of the browser processes started by
// uidriver so they can be killed when a run cannot shut down cleanly.
package browserprocess

import (
	"context"
	"os"
	"sync"

	"github.com/editorqa/uidriver/log"
)

type processState struct {
	pid   int
	runID string
}

var (
	browserProcessRegister   = map[int]*processState{} //nolint:gochecknoglobals
	browserProcessRegisterMu = sync.Mutex{}            //nolint:gochecknoglobals
)

// Register records a browser process started for the run in ctx.
func Register(ctx context.Context, logger *log.Logger, pid int) {
	browserProcessRegisterMu.Lock()
	defer browserProcessRegisterMu.Unlock()

	rID := GetRunID(ctx)
	logger.Debugf("BrowserProcess:register", "registered pid %d for run %q", pid, rID)

	browserProcessRegister[pid] = &processState{pid: pid, runID: rID}
}

// Unregister forgets a browser process once it has exited.
func Unregister(pid int) {
	browserProcessRegisterMu.Lock()
	defer browserProcessRegisterMu.Unlock()

	delete(browserProcessRegister, pid)
}

// Registered returns the pids registered for the run in ctx, or every pid
// when ctx carries no run ID.
func Registered(ctx context.Context) []int {
	browserProcessRegisterMu.Lock()
	defer browserProcessRegisterMu.Unlock()

	rID := GetRunID(ctx)
	var pids []int
	for pid, st := range browserProcessRegister {
		if rID != "" && st.runID != rID {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// ForceProcessShutdown kills the browser processes of the run in ctx, or
// all of them when ctx carries no run ID. It is used when a session could
// not be quit gracefully.
func ForceProcessShutdown(ctx context.Context) {
	browserProcessRegisterMu.Lock()
	defer browserProcessRegisterMu.Unlock()

	rID := GetRunID(ctx)
	for pid, st := range browserProcessRegister {
		if rID != "" && st.runID != rID {
			continue
		}
		Kill(pid)
		delete(browserProcessRegister, pid)
	}
}

// Kill will look for and kill the process with the given pid.
// Tests override it so that no real process is touched.
var Kill = func(pid int) { //nolint:gochecknoglobals
	p, err := os.FindProcess(pid)
	if err != nil {
		// optimistically continue and don't kill the process
		return
	}
	// no need to check the error since we're already shutting down.
	_ = p.Kill()
	_ = p.Release()
}
