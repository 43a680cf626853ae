package common

import (
	"os/exec"
	"syscall"
)

// killAfterParent makes the kernel kill the browser when the driver process
// dies without closing it.
func killAfterParent(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
	}
}
