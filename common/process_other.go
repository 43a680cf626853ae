//go:build !linux

package common

import "os/exec"

// killAfterParent is a no-op where the OS has no parent death signal.
func killAfterParent(*exec.Cmd) {}
