//go:build !windows

package core

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the compiler in its own process group so that
// node child processes die with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative PID targets the whole group.
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
