//go:build !windows

package proc

import (
	"os/exec"
	"syscall"
)

// SetProcessGroup puts cmd in its own process group so terminate can
// reach the whole tree.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate kills the underlying OS process, including its children.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	// Kill the whole process group; fall back to the single process.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		cmd.Process.Kill()
	}
}
