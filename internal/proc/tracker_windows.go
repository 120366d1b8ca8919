//go:build windows

package proc

import (
	"fmt"
	"os/exec"
	"syscall"
)

// SetProcessGroup starts cmd in a new process group so taskkill /t can
// sweep the whole tree.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// terminate kills the underlying OS process, including its children.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	exec.Command("taskkill", "/pid", fmt.Sprint(cmd.Process.Pid), "/f", "/t").Run()
}
