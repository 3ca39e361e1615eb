//go:build windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup detaches the backend into its own process group.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminateGroup stops the backend. There is no graceful group signal on
// Windows, so it behaves like killGroup.
func terminateGroup(cmd *exec.Cmd) error {
	return killGroup(cmd)
}

// killGroup forcibly stops the backend process.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
