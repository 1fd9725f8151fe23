//go:build windows

package player

import (
	"os/exec"
	"syscall"
)

const detachedProcess = 0x00000008

// detach starts the player without a console and in a new process group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
	}
}
