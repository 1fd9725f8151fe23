//go:build !windows

package player

import (
	"os/exec"
	"syscall"
)

// detach puts the player in its own process group so terminal signals sent to
// this program do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
