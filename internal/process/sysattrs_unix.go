//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in its own process group when the spec
// asks for group signalling, so grandchildren die with it on restart. Otherwise
// the child stays in the foreground group and can read from the terminal.
func configureSysProcAttr(cmd *exec.Cmd, spec Spec) {
	if spec.KillGroup {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
}
