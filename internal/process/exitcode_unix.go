//go:build !windows

package process

import (
	"os"
	"syscall"
)

// exitCodeOf maps a finished process to a shell-style exit code:
// death by signal N becomes 128+N, so SIGTERM yields TerminatedExitCode.
func exitCodeOf(ps *os.ProcessState, _ bool) int {
	if ps == nil {
		return -1
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}
