//go:build windows

package process

import "os"

// Windows reports a killed process as exit code 1; a terminate request maps to the sentinel.
func exitCodeOf(ps *os.ProcessState, terminated bool) int {
	if ps == nil {
		return -1
	}
	if terminated {
		return TerminatedExitCode
	}
	return ps.ExitCode()
}
