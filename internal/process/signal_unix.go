//go:build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// signalProcess delivers sig to p, or to its whole process group. A single
// process is signalled through os.Process so a child that was already reaped
// reports os.ErrProcessDone instead of hitting a reused pid.
func signalProcess(p *os.Process, group bool, sig syscall.Signal) error {
	if p == nil || p.Pid <= 0 {
		return nil
	}
	var err error
	if group {
		err = syscall.Kill(-p.Pid, sig)
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	err = p.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func terminateProcess(p *os.Process, group bool) error {
	return signalProcess(p, group, syscall.SIGTERM)
}

func killProcess(p *os.Process, group bool) error {
	return signalProcess(p, group, syscall.SIGKILL)
}

// processExists checks if a process exists (for test compatibility)
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
