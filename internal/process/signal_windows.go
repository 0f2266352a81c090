//go:build windows

package process

import (
	"errors"
	"os"
)

// Windows has no SIGTERM; both paths end the process outright.
func terminateProcess(p *os.Process, _ bool) error { return killProcess(p, false) }

func killProcess(p *os.Process, _ bool) error {
	if p == nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func processExists(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
