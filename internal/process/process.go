package process

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// Handle is one running (or exited) child process.
type Handle struct {
	spec   Spec
	cmd    *exec.Cmd
	mu     sync.Mutex
	status Status
	done   chan struct{} // closed by monitor when cmd.Wait returns
}

// Start launches the script described by spec with inherited stdio.
// The returned handle is monitored in the background; Done is closed on exit.
func Start(spec Spec) (*Handle, error) {
	cmd := spec.BuildCommand()
	spec.configureCmd(cmd)
	// bounds Wait when a grandchild keeps a captured output pipe open
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Script, err)
	}
	h := &Handle{
		spec: spec,
		cmd:  cmd,
		done: make(chan struct{}),
		status: Status{
			Script:    spec.Script,
			PID:       cmd.Process.Pid,
			Running:   true,
			StartedAt: time.Now(),
			ExitCode:  -1,
		},
	}
	go h.monitor()
	return h, nil
}

func (h *Handle) monitor() {
	_ = h.cmd.Wait()
	h.mu.Lock()
	h.status.Running = false
	h.status.StoppedAt = time.Now()
	h.status.ExitCode = exitCodeOf(h.cmd.ProcessState, h.status.Terminated)
	h.mu.Unlock()
	close(h.done)
}

// Terminate asks the child to exit with SIGTERM and returns without waiting.
func (h *Handle) Terminate() error {
	h.mu.Lock()
	if !h.status.Running {
		h.mu.Unlock()
		return nil
	}
	h.status.Terminated = true
	h.mu.Unlock()
	return terminateProcess(h.cmd.Process, h.spec.KillGroup)
}

// Kill sends SIGKILL. Used when a terminated child outlives the shutdown grace period.
func (h *Handle) Kill() error {
	h.mu.Lock()
	if !h.status.Running {
		h.mu.Unlock()
		return nil
	}
	h.status.Terminated = true
	h.mu.Unlock()
	return killProcess(h.cmd.Process, h.spec.KillGroup)
}

// Stop terminates the child and waits up to grace for it to exit, escalating to Kill.
func (h *Handle) Stop(grace time.Duration) {
	_ = h.Terminate()
	select {
	case <-h.done:
		return
	case <-time.After(grace):
	}
	_ = h.Kill()
	select {
	case <-h.done:
	case <-time.After(200 * time.Millisecond):
		// best-effort
	}
}

// Done is closed once the child has exited and its status is final.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the child exits or ctx is done and returns the exit code.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.ExitCode(), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// ExitCode returns the normalised exit code, or -1 while running.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status.ExitCode
}

// PID of the child.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status.PID
}

// Snapshot returns a copy of the current status.
func (h *Handle) Snapshot() Status {
	h.mu.Lock()
	s := h.status
	h.mu.Unlock()
	return s
}
