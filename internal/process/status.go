package process

import (
	"strconv"
	"time"
)

// TerminatedExitCode is the conventional exit code of a child killed by SIGTERM.
// A run that ends with it was replaced by a restart, not a failure.
const TerminatedExitCode = 143

// Status is a snapshot of one script run.
type Status struct {
	Script     string    `json:"script"`
	PID        int       `json:"pid"`
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	ExitCode   int       `json:"exit_code"` // -1 while running
	Terminated bool      `json:"terminated"` // Terminate was requested for this run
}

// ChildExitError reports a child that exited non-zero for a reason other than
// a controller restart. It is informational and never stops the watcher.
type ChildExitError struct {
	Code int
}

func (e *ChildExitError) Error() string { return "exited with code " + strconv.Itoa(e.Code) }

// ExitErr converts an exit code into nil, or a *ChildExitError for failures.
// The termination sentinel is not a failure.
func ExitErr(code int) error {
	if code == 0 || code == TerminatedExitCode {
		return nil
	}
	return &ChildExitError{Code: code}
}
