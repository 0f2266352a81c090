package client

import (
	"fmt"
	"time"
)

// RunStatus is the state of one script run.
type RunStatus struct {
	Script     string    `json:"script"`
	PID        int       `json:"pid"`
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	ExitCode   int       `json:"exit_code"`
	Terminated bool      `json:"terminated"`
}

// Sample is a resource usage reading of the running script.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Status is the /status response.
type Status struct {
	Runs     int       `json:"runs"`
	Debounce string    `json:"debounce"`
	Current  RunStatus `json:"current"`
	HasRun   bool      `json:"has_run"`
	Sample   *Sample   `json:"sample,omitempty"`
	Samples  []Sample  `json:"samples,omitempty"`
}

// HistoryEvent is one recorded start or exit.
type HistoryEvent struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Status     RunStatus `json:"status"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is returned for any unexpected HTTP status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}
