package model

import (
	"time"
)

const (
	// StatusPending indicates a stage has not started yet.
	StatusPending = "pending"
	// StatusRunning indicates a stage is going through its lifecycle.
	StatusRunning = "running"
	// StatusSuccess marks a stage that ran and validated.
	StatusSuccess = "success"
	// StatusSkipped indicates the stage was not selected for this job.
	StatusSkipped = "skipped"
	// StatusFailed marks a failure in any lifecycle phase.
	StatusFailed = "failed"
)

// StageResult captures the outcome of running a single executor.
type StageResult struct {
	Stage     string
	Kind      string
	Status    string
	Message   string
	RC        int
	ExitCode  int
	Error     error
	Duration  time.Duration
	Timestamp time.Time
}

// Done reports whether the stage reached a terminal status.
func (r StageResult) Done() bool {
	switch r.Status {
	case StatusSuccess, StatusSkipped, StatusFailed:
		return true
	default:
		return false
	}
}

// Summary counts results per status.
type Summary struct {
	Total   int
	Success int
	Failed  int
	Skipped int
}

// Summarize tallies a list of results.
func Summarize(results []StageResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			s.Success++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}
