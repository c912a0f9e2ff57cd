package components

import (
	"fmt"
	"strings"
)

// SummaryData aggregates counts and the job outcome for rendering.
type SummaryData struct {
	Total       int
	Completed   int
	Failed      int
	Finished    bool
	Cancelled   bool
	ExitCode    int
	ExitName    string
	ExitMessage string
	Report      string
}

// Summary renders a textual run summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	var lines []string
	if s.data.Total > 0 {
		lines = append(lines, fmt.Sprintf("Stages: %d/%d completed", s.data.Completed, s.data.Total))
	}

	switch {
	case s.data.Cancelled:
		lines = append(lines, "Run cancelled")
	case s.data.Finished && s.data.ExitName != "":
		if s.data.ExitCode == 0 {
			lines = append(lines, "Job finished successfully")
		} else {
			lines = append(lines, fmt.Sprintf("Job failed: %s (exit %d)", s.data.ExitName, s.data.ExitCode))
			if s.data.ExitMessage != "" {
				lines = append(lines, "  "+s.data.ExitMessage)
			}
		}
	case s.data.Failed > 0:
		lines = append(lines, fmt.Sprintf("%d stage(s) failed", s.data.Failed))
	}

	if s.data.Report != "" {
		lines = append(lines, "Report: "+s.data.Report)
	}

	return strings.Join(lines, "\n")
}
