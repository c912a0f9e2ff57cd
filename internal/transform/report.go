package transform

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexisbeaulieu97/stagehand/internal/executor"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// DefaultReportName is the job report file written next to the stage logs.
const DefaultReportName = "jobReport.json"

// Report is the JSON job report.
type Report struct {
	JobID       string                `json:"jobId"`
	Name        string                `json:"name"`
	ExitCode    int                   `json:"exitCode"`
	ExitName    string                `json:"exitName"`
	ExitMessage string                `json:"exitMessage"`
	Started     time.Time             `json:"started"`
	WallTime    float64               `json:"wallTime"`
	Executors   []executor.Telemetry  `json:"executors"`
	Merges      []executor.Telemetry  `json:"mergeExecutors,omitempty"`
	Skipped     []string              `json:"skipped,omitempty"`
	Files       map[string]FileReport `json:"files"`
}

// FileReport is the final state of one dataset.
type FileReport struct {
	IO     string   `json:"io"`
	Format string   `json:"format"`
	Files  []string `json:"files"`
	Events *int64   `json:"events,omitempty"`
}

// Report summarises the run so far.
func (t *Transform) Report() Report {
	code := stagehanderrors.CodeFor(t.err)
	r := Report{
		JobID:       t.jobID,
		Name:        t.cfg.Name,
		ExitCode:    code,
		ExitName:    stagehanderrors.ExitName(code),
		ExitMessage: "OK",
		Started:     t.started,
		Skipped:     append([]string(nil), t.plan.Skipped...),
		Files:       make(map[string]FileReport),
	}
	if t.err != nil {
		r.ExitMessage = t.err.Error()
		if stageErr, ok := stagehanderrors.AsStageError(t.err); ok && stageErr.Message != "" {
			r.ExitMessage = stageErr.Message
		}
	}
	if !t.finished.IsZero() {
		r.WallTime = t.finished.Sub(t.started).Seconds()
	}
	for _, ex := range t.executors {
		r.Executors = append(r.Executors, ex.Telemetry())
	}
	for _, ex := range t.children {
		r.Merges = append(r.Merges, ex.Telemetry())
	}
	for _, ds := range t.data.Datasets() {
		f, _ := t.data.Get(ds)
		entry := FileReport{IO: string(f.IO), Format: string(f.Format), Files: append([]string{}, f.Values...)}
		if total, ok := f.TotalEvents(); ok {
			entry.Events = &total
		}
		r.Files[ds] = entry
	}
	return r
}

// ReportPath is where WriteReport puts the report.
func (t *Transform) ReportPath() string {
	path := t.cfg.Settings.Report
	if path == "" {
		path = DefaultReportName
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(t.settings.WorkDir, path)
}

// WriteReport writes the job report as indented JSON.
func (t *Transform) WriteReport() (string, error) {
	path := t.ReportPath()
	data, err := json.MarshalIndent(t.Report(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode job report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write job report: %w", err)
	}
	t.log.Infof("job report written to %s", path)
	return path, nil
}
