package executor

import (
	"time"

	"github.com/alexisbeaulieu97/stagehand/internal/logscan"
	"github.com/alexisbeaulieu97/stagehand/internal/merge"
	"github.com/alexisbeaulieu97/stagehand/internal/resmon"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// Telemetry is the job report entry of one executor. Times are in seconds;
// a phase that never ran is null.
type Telemetry struct {
	Name      string `json:"name"`
	Substep   string `json:"substep"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	RC        int    `json:"rc"`
	Signal    string `json:"signal,omitempty"`
	Executed  bool   `json:"executed"`
	Validated bool   `json:"validated"`
	Error     string `json:"error,omitempty"`
	Category  string `json:"category,omitempty"`

	SetupWall    *float64 `json:"setupWallTime"`
	ExecuteWall  *float64 `json:"executeWallTime"`
	ExecuteCPU   *float64 `json:"executeCpuTime"`
	ValidateWall *float64 `json:"validateWallTime"`
	ValidateCPU  *float64 `json:"validateCpuTime"`
	TotalWall    *float64 `json:"totalWallTime"`

	Processes        int   `json:"processes"`
	Threads          int   `json:"threads"`
	ConcurrentEvents int   `json:"concurrentEvents"`
	ExpectedEvents   int64 `json:"expectedEvents"`

	Resources resmon.Summary `json:"resources,omitempty"`
	Leak      *resmon.Fit    `json:"leak,omitempty"`
	Merges    []merge.Record `json:"merges,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`

	Logfile   string         `json:"logfile,omitempty"`
	LogCounts map[string]int `json:"logCounts,omitempty"`
	WorstLog  *logscan.Event `json:"worstError,omitempty"`
}

// Telemetry summarises the executor for the job report.
func (e *Executor) Telemetry() Telemetry {
	t := Telemetry{
		Name:             e.Name(),
		Substep:          e.spec.Substep,
		Kind:             string(e.spec.Kind),
		State:            e.state.String(),
		RC:               e.rc,
		Signal:           e.signal,
		Executed:         e.hasExecuted,
		Validated:        e.validated,
		Error:            e.ErrMsg(),
		Processes:        e.parallel.Processes,
		Threads:          e.parallel.Threads,
		ConcurrentEvents: e.parallel.ConcurrentEvents,
		ExpectedEvents:   e.expectedEvents,
		Resources:        e.resources,
		Leak:             e.leak,
		Merges:           e.Merges(),
	}
	if stageErr, ok := stagehanderrors.AsStageError(e.err); ok {
		t.Category = string(stageErr.Category)
	}
	if len(e.extra) > 0 {
		t.Extra = e.extra
	}

	t.SetupWall = seconds(e.WallTime(PreExecuteStart, ExecuteStart))
	t.ExecuteWall = seconds(e.WallTime(ExecuteStart, ExecuteStop))
	t.ExecuteCPU = seconds(e.CPUTime(ExecuteStart, ExecuteStop))
	t.ValidateWall = seconds(e.WallTime(ValidateStart, ValidateStop))
	t.ValidateCPU = seconds(e.CPUTime(ValidateStart, ValidateStop))
	t.TotalWall = seconds(e.WallTime(PreExecuteStart, ValidateStop))

	if e.logReport != nil {
		t.Logfile = e.logReport.File
		t.LogCounts = e.logReport.Counts
		if worst := e.logReport.WorstError(); worst.FirstError != nil {
			ev := *worst.FirstError
			t.WorstLog = &ev
		}
	}
	return t
}

func seconds(d time.Duration, ok bool) *float64 {
	if !ok {
		return nil
	}
	s := d.Seconds()
	return &s
}
