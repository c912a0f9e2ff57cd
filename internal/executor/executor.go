// Package executor runs one stage of a job through its lifecycle:
// pre-execute, execute, post-execute and validate. Executor kinds differ only
// in the hooks they install for those phases.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/alexisbeaulieu97/stagehand/internal/argstore"
	"github.com/alexisbeaulieu97/stagehand/internal/logger"
	"github.com/alexisbeaulieu97/stagehand/internal/logscan"
	"github.com/alexisbeaulieu97/stagehand/internal/merge"
	"github.com/alexisbeaulieu97/stagehand/internal/parallel"
	"github.com/alexisbeaulieu97/stagehand/internal/resmon"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// State is a lifecycle position. States are entered in order, once each.
type State int

const (
	StateConfigured State = iota
	StatePreExecuted
	StateExecuted
	StatePostExecuted
	StateValidated
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StatePreExecuted:
		return "pre-executed"
	case StateExecuted:
		return "executed"
	case StatePostExecuted:
		return "post-executed"
	case StateValidated:
		return "validated"
	default:
		return "unknown"
	}
}

// ErrOutOfOrder is returned when a lifecycle phase is called in the wrong state.
type ErrOutOfOrder struct {
	Stage string
	Phase string
	State State
}

func (e *ErrOutOfOrder) Error() string {
	return fmt.Sprintf("stage %s: %s called in state %s", e.Stage, e.Phase, e.State)
}

// Spec is the static definition of a stage.
type Spec struct {
	Name    string
	Substep string
	Kind    Kind

	Exe     string
	ExeArgs []string
	// ArgKeys are arguments appended to a script command line.
	ArgKeys []string

	Inputs  []string
	Outputs []string

	ErrorMaskFiles []string
	DisableMP      bool
	DisableMT      bool
	OnlyMP         bool
	OnlyMT         bool
	// OnlyMPWithArgs forces OnlyMP when any of these arguments is set.
	OnlyMPWithArgs []string
	CheckOutputs   bool
}

// Executor owns the lifecycle of one stage.
type Executor struct {
	spec  Spec
	conf  *Config
	hooks Hooks
	log   *logger.Logger
	now   func() time.Time

	state State
	marks [numCheckpoints]mark

	inputs  []string
	outputs []string

	rc          int
	signal      string
	hasExecuted bool
	validated   bool
	err         error
	extra       map[string]any
	merges      []merge.Record

	parallel       parallel.Result
	expectedEvents int64
	command        []string
	env            map[string]string
	wrapperPath    string
	renameFrom     string

	resources resmon.Summary
	leak      *resmon.Fit
	logReport *logscan.Report
}

// New creates an executor in the configured state. Declaring the same
// dataset type as both input and output is a graph error.
func New(spec Spec, conf *Config, log *logger.Logger) (*Executor, error) {
	if spec.Name == "" {
		return nil, stagehanderrors.NewGraphError("", "stage name is required")
	}
	if overlap := intersect(spec.Inputs, spec.Outputs); len(overlap) > 0 {
		return nil, stagehanderrors.NewGraphError(spec.Name, fmt.Sprintf("dataset types %v are both input and output", overlap))
	}
	if spec.Kind == "" {
		spec.Kind = KindNoop
	}
	hooks, err := hooksFor(spec.Kind)
	if err != nil {
		return nil, stagehanderrors.NewGraphError(spec.Name, err.Error())
	}
	if spec.Substep == "" {
		spec.Substep = spec.Name
	}
	if log == nil {
		log = logger.Nop()
	}

	e := &Executor{
		spec:           spec,
		conf:           conf,
		hooks:          hooks,
		now:            time.Now,
		extra:          make(map[string]any),
		expectedEvents: parallel.UnknownEvents,
	}
	e.log = log.ForStage(e.Name(), spec.Substep)
	return e, nil
}

// Name is the stage name, suffixed with the step index for split stages.
func (e *Executor) Name() string {
	if e.conf.Split() {
		return fmt.Sprintf("%s%d", e.spec.Name, e.conf.Step())
	}
	return e.spec.Name
}

// Spec returns the static definition.
func (e *Executor) Spec() Spec { return e.spec }

// Config returns the executor's configuration.
func (e *Executor) Config() *Config { return e.conf }

// State returns the lifecycle position.
func (e *Executor) State() State { return e.state }

// RC is the return code of the executed program; signals are reported as
// 128 plus the signal number.
func (e *Executor) RC() int { return e.rc }

// HasExecuted reports whether the execute phase ran.
func (e *Executor) HasExecuted() bool { return e.hasExecuted }

// Validated reports whether validation passed.
func (e *Executor) Validated() bool { return e.validated }

// Err is the failure that ended the lifecycle, if any.
func (e *Executor) Err() error { return e.err }

// ErrMsg is the most specific failure message assembled.
func (e *Executor) ErrMsg() string {
	if stageErr, ok := stagehanderrors.AsStageError(e.err); ok {
		return stageErr.Message
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

// Inputs are the declared input types present for this run.
func (e *Executor) Inputs() []string { return append([]string(nil), e.inputs...) }

// Outputs are the declared output types requested for this run.
func (e *Executor) Outputs() []string { return append([]string(nil), e.outputs...) }

// Parallel returns the negotiated parallelism state.
func (e *Executor) Parallel() parallel.Result { return e.parallel }

// Command returns the argument vector the execute phase runs.
func (e *Executor) Command() []string { return append([]string(nil), e.command...) }

// Merges lists the merges performed on this stage's outputs.
func (e *Executor) Merges() []merge.Record { return append([]merge.Record(nil), e.merges...) }

// Extra returns free-form metadata recorded during the run.
func (e *Executor) Extra() map[string]any { return e.extra }

// SetExtra records a metadata value for the job report.
func (e *Executor) SetExtra(key string, value any) { e.extra[key] = value }

// Logger returns the stage logger.
func (e *Executor) Logger() *logger.Logger { return e.log }

func (e *Executor) scope() argstore.Scope {
	return argstore.Scope{Name: e.spec.Name, Substep: e.spec.Substep, First: e.conf.First}
}

func (e *Executor) workDir() string {
	if e.conf.Settings.WorkDir == "" {
		return "."
	}
	return e.conf.Settings.WorkDir
}

func (e *Executor) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.workDir(), name)
}

// LogName is the stage logfile name.
func (e *Executor) LogName() string {
	return "log." + e.Name()
}

// PreExecute records the first checkpoint and resolves the actual input and
// output types. A nil list means "whatever the data dictionary holds".
func (e *Executor) PreExecute(ctx context.Context, inputTypes, outputTypes []string) error {
	e.record(PreExecuteStart)
	if e.state != StateConfigured {
		return &ErrOutOfOrder{Stage: e.Name(), Phase: "PreExecute", State: e.state}
	}

	e.inputs = e.present(e.spec.Inputs, inputTypes)
	e.outputs = e.present(e.spec.Outputs, outputTypes)
	e.log.Debugf("inputs %v, outputs %v", e.inputs, e.outputs)

	if err := e.runHook(ctx, e.hooks.PreExecute, setupFailure); err != nil {
		return err
	}
	e.state = StatePreExecuted
	return nil
}

// Execute runs the stage's program.
func (e *Executor) Execute(ctx context.Context) error {
	if e.state != StatePreExecuted {
		return &ErrOutOfOrder{Stage: e.Name(), Phase: "Execute", State: e.state}
	}
	e.record(ExecuteStart)
	err := e.runHook(ctx, e.hooks.Execute, executionFailure)
	e.hasExecuted = true
	e.record(ExecuteStop)
	if err != nil {
		return err
	}
	e.state = StateExecuted
	return nil
}

// PostExecute reacts to what Execute produced.
func (e *Executor) PostExecute(ctx context.Context) error {
	if e.state != StateExecuted {
		return &ErrOutOfOrder{Stage: e.Name(), Phase: "PostExecute", State: e.state}
	}
	if err := e.runHook(ctx, e.hooks.PostExecute, outputFailure); err != nil {
		return err
	}
	e.state = StatePostExecuted
	return nil
}

// Validate decides pass or fail. Both outcomes end in StateValidated.
func (e *Executor) Validate(ctx context.Context) error {
	if e.state != StatePostExecuted {
		return &ErrOutOfOrder{Stage: e.Name(), Phase: "Validate", State: e.state}
	}
	e.record(ValidateStart)
	err := e.runHook(ctx, e.hooks.Validate, validationFailure)
	e.record(ValidateStop)
	e.state = StateValidated
	e.validated = err == nil
	if e.validated {
		e.log.Debug("validated")
	}
	return err
}

// Run drives the whole lifecycle and returns the first failure.
func (e *Executor) Run(ctx context.Context) error {
	if err := e.PreExecute(ctx, nil, nil); err != nil {
		return err
	}
	if err := e.Execute(ctx); err != nil {
		return err
	}
	if err := e.PostExecute(ctx); err != nil {
		return err
	}
	return e.Validate(ctx)
}

type classifier func(stage string, err error) *stagehanderrors.StageError

func setupFailure(stage string, err error) *stagehanderrors.StageError {
	return stagehanderrors.NewSetupError(stage, "", err)
}

func executionFailure(stage string, err error) *stagehanderrors.StageError {
	return stagehanderrors.NewExecutionError(stage, "", err)
}

func outputFailure(stage string, err error) *stagehanderrors.StageError {
	return stagehanderrors.NewOutputFileError(stage, "", err)
}

func validationFailure(stage string, err error) *stagehanderrors.StageError {
	return stagehanderrors.NewValidationFailure(stage, "", err)
}

// runHook calls hook and records its failure. Untyped errors are classified
// by the phase they came from.
func (e *Executor) runHook(ctx context.Context, hook HookFunc, classify classifier) error {
	if hook == nil {
		return nil
	}
	err := hook(ctx, e)
	if err == nil {
		return nil
	}
	if _, ok := stagehanderrors.AsStageError(err); !ok {
		err = classify(e.Name(), err)
	}
	e.err = err
	e.log.Error(err, "stage failed")
	return err
}

func (e *Executor) present(declared, requested []string) []string {
	var out []string
	if requested == nil {
		for _, t := range declared {
			if e.conf.Data != nil && e.conf.Data.Has(t) {
				out = append(out, t)
			}
		}
		return out
	}
	return intersect(declared, requested)
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, v := range a {
		if _, ok := set[v]; !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
