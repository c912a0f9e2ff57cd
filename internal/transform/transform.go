// Package transform drives a whole job: it orders the stages by the datasets
// they exchange, runs each selected stage's executors one after another and
// assembles the job report.
package transform

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/stagehand/internal/argstore"
	"github.com/alexisbeaulieu97/stagehand/internal/config"
	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	"github.com/alexisbeaulieu97/stagehand/internal/executor"
	"github.com/alexisbeaulieu97/stagehand/internal/logger"
	"github.com/alexisbeaulieu97/stagehand/internal/model"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// Options tune a Transform.
type Options struct {
	Selection Selection
	// BaseDir anchors relative paths of the settings section.
	BaseDir string
	Logger  *logger.Logger
	// JobID defaults to a random UUID.
	JobID string
	// Observer sees every stage result as it changes.
	Observer func(model.StageResult)
}

// Transform owns the shared argument store and data dictionary of one job.
type Transform struct {
	cfg      *config.Config
	opts     Options
	log      *logger.Logger
	jobID    string
	now      func() time.Time
	args     *argstore.Store
	data     *datadict.Dictionary
	settings executor.Settings
	graph    *Graph
	plan     *Plan

	executors []*executor.Executor
	children  []*executor.Executor
	results   []model.StageResult
	err       error
	started   time.Time
	finished  time.Time
}

// New validates the stage graph, selects the stages to run and loads the
// arguments and datasets.
func New(cfg *config.Config, opts Options) (*Transform, error) {
	if cfg == nil {
		return nil, stagehanderrors.NewGraphError("", "job definition is nil")
	}
	graph, err := BuildGraph(cfg.Stages)
	if err != nil {
		return nil, err
	}
	plan, err := GeneratePlan(graph, cfg, opts.Selection)
	if err != nil {
		return nil, err
	}

	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	t := &Transform{
		cfg:      cfg,
		opts:     opts,
		log:      log.With("job_id", jobID),
		jobID:    jobID,
		now:      time.Now,
		args:     buildArgs(cfg),
		data:     buildData(cfg),
		settings: buildSettings(cfg.Settings, opts.BaseDir),
		graph:    graph,
		plan:     plan,
	}

	planned := t.plannedStages()
	first := ""
	if len(planned) > 0 {
		first = planned[0].Name
	}
	t.args.BuildOptionTable(executor.ArgEngineOpts, scopes(planned, first))
	return t, nil
}

// JobID identifies this run in logs and the report.
func (t *Transform) JobID() string { return t.jobID }

// Plan is the selected run order.
func (t *Transform) Plan() *Plan { return t.plan }

// Args is the shared argument store.
func (t *Transform) Args() *argstore.Store { return t.args }

// Data is the shared data dictionary.
func (t *Transform) Data() *datadict.Dictionary { return t.data }

// Results are the stage results so far, in run order.
func (t *Transform) Results() []model.StageResult {
	return append([]model.StageResult(nil), t.results...)
}

// Executors are the stage executors created so far.
func (t *Transform) Executors() []*executor.Executor {
	return append([]*executor.Executor(nil), t.executors...)
}

// MergeExecutors are the executors spawned by dataset self-merges.
func (t *Transform) MergeExecutors() []*executor.Executor {
	return append([]*executor.Executor(nil), t.children...)
}

// Err is the failure that stopped the job, if any.
func (t *Transform) Err() error { return t.err }

func (t *Transform) plannedStages() []config.Stage {
	names := t.plan.Stages()
	out := make([]config.Stage, 0, len(names))
	for _, name := range names {
		out = append(out, *t.graph.Nodes[name].Stage)
	}
	return out
}

// Run drives every planned stage through its lifecycle in order and stops at
// the first failure. Stages run one at a time because they share the
// argument store and data dictionary.
func (t *Transform) Run(ctx context.Context) error {
	t.started = t.now()
	defer func() { t.finished = t.now() }()

	for _, name := range t.plan.Skipped {
		t.emit(model.StageResult{Stage: name, Kind: t.graph.Nodes[name].Stage.Kind, Status: model.StatusSkipped, Message: "not needed", Timestamp: t.now()})
	}

	if err := os.MkdirAll(t.settings.WorkDir, 0o755); err != nil {
		t.err = stagehanderrors.NewSetupError("", "cannot create work directory", err)
		return t.err
	}

	mergeConf := executor.NewConfig(t.args, t.data, false, t.settings)
	if attached := executor.AttachMergers(mergeConf, t.log, func(child *executor.Executor) {
		t.children = append(t.children, child)
	}); len(attached) > 0 {
		t.log.Debugf("self-merge attached to %v", attached)
	}

	stages := t.plannedStages()
	t.log.Infof("running %d stages", len(stages))
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			t.err = stagehanderrors.NewExecutionError(stage.Name, "job cancelled", err)
			return t.err
		}
		execs, err := t.executorsFor(stage, i == 0)
		if err != nil {
			t.err = err
			t.emit(model.StageResult{Stage: stage.Name, Kind: stage.Kind, Status: model.StatusFailed, Message: err.Error(), Error: err, ExitCode: stagehanderrors.CodeFor(err), Timestamp: t.now()})
			return err
		}
		for _, ex := range execs {
			if err := t.runExecutor(ctx, ex); err != nil {
				t.err = err
				return err
			}
		}
	}
	t.log.Info("all stages validated")
	return nil
}

func (t *Transform) executorsFor(stage config.Stage, first bool) ([]*executor.Executor, error) {
	spec := stageSpec(stage)
	base := executor.NewConfig(t.args, t.data, first, t.settings)
	if stage.Steps <= 1 {
		ex, err := executor.New(spec, base, t.log)
		if err != nil {
			return nil, err
		}
		return []*executor.Executor{ex}, nil
	}

	execs := make([]*executor.Executor, 0, stage.Steps)
	for step := 0; step < stage.Steps; step++ {
		conf := base.Copy()
		conf.First = first && step == 0
		if err := conf.SetStep(step, stage.Steps); err != nil {
			return nil, stagehanderrors.NewGraphError(stage.Name, err.Error())
		}
		ex, err := executor.New(spec, conf, t.log)
		if err != nil {
			return nil, err
		}
		execs = append(execs, ex)
	}
	return execs, nil
}

func (t *Transform) runExecutor(ctx context.Context, ex *executor.Executor) error {
	t.executors = append(t.executors, ex)
	start := t.now()
	t.emit(model.StageResult{Stage: ex.Name(), Kind: string(ex.Spec().Kind), Status: model.StatusRunning, Timestamp: start})

	err := ex.Run(ctx)
	result := model.StageResult{
		Stage:     ex.Name(),
		Kind:      string(ex.Spec().Kind),
		RC:        ex.RC(),
		Duration:  t.now().Sub(start),
		Timestamp: t.now(),
	}
	if err != nil {
		result.Status = model.StatusFailed
		result.Error = err
		result.Message = ex.ErrMsg()
		result.ExitCode = stagehanderrors.CodeFor(err)
		t.emit(result)
		return fmt.Errorf("stage %s: %w", ex.Name(), err)
	}

	result.Status = model.StatusSuccess
	result.Message = "validated"
	if msg, ok := ex.Extra()["optionalFailure"].(string); ok {
		result.Message = "optional failure: " + msg
	}
	t.emit(result)
	return nil
}

func (t *Transform) emit(r model.StageResult) {
	if r.Done() {
		t.results = append(t.results, r)
	}
	if t.opts.Observer != nil {
		t.opts.Observer(r)
	}
}

// ExecutorNames lists the executors the run will create, in run order,
// followed by the skipped stages.
func (t *Transform) ExecutorNames() []string {
	var names []string
	for _, stage := range t.plannedStages() {
		if stage.Steps <= 1 {
			names = append(names, stage.Name)
			continue
		}
		for step := 0; step < stage.Steps; step++ {
			names = append(names, fmt.Sprintf("%s%d", stage.Name, step))
		}
	}
	return append(names, t.plan.Skipped...)
}

// WorkDir is the directory stages run in.
func (t *Transform) WorkDir() string { return t.settings.WorkDir }
