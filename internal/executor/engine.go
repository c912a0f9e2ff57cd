package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/stagehand/internal/bundle"
	"github.com/alexisbeaulieu97/stagehand/internal/parallel"
	"github.com/alexisbeaulieu97/stagehand/internal/wrapper"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

const (
	optDropAndReload = "--drop-and-reload"
	optConfigOnly    = "--config-only"
)

func enginePreExecute(_ context.Context, e *Executor) error {
	exe, err := e.requireExe(e.conf.Settings.Tools.Engine)
	if err != nil {
		return err
	}
	if err := e.checkEvents(); err != nil {
		return err
	}
	if err := e.negotiate(); err != nil {
		return err
	}
	if err := e.prepareSteps(); err != nil {
		return err
	}
	runargs, err := e.writeRunArgs()
	if err != nil {
		return err
	}
	return e.buildEngineCommand(exe, runargs)
}

// checkEvents derives the expected event count and refuses to run a stage
// whose skip offset consumes every input event.
func (e *Executor) checkEvents() error {
	scope := e.scope()
	skip, _, err := e.conf.Args.Int(ArgSkipEvents, scope)
	if err != nil {
		return stagehanderrors.NewSetupError(e.Name(), err.Error(), err)
	}
	maxEvents, hasMax, err := e.conf.Args.Int(ArgMaxEvents, scope)
	if err != nil {
		return stagehanderrors.NewSetupError(e.Name(), err.Error(), err)
	}
	if !hasMax {
		maxEvents = -1
	}

	var inputEvents int64
	inputKnown := false
	inputName := ""
	for _, ds := range e.inputs {
		f, ok := e.conf.Data.Get(ds)
		if !ok {
			continue
		}
		if n, ok := f.TotalEvents(); ok {
			inputEvents, inputKnown, inputName = n, true, ds
			break
		}
	}

	expected := parallel.UnknownEvents
	if inputKnown {
		if skip >= inputEvents {
			return stagehanderrors.NewNoEventsError(e.Name(),
				fmt.Sprintf("No events to process: %d (skipEvents) >= %d (inputEvents of %s)", skip, inputEvents, inputName))
		}
		expected = inputEvents - skip
		if maxEvents >= 0 && maxEvents < expected {
			expected = maxEvents
		}
	} else if maxEvents >= 0 {
		expected = maxEvents
	}
	e.expectedEvents = expected
	return nil
}

// ExpectedEvents is the number of events the stage is expected to process,
// or parallel.UnknownEvents.
func (e *Executor) ExpectedEvents() int64 {
	return e.expectedEvents
}

func (e *Executor) negotiate() error {
	scope := e.scope()
	req, err := parallel.FromArgs(e.conf.Args, scope, e.conf.Settings.CoreEnv, e.conf.Settings.LookupEnv)
	if err != nil {
		return stagehanderrors.NewSetupError(e.Name(), err.Error(), err)
	}
	req.EngineOpts = e.conf.Args.StageOptions(ArgEngineOpts, scope)
	req.DisableMP = e.spec.DisableMP
	req.DisableMT = e.spec.DisableMT
	req.OnlyMT = e.spec.OnlyMT
	req.OnlyMP = e.spec.OnlyMP
	for _, key := range e.spec.OnlyMPWithArgs {
		if e.conf.Args.Has(key) {
			e.log.Infof("argument %s requires worker processes only", key)
			req.OnlyMP = true
		}
	}
	req.ExpectedEvents = e.expectedEvents

	res, err := parallel.Negotiate(req)
	if err != nil {
		return stagehanderrors.NewSetupError(e.Name(), err.Error(), err)
	}
	for _, w := range res.Warnings {
		e.log.Warn(w)
	}
	e.parallel = res
	e.log.Infof("parallelism: %d processes, %d threads, %d concurrent events", res.Processes, res.Threads, res.ConcurrentEvents)
	return nil
}

// prepareSteps points the outputs of a split stage at per-step files.
func (e *Executor) prepareSteps() error {
	if !e.conf.Split() {
		return nil
	}
	for _, ds := range e.outputs {
		f, err := e.conf.Data.Checkout(ds, e.spec.Name)
		if err != nil {
			return stagehanderrors.NewSetupError(e.Name(), err.Error(), err)
		}
		original := f.RememberOriginal()
		if original == "" {
			return stagehanderrors.NewSetupError(e.Name(), fmt.Sprintf("output %s has no file name", ds), nil)
		}
		f.ReplaceValues([]string{stepName(original, e.conf.Step())})
	}
	return nil
}

func stepName(original string, step int) string {
	return fmt.Sprintf("%s_step%d", original, step)
}

// RunArgsName is the file the engine reads its resolved arguments from.
func (e *Executor) RunArgsName() string {
	return "runargs." + e.Name() + ".yaml"
}

type runArgs struct {
	Stage          string              `yaml:"stage"`
	Substep        string              `yaml:"substep"`
	First          bool                `yaml:"first"`
	Step           int                 `yaml:"step,omitempty"`
	ExpectedEvents int64               `yaml:"expectedEvents"`
	Parallel       runArgsParallel     `yaml:"parallel"`
	Inputs         map[string][]string `yaml:"inputs,omitempty"`
	Outputs        map[string][]string `yaml:"outputs,omitempty"`
	Args           map[string]any      `yaml:"args"`
}

type runArgsParallel struct {
	Processes        int `yaml:"processes"`
	Threads          int `yaml:"threads"`
	ConcurrentEvents int `yaml:"concurrentEvents"`
}

func (e *Executor) writeRunArgs() (string, error) {
	doc := runArgs{
		Stage:          e.Name(),
		Substep:        e.spec.Substep,
		First:          e.conf.First,
		Step:           e.conf.Step(),
		ExpectedEvents: e.expectedEvents,
		Parallel: runArgsParallel{
			Processes:        e.parallel.Processes,
			Threads:          e.parallel.Threads,
			ConcurrentEvents: e.parallel.ConcurrentEvents,
		},
		Inputs:  e.fileMap(e.inputs),
		Outputs: e.fileMap(e.outputs),
		Args:    e.conf.Args.Snapshot(e.scope()),
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", stagehanderrors.NewSetupError(e.Name(), "cannot encode run arguments", err)
	}
	name := e.RunArgsName()
	if err := os.WriteFile(e.path(name), data, 0o644); err != nil {
		return "", stagehanderrors.NewSetupError(e.Name(), "cannot write run arguments", err)
	}
	return name, nil
}

func (e *Executor) fileMap(datasets []string) map[string][]string {
	out := make(map[string][]string, len(datasets))
	for _, ds := range datasets {
		if f, ok := e.conf.Data.Get(ds); ok {
			out[ds] = append([]string(nil), f.Values...)
		}
	}
	return out
}

// buildEngineCommand assembles the engine argument vector and writes the
// wrapper that runs it. The execute phase always runs the wrapper.
func (e *Executor) buildEngineCommand(exe, runargs string) error {
	scope := e.scope()
	opts := e.conf.Args.StageOptions(ArgEngineOpts, scope)

	profiler, err := e.profiler()
	if err != nil {
		return err
	}

	argv := []string{exe}
	argv = append(argv, parallel.StripCounts(opts)...)
	if e.dropAndReload(opts, profiler) {
		argv = append(argv, optDropAndReload)
	}
	argv = append(argv, e.parallel.Options()...)
	argv = append(argv, e.spec.ExeArgs...)
	argv = append(argv, runargs)

	env, err := e.customEnv()
	if err != nil {
		return err
	}
	script := wrapper.Script{
		Stage:      e.Name(),
		Dir:        e.workDir(),
		Command:    argv,
		Env:        env,
		DisabledMT: e.spec.DisableMT,
		DisabledMP: e.spec.DisableMP,
		Profiler:   profiler,
	}
	if setup, ok := e.conf.Args.String(ArgEnvSetup, scope); ok {
		script.EnvSetup = setup
	}
	if root, ok := e.conf.Args.String(ArgBundle, scope); ok && root != "" {
		b, err := bundle.Resolve(e.path(root))
		if err != nil {
			return stagehanderrors.NewSetupError(e.Name(), "cannot set up resource bundle", err)
		}
		e.SetExtra("bundleVersion", b.Version)
		script.Bundle = b
	}

	path, err := wrapper.Write(script)
	if err != nil {
		return stagehanderrors.NewSetupError(e.Name(), "cannot write wrapper", err)
	}
	// The child runs in the work directory, so a relative path would be
	// resolved twice.
	if path, err = filepath.Abs(path); err != nil {
		return stagehanderrors.NewSetupError(e.Name(), "cannot resolve wrapper path", err)
	}
	e.wrapperPath = path
	e.command = []string{path}
	e.SetExtra("engineCommand", strings.Join(argv, " "))
	return nil
}

// WrapperPath is the generated wrapper script, once written.
func (e *Executor) WrapperPath() string {
	return e.wrapperPath
}

func (e *Executor) profiler() (*wrapper.Profiler, error) {
	scope := e.scope()
	valgrind := e.conf.Args.Bool(ArgValgrind, scope)
	vtune := e.conf.Args.Bool(ArgVTune, scope)
	switch {
	case valgrind && vtune:
		return nil, stagehanderrors.NewSetupError(e.Name(), "valgrind and vtune cannot both be enabled", nil)
	case valgrind:
		opts, _ := e.conf.Args.Strings(ArgValgrindOpts, scope)
		return &wrapper.Profiler{Tool: wrapper.ToolValgrind, Options: opts}, nil
	case vtune:
		opts, _ := e.conf.Args.Strings(ArgVTuneOpts, scope)
		return &wrapper.Profiler{Tool: wrapper.ToolVTune, Options: opts}, nil
	default:
		return nil, nil
	}
}

// dropAndReload is on unless disabled, already requested, in conflict with a
// config-only run, or replaced by a profiler's two-phase run.
func (e *Executor) dropAndReload(opts []string, profiler *wrapper.Profiler) bool {
	if profiler != nil {
		return false
	}
	if e.conf.Args.Has(ArgDropAndReload) && !e.conf.Args.Bool(ArgDropAndReload, e.scope()) {
		return false
	}
	for _, opt := range opts {
		if strings.HasPrefix(opt, optConfigOnly) || strings.HasPrefix(opt, optDropAndReload) {
			return false
		}
	}
	return true
}

func enginePostExecute(ctx context.Context, e *Executor) error {
	if e.rc != 0 {
		e.log.Debug("skipping output handling after failed execution")
		return nil
	}
	if e.parallel.Processes > 0 {
		if err := e.collectWorkerOutputs(ctx); err != nil {
			return err
		}
	}
	if e.conf.Split() {
		for _, ds := range e.outputs {
			if f, ok := e.conf.Data.Get(ds); ok {
				e.conf.addStepFiles(ds, f.Values)
			}
		}
	}
	if e.conf.LastStep() {
		if err := e.mergeSteps(ctx); err != nil {
			return err
		}
	}
	return nil
}

func optionalValidate(ctx context.Context, e *Executor) error {
	err := engineValidate(ctx, e)
	if err == nil {
		return nil
	}
	msg := err.Error()
	if stageErr, ok := stagehanderrors.AsStageError(err); ok {
		msg = stageErr.Message
	}
	e.log.Warnf("optional stage failed, continuing: %s", msg)
	e.SetExtra("optionalFailure", msg)
	return nil
}
