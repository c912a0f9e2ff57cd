package executor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/stagehand/internal/argstore"
	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
}

// writeScript writes an executable shell script into dir and returns its
// absolute path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	require.NoError(t, os.Chmod(path, 0o755))
	return path
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	settings := DefaultSettings()
	settings.WorkDir = t.TempDir()
	settings.LookupEnv = func(string) (string, bool) { return "", false }
	return NewConfig(argstore.New(), datadict.New(), true, settings)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

type recordingMerger struct {
	requests []datadict.MergeRequest
}

func (m *recordingMerger) Merge(_ context.Context, req datadict.MergeRequest) error {
	m.requests = append(m.requests, req)
	return nil
}

func TestNew_RejectsOverlappingInputsAndOutputs(t *testing.T) {
	t.Parallel()

	_, err := New(Spec{Name: "reco", Inputs: []string{"RDO", "ESD"}, Outputs: []string{"ESD"}}, newTestConfig(t), nil)
	require.Error(t, err)
	require.True(t, stagehanderrors.IsCategory(err, stagehanderrors.CategoryGraph))
	require.Contains(t, err.Error(), "ESD")
}

func TestNew_RejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := New(Spec{Name: "reco", Kind: "teleport"}, newTestConfig(t), nil)
	require.True(t, stagehanderrors.IsCategory(err, stagehanderrors.CategoryGraph))
}

func TestNew_DefaultsSubstepToName(t *testing.T) {
	t.Parallel()

	e, err := New(Spec{Name: "reco"}, newTestConfig(t), nil)
	require.NoError(t, err)
	require.Equal(t, "reco", e.Spec().Substep)
	require.Equal(t, KindNoop, e.Spec().Kind)
}

func TestLifecycle_RunsPhasesInOrder(t *testing.T) {
	t.Parallel()

	e, err := New(Spec{Name: "noop"}, newTestConfig(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, e.PreExecute(ctx, nil, nil))
	require.Equal(t, StatePreExecuted, e.State())
	require.NoError(t, e.Execute(ctx))
	require.Equal(t, StateExecuted, e.State())
	require.True(t, e.HasExecuted())
	require.NoError(t, e.PostExecute(ctx))
	require.Equal(t, StatePostExecuted, e.State())
	require.NoError(t, e.Validate(ctx))
	require.Equal(t, StateValidated, e.State())
	require.True(t, e.Validated())
}

func TestLifecycle_RejectsOutOfOrderCalls(t *testing.T) {
	t.Parallel()

	e, err := New(Spec{Name: "noop"}, newTestConfig(t), nil)
	require.NoError(t, err)

	var order *ErrOutOfOrder
	err = e.Execute(context.Background())
	require.ErrorAs(t, err, &order)
	require.Equal(t, "Execute", order.Phase)
	require.Equal(t, StateConfigured, order.State)

	require.ErrorAs(t, e.Validate(context.Background()), &order)
	require.False(t, e.HasExecuted())
}

func TestLifecycle_CheckpointsAreSetOnce(t *testing.T) {
	t.Parallel()

	e, err := New(Spec{Name: "noop"}, newTestConfig(t), nil)
	require.NoError(t, err)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	e.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, e.Run(context.Background()))
	first, ok := e.CheckpointTime(PreExecuteStart)
	require.True(t, ok)

	var order *ErrOutOfOrder
	require.ErrorAs(t, e.PreExecute(context.Background(), nil, nil), &order)
	again, _ := e.CheckpointTime(PreExecuteStart)
	require.Equal(t, first, again)

	wall, ok := e.WallTime(PreExecuteStart, ValidateStop)
	require.True(t, ok)
	require.Equal(t, 4*time.Second, wall)
}

func TestPreExecute_ResolvesPresentTypes(t *testing.T) {
	t.Parallel()

	conf := newTestConfig(t)
	conf.Data.Put(datadict.NewFileArg("RDO", datadict.IOInput, datadict.FormatPool, "in.pool"))
	conf.Data.Put(datadict.NewFileArg("ESD", datadict.IOOutput, datadict.FormatPool, "out.pool"))

	e, err := New(Spec{Name: "reco", Inputs: []string{"RDO", "BS"}, Outputs: []string{"ESD", "AOD"}}, conf, nil)
	require.NoError(t, err)
	require.NoError(t, e.PreExecute(context.Background(), nil, nil))
	require.Equal(t, []string{"RDO"}, e.Inputs())
	require.Equal(t, []string{"ESD"}, e.Outputs())

	e2, err := New(Spec{Name: "reco", Inputs: []string{"RDO", "BS"}, Outputs: []string{"ESD", "AOD"}}, conf, nil)
	require.NoError(t, err)
	require.NoError(t, e2.PreExecute(context.Background(), []string{"BS"}, []string{"AOD", "HIST"}))
	require.Equal(t, []string{"BS"}, e2.Inputs())
	require.Equal(t, []string{"AOD"}, e2.Outputs())
}

func TestScript_NonZeroReturnCodeFailsValidation(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	conf := newTestConfig(t)
	exe := writeScript(t, t.TempDir(), "fail.sh", "echo hello\nexit 3")

	e, err := New(Spec{Name: "prep", Kind: KindScript, Exe: exe}, conf, nil)
	require.NoError(t, err)

	err = e.Run(context.Background())
	require.Error(t, err)
	require.True(t, stagehanderrors.IsCategory(err, stagehanderrors.CategoryValidation))
	require.Equal(t, 3, e.RC())
	require.Equal(t, "Non-zero return code from fail.sh (3)", e.ErrMsg())
	require.Equal(t, StateValidated, e.State())
	require.False(t, e.Validated())
	require.Equal(t, "hello\n", readFile(t, filepath.Join(conf.Settings.WorkDir, "log.prep")))
}

func TestScript_SignalIsRemapped(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	conf := newTestConfig(t)
	exe := writeScript(t, t.TempDir(), "killed.sh", "kill -TERM $$")

	e, err := New(Spec{Name: "prep", Kind: KindScript, Exe: exe}, conf, nil)
	require.NoError(t, err)

	require.Error(t, e.Run(context.Background()))
	require.Equal(t, 143, e.RC())
	require.Contains(t, e.ErrMsg(), "(signal SIGTERM)")
}

func TestScript_CommandCarriesSelectedArguments(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	conf := newTestConfig(t)
	conf.Args.Set("maxEvents", 10)
	conf.Args.Set("dryRun", true)
	conf.Args.Set("quiet", false)
	conf.Args.Set("files", []any{"a", "b"})
	conf.Args.SetArg("tag", argstore.PerStage(map[string]any{"prep": "x", "all": "y"}))
	exe := writeScript(t, t.TempDir(), "ok.sh", "exit 0")

	e, err := New(Spec{
		Name:    "prep",
		Kind:    KindScript,
		Exe:     exe,
		ExeArgs: []string{"--fast"},
		ArgKeys: []string{"maxEvents", "dryRun", "quiet", "files", "tag", "absent"},
	}, conf, nil)
	require.NoError(t, err)
	require.NoError(t, e.PreExecute(context.Background(), nil, nil))

	require.Equal(t, []string{exe, "--fast", "--maxEvents=10", "--dryRun", "--files", "a", "b", "--tag=x"}, e.Command())
}

func TestScript_MissingExecutableIsSetupError(t *testing.T) {
	t.Parallel()

	e, err := New(Spec{Name: "prep", Kind: KindScript, Exe: "/nonexistent/tool"}, newTestConfig(t), nil)
	require.NoError(t, err)

	err = e.Run(context.Background())
	require.True(t, stagehanderrors.IsCategory(err, stagehanderrors.CategorySetup))
	require.Equal(t, StateConfigured, e.State())
	require.False(t, e.HasExecuted())
}

func TestScript_MalformedEnvIsSetupError(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	conf := newTestConfig(t)
	conf.Args.Set(ArgEnv, []any{"GOOD=1", "broken"})
	exe := writeScript(t, t.TempDir(), "ok.sh", "exit 0")

	e, err := New(Spec{Name: "prep", Kind: KindScript, Exe: exe}, conf, nil)
	require.NoError(t, err)
	err = e.Run(context.Background())
	require.True(t, stagehanderrors.IsCategory(err, stagehanderrors.CategorySetup))
	require.Contains(t, err.Error(), "broken")
}

func TestScript_CustomEnvReachesChild(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	conf := newTestConfig(t)
	conf.Args.Set(ArgEnv, []any{"STAGE_COLOUR=blue"})
	exe := writeScript(t, t.TempDir(), "env.sh", `echo "colour=$STAGE_COLOUR"`)

	e, err := New(Spec{Name: "prep", Kind: KindScript, Exe: exe}, conf, nil)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, "colour=blue\n", readFile(t, filepath.Join(conf.Settings.WorkDir, "log.prep")))
}

func TestScript_MissingOutputIsOutputFileError(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	conf := newTestConfig(t)
	conf.Data.Put(datadict.NewFileArg("TXT", datadict.IOOutput, datadict.FormatOther, "out.txt"))
	exe := writeScript(t, t.TempDir(), "ok.sh", "exit 0")

	e, err := New(Spec{Name: "prep", Kind: KindScript, Exe: exe, Outputs: []string{"TXT"}, CheckOutputs: true}, conf, nil)
	require.NoError(t, err)

	err = e.Run(context.Background())
	require.True(t, stagehanderrors.IsCategory(err, stagehanderrors.CategoryOutputFile))
	require.Contains(t, err.Error(), "out.txt")
}

func TestScript_OutputCheckPassesWhenWritten(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	conf := newTestConfig(t)
	conf.Args.Set(ArgCheckOutputs, true)
	conf.Data.Put(datadict.NewFileArg("TXT", datadict.IOOutput, datadict.FormatOther, "out.txt"))
	exe := writeScript(t, t.TempDir(), "ok.sh", "echo data > out.txt")

	e, err := New(Spec{Name: "prep", Kind: KindScript, Exe: exe, Outputs: []string{"TXT"}}, conf, nil)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))
	require.True(t, e.Validated())
}

func TestEcho_LogsResolvedArguments(t *testing.T) {
	t.Parallel()

	conf := newTestConfig(t)
	conf.Args.Set("maxEvents", 10)
	conf.Args.SetArg("preExec", argstore.PerStage(map[string]any{"other": "x"}))
	conf.Args.Set("geometry", "v2")

	e, err := New(Spec{Name: "echo", Kind: KindEcho}, conf, nil)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, 2, e.Extra()["echoedArgs"])
	require.Equal(t, 0, e.RC())
}

func TestLogScan_FailsOnErrorsUnlessIgnored(t *testing.T) {
	t.Parallel()

	conf := newTestConfig(t)
	logPath := filepath.Join(conf.Settings.WorkDir, "job.log")
	require.NoError(t, os.WriteFile(logPath, []byte("Svc INFO fine\nAlg ERROR boom\n"), 0o644))
	conf.Args.Set(ArgLogfile, "job.log")

	e, err := New(Spec{Name: "scan", Kind: KindLogScan}, conf, nil)
	require.NoError(t, err)
	err = e.Run(context.Background())
	require.True(t, stagehanderrors.IsCategory(err, stagehanderrors.CategoryLogfile))
	require.Equal(t, `Logfile error in job.log: "boom"`, e.ErrMsg())

	conf.Args.Set(ArgIgnoreErrors, true)
	e, err = New(Spec{Name: "scan", Kind: KindLogScan}, conf, nil)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))
	require.Contains(t, e.Extra(), "ignoredErrors")
}

func TestTelemetry_LeavesUnrunPhasesNull(t *testing.T) {
	t.Parallel()

	e, err := New(Spec{Name: "prep", Kind: KindScript, Exe: "/nonexistent/tool"}, newTestConfig(t), nil)
	require.NoError(t, err)
	require.Error(t, e.Run(context.Background()))

	tel := e.Telemetry()
	assert.Nil(t, tel.ExecuteWall)
	assert.Nil(t, tel.ValidateWall)
	assert.Nil(t, tel.TotalWall)
	assert.Equal(t, "SETUP", tel.Category)
	assert.False(t, tel.Executed)

	ok, err := New(Spec{Name: "noop"}, newTestConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, ok.Run(context.Background()))
	tel = ok.Telemetry()
	require.NotNil(t, tel.ExecuteWall)
	require.NotNil(t, tel.ExecuteCPU)
	require.NotNil(t, tel.TotalWall)
	assert.True(t, tel.Validated)
}

func TestConfig_StepBookkeeping(t *testing.T) {
	t.Parallel()

	conf := newTestConfig(t)
	require.False(t, conf.Split())
	require.Equal(t, -1, conf.Step())

	step := conf.Copy()
	require.NoError(t, step.SetStep(1, 2))
	require.True(t, step.Split())
	require.True(t, step.LastStep())
	require.Same(t, conf.Data, step.Data)

	require.Error(t, step.SetStep(2, 2))
	require.Error(t, step.SetStep(0, -1))

	e, err := New(Spec{Name: "reco"}, step, nil)
	require.NoError(t, err)
	require.Equal(t, "reco1", e.Name())
	require.Equal(t, "log.reco1", e.LogName())
}
