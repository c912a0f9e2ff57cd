package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/alexisbeaulieu97/stagehand/internal/argstore"
	"github.com/alexisbeaulieu97/stagehand/internal/internalexec"
	"github.com/alexisbeaulieu97/stagehand/internal/logscan"
	"github.com/alexisbeaulieu97/stagehand/internal/resmon"
	"github.com/alexisbeaulieu97/stagehand/internal/validation"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// requireExe returns the stage executable, falling back to def, and checks
// that it can be found.
func (e *Executor) requireExe(def string) (string, error) {
	exe := e.spec.Exe
	if exe == "" {
		exe = def
	}
	if exe == "" {
		return "", stagehanderrors.NewSetupError(e.Name(), "no executable specified", nil)
	}
	if err := validation.CheckCommandExists(exe); err != nil {
		return "", stagehanderrors.NewSetupError(e.Name(), fmt.Sprintf("executable %s not found", exe), err)
	}
	return exe, nil
}

func scriptPreExecute(_ context.Context, e *Executor) error {
	exe, err := e.requireExe("")
	if err != nil {
		return err
	}
	env, err := e.customEnv()
	if err != nil {
		return err
	}
	e.env = env
	e.command = append([]string{exe}, e.spec.ExeArgs...)
	e.command = append(e.command, e.argOptions()...)
	return nil
}

// argOptions renders the selected arguments: true booleans as --key, lists
// as --key followed by the items, anything else as --key=value.
func (e *Executor) argOptions() []string {
	var opts []string
	for _, key := range e.spec.ArgKeys {
		v, ok := e.conf.Args.Resolve(key, e.scope())
		if !ok {
			continue
		}
		switch t := v.(type) {
		case bool:
			if t {
				opts = append(opts, "--"+key)
			}
		case []any, []string:
			opts = append(opts, "--"+key)
			opts = append(opts, argstore.ToStrings(t)...)
		default:
			opts = append(opts, fmt.Sprintf("--%s=%s", key, argstore.ToString(t)))
		}
	}
	return opts
}

func (e *Executor) customEnv() (map[string]string, error) {
	entries, ok := e.conf.Args.Strings(ArgEnv, e.scope())
	if !ok {
		return nil, nil
	}
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return nil, stagehanderrors.NewSetupError(e.Name(), fmt.Sprintf("malformed env entry %q, expected KEY=VALUE", entry), nil)
		}
		env[key] = value
	}
	return env, nil
}

// runCommand runs e.command, writing its combined output line by line to the
// stage logfile. The resource sampler, when enabled, runs for the lifetime
// of the child.
func runCommand(ctx context.Context, e *Executor) error {
	if len(e.command) == 0 {
		return stagehanderrors.NewSetupError(e.Name(), "no command to execute", nil)
	}

	logPath := e.path(e.LogName())
	logFile, err := os.Create(logPath)
	if err != nil {
		return stagehanderrors.NewExecutionError(e.Name(), "cannot create logfile", err)
	}
	defer logFile.Close()
	w := bufio.NewWriter(logFile)
	defer w.Flush()

	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)
	cmd.Dir = e.workDir()
	cmd.Env = internalexec.BuildEnv(e.env)
	internalexec.KillGroupOnCancel(cmd)

	e.log.Infof("executing %s", strings.Join(e.command, " "))
	var sampler *resmon.Sampler
	res, err := internalexec.RunStreaming(cmd, internalexec.Stream{
		OnStart: func(pid int) { sampler = e.startSampler(pid) },
		OnLine: func(line string) {
			_, _ = w.WriteString(line)
			_ = w.WriteByte('\n')
			e.log.Debug(line)
		},
	})
	if sampler != nil {
		e.stopSampler(ctx, sampler)
	}
	if err != nil {
		return stagehanderrors.NewExecutionError(e.Name(), fmt.Sprintf("failed to execute %s", e.command[0]), err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.setReturnCode(res.ExitCode)
		return stagehanderrors.NewExecutionError(e.Name(), fmt.Sprintf("%s cancelled", filepath.Base(e.command[0])), ctxErr)
	}

	e.setReturnCode(res.ExitCode)
	e.log.Infof("%s finished with return code %d", filepath.Base(e.command[0]), e.rc)
	return nil
}

// setReturnCode stores code, remapping a signal death (negative code) to
// 128 plus the signal number.
func (e *Executor) setReturnCode(code int) {
	e.signal = ""
	if code < 0 {
		sig := -code
		e.signal = unix.SignalName(syscall.Signal(sig))
		code = 128 + sig
	}
	e.rc = code
}

func (e *Executor) rcMessage() string {
	name := e.spec.Exe
	if name == "" && len(e.command) > 0 {
		name = e.command[0]
	}
	msg := fmt.Sprintf("Non-zero return code from %s (%d)", filepath.Base(name), e.rc)
	if e.signal != "" {
		msg += fmt.Sprintf(" (signal %s)", e.signal)
	}
	return msg
}

func scriptValidate(_ context.Context, e *Executor) error {
	if e.rc != 0 {
		return stagehanderrors.NewValidationFailure(e.Name(), e.rcMessage(), nil)
	}
	return e.checkOutputs()
}

func (e *Executor) checkOutputs() error {
	if !e.spec.CheckOutputs && !e.conf.Args.Bool(ArgCheckOutputs, e.scope()) {
		return nil
	}
	targets := make([]validation.Target, 0, len(e.outputs))
	for _, ds := range e.outputs {
		f, ok := e.conf.Data.Get(ds)
		if !ok {
			continue
		}
		targets = append(targets, validation.Target{Dataset: ds, Files: f.Values})
	}
	if _, err := validation.CheckOutputs(e.workDir(), targets); err != nil {
		return stagehanderrors.NewOutputFileError(e.Name(), err.Error(), err)
	}
	return nil
}

func (e *Executor) samplerEnabled() bool {
	if e.conf.Args.Has(ArgResourceMonitor) {
		return e.conf.Args.Bool(ArgResourceMonitor, e.scope())
	}
	return e.conf.Settings.Sampler
}

func (e *Executor) startSampler(pid int) *resmon.Sampler {
	if !e.samplerEnabled() {
		return nil
	}
	files := resmon.FilesFor(e.Name())
	argv := resmon.Command(e.conf.Settings.SamplerTool, pid, files, e.conf.Settings.SamplerInterval)
	s, err := resmon.Start(argv, e.workDir(), e.log)
	if err != nil {
		e.log.Warnf("resource sampler not started: %v", err)
		return nil
	}
	return s
}

// stopSampler awaits the sampler's flush and loads what it wrote. A late or
// unreadable flush leaves the resource metrics unset.
func (e *Executor) stopSampler(ctx context.Context, s *resmon.Sampler) {
	timeout := e.conf.Settings.FlushTimeout
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.Stop(flushCtx); err != nil {
		if errors.Is(err, resmon.ErrFlushTimeout) {
			e.log.Warn("resource sampler did not flush; resource metrics unavailable")
			return
		}
		e.log.Warnf("resource sampler: %v", err)
		return
	}

	files := resmon.FilesFor(e.Name())
	summary, err := resmon.ReadSummary(e.path(files.Summary))
	if err != nil {
		e.log.Warnf("resource summary unavailable: %v", err)
	} else {
		e.resources = summary
	}

	const metric = "pss"
	points, err := resmon.ReadSeries(e.path(files.Full), metric)
	if err != nil {
		e.log.Debugf("resource series unavailable: %v", err)
		return
	}
	opts := e.conf.Settings.Fit
	if opts.Threshold == 0 {
		opts = resmon.DefaultFitOptions()
	}
	if fit, ok := resmon.FitLeak(metric, points, opts); ok {
		e.leak = &fit
	}
}

func (e *Executor) leakMessage() string {
	if e.leak == nil || !e.leak.Leak {
		return ""
	}
	return fmt.Sprintf("Possible memory leak: '%s' slope: %.2f KB/s", e.leak.Metric, e.leak.Slope)
}

// scanLog scans a logfile with the ignore patterns in effect for the stage.
func (e *Executor) scanLog(path string, format logscan.Format) (*logscan.Report, error) {
	explicit, _ := e.conf.Args.Strings(ArgIgnoreFiles, e.scope())
	extra, _ := e.conf.Args.Strings(ArgIgnorePatterns, e.scope())
	files := logscan.SelectFiles(explicit, e.spec.ErrorMaskFiles, e.conf.Settings.DefaultIgnoreFile)

	ignore, err := logscan.LoadIgnore(files, extra)
	if err != nil {
		return nil, err
	}
	report, err := logscan.Scanner{Format: format, Ignore: ignore}.ScanFile(path)
	if err != nil {
		return nil, err
	}
	e.logReport = report
	return report, nil
}

func echoExecute(_ context.Context, e *Executor) error {
	snapshot := e.conf.Args.Snapshot(e.scope())
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.log.Infof("%s = %v", k, snapshot[k])
	}
	e.SetExtra("echoedArgs", len(keys))
	e.setReturnCode(0)
	return nil
}

func logscanValidate(_ context.Context, e *Executor) error {
	logfile, ok := e.conf.Args.String(ArgLogfile, e.scope())
	if !ok || logfile == "" {
		return stagehanderrors.NewLogfileError(e.Name(), "no logfile to scan", nil)
	}
	format := logscan.FormatEngine
	if f, _ := e.conf.Args.String(ArgScanFormat, e.scope()); f == "script" {
		format = logscan.FormatScript
	}

	report, err := e.scanLog(e.path(logfile), format)
	if err != nil {
		return stagehanderrors.NewLogfileError(e.Name(), "cannot scan logfile", err)
	}
	verdict := logscan.Decide(report.WorstError(), filepath.Base(logfile), e.conf.Args.Bool(ArgIgnoreErrors, e.scope()))
	if verdict.Fail {
		return stagehanderrors.NewLogfileError(e.Name(), verdict.Message, nil)
	}
	if verdict.Downgraded {
		e.log.Warnf("ignoring logfile errors: %s", verdict.Message)
		e.SetExtra("ignoredErrors", verdict.Message)
	}
	return nil
}
