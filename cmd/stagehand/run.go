package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/stagehand/internal/config"
	"github.com/alexisbeaulieu97/stagehand/internal/logger"
	"github.com/alexisbeaulieu97/stagehand/internal/metrics"
	"github.com/alexisbeaulieu97/stagehand/internal/model"
	"github.com/alexisbeaulieu97/stagehand/internal/transform"
	"github.com/alexisbeaulieu97/stagehand/internal/tui"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// runLogName receives the log stream while the interactive display owns the terminal.
const runLogName = "stagehand.log"

type runOptions struct {
	ConfigPath     string
	WorkDir        string
	Stages         []string
	Outputs        []string
	NonInteractive bool
	Root           *rootFlags
}

var runCmdRunner = runJob

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{Root: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a job definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := requireFile("config file", opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.ConfigPath = path
			if !opts.NonInteractive {
				opts.NonInteractive = !term.IsTerminal(int(os.Stdout.Fd()))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCmdRunner(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to job definition")
	cmd.Flags().StringVarP(&opts.WorkDir, "workdir", "w", "", "Override the job work directory")
	cmd.Flags().StringSliceVar(&opts.Stages, "stages", nil, "Run only these stages")
	cmd.Flags().StringSliceVar(&opts.Outputs, "outputs", nil, "Produce only these output datasets")
	cmd.Flags().BoolVar(&opts.NonInteractive, "plain", false, "Disable the interactive progress display")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runJob(ctx context.Context, opts runOptions, stdout, stderr io.Writer) error {
	cfg, err := config.ParseConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.WorkDir != "" {
		cfg.Settings.WorkDir = opts.WorkDir
	}
	baseDir := filepath.Dir(opts.ConfigPath)
	interactive := !opts.NonInteractive

	logOut := stderr
	if interactive {
		file, err := openRunLog(cfg.Settings.WorkDir, baseDir)
		if err != nil {
			return err
		}
		defer file.Close()
		logOut = file
	}
	log, err := logger.New(logger.Options{
		Level:         logLevel(opts.Root, cfg.Settings.LogLevel),
		HumanReadable: cfg.Settings.HumanReadable || !interactive,
		Writer:        logOut,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		program *tea.Program
		state   tui.Model
		done    = make(chan struct{})
		progErr error
	)
	dispatch := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
			return
		}
		updated, _ := state.Update(msg)
		if m, ok := updated.(tui.Model); ok {
			state = m
		}
	}

	recorder := metrics.New(cfg.Name)
	tr, err := transform.New(cfg, transform.Options{
		Selection: transform.Selection{Stages: opts.Stages, Outputs: opts.Outputs},
		BaseDir:   baseDir,
		Logger:    log,
		Observer: func(r model.StageResult) {
			recorder.Observe(r)
			dispatch(tui.StageMsg{Result: r})
		},
	})
	if err != nil {
		return err
	}
	log.Infof("job %s planned:\n%s", tr.JobID(), tr.Plan())

	state = tui.NewModel(cfg.Name, tr.ExecutorNames())
	if interactive {
		program = tea.NewProgram(state, tea.WithOutput(stdout), tea.WithContext(ctx))
		go func() {
			defer close(done)
			final, err := program.Run()
			progErr = err
			if m, ok := final.(tui.Model); ok && m.Cancelled() {
				cancel()
			}
		}()
	} else {
		close(done)
	}

	runErr := tr.Run(ctx)
	code := stagehanderrors.CodeFor(runErr)

	reportPath, reportErr := tr.WriteReport()
	if reportErr != nil {
		log.Error(reportErr, "job report not written")
	}
	recorder.Finish(code, len(tr.MergeExecutors()))
	if cfg.Settings.Metrics != "" {
		metricsPath := cfg.Settings.Metrics
		if !filepath.IsAbs(metricsPath) {
			metricsPath = filepath.Join(tr.WorkDir(), metricsPath)
		}
		if err := recorder.WriteTextfile(metricsPath); err != nil {
			log.Error(err, "metrics not written")
		}
	}

	report := tr.Report()
	dispatch(tui.JobDoneMsg{ExitCode: code, ExitName: report.ExitName, Message: report.ExitMessage, Report: reportPath})
	<-done
	if !interactive {
		fmt.Fprintln(stdout, state.View())
	}
	if progErr != nil {
		log.Error(progErr, "progress display failed")
	}

	if runErr != nil {
		return &exitError{code: code}
	}
	return reportErr
}

func openRunLog(workDir, baseDir string) (*os.File, error) {
	dir := workDir
	switch {
	case dir == "":
		dir = baseDir
	case !filepath.IsAbs(dir):
		dir = filepath.Join(baseDir, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, runLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return file, nil
}
