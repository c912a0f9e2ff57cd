package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/stagehand/internal/logscan"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

type scanOptions struct {
	Logfile      string
	IgnoreFiles  []string
	Patterns     []string
	Script       bool
	IgnoreErrors bool
	JSON         bool
}

func newScanCmd() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a stage logfile for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := requireFile("logfile", opts.Logfile)
			if err != nil {
				return err
			}
			opts.Logfile = path
			return runScan(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Logfile, "logfile", "l", "", "Logfile to scan")
	cmd.Flags().StringSliceVar(&opts.IgnoreFiles, "ignore-file", nil, "Ignore pattern file (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Patterns, "pattern", nil, "Extra message regex to ignore (repeatable)")
	cmd.Flags().BoolVar(&opts.Script, "script", false, "Parse as a plain script log instead of engine output")
	cmd.Flags().BoolVar(&opts.IgnoreErrors, "ignore-errors", false, "Tolerate ERROR messages")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the scan report as JSON")
	cmd.MarkFlagRequired("logfile") //nolint:errcheck

	return cmd
}

func runScan(opts scanOptions, out io.Writer) error {
	ignore, err := logscan.LoadIgnore(opts.IgnoreFiles, opts.Patterns)
	if err != nil {
		return stagehanderrors.NewLogfileError("", "cannot load ignore patterns", err)
	}
	scanner := logscan.Scanner{Format: logscan.FormatEngine, Ignore: ignore}
	if opts.Script {
		scanner.Format = logscan.FormatScript
	}
	report, err := scanner.ScanFile(opts.Logfile)
	if err != nil {
		return stagehanderrors.NewLogfileError("", "cannot scan logfile", err)
	}

	worst := report.WorstError()
	verdict := logscan.Decide(worst, filepath.Base(opts.Logfile), opts.IgnoreErrors)

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printScan(out, report, worst, verdict)
	}

	if verdict.Fail {
		return stagehanderrors.NewLogfileError("", verdict.Message, nil)
	}
	return nil
}

func printScan(out io.Writer, report *logscan.Report, worst logscan.WorstError, verdict logscan.Verdict) {
	fmt.Fprintf(out, "%s: %d lines, %d ignored\n", report.File, report.Lines, report.Ignored)

	levels := make([]string, 0, len(report.Counts))
	for level := range report.Counts {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		fmt.Fprintf(out, "  %-11s %d\n", level, report.Counts[level])
	}

	if worst.FirstError != nil {
		fmt.Fprintf(out, "worst: %s at line %d: %s\n", worst.Level, worst.FirstError.FirstLine, worst.FirstError.Message)
	}
	switch {
	case verdict.Fail:
		fmt.Fprintf(out, "FAIL: %s\n", verdict.Message)
	case verdict.Downgraded:
		fmt.Fprintf(out, "PASS (errors ignored): %s\n", verdict.Message)
	default:
		fmt.Fprintln(out, "PASS")
	}
}
