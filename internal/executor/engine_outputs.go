package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/alexisbeaulieu97/stagehand/internal/argstore"
	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	"github.com/alexisbeaulieu97/stagehand/internal/logscan"
	"github.com/alexisbeaulieu97/stagehand/internal/merge"
	"github.com/alexisbeaulieu97/stagehand/internal/validation"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// mergeTargetAll is the dataset key applying to every dataset.
const mergeTargetAll = "ALL"

var workerSuffix = regexp.MustCompile(`\._\d{3,}$`)

// collectWorkerOutputs replaces each output's file list with the per-worker
// files written next to it, then merges them back towards the target size.
func (e *Executor) collectWorkerOutputs(ctx context.Context) error {
	for _, ds := range e.outputs {
		f, ok, err := e.claim(ds)
		if err != nil {
			return stagehanderrors.NewOutputFileError(e.Name(), err.Error(), err)
		}
		if !ok || len(f.Values) == 0 {
			continue
		}
		base := f.Values[0]

		var collected []string
		for _, value := range f.Values {
			found, err := e.workerFiles(value)
			if err != nil {
				return stagehanderrors.NewOutputFileError(e.Name(), fmt.Sprintf("cannot list worker outputs of %s", ds), err)
			}
			if len(found) == 0 {
				if err := validation.CheckFileExists(e.path(value)); err != nil {
					return stagehanderrors.NewOutputFileError(e.Name(), fmt.Sprintf("no output files found for %s", ds), err)
				}
				found = []string{value}
			}
			collected = append(collected, found...)
		}

		f.RememberOriginal()
		f.ReplaceValues(collected)
		e.recordSizes(f)
		e.log.Infof("collected %d worker files for %s", len(collected), ds)
		if len(collected) < 2 {
			continue
		}

		f.MergeTargetSize = e.mergeTarget(f)
		records, err := merge.Smart(ctx, f, merge.Options{Logger: e.log, Exists: e.exists, Original: base})
		if err != nil {
			return stagehanderrors.NewOutputFileError(e.Name(), fmt.Sprintf("merging worker outputs of %s failed", ds), err)
		}
		e.merges = append(e.merges, records...)
	}
	return nil
}

// claim checks ds out of the data dictionary for this stage. ok is false
// when the dataset is not declared.
func (e *Executor) claim(ds string) (*datadict.FileArg, bool, error) {
	if !e.conf.Data.Has(ds) {
		return nil, false, nil
	}
	f, err := e.conf.Data.Checkout(ds, e.spec.Name)
	if err != nil {
		return nil, true, err
	}
	return f, true, nil
}

// workerFiles lists value._NNN files, named like value.
func (e *Executor) workerFiles(value string) ([]string, error) {
	matches, err := filepath.Glob(e.path(value) + "._*")
	if err != nil {
		return nil, err
	}
	var found []string
	for _, m := range matches {
		if !workerSuffix.MatchString(m) {
			continue
		}
		found = append(found, filepath.Join(filepath.Dir(value), filepath.Base(m)))
	}
	sort.Strings(found)
	return found, nil
}

func (e *Executor) recordSizes(f *datadict.FileArg) {
	for _, file := range f.Values {
		info, err := os.Stat(e.path(file))
		if err != nil {
			continue
		}
		f.SetMetadata(file, datadict.MetaFileSize, info.Size())
	}
}

func (e *Executor) exists(name string) bool {
	return validation.CheckFileExists(e.path(name)) == nil
}

// mergeTarget resolves the mergeTargetSize argument for f. A map is keyed by
// dataset with "ALL" as fallback; a plain value applies to every dataset.
func (e *Executor) mergeTarget(f *datadict.FileArg) int64 {
	arg, ok := e.conf.Args.Get(ArgMergeTargetSize)
	if !ok {
		return f.MergeTargetSize
	}
	switch v := arg.Value().(type) {
	case map[string]any:
		for _, key := range []string{f.Dataset, mergeTargetAll} {
			raw, found := v[key]
			if !found {
				continue
			}
			if n, err := argstore.ToInt(raw); err == nil {
				return n
			}
			e.log.Warnf("ignoring non-integer %s for %s: %v", ArgMergeTargetSize, key, raw)
		}
	default:
		if n, err := argstore.ToInt(v); err == nil {
			return n
		}
	}
	return f.MergeTargetSize
}

// mergeSteps runs on the last step of a split stage and merges every step's
// output into the dataset's original file.
func (e *Executor) mergeSteps(ctx context.Context) error {
	for _, ds := range e.outputs {
		f, ok, err := e.claim(ds)
		if err != nil {
			return stagehanderrors.NewOutputFileError(e.Name(), err.Error(), err)
		}
		if !ok {
			continue
		}
		files := e.conf.takeStepFiles(ds)
		original := f.OriginalName()
		if len(files) == 0 || original == "" {
			continue
		}
		if len(files) == 1 {
			if err := os.Rename(e.path(files[0]), e.path(original)); err != nil {
				return stagehanderrors.NewOutputFileError(e.Name(), fmt.Sprintf("cannot rename %s to %s", files[0], original), err)
			}
			f.ReplaceValues([]string{original})
			continue
		}
		if !f.CanSelfMerge() {
			e.log.Warnf("steps of %s cannot be merged: no merge capability", ds)
			f.ReplaceValues(files)
			continue
		}

		f.ReplaceValues(files)
		e.recordSizes(f)
		target := f.MergeTargetSize
		f.MergeTargetSize = -1
		records, err := merge.Smart(ctx, f, merge.Options{Logger: e.log, Exists: e.exists, Original: original})
		f.MergeTargetSize = target
		if err != nil {
			return stagehanderrors.NewOutputFileError(e.Name(), fmt.Sprintf("merging steps of %s failed", ds), err)
		}
		e.merges = append(e.merges, records...)
	}
	return nil
}

// engineValidate checks the return code, then the logfile, then the memory
// profile and finally the outputs. A return code failure is raised last so
// that logfile findings can enrich its message.
func engineValidate(_ context.Context, e *Executor) error {
	var failure *stagehanderrors.StageError
	if e.rc != 0 {
		failure = stagehanderrors.NewValidationFailure(e.Name(), e.rcMessage(), nil)
	}

	report, err := e.scanLog(e.path(e.LogName()), logscan.FormatEngine)
	switch {
	case err != nil && failure != nil:
		failure.Append(fmt.Sprintf("logfile not scanned: %v", err))
	case err != nil:
		return stagehanderrors.NewLogfileError(e.Name(), "cannot scan logfile", err)
	default:
		verdict := logscan.Decide(report.WorstError(), e.LogName(), e.conf.Args.Bool(ArgIgnoreErrors, e.scope()))
		switch {
		case failure != nil:
			failure.Append(verdict.Message)
		case verdict.Fail:
			failure = stagehanderrors.NewLogfileError(e.Name(), verdict.Message, nil)
		case verdict.Downgraded:
			e.log.Warnf("ignoring logfile errors: %s", verdict.Message)
			e.SetExtra("ignoredErrors", verdict.Message)
		}
	}

	if leak := e.leakMessage(); leak != "" {
		if failure != nil {
			failure.Append(leak)
		} else {
			e.log.Warn(leak)
		}
	}

	if failure != nil {
		return failure
	}
	return e.checkOutputs()
}
