package executor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alexisbeaulieu97/stagehand/internal/validation"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// byteStreamSuffix is appended by the byte-stream merge tool to its output base.
const byteStreamSuffix = "._0001.data"

// mergeIO returns the input files and the single output file of a merge
// variant: the first declared input and the first file of the first output.
func (e *Executor) mergeIO() ([]string, string, error) {
	if len(e.spec.Inputs) == 0 || len(e.spec.Outputs) == 0 {
		return nil, "", stagehanderrors.NewSetupError(e.Name(), "merge stages need one input and one output dataset", nil)
	}
	in, ok := e.conf.Data.Get(e.spec.Inputs[0])
	if !ok || len(in.Values) == 0 {
		return nil, "", stagehanderrors.NewInputFileError(e.Name(), fmt.Sprintf("no files for input %s", e.spec.Inputs[0]), nil)
	}
	out, ok := e.conf.Data.Get(e.spec.Outputs[0])
	if !ok || len(out.Values) == 0 {
		return nil, "", stagehanderrors.NewSetupError(e.Name(), fmt.Sprintf("no file name for output %s", e.spec.Outputs[0]), nil)
	}
	return append([]string(nil), in.Values...), out.Values[0], nil
}

func (e *Executor) writeList(name string, files []string) error {
	content := strings.Join(files, "\n") + "\n"
	if err := os.WriteFile(e.path(name), []byte(content), 0o644); err != nil {
		return stagehanderrors.NewSetupError(e.Name(), fmt.Sprintf("cannot write %s", name), err)
	}
	return nil
}

func histMergePreExecute(_ context.Context, e *Executor) error {
	exe, err := e.requireExe(e.conf.Settings.Tools.HistMerge)
	if err != nil {
		return err
	}
	inputs, output, err := e.mergeIO()
	if err != nil {
		return err
	}
	list := e.Name() + ".HISTMergeList.txt"
	if err := e.writeList(list, inputs); err != nil {
		return err
	}
	e.command = []string{exe, list, output}
	return nil
}

func ntupleMergePreExecute(_ context.Context, e *Executor) error {
	exe, err := e.requireExe(e.conf.Settings.Tools.NtupleMerge)
	if err != nil {
		return err
	}
	inputs, output, err := e.mergeIO()
	if err != nil {
		return err
	}
	e.command = append([]string{exe, "-f", output}, inputs...)
	return nil
}

// byteStreamPreExecute drops inputs known to hold no events. If every input
// is empty the first one is kept so the merge still produces a file.
func byteStreamPreExecute(_ context.Context, e *Executor) error {
	exe, err := e.requireExe(e.conf.Settings.Tools.ByteStreamMerge)
	if err != nil {
		return err
	}
	inputs, output, err := e.mergeIO()
	if err != nil {
		return err
	}
	in, _ := e.conf.Data.Get(e.spec.Inputs[0])

	var kept, masked []string
	for _, file := range inputs {
		if n, err := in.Events(file); err == nil && n == 0 {
			masked = append(masked, file)
			continue
		}
		kept = append(kept, file)
	}
	if len(kept) == 0 {
		kept, masked = masked[:1], masked[1:]
		e.log.Warn("all byte-stream inputs are empty, merging the first one only")
	}
	if len(masked) > 0 {
		e.log.Warnf("masking %d empty byte-stream inputs: %v", len(masked), masked)
		e.SetExtra("maskedInputs", masked)
	}

	list := e.Name() + ".list"
	if err := e.writeList(list, kept); err != nil {
		return err
	}
	base := strings.TrimSuffix(output, byteStreamSuffix)
	e.renameFrom = base + byteStreamSuffix
	e.command = []string{exe, list, "0", base}
	return nil
}

// byteStreamPostExecute moves the tool's fixed-suffix output to the
// requested name.
func byteStreamPostExecute(_ context.Context, e *Executor) error {
	if e.rc != 0 {
		return nil
	}
	_, output, err := e.mergeIO()
	if err != nil {
		return err
	}
	if e.renameFrom == "" || e.renameFrom == output {
		return nil
	}
	if err := os.Rename(e.path(e.renameFrom), e.path(output)); err != nil {
		return stagehanderrors.NewOutputFileError(e.Name(), fmt.Sprintf("cannot rename %s to %s", e.renameFrom, output), err)
	}
	return nil
}

func catalogPreExecute(_ context.Context, e *Executor) error {
	exe, err := e.requireExe(e.conf.Settings.Tools.CatalogAppend)
	if err != nil {
		return err
	}
	inputs, output, err := e.mergeIO()
	if err != nil {
		return err
	}
	cmd := append([]string{exe, "-src"}, inputs...)
	e.command = append(cmd, "-dst", output)
	return nil
}

// catalogValidate fails on the return code and on any error reported in the
// tool's log.
func catalogValidate(_ context.Context, e *Executor) error {
	if e.rc != 0 {
		return stagehanderrors.NewValidationFailure(e.Name(), e.rcMessage(), nil)
	}
	if found, _ := validation.FileMatches(e.path(e.LogName()), `(?i)\berror\b`); found {
		return stagehanderrors.NewLogfileError(e.Name(), fmt.Sprintf("errors reported in %s", e.LogName()), nil)
	}
	return e.checkOutputs()
}
