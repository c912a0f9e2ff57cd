package executor

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// ReductionStub is the placeholder output a reduction stage expands into one
// dataset per reduction format.
const ReductionStub = "DAOD"

// reductionPreExecute replaces the stub output with DAOD_<fmt> datasets
// named DAOD_<fmt>.<base>, then prepares the engine run.
func reductionPreExecute(ctx context.Context, e *Executor) error {
	formats, ok := e.conf.Args.Strings(ArgReductionConf, e.scope())
	if !ok || len(formats) == 0 {
		return stagehanderrors.NewSetupError(e.Name(), "no reduction configuration", nil)
	}
	if !e.conf.Data.Has(ReductionStub) || !slices.Contains(e.outputs, ReductionStub) {
		return stagehanderrors.NewSetupError(e.Name(), fmt.Sprintf("reduction needs a %s output", ReductionStub), nil)
	}
	stub, _, err := e.claim(ReductionStub)
	if err != nil {
		return stagehanderrors.NewSetupError(e.Name(), err.Error(), err)
	}
	if len(stub.Values) == 0 || stub.Values[0] == "" {
		return stagehanderrors.NewSetupError(e.Name(), fmt.Sprintf("%s output has no base name", ReductionStub), nil)
	}
	base := stub.Values[0]

	outputs := make([]string, 0, len(e.outputs)+len(formats))
	for _, ds := range e.outputs {
		if ds != ReductionStub {
			outputs = append(outputs, ds)
		}
	}
	expanded := make([]*datadict.FileArg, 0, len(formats))
	for _, format := range formats {
		ds := ReductionStub + "_" + format
		if _, _, err := e.claim(ds); err != nil {
			return stagehanderrors.NewSetupError(e.Name(), err.Error(), err)
		}
		f := datadict.NewFileArg(ds, datadict.IOOutput, datadict.FormatPool, ds+"."+base)
		f.MergeTargetSize = stub.MergeTargetSize
		f.SetMerger(stub.Merger())
		expanded = append(expanded, f)
		outputs = append(outputs, ds)
	}
	for _, f := range expanded {
		e.conf.Data.Put(f)
		if _, err := e.conf.Data.Checkout(f.Dataset, e.spec.Name); err != nil {
			return stagehanderrors.NewSetupError(e.Name(), err.Error(), err)
		}
	}
	e.conf.Data.Delete(ReductionStub)
	sort.Strings(outputs)
	e.outputs = outputs
	e.log.Infof("reduction outputs: %v", outputs)

	return enginePreExecute(ctx, e)
}
