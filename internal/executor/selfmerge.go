package executor

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	"github.com/alexisbeaulieu97/stagehand/internal/logger"
)

// Dataset suffixes of the private dictionary a merge executor works on.
const (
	mergeInSuffix  = "_MRG_IN"
	mergeOutSuffix = "_MRG_OUT"
)

// mergeKind maps mergeable formats to the executor kind merging them.
func mergeKind(format datadict.Format) (Kind, bool) {
	switch format {
	case datadict.FormatPool:
		return KindEngine, true
	case datadict.FormatHist:
		return KindHistMerge, true
	case datadict.FormatNtuple:
		return KindNtupleMerge, true
	case datadict.FormatByteStream:
		return KindByteStreamMerge, true
	default:
		return "", false
	}
}

// AttachMergers gives every produced dataset of a mergeable format the
// ability to merge its own files. Each merge runs a dedicated executor on a
// copy of conf; observe, when set, sees every such executor after it ran.
func AttachMergers(conf *Config, log *logger.Logger, observe func(*Executor)) []string {
	var attached []string
	for _, ds := range conf.Data.Datasets() {
		f, _ := conf.Data.Get(ds)
		if f.IO == datadict.IOInput || f.CanSelfMerge() {
			continue
		}
		kind, ok := mergeKind(f.Format)
		if !ok {
			continue
		}
		f.SetMerger(&selfMerger{conf: conf, log: log, kind: kind, source: f, observe: observe})
		attached = append(attached, ds)
	}
	return attached
}

type selfMerger struct {
	conf    *Config
	log     *logger.Logger
	kind    Kind
	source  *datadict.FileArg
	observe func(*Executor)
	seq     int
}

// Merge runs one merge executor through its whole lifecycle.
func (m *selfMerger) Merge(ctx context.Context, req datadict.MergeRequest) error {
	m.seq++
	inName := req.Dataset + mergeInSuffix
	outName := req.Dataset + mergeOutSuffix

	in := datadict.NewFileArg(inName, datadict.IOInput, req.Format, req.Inputs...)
	for _, file := range req.Inputs {
		if n, err := m.source.Events(file); err == nil {
			in.SetMetadata(file, datadict.MetaEvents, n)
		}
	}
	out := datadict.NewFileArg(outName, datadict.IOOutput, req.Format, req.Output)

	data := datadict.New()
	data.Put(in)
	data.Put(out)

	conf := m.conf.Copy()
	conf.Data = data
	conf.First = false

	spec := Spec{
		Name:      fmt.Sprintf("merge_%s_%d", req.Dataset, m.seq),
		Kind:      m.kind,
		Inputs:    []string{inName},
		Outputs:   []string{outName},
		DisableMP: true,
		DisableMT: true,
	}
	child, err := New(spec, conf, m.log)
	if err != nil {
		return err
	}
	err = child.Run(ctx)
	if m.observe != nil {
		m.observe(child)
	}
	if err != nil {
		return fmt.Errorf("merge executor %s: %w", spec.Name, err)
	}

	// Carry the event count over so later stages can still check it.
	if total, ok := in.TotalEvents(); ok {
		m.source.SetMetadata(req.Output, datadict.MetaEvents, total)
	}
	return nil
}
