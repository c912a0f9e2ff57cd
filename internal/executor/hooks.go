package executor

import (
	"context"
	"fmt"
	"sort"
)

// HookFunc implements one lifecycle phase.
type HookFunc func(ctx context.Context, e *Executor) error

// Hooks selects the behaviour of each phase. A nil hook is a successful no-op.
type Hooks struct {
	PreExecute  HookFunc
	Execute     HookFunc
	PostExecute HookFunc
	Validate    HookFunc
}

// over fills the nil hooks of h from base.
func (h Hooks) over(base Hooks) Hooks {
	if h.PreExecute == nil {
		h.PreExecute = base.PreExecute
	}
	if h.Execute == nil {
		h.Execute = base.Execute
	}
	if h.PostExecute == nil {
		h.PostExecute = base.PostExecute
	}
	if h.Validate == nil {
		h.Validate = base.Validate
	}
	return h
}

// Kind names an executor behaviour.
type Kind string

const (
	KindNoop            Kind = "noop"
	KindEcho            Kind = "echo"
	KindLogScan         Kind = "logscan"
	KindScript          Kind = "script"
	KindEngine          Kind = "engine"
	KindOptionalEngine  Kind = "optional_engine"
	KindReduction       Kind = "reduction"
	KindHistMerge       Kind = "hist_merge"
	KindNtupleMerge     Kind = "ntuple_merge"
	KindByteStreamMerge Kind = "bytestream_merge"
	KindCatalogAppend   Kind = "catalog_append"
	KindArchive         Kind = "archive"
)

func scriptHooks() Hooks {
	return Hooks{
		PreExecute: scriptPreExecute,
		Execute:    runCommand,
		Validate:   scriptValidate,
	}
}

func engineHooks() Hooks {
	return Hooks{
		PreExecute:  enginePreExecute,
		PostExecute: enginePostExecute,
		Validate:    engineValidate,
	}.over(scriptHooks())
}

func hooksFor(kind Kind) (Hooks, error) {
	switch kind {
	case KindNoop:
		return Hooks{}, nil
	case KindEcho:
		return Hooks{Execute: echoExecute}, nil
	case KindLogScan:
		return Hooks{Validate: logscanValidate}, nil
	case KindScript:
		return scriptHooks(), nil
	case KindEngine:
		return engineHooks(), nil
	case KindOptionalEngine:
		return Hooks{Validate: optionalValidate}.over(engineHooks()), nil
	case KindReduction:
		return Hooks{PreExecute: reductionPreExecute}.over(engineHooks()), nil
	case KindHistMerge:
		return Hooks{PreExecute: histMergePreExecute}.over(scriptHooks()), nil
	case KindNtupleMerge:
		return Hooks{PreExecute: ntupleMergePreExecute}.over(scriptHooks()), nil
	case KindByteStreamMerge:
		return Hooks{PreExecute: byteStreamPreExecute, PostExecute: byteStreamPostExecute}.over(scriptHooks()), nil
	case KindCatalogAppend:
		return Hooks{PreExecute: catalogPreExecute, Validate: catalogValidate}.over(scriptHooks()), nil
	case KindArchive:
		return Hooks{PreExecute: archivePreExecute, Execute: archiveExecute}.over(scriptHooks()), nil
	default:
		return Hooks{}, fmt.Errorf("unknown executor kind %q", kind)
	}
}

var allKinds = []Kind{
	KindNoop, KindEcho, KindLogScan, KindScript, KindEngine, KindOptionalEngine, KindReduction,
	KindHistMerge, KindNtupleMerge, KindByteStreamMerge, KindCatalogAppend, KindArchive,
}

// Kinds lists the registered executor kinds.
func Kinds() []string {
	out := make([]string, 0, len(allKinds))
	for _, k := range allKinds {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
