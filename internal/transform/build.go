package transform

import (
	"path/filepath"
	"time"

	"github.com/alexisbeaulieu97/stagehand/internal/argstore"
	"github.com/alexisbeaulieu97/stagehand/internal/config"
	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	"github.com/alexisbeaulieu97/stagehand/internal/executor"
	"github.com/alexisbeaulieu97/stagehand/internal/parallel"
)

// buildArgs loads the arguments section. Map values become per-stage
// arguments unless the argument is keyed by dataset type.
func buildArgs(cfg *config.Config) *argstore.Store {
	store := argstore.New()
	for key, value := range cfg.Arguments {
		if m, ok := value.(map[string]any); ok && !executor.DatasetKeyedArgs[key] {
			store.SetArg(key, argstore.PerStage(m))
			continue
		}
		store.Set(key, value)
	}
	return store
}

// buildData creates one dictionary entry per declared dataset.
func buildData(cfg *config.Config) *datadict.Dictionary {
	data := datadict.New()
	for _, ds := range cfg.Datasets {
		format := datadict.Format(ds.Format)
		if format == "" {
			format = datadict.FormatOther
		}
		f := datadict.NewFileArg(ds.Type, datadict.IO(ds.IO), format, ds.Files...)
		f.MergeTargetSize = ds.MergeTargetSize
		f.MultipleOK = ds.MultipleOK
		for file, meta := range ds.Metadata {
			for key, value := range meta {
				f.SetMetadata(file, key, value)
			}
		}
		data.Put(f)
	}
	return data
}

// buildSettings maps the settings section onto executor settings. Relative
// paths are taken from the job file's directory, and the work directory is
// made absolute since stages run with it as their current directory.
func buildSettings(s config.Settings, baseDir string) executor.Settings {
	out := executor.DefaultSettings()
	switch {
	case s.WorkDir != "":
		out.WorkDir = resolvePath(s.WorkDir, baseDir)
	case baseDir != "":
		out.WorkDir = baseDir
	}
	if abs, err := filepath.Abs(out.WorkDir); err == nil {
		out.WorkDir = abs
	}
	out.CoreEnv = s.CoreEnv
	if out.CoreEnv == "" {
		out.CoreEnv = parallel.DefaultCoreEnv
	}
	out.DefaultIgnoreFile = resolvePath(s.IgnoreFile, baseDir)
	out.Sampler = s.ResourceMonitor
	if s.Sampler != "" {
		out.SamplerTool = s.Sampler
	}
	if s.SamplerInterval > 0 {
		out.SamplerInterval = s.SamplerInterval
	}
	if s.FlushTimeout > 0 {
		out.FlushTimeout = time.Duration(s.FlushTimeout) * time.Second
	}
	if s.LeakThreshold > 0 {
		out.Fit.Threshold = s.LeakThreshold
	}

	tools := s.Tools
	override(&out.Tools.Engine, tools.Engine)
	override(&out.Tools.HistMerge, tools.HistMerge)
	override(&out.Tools.NtupleMerge, tools.NtupleMerge)
	override(&out.Tools.ByteStreamMerge, tools.ByteStreamMerge)
	override(&out.Tools.CatalogAppend, tools.CatalogAppend)
	override(&out.Tools.Archive, tools.Archive)
	return out
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func resolvePath(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// stageSpec converts a stage definition into an executor spec.
func stageSpec(s config.Stage) executor.Spec {
	return executor.Spec{
		Name:           s.Name,
		Substep:        s.Substep,
		Kind:           executor.Kind(s.Kind),
		Exe:            s.Exe,
		ExeArgs:        append([]string(nil), s.ExeArgs...),
		ArgKeys:        append([]string(nil), s.Args...),
		Inputs:         append([]string(nil), s.Inputs...),
		Outputs:        append([]string(nil), s.Outputs...),
		ErrorMaskFiles: append([]string(nil), s.ErrorMaskFiles...),
		DisableMP:      s.DisableMP,
		DisableMT:      s.DisableMT,
		OnlyMP:         s.OnlyMP,
		OnlyMT:         s.OnlyMT,
		OnlyMPWithArgs: append([]string(nil), s.OnlyMPWithArgs...),
		CheckOutputs:   s.CheckOutputs,
	}
}

// scopes lists the canonical scopes of the planned stages.
func scopes(stages []config.Stage, first string) []argstore.Scope {
	out := make([]argstore.Scope, 0, len(stages))
	for _, s := range stages {
		out = append(out, argstore.Scope{Name: s.Name, Substep: s.Alias(), First: s.Name == first})
	}
	return out
}
