package config

import (
	"gopkg.in/yaml.v3"
)

// Config represents a full job definition.
type Config struct {
	Version     string         `yaml:"version" validate:"required,semver"`
	Name        string         `yaml:"name" validate:"required,min=1,max=100"`
	Description string         `yaml:"description,omitempty"`
	Settings    Settings       `yaml:"settings,omitempty"`
	Arguments   map[string]any `yaml:"arguments,omitempty"`
	Datasets    []Dataset      `yaml:"datasets" validate:"required,min=1,dive"`
	Stages      []Stage        `yaml:"stages" validate:"required,min=1,dive"`
}

// Settings holds job-wide execution parameters.
type Settings struct {
	WorkDir       string `yaml:"workdir,omitempty"`
	Report        string `yaml:"report,omitempty"`
	Metrics       string `yaml:"metrics,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	HumanReadable bool   `yaml:"human_readable,omitempty"`
	CoreEnv       string `yaml:"core_env,omitempty"`
	IgnoreFile    string `yaml:"ignore_file,omitempty"`

	ResourceMonitor bool    `yaml:"resource_monitor,omitempty"`
	Sampler         string  `yaml:"sampler,omitempty"`
	SamplerInterval int     `yaml:"sampler_interval,omitempty" validate:"omitempty,min=1,max=3600"`
	FlushTimeout    int     `yaml:"flush_timeout,omitempty" validate:"omitempty,min=1,max=600"`
	LeakThreshold   float64 `yaml:"leak_threshold,omitempty" validate:"omitempty,gt=0"`

	Tools Tools `yaml:"tools,omitempty"`
}

// Tools overrides the external programs used by the executor kinds.
type Tools struct {
	Engine          string `yaml:"engine,omitempty"`
	HistMerge       string `yaml:"hist_merge,omitempty"`
	NtupleMerge     string `yaml:"ntuple_merge,omitempty"`
	ByteStreamMerge string `yaml:"bytestream_merge,omitempty"`
	CatalogAppend   string `yaml:"catalog_append,omitempty"`
	Archive         string `yaml:"archive,omitempty"`
}

// Dataset declares one dataset type and, for inputs, its files.
type Dataset struct {
	Type            string                    `yaml:"type" validate:"required,dataset_type"`
	IO              string                    `yaml:"io" validate:"required,dataset_io"`
	Format          string                    `yaml:"format,omitempty" validate:"omitempty,dataset_format"`
	Files           []string                  `yaml:"files,omitempty" validate:"omitempty,dive,required"`
	Metadata        map[string]map[string]any `yaml:"metadata,omitempty"`
	MergeTargetSize int64                     `yaml:"merge_target_size,omitempty" validate:"omitempty,min=-1"`
	MultipleOK      bool                      `yaml:"multiple_ok,omitempty"`
}

// Stage describes one executor of the job.
type Stage struct {
	Name    string   `yaml:"name" validate:"required,stage_name"`
	Substep string   `yaml:"substep,omitempty" validate:"omitempty,stage_name"`
	Kind    string   `yaml:"kind" validate:"required,stage_kind"`
	Exe     string   `yaml:"exe,omitempty"`
	ExeArgs []string `yaml:"exe_args,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Inputs  []string `yaml:"inputs,omitempty"`
	Outputs []string `yaml:"outputs,omitempty"`
	Steps   int      `yaml:"steps,omitempty" validate:"omitempty,min=1,max=1000"`
	Enabled bool     `yaml:"enabled,omitempty"`

	ErrorMaskFiles []string `yaml:"error_mask_files,omitempty"`
	DisableMP      bool     `yaml:"disable_mp,omitempty"`
	DisableMT      bool     `yaml:"disable_mt,omitempty"`
	OnlyMP         bool     `yaml:"only_mp,omitempty"`
	OnlyMT         bool     `yaml:"only_mt,omitempty"`
	OnlyMPWithArgs []string `yaml:"only_mp_with_args,omitempty"`
	CheckOutputs   bool     `yaml:"check_outputs,omitempty"`
}

// UnmarshalYAML defaults Enabled to true when the key is absent.
func (s *Stage) UnmarshalYAML(value *yaml.Node) error {
	type rawStage Stage
	raw := rawStage{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = Stage(raw)
	if !hasYAMLKey(value, "enabled") {
		s.Enabled = true
	}
	return nil
}

// Alias is the substep name, falling back to the stage name.
func (s Stage) Alias() string {
	if s.Substep != "" {
		return s.Substep
	}
	return s.Name
}

// EnabledStages returns the stages that take part in the job.
func (c *Config) EnabledStages() []Stage {
	out := make([]Stage, 0, len(c.Stages))
	for _, s := range c.Stages {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Dataset looks up a dataset declaration by type.
func (c *Config) Dataset(name string) (Dataset, bool) {
	for _, d := range c.Datasets {
		if d.Type == name {
			return d, true
		}
	}
	return Dataset{}, false
}

func hasYAMLKey(node *yaml.Node, key string) bool {
	if node == nil || node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}
