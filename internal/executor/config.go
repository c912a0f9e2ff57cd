package executor

import (
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/stagehand/internal/argstore"
	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	"github.com/alexisbeaulieu97/stagehand/internal/resmon"
)

const defaultFlushTimeout = 5 * time.Second

// Tools names the external programs the executor kinds invoke.
type Tools struct {
	Engine          string
	HistMerge       string
	NtupleMerge     string
	ByteStreamMerge string
	CatalogAppend   string
	Archive         string
}

// DefaultTools returns the program names used when a job does not override them.
func DefaultTools() Tools {
	return Tools{
		Engine:          "engine",
		HistMerge:       "histmerge",
		NtupleMerge:     "hadd",
		ByteStreamMerge: "file_merging",
		CatalogAppend:   "CollAppend",
		Archive:         "tar",
	}
}

// Settings are the job-wide knobs every executor reads.
type Settings struct {
	WorkDir           string
	CoreEnv           string
	DefaultIgnoreFile string

	Sampler         bool
	SamplerTool     string
	SamplerInterval int
	FlushTimeout    time.Duration
	Fit             resmon.FitOptions

	Tools Tools

	// LookupEnv reads the capacity signal; nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// DefaultSettings returns settings for running in the current directory.
func DefaultSettings() Settings {
	return Settings{
		WorkDir:         ".",
		SamplerInterval: 30,
		FlushTimeout:    defaultFlushTimeout,
		Fit:             resmon.DefaultFitOptions(),
		Tools:           DefaultTools(),
	}
}

// Config bundles what one executor works on. Args and Data are shared by
// reference with every other stage of the job.
type Config struct {
	Args     *argstore.Store
	Data     *datadict.Dictionary
	First    bool
	Settings Settings

	step       int
	totalSteps int
	// stepFiles accumulates per-step outputs; copies share it.
	stepFiles map[string][]string
}

// NewConfig creates a Config for an executor that is not split into steps.
func NewConfig(args *argstore.Store, data *datadict.Dictionary, first bool, settings Settings) *Config {
	return &Config{Args: args, Data: data, First: first, Settings: settings, step: -1, stepFiles: make(map[string][]string)}
}

// Step is the index of this executor within a split stage, or -1.
func (c *Config) Step() int {
	return c.step
}

// TotalSteps is the number of steps of a split stage; 0 means not split.
func (c *Config) TotalSteps() int {
	return c.totalSteps
}

// SetStep assigns the step position.
func (c *Config) SetStep(step, total int) error {
	if total < 0 {
		return fmt.Errorf("total steps must not be negative, got %d", total)
	}
	if total > 1 && (step < 0 || step >= total) {
		return fmt.Errorf("step %d out of range for %d steps", step, total)
	}
	c.step = step
	c.totalSteps = total
	return nil
}

// Split reports whether the stage runs as several steps.
func (c *Config) Split() bool {
	return c.totalSteps > 1
}

// LastStep reports whether this is the final step of a split stage.
func (c *Config) LastStep() bool {
	return c.Split() && c.step == c.totalSteps-1
}

// Copy returns a Config sharing Args and Data, with step information reset.
func (c *Config) Copy() *Config {
	clone := *c
	clone.step = -1
	clone.totalSteps = 0
	return &clone
}

func (c *Config) addStepFiles(dataset string, files []string) {
	if c.stepFiles == nil {
		c.stepFiles = make(map[string][]string)
	}
	c.stepFiles[dataset] = append(c.stepFiles[dataset], files...)
}

func (c *Config) takeStepFiles(dataset string) []string {
	files := c.stepFiles[dataset]
	delete(c.stepFiles, dataset)
	return files
}
