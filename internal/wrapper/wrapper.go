// Package wrapper renders the per-stage shell script that sets up the
// environment and invokes the engine. Every engine stage gets one so it can
// be re-run on its own.
package wrapper

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/stagehand/internal/bundle"
)

// Supported profiling tools.
const (
	ToolValgrind = "valgrind"
	ToolVTune    = "vtune"
)

// Profiler engages a profiling tool. The engine is first run to serialise
// its configuration, then the tool runs the engine on that configuration.
type Profiler struct {
	Tool    string
	Options []string
}

// DefaultOptions returns the options used when a tool is requested without
// explicit ones.
func DefaultOptions(tool string) []string {
	switch tool {
	case ToolValgrind:
		return []string{"--tool=memcheck", "--leak-check=full", "--smc-check=all"}
	case ToolVTune:
		return []string{"-collect", "hotspots"}
	default:
		return nil
	}
}

// Script describes one wrapper.
type Script struct {
	Stage   string
	Dir     string
	Command []string

	// EnvSetup is a shell line activating the engine environment.
	EnvSetup string
	Bundle   *bundle.Bundle
	Env      map[string]string

	DisabledMT bool
	DisabledMP bool

	Profiler *Profiler
}

// FileName is the deterministic wrapper name for stage.
func FileName(stage string) string {
	return "runwrapper." + stage + ".sh"
}

// ConfigFile is the serialised configuration written in profiler runs.
func ConfigFile(stage string) string {
	return stage + "Conf.pkl"
}

// Path returns where the wrapper for s is written.
func (s Script) Path() string {
	return filepath.Join(s.Dir, FileName(s.Stage))
}

// Render produces the script text. The engine replaces the shell so that
// signals sent to the wrapper reach it.
func Render(s Script) (string, error) {
	if len(s.Command) == 0 {
		return "", fmt.Errorf("wrapper for %s: empty command", s.Stage)
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "# wrapper for stage %s\n", s.Stage)

	if s.EnvSetup != "" {
		b.WriteString("# environment activation\n")
		fmt.Fprintf(&b, "echo %s\n", Quote("Activating environment: "+s.EnvSetup))
		b.WriteString(s.EnvSetup + "\n")
	}

	if s.Bundle != nil {
		b.WriteString("# resource bundle setup\n")
		fmt.Fprintf(&b, "echo %s\n", Quote("Setting up bundle "+s.Bundle.Root))
		for _, v := range s.Bundle.Env() {
			fmt.Fprintf(&b, "export %s=%s\n", v.Name, Quote(v.Value))
		}
		fmt.Fprintf(&b, "DATAPATH=%s:$DATAPATH\n", Quote(s.Bundle.Root))
		b.WriteString("export DATAPATH\n")
	}

	if s.DisabledMT {
		b.WriteString("# multi-threading disabled for this stage\n")
	}
	if s.DisabledMP {
		b.WriteString("# worker processes disabled for this stage\n")
	}

	if len(s.Env) > 0 {
		b.WriteString("# custom environment\n")
		keys := make([]string, 0, len(s.Env))
		for k := range s.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "export %s=%s\n", k, Quote(s.Env[k]))
		}
	}

	if s.Profiler != nil {
		if err := renderProfiled(&b, s); err != nil {
			return "", err
		}
	} else {
		b.WriteString("exec " + Join(s.Command) + "\n")
	}

	return b.String(), nil
}

func renderProfiled(b *strings.Builder, s Script) error {
	switch s.Profiler.Tool {
	case ToolValgrind, ToolVTune:
	default:
		return fmt.Errorf("unsupported profiler %q", s.Profiler.Tool)
	}
	opts := s.Profiler.Options
	if len(opts) == 0 {
		opts = DefaultOptions(s.Profiler.Tool)
	}
	conf := ConfigFile(s.Stage)

	fmt.Fprintf(b, "# %s run: serialise configuration first\n", s.Profiler.Tool)
	fmt.Fprintf(b, "%s --config-only=%s\n", Join(s.Command), Quote(conf))
	b.WriteString("if [ $? != \"0\" ]; then exit 255; fi\n")

	line := append([]string{s.Profiler.Tool}, opts...)
	fmt.Fprintf(b, "exec %s \"$(command -v %s)\" %s\n", Join(line), Quote(s.Command[0]), Quote(conf))
	return nil
}

// Write renders s and writes it as an executable file, returning its path.
func Write(s Script) (string, error) {
	text, err := Render(s)
	if err != nil {
		return "", err
	}
	path := s.Path()
	if err := os.WriteFile(path, []byte(text), 0o755); err != nil {
		return "", fmt.Errorf("write wrapper %s: %w", path, err)
	}
	// WriteFile honours umask; the wrapper must stay executable.
	if err := os.Chmod(path, 0o755); err != nil {
		return "", fmt.Errorf("chmod wrapper %s: %w", path, err)
	}
	return path, nil
}

// Join quotes every argument and joins them with spaces.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// Quote returns s quoted for a POSIX shell when it needs it.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, unsafeRune) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}
