package logscan

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Pattern ignores log messages. A nil Who matches every component and an
// empty Level matches every level.
type Pattern struct {
	Who     *regexp.Regexp
	Level   string
	Message *regexp.Regexp
}

// Match reports whether the pattern covers the message.
func (p Pattern) Match(who string, level Level, message string) bool {
	if p.Who != nil && !p.Who.MatchString(who) {
		return false
	}
	if p.Level != "" {
		want, ok := ParseLevel(p.Level)
		if !ok || want != level {
			return false
		}
	}
	return p.Message.MatchString(message)
}

// Ignore is an ordered set of ignore patterns.
type Ignore struct {
	Patterns []Pattern
	Sources  []string
}

// Match reports whether any pattern covers the message.
func (ig *Ignore) Match(who string, level Level, message string) bool {
	if ig == nil {
		return false
	}
	for _, p := range ig.Patterns {
		if p.Match(who, level, message) {
			return true
		}
	}
	return false
}

// SelectFiles picks the ignore pattern files in effect: files named for the
// run win over the stage's own files, which win over the default.
func SelectFiles(explicit, stage []string, fallback string) []string {
	switch {
	case len(explicit) > 0:
		return explicit
	case len(stage) > 0:
		return stage
	case fallback != "":
		return []string{fallback}
	default:
		return nil
	}
}

// LoadIgnore reads pattern files and appends the extra message regexes. A
// missing file is skipped; a malformed line is an error.
func LoadIgnore(files []string, extra []string) (*Ignore, error) {
	ig := &Ignore{}
	for _, path := range files {
		patterns, err := readPatternFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ig.Patterns = append(ig.Patterns, patterns...)
		ig.Sources = append(ig.Sources, path)
	}
	for _, expr := range extra {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", expr, err)
		}
		ig.Patterns = append(ig.Patterns, Pattern{Message: re})
	}
	return ig, nil
}

func readPatternFile(path string) ([]Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []Pattern
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		p, ok, err := parsePatternLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if ok {
			patterns = append(patterns, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return patterns, nil
}

// parsePatternLine reads "who, level, message". Blank lines and # comments
// yield ok=false.
func parsePatternLine(line string) (Pattern, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Pattern{}, false, nil
	}
	parts := strings.SplitN(line, ",", 3)
	if len(parts) != 3 {
		return Pattern{}, false, fmt.Errorf("expected who, level, message: %q", line)
	}

	var p Pattern
	if who := unquote(parts[0]); who != "" && who != "*" {
		re, err := regexp.Compile(who)
		if err != nil {
			return Pattern{}, false, fmt.Errorf("who pattern: %w", err)
		}
		p.Who = re
	}
	if level := unquote(parts[1]); level != "*" {
		if level != "" {
			if _, ok := ParseLevel(level); !ok {
				return Pattern{}, false, fmt.Errorf("unknown level %q", level)
			}
		}
		p.Level = level
	}
	re, err := regexp.Compile(unquote(parts[2]))
	if err != nil {
		return Pattern{}, false, fmt.Errorf("message pattern: %w", err)
	}
	p.Message = re
	return p, true, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
