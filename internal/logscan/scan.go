package logscan

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Format selects the line parser.
type Format int

const (
	// FormatEngine expects "<component> <LEVEL> <message>" lines.
	FormatEngine Format = iota
	// FormatScript looks for a level keyword anywhere in the line.
	FormatScript
)

const (
	maxLineBytes = 1 << 20
	blockDepth   = 30
)

var (
	engineLine  = regexp.MustCompile(`^(\S+)\s+(VERBOSE|DEBUG|INFO|WARNING|ERROR|FATAL|CRITICAL)\s+(.*)$`)
	scriptLevel = regexp.MustCompile(`\b(CRITICAL|FATAL|ERROR|WARNING)\b`)
)

// Event is one distinct message found in the log.
type Event struct {
	Level     Level  `json:"-"`
	LevelName string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
	FirstLine int    `json:"firstLine"`
	Count     int    `json:"count"`
}

// Report is the outcome of scanning one logfile.
type Report struct {
	File    string         `json:"file"`
	Counts  map[string]int `json:"counts"`
	Events  []Event        `json:"events"`
	Ignored int            `json:"ignored"`
	Lines   int            `json:"lines"`

	index map[string]int
}

// WorstError summarises the highest severity found.
type WorstError struct {
	Level      Level
	FirstError *Event
}

// Scanner scans logfiles with a fixed parser and ignore set.
type Scanner struct {
	Format Format
	Ignore *Ignore
}

// ScanFile scans the logfile at path.
func (s Scanner) ScanFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open logfile %s: %w", path, err)
	}
	defer f.Close()

	report, err := s.Scan(f)
	if err != nil {
		return nil, fmt.Errorf("scan logfile %s: %w", path, err)
	}
	report.File = path
	return report, nil
}

// Scan reads r line by line.
func (s Scanner) Scan(r io.Reader) (*Report, error) {
	report := &Report{Counts: make(map[string]int), index: make(map[string]int)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var block *blockState
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()

		if block != nil {
			if block.add(line, lineNo) {
				continue
			}
			s.record(report, block.event())
			block = nil
		}

		if b := startBlock(line, lineNo); b != nil {
			block = b
			continue
		}

		ev, ok := s.parse(line, lineNo)
		if !ok {
			continue
		}
		s.record(report, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if block != nil {
		s.record(report, block.event())
	}
	report.Lines = lineNo
	return report, nil
}

func (s Scanner) parse(line string, lineNo int) (Event, bool) {
	switch s.Format {
	case FormatScript:
		m := scriptLevel.FindStringSubmatch(line)
		if m == nil {
			return Event{}, false
		}
		level, _ := ParseLevel(m[1])
		return Event{Level: level, Message: strings.TrimSpace(line), FirstLine: lineNo}, true
	default:
		m := engineLine.FindStringSubmatch(line)
		if m == nil {
			return Event{}, false
		}
		level, _ := ParseLevel(m[2])
		return Event{Level: level, Component: m[1], Message: strings.TrimSpace(m[3]), FirstLine: lineNo}, true
	}
}

func (s Scanner) record(r *Report, ev Event) {
	if s.Ignore.Match(ev.Component, ev.Level, ev.Message) {
		r.Ignored++
		return
	}
	ev.LevelName = ev.Level.String()
	r.Counts[ev.LevelName]++
	if ev.Level < LevelWarning {
		return
	}
	key := ev.LevelName + "\x00" + ev.Component + "\x00" + ev.Message
	if i, ok := r.index[key]; ok {
		r.Events[i].Count++
		return
	}
	ev.Count = 1
	r.index[key] = len(r.Events)
	r.Events = append(r.Events, ev)
}

// WorstError returns the highest level found and the earliest message at
// that level. A log without warnings or errors reports INFO.
func (r *Report) WorstError() WorstError {
	worst := WorstError{Level: LevelInfo}
	for i := range r.Events {
		ev := &r.Events[i]
		if ev.Level < LevelError {
			continue
		}
		switch {
		case worst.FirstError == nil || ev.Level > worst.Level:
			worst.Level, worst.FirstError = ev.Level, ev
		case ev.Level == worst.Level && ev.FirstLine < worst.FirstError.FirstLine:
			worst.FirstError = ev
		}
	}
	return worst
}

// ByLevel returns the events at or above min, ordered by first appearance.
func (r *Report) ByLevel(min Level) []Event {
	var out []Event
	for _, ev := range r.Events {
		if ev.Level >= min {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FirstLine < out[j].FirstLine })
	return out
}

type blockKind int

const (
	blockCoreDump blockKind = iota
	blockG4
	blockTraceback
)

type blockState struct {
	kind      blockKind
	component string
	firstLine int
	lines     []string
	done      bool
}

func startBlock(line string, lineNo int) *blockState {
	switch {
	case strings.Contains(line, "CoreDumpSvc") && (strings.Contains(line, "Caught signal") || strings.Contains(line, " FATAL ")):
		return &blockState{kind: blockCoreDump, component: "CoreDumpSvc", firstLine: lineNo, lines: []string{strings.TrimSpace(line)}}
	case strings.Contains(line, "G4Exception-START"):
		return &blockState{kind: blockG4, component: "G4Exception", firstLine: lineNo, lines: []string{"G4Exception"}}
	case strings.HasPrefix(line, "Traceback (most recent call last):"):
		return &blockState{kind: blockTraceback, component: "Traceback", firstLine: lineNo, lines: []string{strings.TrimSpace(line)}}
	}
	return nil
}

// add consumes line into the block. It returns false when the line does not
// belong to the block and must be parsed normally.
func (b *blockState) add(line string, lineNo int) bool {
	if b.done || len(b.lines) >= blockDepth {
		return false
	}
	trimmed := strings.TrimSpace(line)
	switch b.kind {
	case blockCoreDump:
		if m := engineLine.FindStringSubmatch(line); m != nil && m[1] != "CoreDumpSvc" {
			return false
		}
		if trimmed == "" {
			b.done = true
			return true
		}
		b.lines = append(b.lines, trimmed)
		return true
	case blockG4:
		if strings.Contains(line, "G4Exception-END") {
			b.done = true
			return true
		}
		if trimmed != "" {
			b.lines = append(b.lines, trimmed)
		}
		return true
	default:
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			b.lines = append(b.lines, trimmed)
			return true
		}
		// The exception line closes the traceback.
		b.lines = append(b.lines, trimmed)
		b.done = true
		return true
	}
}

func (b *blockState) event() Event {
	level := LevelFatal
	if b.kind == blockTraceback {
		level = LevelCritical
	}
	return Event{
		Level:     level,
		Component: b.component,
		Message:   strings.Join(b.lines, " | "),
		FirstLine: b.firstLine,
	}
}
