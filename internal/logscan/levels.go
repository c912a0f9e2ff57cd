// Package logscan reads stage logfiles and reports the worst error they
// contain, honouring ignore patterns.
package logscan

import "strings"

// Level is a message severity. Higher is worse.
type Level int

const (
	LevelDebug       Level = 10
	LevelVerbose     Level = 15
	LevelInfo        Level = 20
	LevelWarning     Level = 30
	LevelError       Level = 40
	LevelFatal       Level = 50
	LevelCritical    Level = 50
	LevelCatastrophe Level = 60
)

var levelNames = map[string]Level{
	"DEBUG":       LevelDebug,
	"VERBOSE":     LevelVerbose,
	"INFO":        LevelInfo,
	"WARNING":     LevelWarning,
	"ERROR":       LevelError,
	"FATAL":       LevelFatal,
	"CRITICAL":    LevelCritical,
	"CATASTROPHE": LevelCatastrophe,
}

// ParseLevel maps a level keyword to its Level.
func ParseLevel(name string) (Level, bool) {
	l, ok := levelNames[strings.ToUpper(strings.TrimSpace(name))]
	return l, ok
}

func (l Level) String() string {
	switch {
	case l >= LevelCatastrophe:
		return "CATASTROPHE"
	case l >= LevelFatal:
		return "FATAL"
	case l >= LevelError:
		return "ERROR"
	case l >= LevelWarning:
		return "WARNING"
	case l >= LevelInfo:
		return "INFO"
	case l >= LevelVerbose:
		return "VERBOSE"
	default:
		return "DEBUG"
	}
}
