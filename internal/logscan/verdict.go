package logscan

import (
	"fmt"
	"strings"
)

// ExitMessageLimit bounds the length of a logfile excerpt quoted in an exit
// message.
const ExitMessageLimit = 200

// Verdict is the pass/fail decision drawn from a worst error.
type Verdict struct {
	Fail    bool
	Message string
	// Downgraded is set when an ERROR was tolerated because errors are
	// ignored for the stage.
	Downgraded bool
}

// Decide fails on ERROR and above. With ignoreErrors set, ERROR passes with a
// warning; anything worse still fails.
func Decide(worst WorstError, logName string, ignoreErrors bool) Verdict {
	if worst.Level < LevelError {
		return Verdict{}
	}
	msg := ExitMessage(worst, logName)
	if ignoreErrors && worst.Level == LevelError {
		return Verdict{Message: msg, Downgraded: true}
	}
	return Verdict{Fail: true, Message: msg}
}

// ExitMessage composes a short description of the worst error. Messages
// longer than ExitMessageLimit are replaced by a pointer to the report, with
// dedicated wording for core dumps and G4 exceptions.
func ExitMessage(worst WorstError, logName string) string {
	first := worst.FirstError
	if first == nil {
		return fmt.Sprintf("Error level %s found (see logfile for details)", worst.Level)
	}
	if len(first.Message) > ExitMessageLimit {
		switch {
		case first.Component == "CoreDumpSvc" || strings.Contains(first.Message, "CoreDumpSvc"):
			return fmt.Sprintf("Core dump at line %d (see jobReport for further details)", first.FirstLine)
		case first.Component == "G4Exception" || strings.Contains(first.Message, "G4Exception"):
			return fmt.Sprintf("G4 exception at line %d (see jobReport for further details)", first.FirstLine)
		default:
			return fmt.Sprintf("Long %s message at line %d (see jobReport for further details)", worst.Level, first.FirstLine)
		}
	}
	return fmt.Sprintf("Logfile error in %s: %q", logName, first.Message)
}
