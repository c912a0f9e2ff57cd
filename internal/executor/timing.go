package executor

import (
	"time"

	"golang.org/x/sys/unix"
)

// Checkpoint names one of the lifecycle timing marks.
type Checkpoint int

const (
	PreExecuteStart Checkpoint = iota
	ExecuteStart
	ExecuteStop
	ValidateStart
	ValidateStop
	numCheckpoints
)

func (c Checkpoint) String() string {
	switch c {
	case PreExecuteStart:
		return "preExecuteStart"
	case ExecuteStart:
		return "executeStart"
	case ExecuteStop:
		return "executeStop"
	case ValidateStart:
		return "validateStart"
	case ValidateStop:
		return "validateStop"
	default:
		return "unknown"
	}
}

type mark struct {
	set  bool
	wall time.Time
	cpu  time.Duration
}

// cpuNow is the CPU time consumed by the orchestrator and its reaped children.
func cpuNow() time.Duration {
	var total time.Duration
	for _, who := range []int{unix.RUSAGE_SELF, unix.RUSAGE_CHILDREN} {
		var ru unix.Rusage
		if err := unix.Getrusage(who, &ru); err != nil {
			continue
		}
		total += time.Duration(ru.Utime.Nano()) + time.Duration(ru.Stime.Nano())
	}
	return total
}

// record sets a checkpoint once; later calls leave it unchanged.
func (e *Executor) record(c Checkpoint) {
	if e.marks[c].set {
		return
	}
	e.marks[c] = mark{set: true, wall: e.now(), cpu: cpuNow()}
}

// CheckpointTime returns when c was recorded.
func (e *Executor) CheckpointTime(c Checkpoint) (time.Time, bool) {
	m := e.marks[c]
	return m.wall, m.set
}

// WallTime is the wall-clock time between two checkpoints. ok is false unless
// both are set.
func (e *Executor) WallTime(from, to Checkpoint) (time.Duration, bool) {
	a, b := e.marks[from], e.marks[to]
	if !a.set || !b.set {
		return 0, false
	}
	return b.wall.Sub(a.wall), true
}

// CPUTime is the CPU time spent between two checkpoints. ok is false unless
// both are set.
func (e *Executor) CPUTime(from, to Checkpoint) (time.Duration, bool) {
	a, b := e.marks[from], e.marks[to]
	if !a.set || !b.set {
		return 0, false
	}
	return b.cpu - a.cpu, true
}
