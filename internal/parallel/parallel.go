// Package parallel decides how many worker processes, threads and concurrent
// event slots a compute engine stage runs with.
package parallel

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/stagehand/internal/argstore"
)

// DefaultCoreEnv names the environment variable carrying the capacity signal.
const DefaultCoreEnv = "ENGINE_CORE_NUMBER"

// Engine option prefixes carrying explicit counts.
const (
	OptProcesses        = "--nprocs="
	OptThreads          = "--threads="
	OptConcurrentEvents = "--concurrent-events="
)

// Argument names requesting a parallel mode.
const (
	ArgMultiprocess  = "multiprocess"
	ArgMultithreaded = "multithreaded"
)

// UnknownEvents marks an expected event count that could not be derived.
const UnknownEvents int64 = -1

// Request carries everything negotiation depends on.
type Request struct {
	// Cores is the capacity signal; CoresSet is false when it was absent.
	Cores    int
	CoresSet bool

	Multiprocess  bool
	Multithreaded bool
	EngineOpts    []string

	DisableMP bool
	DisableMT bool
	// OnlyMP and OnlyMT describe engine builds supporting a single mode.
	OnlyMP bool
	OnlyMT bool

	ExpectedEvents int64
}

// Result is the negotiated parallelism state of one stage.
type Result struct {
	Processes        int
	Threads          int
	ConcurrentEvents int
	Warnings         []string
}

// Serial reports whether the stage runs without any parallelism.
func (r Result) Serial() bool {
	return r.Processes == 0 && r.Threads == 0
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// FromArgs fills the parts of a Request that come from the argument store and
// the environment. lookupEnv defaults to os.LookupEnv.
func FromArgs(args *argstore.Store, scope argstore.Scope, coreEnv string, lookupEnv func(string) (string, bool)) (Request, error) {
	if coreEnv == "" {
		coreEnv = DefaultCoreEnv
	}
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	req := Request{
		Multiprocess:   args.Bool(ArgMultiprocess, scope),
		Multithreaded:  args.Bool(ArgMultithreaded, scope),
		ExpectedEvents: UnknownEvents,
	}

	if raw, ok := lookupEnv(coreEnv); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return req, fmt.Errorf("%s must be a non-negative integer, found %q", coreEnv, raw)
		}
		req.Cores = n
		req.CoresSet = true
	}
	return req, nil
}

// Negotiate applies the negotiation policy in order: serial fallback when the
// capacity signal is missing, per-mode detection, folding for single-mode
// engines, then event-count gating.
func Negotiate(req Request) (Result, error) {
	var res Result

	explicitProcs, hasProcs, err := optionCount(req.EngineOpts, OptProcesses)
	if err != nil {
		return res, err
	}
	explicitThreads, hasThreads, err := optionCount(req.EngineOpts, OptThreads)
	if err != nil {
		return res, err
	}
	explicitSlots, hasSlots, err := optionCount(req.EngineOpts, OptConcurrentEvents)
	if err != nil {
		return res, err
	}

	if !req.CoresSet && (req.Multiprocess || req.Multithreaded) && !hasProcs && !hasThreads {
		res.warn("parallel mode requested but capacity signal is not set; running serially")
		return res, nil
	}

	if !req.DisableMT {
		res.Threads, res.ConcurrentEvents = detectThreads(req, explicitThreads, hasThreads, explicitSlots, hasSlots)
	}

	if !req.DisableMP {
		res.Processes = detectProcesses(req, explicitProcs, hasProcs)
	}

	if req.OnlyMP && res.Threads > 0 {
		res.warn("engine does not support threads, folding %d threads into processes", res.Threads)
		if res.Processes == 0 {
			res.Processes = res.ConcurrentEvents
		}
		res.Threads = 0
		res.ConcurrentEvents = 0
	}

	if req.OnlyMT && res.Processes > 0 {
		res.warn("engine does not support worker processes, folding %d processes into threads", res.Processes)
		if res.Threads == 0 {
			res.Threads = res.Processes
			res.ConcurrentEvents = res.Processes
		}
		res.Processes = 0
	}

	if req.ExpectedEvents != UnknownEvents && req.ExpectedEvents < int64(res.Processes) {
		res.warn("disabling worker processes: %d events for %d workers", req.ExpectedEvents, res.Processes)
		res.Processes = 0
	}

	return res, nil
}

func detectThreads(req Request, explicit int, hasExplicit bool, slots int, hasSlots bool) (int, int) {
	threads := 0
	switch {
	case hasExplicit:
		threads = explicit
		if threads < 0 && req.CoresSet {
			threads = req.Cores
		}
	case req.Multithreaded && req.CoresSet:
		threads = req.Cores
	}
	if threads < 0 {
		threads = 0
	}

	concurrent := threads
	if hasSlots && threads > 0 {
		concurrent = slots
		if concurrent < 0 {
			concurrent = threads
		}
	}
	return threads, concurrent
}

func detectProcesses(req Request, explicit int, hasExplicit bool) int {
	procs := 0
	switch {
	case hasExplicit:
		procs = explicit
		if procs < 0 && req.CoresSet {
			procs = req.Cores
		}
	case req.Multiprocess && req.CoresSet:
		procs = req.Cores
	}
	if procs < 0 {
		return 0
	}
	return procs
}

// optionCount finds the last option with the given prefix. A value of -1
// asks for the capacity signal.
func optionCount(opts []string, prefix string) (int, bool, error) {
	value, found := 0, false
	for _, opt := range opts {
		if !strings.HasPrefix(opt, prefix) {
			continue
		}
		raw := strings.TrimPrefix(opt, prefix)
		n, err := strconv.Atoi(raw)
		if err != nil || n < -1 {
			return 0, false, fmt.Errorf("invalid engine option %q", opt)
		}
		value, found = n, true
	}
	return value, found, nil
}

// StripCounts removes the count options handled by negotiation, so that
// command-line construction can re-emit the negotiated values.
func StripCounts(opts []string) []string {
	out := make([]string, 0, len(opts))
	for _, opt := range opts {
		if strings.HasPrefix(opt, OptProcesses) || strings.HasPrefix(opt, OptThreads) || strings.HasPrefix(opt, OptConcurrentEvents) {
			continue
		}
		out = append(out, opt)
	}
	return out
}

// Options renders the negotiated counts as engine options.
func (r Result) Options() []string {
	var opts []string
	if r.Threads > 0 {
		opts = append(opts, fmt.Sprintf("%s%d", OptThreads, r.Threads))
		opts = append(opts, fmt.Sprintf("%s%d", OptConcurrentEvents, r.ConcurrentEvents))
	}
	if r.Processes > 0 {
		opts = append(opts, fmt.Sprintf("%s%d", OptProcesses, r.Processes))
	}
	return opts
}
