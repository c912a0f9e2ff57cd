package parallel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/stagehand/internal/argstore"
)

func TestNegotiateSerialFallbackWithoutCapacity(t *testing.T) {
	t.Parallel()

	res, err := Negotiate(Request{Multithreaded: true, ExpectedEvents: UnknownEvents})
	require.NoError(t, err)
	require.Zero(t, res.Threads)
	require.Zero(t, res.Processes)
	require.True(t, res.Serial())
	require.Len(t, res.Warnings, 1)
}

func TestNegotiateUsesCapacity(t *testing.T) {
	t.Parallel()

	res, err := Negotiate(Request{Cores: 8, CoresSet: true, Multithreaded: true, ExpectedEvents: UnknownEvents})
	require.NoError(t, err)
	require.Equal(t, 8, res.Threads)
	require.Equal(t, 8, res.ConcurrentEvents)
	require.Zero(t, res.Processes)

	res, err = Negotiate(Request{Cores: 4, CoresSet: true, Multiprocess: true, ExpectedEvents: 100})
	require.NoError(t, err)
	require.Equal(t, 4, res.Processes)
	require.Zero(t, res.Threads)
	require.Empty(t, res.Warnings)
}

func TestNegotiateExplicitOptions(t *testing.T) {
	t.Parallel()

	res, err := Negotiate(Request{
		EngineOpts:     []string{"--threads=4", "--concurrent-events=2", "--nprocs=-1"},
		Cores:          6,
		CoresSet:       true,
		ExpectedEvents: UnknownEvents,
	})
	require.NoError(t, err)
	require.Equal(t, 4, res.Threads)
	require.Equal(t, 2, res.ConcurrentEvents)
	require.Equal(t, 6, res.Processes)

	_, err = Negotiate(Request{EngineOpts: []string{"--nprocs=many"}})
	require.Error(t, err)
}

func TestNegotiateFoldsForSingleModeEngines(t *testing.T) {
	t.Parallel()

	res, err := Negotiate(Request{Cores: 8, CoresSet: true, Multithreaded: true, OnlyMP: true, ExpectedEvents: UnknownEvents})
	require.NoError(t, err)
	require.Equal(t, 8, res.Processes)
	require.Zero(t, res.Threads)
	require.Zero(t, res.ConcurrentEvents)

	res, err = Negotiate(Request{Cores: 3, CoresSet: true, Multiprocess: true, OnlyMT: true, ExpectedEvents: UnknownEvents})
	require.NoError(t, err)
	require.Zero(t, res.Processes)
	require.Equal(t, 3, res.Threads)
	require.Equal(t, 3, res.ConcurrentEvents)
}

func TestNegotiateDisables(t *testing.T) {
	t.Parallel()

	res, err := Negotiate(Request{
		Cores: 8, CoresSet: true, Multithreaded: true, Multiprocess: true,
		DisableMT: true, ExpectedEvents: UnknownEvents,
	})
	require.NoError(t, err)
	require.Zero(t, res.Threads)
	require.Equal(t, 8, res.Processes)

	res, err = Negotiate(Request{
		Cores: 8, CoresSet: true, Multithreaded: true, Multiprocess: true,
		DisableMP: true, ExpectedEvents: UnknownEvents,
	})
	require.NoError(t, err)
	require.Equal(t, 8, res.Threads)
	require.Zero(t, res.Processes)
}

func TestNegotiateFoldsEvenWhenProcessesDisabled(t *testing.T) {
	t.Parallel()

	res, err := Negotiate(Request{
		Cores: 4, CoresSet: true, Multithreaded: true,
		DisableMP: true, OnlyMP: true, ExpectedEvents: UnknownEvents,
	})
	require.NoError(t, err)
	require.Zero(t, res.Threads)
	require.Zero(t, res.ConcurrentEvents)
	require.Equal(t, 4, res.Processes)
	require.NotEmpty(t, res.Warnings)
}

func TestNegotiateEventGating(t *testing.T) {
	t.Parallel()

	res, err := Negotiate(Request{EngineOpts: []string{"--nprocs=8"}, ExpectedEvents: 3})
	require.NoError(t, err)
	require.Zero(t, res.Processes)
	require.Len(t, res.Warnings, 1)

	res, err = Negotiate(Request{EngineOpts: []string{"--nprocs=8"}, ExpectedEvents: 8})
	require.NoError(t, err)
	require.Equal(t, 8, res.Processes)
}

func TestFromArgsReadsCapacity(t *testing.T) {
	t.Parallel()

	store := argstore.New()
	store.SetArg(ArgMultithreaded, argstore.PerStage(map[string]any{"reco": true}))

	env := map[string]string{"CORES": "12"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	req, err := FromArgs(store, argstore.Scope{Name: "reco"}, "CORES", lookup)
	require.NoError(t, err)
	require.True(t, req.Multithreaded)
	require.False(t, req.Multiprocess)
	require.True(t, req.CoresSet)
	require.Equal(t, 12, req.Cores)
	require.Equal(t, UnknownEvents, req.ExpectedEvents)

	env["CORES"] = "lots"
	_, err = FromArgs(store, argstore.Scope{Name: "reco"}, "CORES", lookup)
	require.Error(t, err)

	req, err = FromArgs(store, argstore.Scope{Name: "reco"}, "UNSET", lookup)
	require.NoError(t, err)
	require.False(t, req.CoresSet)
}

func TestOptionsAndStrip(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"--loglevel=DEBUG"}, StripCounts([]string{"--threads=2", "--loglevel=DEBUG", "--nprocs=3"}))
	require.Equal(t,
		[]string{"--threads=2", "--concurrent-events=2", "--nprocs=1"},
		Result{Threads: 2, ConcurrentEvents: 2, Processes: 1}.Options())
	require.Nil(t, Result{}.Options())
}
