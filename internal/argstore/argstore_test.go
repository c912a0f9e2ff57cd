package argstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	a := PerStage(map[string]any{
		"RAWtoESD": "by-name",
		"r2e":      "by-alias",
		"first":    "by-first",
		"all":      "fallback",
	})

	v, ok := a.Resolve(Scope{Name: "RAWtoESD", Substep: "r2e"})
	require.True(t, ok)
	require.Equal(t, "by-name", v)

	v, ok = a.Resolve(Scope{Name: "Other", Substep: "r2e"})
	require.True(t, ok)
	require.Equal(t, "by-alias", v)

	v, ok = a.Resolve(Scope{Name: "Other", Substep: "o", First: true})
	require.True(t, ok)
	require.Equal(t, "by-first", v)

	v, ok = a.Resolve(Scope{Name: "Other", Substep: "o"})
	require.True(t, ok)
	require.Equal(t, "fallback", v)
}

func TestResolveMissingPerStageEntry(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetArg("preExec", PerStage(map[string]any{"ESDtoAOD": "x"}))

	_, ok := s.Resolve("preExec", Scope{Name: "RAWtoESD"})
	require.False(t, ok)
	_, ok = s.Resolve("absent", Scope{Name: "RAWtoESD"})
	require.False(t, ok)
}

func TestTypedAccessors(t *testing.T) {
	t.Parallel()

	s := New()
	s.Set("maxEvents", 100)
	s.Set("skipEvents", "5")
	s.Set("ignoreErrors", "True")
	s.Set("bad", 1.5)
	s.Set("outputs", []any{"a.root", "b.root"})
	s.SetArg("multithreaded", PerStage(map[string]any{"all": true, "merge": false}))

	n, ok, err := s.Int("maxEvents", Scope{})
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 100, n)

	n, ok, err = s.Int("skipEvents", Scope{})
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 5, n)

	_, ok, err = s.Int("bad", Scope{})
	require.True(t, ok)
	require.Error(t, err)

	require.True(t, s.Bool("ignoreErrors", Scope{}))
	require.True(t, s.Bool("multithreaded", Scope{Name: "reco"}))
	require.False(t, s.Bool("multithreaded", Scope{Name: "merge"}))
	require.False(t, s.Bool("absent", Scope{}))

	list, ok := s.Strings("outputs", Scope{})
	require.True(t, ok)
	require.Equal(t, []string{"a.root", "b.root"}, list)
}

func TestBuildOptionTableConcatenatesAliases(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetArg("engineopts", PerStage(map[string]any{
		"RAWtoESD": []any{"--loglevel=INFO"},
		"r2e":      []any{"--stdcmalloc"},
		"all":      []any{"--nprocs=2"},
	}))

	stages := []Scope{{Name: "RAWtoESD", Substep: "r2e"}, {Name: "ESDtoAOD", Substep: "e2a"}}
	table := s.BuildOptionTable("engineopts", stages)

	require.Equal(t, []string{"--loglevel=INFO", "--stdcmalloc"}, table["RAWtoESD"])
	require.Equal(t, []string{"--nprocs=2"}, table["ESDtoAOD"])

	raw, _ := s.Get("engineopts")
	perStage := raw.Value().(map[string]any)
	require.NotContains(t, perStage, "r2e")

	require.Equal(t, []string{"--loglevel=INFO", "--stdcmalloc"}, s.StageOptions("engineopts", stages[0]))
}

func TestStageOptionsBuildsLazily(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetArg("engineopts", PerStage(map[string]any{"merge": "--fast"}))

	require.Equal(t, []string{"--fast"}, s.StageOptions("engineopts", Scope{Name: "x", Substep: "merge"}))
	require.Nil(t, s.StageOptions("missing", Scope{Name: "x"}))

	s.Set("flat", []string{"-a", "-b"})
	require.Equal(t, []string{"-a", "-b"}, s.StageOptions("flat", Scope{Name: "x"}))
}

func TestSnapshotResolvesForStage(t *testing.T) {
	t.Parallel()

	s := New()
	s.Set("maxEvents", 10)
	s.SetArg("preExec", PerStage(map[string]any{"reco": "a"}))

	snap := s.Snapshot(Scope{Name: "reco"})
	require.Equal(t, map[string]any{"maxEvents": 10, "preExec": "a"}, snap)

	snap = s.Snapshot(Scope{Name: "other"})
	require.Equal(t, map[string]any{"maxEvents": 10}, snap)
	require.Equal(t, []string{"maxEvents", "preExec"}, s.Keys())
}
