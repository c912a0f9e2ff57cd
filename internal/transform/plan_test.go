package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/stagehand/internal/config"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

func planConfig() *config.Config {
	return &config.Config{
		Version: "1.0",
		Name:    "plan",
		Datasets: []config.Dataset{
			{Type: "EVNT", IO: "input", Files: []string{"evnt"}},
			{Type: "HITS", IO: "temporary", Files: []string{"hits"}},
			{Type: "RDO", IO: "temporary", Files: []string{"rdo"}},
			{Type: "AOD", IO: "output", Files: []string{"aod"}},
			{Type: "NTUP", IO: "output", Files: []string{"ntup"}},
		},
		Stages: []config.Stage{
			{Name: "sim", Kind: "noop", Inputs: []string{"EVNT"}, Outputs: []string{"HITS"}, Enabled: true},
			{Name: "digi", Kind: "noop", Inputs: []string{"HITS"}, Outputs: []string{"RDO"}, Enabled: true},
			{Name: "reco", Kind: "noop", Inputs: []string{"RDO"}, Outputs: []string{"AOD"}, Enabled: true},
			{Name: "ntup", Kind: "noop", Inputs: []string{"AOD"}, Outputs: []string{"NTUP"}, Enabled: true},
			{Name: "off", Kind: "noop", Inputs: []string{"EVNT"}, Outputs: []string{"HITS"}, Enabled: false},
		},
	}
}

func TestBuildGraphLevels(t *testing.T) {
	t.Parallel()

	graph, err := BuildGraph(planConfig().Stages)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"sim"}, {"digi"}, {"reco"}, {"ntup"}}, graph.Levels)
	require.Equal(t, []string{"sim", "digi", "reco", "ntup"}, graph.Order())
	require.Equal(t, []string{"sim"}, graph.Producers["HITS"])
	require.NotContains(t, graph.Nodes, "off")
}

func TestBuildGraphParallelBranches(t *testing.T) {
	t.Parallel()

	stages := []config.Stage{
		{Name: "b", Inputs: []string{"X"}, Outputs: []string{"Y"}, Enabled: true},
		{Name: "a", Inputs: []string{"X"}, Outputs: []string{"Z"}, Enabled: true},
		{Name: "join", Inputs: []string{"Y", "Z"}, Outputs: []string{"W"}, Enabled: true},
	}
	graph, err := BuildGraph(stages)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a", "b"}, {"join"}}, graph.Levels)
}

func TestBuildGraphRejectsCycle(t *testing.T) {
	t.Parallel()

	stages := []config.Stage{
		{Name: "a", Inputs: []string{"X"}, Outputs: []string{"Y"}, Enabled: true},
		{Name: "b", Inputs: []string{"Y"}, Outputs: []string{"X"}, Enabled: true},
	}
	_, err := BuildGraph(stages)
	require.True(t, stagehanderrors.IsCategory(err, stagehanderrors.CategoryGraph))
}

func TestGeneratePlanSelection(t *testing.T) {
	t.Parallel()

	cfg := planConfig()
	graph, err := BuildGraph(cfg.Stages)
	require.NoError(t, err)

	cases := []struct {
		name    string
		sel     Selection
		stages  []string
		skipped []string
	}{
		{
			name:   "every output by default",
			stages: []string{"sim", "digi", "reco", "ntup"},
		},
		{
			name:    "requested output pulls its producers",
			sel:     Selection{Outputs: []string{"AOD"}},
			stages:  []string{"sim", "digi", "reco"},
			skipped: []string{"ntup"},
		},
		{
			name:    "explicit stages",
			sel:     Selection{Stages: []string{"reco"}},
			stages:  []string{"reco"},
			skipped: []string{"sim", "digi", "ntup"},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			plan, err := GeneratePlan(graph, cfg, tc.sel)
			require.NoError(t, err)
			require.Equal(t, tc.stages, plan.Stages())
			require.Equal(t, tc.skipped, plan.Skipped)
		})
	}
}

func TestGeneratePlanUsesDeclaredIntermediateFiles(t *testing.T) {
	t.Parallel()

	cfg := planConfig()
	cfg.Stages[0].Enabled = false
	graph, err := BuildGraph(cfg.Stages)
	require.NoError(t, err)

	// HITS has no enabled producer but already names its files.
	plan, err := GeneratePlan(graph, cfg, Selection{Outputs: []string{"RDO"}})
	require.NoError(t, err)
	require.Equal(t, []string{"digi"}, plan.Stages())
}

func TestGeneratePlanErrors(t *testing.T) {
	t.Parallel()

	cfg := planConfig()
	graph, err := BuildGraph(cfg.Stages)
	require.NoError(t, err)

	_, err = GeneratePlan(graph, cfg, Selection{Stages: []string{"off"}})
	require.ErrorContains(t, err, `stage "off" is not defined or not enabled`)

	_, err = GeneratePlan(graph, cfg, Selection{Outputs: []string{"DAOD"}})
	require.ErrorContains(t, err, `requested dataset "DAOD" is not declared`)

	_, err = GeneratePlan(nil, cfg, Selection{})
	require.Error(t, err)
}

func TestPlanString(t *testing.T) {
	t.Parallel()

	plan := &Plan{Levels: [][]string{{"a", "b"}, {"c"}}, Skipped: []string{"d"}}
	require.Equal(t, "Level 0 (2 stages): a, b\nLevel 1 (1 stages): c\nSkipped: d\n", plan.String())
	require.Empty(t, (*Plan)(nil).String())
}
