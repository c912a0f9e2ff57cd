package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

const planJob = `version: "1.0"
name: plan
datasets:
  - {type: EVNT, io: input, files: [evnt.pool]}
  - {type: HITS, io: temporary, files: [hits.pool]}
  - {type: HIST, io: output, format: hist, files: [hist.root]}
stages:
  - {name: sim, kind: noop, inputs: [EVNT], outputs: [HITS]}
  - {name: mon, kind: noop, inputs: [HITS], outputs: [HIST]}
`

func TestValidatePrintsPlan(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "job.yaml", planJob, 0o644)
	out, err := execute(t, "validate", "-c", path)
	require.NoError(t, err)
	require.Contains(t, out, "plan is valid (3 datasets, 2 stages)")
	require.Contains(t, out, "Level 0 (1 stages): sim")
	require.Contains(t, out, "Level 1 (1 stages): mon")
}

func TestValidateRejectsCycle(t *testing.T) {
	t.Parallel()

	job := `version: "1.0"
name: loop
datasets:
  - {type: A, io: temporary, files: [a]}
  - {type: B, io: output, files: [b]}
stages:
  - {name: one, kind: noop, inputs: [A], outputs: [B]}
  - {name: two, kind: noop, inputs: [B], outputs: [A]}
`
	path := writeFile(t, t.TempDir(), "job.yaml", job, 0o644)
	_, err := execute(t, "validate", "-c", path)
	require.Error(t, err)
	require.ErrorContains(t, err, "dataset cycle detected")
	require.Equal(t, stagehanderrors.ExitCode("CONFIG_ERROR"), stagehanderrors.CodeFor(err))
}

func TestValidateUnknownStageSelection(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "job.yaml", planJob, 0o644)
	_, err := execute(t, "validate", "-c", path, "--stages", "reco")
	require.True(t, stagehanderrors.IsCategory(err, stagehanderrors.CategoryGraph))
}
