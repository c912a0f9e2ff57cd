package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

const validJob = `version: "1.0"
name: reco-job
settings:
  workdir: ./work
  log_level: debug
  core_env: ENGINE_CORE_NUMBER
arguments:
  maxEvents: 10
  preExec:
    all: ["setup()"]
    reco: ["reco()"]
datasets:
  - type: RDO
    io: input
    format: pool
    files: [rdo.pool]
    metadata:
      rdo.pool: {nentries: 20}
  - type: ESD
    io: temporary
    format: pool
    files: [esd.pool]
  - type: AOD
    io: output
    format: pool
    files: [aod.pool]
stages:
  - name: reco
    substep: r2e
    kind: engine
    inputs: [RDO]
    outputs: [ESD]
  - name: esd2aod
    substep: e2a
    kind: engine
    inputs: [ESD]
    outputs: [AOD]
    steps: 2
  - name: skipped
    kind: noop
    enabled: false
`

func writeJob(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig(writeJob(t, validJob))
	require.NoError(t, err)
	require.Equal(t, "reco-job", cfg.Name)
	require.Equal(t, "debug", cfg.Settings.LogLevel)
	require.Len(t, cfg.Datasets, 3)
	require.Len(t, cfg.Stages, 3)

	require.True(t, cfg.Stages[0].Enabled)
	require.Equal(t, "r2e", cfg.Stages[0].Alias())
	require.Equal(t, 2, cfg.Stages[1].Steps)
	require.False(t, cfg.Stages[2].Enabled)
	require.Equal(t, "skipped", cfg.Stages[2].Alias())
	require.Len(t, cfg.EnabledStages(), 2)

	rdo, ok := cfg.Dataset("RDO")
	require.True(t, ok)
	require.Equal(t, 20, rdo.Metadata["rdo.pool"]["nentries"])

	preExec, ok := cfg.Arguments["preExec"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, preExec, "reco")
}

func TestParseConfigErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		contents string
		assert   func(t *testing.T, err error)
	}{
		{
			name:     "invalid yaml returns parse error with line",
			contents: "version: \"1.0\"\nname: broken\nstages: [\n",
			assert: func(t *testing.T, err error) {
				var parseErr *stagehanderrors.ParseError
				require.ErrorAs(t, err, &parseErr)
				require.Positive(t, parseErr.Line)
			},
		},
		{
			name:     "wrong type returns parse error",
			contents: "version: [1, 0]\nname: broken\n",
			assert: func(t *testing.T, err error) {
				var parseErr *stagehanderrors.ParseError
				require.ErrorAs(t, err, &parseErr)
				require.Contains(t, parseErr.Message, "cannot unmarshal")
			},
		},
		{
			name:     "missing sections returns validation error",
			contents: "version: \"1.0\"\nname: empty\n",
			assert: func(t *testing.T, err error) {
				var validationErr *stagehanderrors.ValidationError
				require.ErrorAs(t, err, &validationErr)
				require.Equal(t, "config.datasets", validationErr.Field)
			},
		},
		{
			name: "unknown kind fails the stage_kind tag",
			contents: `version: "1.0"
name: bad-kind
datasets:
  - {type: RDO, io: input, files: [a]}
stages:
  - {name: reco, kind: teleport, inputs: [RDO]}
`,
			assert: func(t *testing.T, err error) {
				require.ErrorContains(t, err, "stage_kind")
			},
		},
		{
			name: "bad version fails the semver tag",
			contents: `version: beta
name: bad-version
datasets:
  - {type: RDO, io: input, files: [a]}
stages:
  - {name: reco, kind: noop}
`,
			assert: func(t *testing.T, err error) {
				require.ErrorContains(t, err, "semver")
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := ParseConfig(writeJob(t, tc.contents))
			require.Error(t, err)
			require.Nil(t, cfg)
			tc.assert(t, err)
		})
	}
}

func TestParseConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	var parseErr *stagehanderrors.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Zero(t, parseErr.Line)
}
