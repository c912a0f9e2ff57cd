package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStageResultCreation(t *testing.T) {
	t.Parallel()

	now := time.Now()
	err := errors.New("boom")
	result := StageResult{
		Stage:     "reco",
		Kind:      "engine",
		Status:    StatusFailed,
		RC:        65,
		Error:     err,
		Duration:  time.Second,
		Timestamp: now,
	}

	require.Equal(t, "reco", result.Stage)
	require.Equal(t, 65, result.RC)
	require.Equal(t, err, result.Error)
	require.True(t, result.Done())
}

func TestStageResultDone(t *testing.T) {
	t.Parallel()

	require.False(t, StageResult{Status: StatusPending}.Done())
	require.False(t, StageResult{Status: StatusRunning}.Done())
	require.True(t, StageResult{Status: StatusSkipped}.Done())
	require.True(t, StageResult{Status: StatusSuccess}.Done())
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize([]StageResult{
		{Status: StatusSuccess},
		{Status: StatusSuccess},
		{Status: StatusFailed},
		{Status: StatusSkipped},
		{Status: StatusPending},
	})
	require.Equal(t, Summary{Total: 5, Success: 2, Failed: 1, Skipped: 1}, s)
}
