package components

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgressRatio(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		total     int
		completed int
		want      float64
	}{
		{"empty job", 0, 0, 0},
		{"half way", 4, 2, 0.5},
		{"complete", 3, 3, 1},
		{"clamped above", 2, 5, 1},
		{"clamped below", 2, -1, 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tc.want, NewProgress(tc.total).Ratio(tc.completed), 1e-9)
		})
	}
}

func TestProgressViewLabel(t *testing.T) {
	t.Parallel()

	require.Contains(t, NewProgress(10).View(5), "5/10")
	require.Contains(t, NewProgress(0).View(0), "0/0")
}

func TestSummaryView(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data SummaryData
		want []string
	}{
		{
			name: "running",
			data: SummaryData{Total: 3, Completed: 1},
			want: []string{"Stages: 1/3 completed"},
		},
		{
			name: "success",
			data: SummaryData{Total: 2, Completed: 2, Finished: true, ExitName: "OK", Report: "/w/jobReport.json"},
			want: []string{"Job finished successfully", "Report: /w/jobReport.json"},
		},
		{
			name: "failure",
			data: SummaryData{Total: 2, Completed: 1, Failed: 1, Finished: true, ExitCode: 13, ExitName: "VALIDATION", ExitMessage: "Non-zero return code"},
			want: []string{"Job failed: VALIDATION (exit 13)", "  Non-zero return code"},
		},
		{
			name: "failure before job end",
			data: SummaryData{Total: 2, Completed: 1, Failed: 1},
			want: []string{"1 stage(s) failed"},
		},
		{
			name: "cancelled",
			data: SummaryData{Total: 2, Cancelled: true, Finished: true, ExitName: "OK"},
			want: []string{"Run cancelled"},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			view := NewSummary(tc.data).View()
			for _, w := range tc.want {
				require.Contains(t, view, w)
			}
		})
	}
}
