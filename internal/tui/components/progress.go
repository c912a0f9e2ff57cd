package components

import (
	"fmt"
	"math"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 40

// Progress renders how many executors have reached a terminal status.
type Progress struct {
	bar   progress.Model
	total int
}

// NewProgress creates a progress bar for total executors.
func NewProgress(total int) Progress {
	bar := progress.New(progress.WithGradient("#5A56E0", "#42D392"))
	bar.Width = barWidth
	return Progress{bar: bar, total: total}
}

// Ratio is the completed fraction, clamped to [0, 1].
func (p Progress) Ratio(completed int) float64 {
	if p.total <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, float64(completed)/float64(p.total)))
}

// View renders the bar with a completed/total label.
func (p Progress) View(completed int) string {
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d/%d", completed, p.total))
	return lipgloss.JoinHorizontal(lipgloss.Left, label, " ", p.bar.ViewAs(p.Ratio(completed)))
}
