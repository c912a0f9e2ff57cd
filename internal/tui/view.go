package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/stagehand/internal/model"
	"github.com/alexisbeaulieu97/stagehand/internal/tui/components"
)

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	sections = append(sections, headerStyle.Render(fmt.Sprintf("stagehand • %s", m.heading())))

	progress := components.NewProgress(m.total).View(m.completed)
	sections = append(sections, panelStyle.Render("Progress"), progress)

	if len(m.order) > 0 {
		sections = append(sections, panelStyle.Render("Stages"), m.renderStages())
	}

	data := components.SummaryData{
		Total:     m.total,
		Completed: m.completed,
		Finished:  m.finished,
		Cancelled: m.cancelled,
	}
	for _, name := range m.order {
		if m.stages[name].Status == model.StatusFailed {
			data.Failed++
		}
	}
	if m.job != nil {
		data.ExitCode = m.job.ExitCode
		data.ExitName = m.job.ExitName
		data.ExitMessage = m.job.Message
		data.Report = m.job.Report
	}
	if summary := components.NewSummary(data).View(); strings.TrimSpace(summary) != "" {
		sections = append(sections, panelStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStages() string {
	lines := make([]string, 0, len(m.order))
	for _, name := range m.order {
		res := m.stages[name]
		line := fmt.Sprintf(" %s %s", StatusIcon(res.Status), name)
		if res.Kind != "" {
			line += " " + kindStyle.Render("["+res.Kind+"]")
		}
		if msg := strings.TrimSpace(res.Message); msg != "" {
			line = fmt.Sprintf("%s: %s", line, msg)
		}
		if res.Duration > 0 {
			line = fmt.Sprintf("%s (%s)", line, res.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) heading() string {
	if strings.TrimSpace(m.title) != "" {
		return m.title
	}
	return "job"
}

// StatusIcon returns the glyph representing a stage status.
func StatusIcon(status string) string {
	g, ok := statusGlyphs[status]
	if !ok {
		g = pendingGlyph
	}
	return g.style.Render(g.icon)
}
