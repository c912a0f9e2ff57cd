package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/stagehand/internal/model"
)

// statusGlyph pairs the icon shown for a stage status with its colour.
type statusGlyph struct {
	icon  string
	style lipgloss.Style
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	panelStyle   = lipgloss.NewStyle().Bold(true).Underline(true).MarginTop(1)
	kindStyle    = lipgloss.NewStyle().Faint(true)
	summaryStyle = lipgloss.NewStyle().MarginTop(1).PaddingLeft(1)

	statusGlyphs = map[string]statusGlyph{
		model.StatusSuccess: {"✓", lipgloss.NewStyle().Foreground(lipgloss.Color("42"))},
		model.StatusRunning: {"▶", lipgloss.NewStyle().Foreground(lipgloss.Color("33"))},
		model.StatusFailed:  {"✗", lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)},
		model.StatusSkipped: {"-", lipgloss.NewStyle().Foreground(lipgloss.Color("244"))},
	}
	pendingGlyph = statusGlyph{"·", lipgloss.NewStyle().Foreground(lipgloss.Color("240"))}
)
