package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, nil
	case StageMsg:
		name := msg.Result.Stage
		if name == "" {
			return m, nil
		}
		m.ensureStage(name)
		wasDone := m.stages[name].Done()
		m.stages[name] = msg.Result
		if msg.Result.Done() && !wasDone {
			m.completed++
		}
		return m, nil
	case JobDoneMsg:
		done := msg
		m.job = &done
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			m.finished = true
			return m, tea.Quit
		}
	case tea.QuitMsg:
		m.finished = true
		return m, nil
	}

	return m, nil
}
