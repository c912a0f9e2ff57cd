// Package tui renders the progress of a running job with bubbletea.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/stagehand/internal/model"
)

// StageMsg carries a stage result as it changes.
type StageMsg struct {
	Result model.StageResult
}

// JobDoneMsg reports that the transform returned.
type JobDoneMsg struct {
	ExitCode int
	ExitName string
	Message  string
	Report   string
}

type tickMsg struct{}

// Model contains the bubbletea state of the run display.
type Model struct {
	title     string
	stages    map[string]model.StageResult
	order     []string
	total     int
	completed int
	finished  bool
	cancelled bool
	job       *JobDoneMsg
}

// NewModel tracks the named executors, all pending.
func NewModel(title string, stages []string) Model {
	m := Model{
		title:  title,
		stages: make(map[string]model.StageResult),
	}
	for _, name := range stages {
		m.ensureStage(name)
	}
	return m
}

// Init starts the bubbletea program.
func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// TotalStages returns the number of tracked executors.
func (m Model) TotalStages() int {
	return m.total
}

// CompletedStages returns the number of executors in a terminal status.
func (m Model) CompletedStages() int {
	return m.completed
}

// IsFinished reports whether the job has ended.
func (m Model) IsFinished() bool {
	return m.finished
}

// Cancelled reports whether the user interrupted the display.
func (m Model) Cancelled() bool {
	return m.cancelled
}

// Stage returns the latest result of one executor.
func (m Model) Stage(name string) (model.StageResult, bool) {
	r, ok := m.stages[name]
	return r, ok
}

func (m *Model) ensureStage(name string) {
	if name == "" {
		return
	}
	if _, exists := m.stages[name]; !exists {
		m.stages[name] = model.StageResult{Stage: name, Status: model.StatusPending}
		m.order = append(m.order, name)
		m.total++
	}
}
