// Package tui implements a full-screen terminal interface for a
// troubleshooting session: a step list, a detail panel for the selected
// step and a status line with progress and the live step timer.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/remedy/pkg/workflow"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var timerBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

// --- Step list ---

var (
	stepPending = lipgloss.NewStyle().
			Foreground(colorWhite)

	stepActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	stepCompleted = lipgloss.NewStyle().
			Foreground(colorGreen)

	stepFailed = lipgloss.NewStyle().
			Foreground(colorRed)

	stepSkipped = lipgloss.NewStyle().
			Faint(true)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)
)

func styleFor(s workflow.Status) lipgloss.Style {
	switch s {
	case workflow.StatusActive:
		return stepActive
	case workflow.StatusCompleted:
		return stepCompleted
	case workflow.StatusFailed:
		return stepFailed
	case workflow.StatusSkipped:
		return stepSkipped
	default:
		return stepPending
	}
}

// --- Panels ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			Padding(0, 1)
)

// --- Status line ---

var (
	messageStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// --- Key bar ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)
