package render

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/remedy/pkg/analytics"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// ProgressBar draws percent as a bar width cells wide, followed by the
// number.
func ProgressBar(percent, width int) string {
	percent = max(0, min(100, percent))
	if width < 1 {
		width = 1
	}
	filled := percent * width / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf("] %3d%%", percent)
}

// StepLine is one row of a step list: status mark, kind icon, title.
// Titles are truncated to width display cells.
func StepLine(s workflow.Step, width int) string {
	title := labelOf(s)
	if s.Optional {
		title += " (optional)"
	}
	line := fmt.Sprintf("%s %s %s", StatusMark(s.Status), kindOf(s).Icon, title)
	if width > 0 && runewidth.StringWidth(line) > width {
		line = runewidth.Truncate(line, width, "…")
	}
	return line
}

// Summary is the one-line status shown under a step list.
func Summary(a analytics.Snapshot) string {
	return fmt.Sprintf("%s  %d/%d done · %d skipped · %d failed · ~%s left",
		ProgressBar(a.ProgressPercent, 20),
		a.CompletedSteps, a.TotalSteps, a.SkippedSteps, a.FailedSteps,
		a.EstimatedTimeRemaining)
}
