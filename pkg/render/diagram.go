// Package render turns workflow state into terminal and document output:
// requirement diagrams, tables, progress bars and markdown.
package render

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// Format is a diagram output format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Diagram draws the steps and their requirement edges.
func Diagram(name string, steps []workflow.Step, format Format) (string, error) {
	switch format {
	case FormatMermaid:
		return mermaid(steps), nil
	case FormatASCII:
		return ascii(name, steps), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// StatusMark is the one-cell glyph for a status.
func StatusMark(s workflow.Status) string {
	switch s {
	case workflow.StatusActive:
		return "▸"
	case workflow.StatusCompleted:
		return "✓"
	case workflow.StatusSkipped:
		return "↷"
	case workflow.StatusFailed:
		return "✗"
	default:
		return "·"
	}
}

func mermaid(steps []workflow.Step) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if len(steps) == 0 {
		return b.String()
	}
	for _, s := range steps {
		label := kindOf(s).Icon + " " + labelOf(s)
		if s.Optional {
			label += " (optional)"
		}
		b.WriteString(fmt.Sprintf("    %s[%q]\n", safeID(s.ID), label))
	}
	for _, s := range steps {
		if len(s.Requirements) == 0 {
			b.WriteString("    START([Start]) --> " + safeID(s.ID) + "\n")
			continue
		}
		for _, req := range s.Requirements {
			b.WriteString(fmt.Sprintf("    %s --> %s\n", safeID(req), safeID(s.ID)))
		}
	}
	for _, s := range steps {
		if style := statusStyle(s.Status); style != "" {
			b.WriteString(fmt.Sprintf("    style %s %s\n", safeID(s.ID), style))
		}
	}
	return b.String()
}

func statusStyle(s workflow.Status) string {
	switch s {
	case workflow.StatusActive:
		return "fill:#1a3a4a,stroke:#0af"
	case workflow.StatusCompleted:
		return "fill:#0d6,stroke:#0a5,color:#fff"
	case workflow.StatusSkipped:
		return "fill:#777,stroke:#555,color:#fff"
	case workflow.StatusFailed:
		return "fill:#c33,stroke:#a11,color:#fff"
	default:
		return ""
	}
}

func ascii(name string, steps []workflow.Step) string {
	var b strings.Builder
	if name == "" {
		name = "Workflow"
	}
	if len(steps) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	const indent = 4
	boxWidth := boxWidthFor(steps, name)
	mid := boxWidth / 2
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", indent+1+mid)

	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + centerPad(name, boxWidth) + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", boxWidth-mid-1) + "╝\n")

	for _, s := range steps {
		b.WriteString(connPad + "│\n")
		top, body, req := boxLines(s)
		b.WriteString(pad + "┌" + strings.Repeat("─", boxWidth) + "┐\n")
		b.WriteString(pad + "│" + padRight(top, boxWidth) + "│\n")
		b.WriteString(pad + "│" + padRight(body, boxWidth) + "│\n")
		if req != "" {
			b.WriteString(pad + "│" + padRight(req, boxWidth) + "│\n")
		}
		b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", boxWidth-mid-1) + "┘\n")
	}
	return b.String()
}

// boxLines returns the title line, status line and optional requirement
// line of a step box.
func boxLines(s workflow.Step) (title, status, req string) {
	title = fmt.Sprintf(" %s %s ", kindOf(s).Icon, labelOf(s))
	status = fmt.Sprintf(" %s %s", StatusMark(s.Status), s.Status)
	if s.Optional {
		status += " (optional)"
	}
	status += " "
	if len(s.Requirements) > 0 {
		req = " ← " + strings.Join(s.Requirements, ", ") + " "
	}
	return title, status, req
}

func boxWidthFor(steps []workflow.Step, name string) int {
	w := 22
	if nw := runewidth.StringWidth(name) + 4; nw > w {
		w = nw
	}
	for _, s := range steps {
		a, b, c := boxLines(s)
		for _, l := range []string{a, b, c} {
			if lw := runewidth.StringWidth(l); lw > w {
				w = lw
			}
		}
	}
	return w
}

func kindOf(s workflow.Step) workflow.Kind {
	if s.Kind.Name != "" {
		return s.Kind
	}
	return workflow.ResolveKind(s.ID)
}

func labelOf(s workflow.Step) string {
	if s.Title != "" {
		return s.Title
	}
	return s.ID
}

// centerPad centers s within width by display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	left := (width - sw) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-sw-left)
}

// padRight pads s with spaces to width display cells.
func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func safeID(id string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return r.Replace(id)
}
