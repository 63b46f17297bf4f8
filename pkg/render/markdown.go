package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/ormasoftchile/remedy/pkg/analytics"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// Markdown renders md for the terminal at the given wrap width (0 means no
// wrapping). Rendering failures fall back to the raw text.
func Markdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// StepMarkdown describes a step: what to do, what it needs, and why it is
// currently blocked.
func StepMarkdown(s workflow.Step, validationErrors []string) string {
	var b strings.Builder
	k := kindOf(s)
	fmt.Fprintf(&b, "## %s %s\n\n", k.Icon, labelOf(s))
	fmt.Fprintf(&b, "*%s* · status **%s**", k.Verb, s.Status)
	if s.Category != "" {
		fmt.Fprintf(&b, " · %s", s.Category)
	}
	if s.Optional {
		b.WriteString(" · optional")
	}
	b.WriteString("\n\n")
	if s.Description != "" {
		b.WriteString(s.Description + "\n\n")
	}
	if len(s.Requirements) > 0 {
		b.WriteString("**Requires:** " + strings.Join(s.Requirements, ", ") + "\n\n")
	}
	if len(s.Rules) > 0 {
		b.WriteString("**Checks before leaving this step:**\n\n")
		for _, r := range s.Rules {
			desc := r.Description
			if desc == "" {
				desc = r.ID
			}
			fmt.Fprintf(&b, "- %s\n", desc)
		}
		b.WriteString("\n")
	}
	if len(validationErrors) > 0 {
		b.WriteString("**Blocked:**\n\n")
		for _, e := range validationErrors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}

// ReportMarkdown formats an analytics report.
func ReportMarkdown(r analytics.Report) string {
	var b strings.Builder
	a := r.Analytics
	b.WriteString("# Workflow report\n\n")
	fmt.Fprintf(&b, "- Progress: **%d%%** (%d of %d steps completed)\n", a.ProgressPercent, a.CompletedSteps, a.TotalSteps)
	fmt.Fprintf(&b, "- Skipped: %d, failed: %d\n", a.SkippedSteps, a.FailedSteps)
	fmt.Fprintf(&b, "- Average step time: %s\n", analytics.FormatDuration(secondsToDuration(a.AverageStepTime)))
	fmt.Fprintf(&b, "- Estimated time remaining: %s\n", a.EstimatedTimeRemaining)
	if len(a.BottleneckSteps) > 0 {
		fmt.Fprintf(&b, "- Bottlenecks: %s\n", strings.Join(a.BottleneckSteps, ", "))
	}

	if len(r.Categories) > 0 {
		b.WriteString("\n## Categories\n\n| Category | Completed | Total |\n|---|---|---|\n")
		for _, c := range r.Categories {
			fmt.Fprintf(&b, "| %s | %d | %d |\n", c.Category, c.Completed, c.Total)
		}
	}

	if len(r.Metrics.DailyTrend) > 0 {
		b.WriteString("\n## Daily trend\n\n| Day | Completions | Avg time |\n|---|---|---|\n")
		for _, d := range r.Metrics.DailyTrend {
			fmt.Fprintf(&b, "| %s | %d | %s |\n", d.Day, d.Completions, analytics.FormatDuration(secondsToDuration(d.AverageTime)))
		}
	}

	if r.Insights != nil {
		b.WriteString("\n## Insights\n\n")
		fmt.Fprintf(&b, "- Collaborators: %d\n", r.Insights.Collaborators)
		fmt.Fprintf(&b, "- Solution success rate: %.0f%%\n", r.Insights.SolutionSuccessRate*100)
	}
	return b.String()
}
