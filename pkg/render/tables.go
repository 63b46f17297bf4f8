package render

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/ormasoftchile/remedy/pkg/analytics"
	"github.com/ormasoftchile/remedy/pkg/bookmarks"
	"github.com/ormasoftchile/remedy/pkg/history"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

// Steps writes the step list with each step's accumulated time.
func Steps(w io.Writer, steps []workflow.Step, durations map[string]time.Duration) {
	t := newTable(w, "", "Step", "Title", "Status", "Requires", "Time")
	for _, s := range steps {
		title := s.Title
		if s.Optional {
			title += " (optional)"
		}
		req := "-"
		if len(s.Requirements) > 0 {
			req = fmt.Sprint(s.Requirements)
		}
		t.Append([]string{
			StatusMark(s.Status),
			s.ID,
			title,
			string(s.Status),
			req,
			durationCell(durations[s.ID]),
		})
	}
	t.Render()
}

// History writes ledger entries in the order given.
func History(w io.Writer, entries []history.Entry) {
	t := newTable(w, "When", "Step", "Status", "Duration", "Notes")
	for _, e := range entries {
		t.Append([]string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.StepTitle,
			string(e.Status),
			durationCell(e.Elapsed()),
			e.Notes,
		})
	}
	t.Render()
}

// Analytics writes an analytics snapshot as a two-column table.
func Analytics(w io.Writer, s analytics.Snapshot) {
	t := newTable(w, "Metric", "Value")
	bottlenecks := "none"
	if len(s.BottleneckSteps) > 0 {
		bottlenecks = fmt.Sprint(s.BottleneckSteps)
	}
	t.AppendBulk([][]string{
		{"Progress", strconv.Itoa(s.ProgressPercent) + "%"},
		{"Steps", strconv.Itoa(s.TotalSteps)},
		{"Completed", strconv.Itoa(s.CompletedSteps)},
		{"Skipped", strconv.Itoa(s.SkippedSteps)},
		{"Failed", strconv.Itoa(s.FailedSteps)},
		{"Average step time", durationCell(secondsToDuration(s.AverageStepTime))},
		{"Estimated remaining", s.EstimatedTimeRemaining},
		{"Bottlenecks", bottlenecks},
	})
	t.Render()
}

// Metrics writes the per-step and daily tables of m.
func Metrics(w io.Writer, m analytics.Metrics) {
	steps := newTable(w, "Step", "Avg time", "Samples", "Completed", "Skipped", "Failed")
	for i, avg := range m.PerStepAverageTime {
		o := m.PerStepOutcomes[i]
		steps.Append([]string{
			avg.StepTitle,
			durationCell(secondsToDuration(avg.AverageTime)),
			strconv.Itoa(avg.Samples),
			strconv.Itoa(o.Completed),
			strconv.Itoa(o.Skipped),
			strconv.Itoa(o.Failed),
		})
	}
	steps.Render()

	days := newTable(w, "Day", "Completions", "Avg time")
	for _, d := range m.DailyTrend {
		days.Append([]string{
			d.Day,
			strconv.Itoa(d.Completions),
			durationCell(secondsToDuration(d.AverageTime)),
		})
	}
	days.Render()
}

// Bookmarks writes saved solutions.
func Bookmarks(w io.Writer, bms []bookmarks.Bookmark) {
	t := newTable(w, "ID", "Title", "Saved")
	for _, b := range bms {
		t.Append([]string{b.ID, b.Title, b.CreatedAt.Format(time.DateTime)})
	}
	t.Render()
}

func durationCell(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return analytics.FormatDuration(d)
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}
