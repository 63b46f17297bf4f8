// Package analytics derives progress, timing and trend figures from a
// workflow's steps and its history ledger. Everything here is pure: the
// same inputs always give the same outputs.
package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// BottleneckFactor is how far above the mean a step's duration must be,
// strictly, to be reported as a bottleneck.
const BottleneckFactor = 1.5

// Snapshot is the derived state of one workflow instance.
type Snapshot struct {
	TotalSteps             int      `json:"totalSteps"`
	CompletedSteps         int      `json:"completedSteps"`
	SkippedSteps           int      `json:"skippedSteps"`
	FailedSteps            int      `json:"failedSteps"`
	ProgressPercent        int      `json:"progressPercent"`
	AverageStepTime        int64    `json:"averageStepTime"` // seconds
	EstimatedTimeRemaining string   `json:"estimatedTimeRemaining"`
	BottleneckSteps        []string `json:"bottleneckSteps"`
}

// ComputeAnalytics summarizes steps and the per-step durations recorded by
// the state machine. Steps without a recorded duration, or with a zero one,
// are not measured.
func ComputeAnalytics(steps []workflow.Step, durations map[string]time.Duration) Snapshot {
	s := Snapshot{TotalSteps: len(steps), BottleneckSteps: []string{}}

	denominator := 0
	remaining := 0
	for _, st := range steps {
		switch st.Status {
		case workflow.StatusCompleted:
			s.CompletedSteps++
		case workflow.StatusSkipped:
			s.SkippedSteps++
		case workflow.StatusFailed:
			s.FailedSteps++
		}
		if !st.Optional || st.Status == workflow.StatusCompleted {
			denominator++
		}
		if !st.Optional && !st.Status.Closed() {
			remaining++
		}
	}
	if denominator > 0 {
		s.ProgressPercent = int(math.Round(float64(s.CompletedSteps) / float64(denominator) * 100))
	}

	type measured struct {
		title string
		d     time.Duration
	}
	var ms []measured
	var total time.Duration
	for _, st := range steps {
		d := durations[st.ID]
		if d <= 0 {
			continue
		}
		ms = append(ms, measured{title: st.Title, d: d})
		total += d
	}
	if len(ms) == 0 {
		s.EstimatedTimeRemaining = FormatDuration(0)
		return s
	}

	mean := float64(total) / float64(len(ms))
	s.AverageStepTime = int64(math.Round(mean / float64(time.Second)))
	s.EstimatedTimeRemaining = FormatDuration(time.Duration(s.AverageStepTime*int64(remaining)) * time.Second)
	if s.AverageStepTime == 0 {
		s.EstimatedTimeRemaining = FormatDuration(0)
	}

	if len(ms) >= 2 {
		for _, m := range ms {
			if float64(m.d) > BottleneckFactor*mean {
				s.BottleneckSteps = append(s.BottleneckSteps, m.title)
			}
		}
	}
	return s
}

// FormatDuration renders d for display, rounding to whole seconds. A zero
// duration renders as "unknown" since it means nothing was measured.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}

// CategoryCount is the step tally for one category.
type CategoryCount struct {
	Category  string `json:"category"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

// CategoryBreakdown groups steps by category in first-seen order. Steps
// with no category are grouped under "general".
func CategoryBreakdown(steps []workflow.Step) []CategoryCount {
	var out []CategoryCount
	pos := map[string]int{}
	for _, st := range steps {
		cat := st.Category
		if cat == "" {
			cat = "general"
		}
		i, ok := pos[cat]
		if !ok {
			i = len(out)
			pos[cat] = i
			out = append(out, CategoryCount{Category: cat})
		}
		out[i].Total++
		if st.Status == workflow.StatusCompleted {
			out[i].Completed++
		}
	}
	return out
}
