package analytics

import (
	"slices"
	"time"

	"github.com/ormasoftchile/remedy/pkg/history"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// StepAverage is the mean duration of a step's recorded outcomes.
type StepAverage struct {
	StepID      string `json:"stepId"`
	StepTitle   string `json:"stepTitle"`
	Samples     int    `json:"samples"`
	AverageTime int64  `json:"averageTime"` // seconds
}

// StepOutcomes counts a step's recorded outcomes by status.
type StepOutcomes struct {
	StepID    string `json:"stepId"`
	StepTitle string `json:"stepTitle"`
	Completed int    `json:"completed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// DayTrend is the completion count and mean completion time for one UTC
// calendar day.
type DayTrend struct {
	Day         string `json:"day"` // YYYY-MM-DD
	Completions int    `json:"completions"`
	AverageTime int64  `json:"averageTime"` // seconds
}

// Metrics is the history-based view over a time range.
type Metrics struct {
	RangeDays          int            `json:"rangeDays"`
	Entries            int            `json:"entries"`
	PerStepAverageTime []StepAverage  `json:"perStepAverageTime"`
	PerStepOutcomes    []StepOutcomes `json:"perStepOutcomes"`
	DailyTrend         []DayTrend     `json:"dailyTrend"`
}

// ComputeMetrics groups the ledger entries recorded within rangeDays of now
// by step and by UTC day. rangeDays <= 0 keeps every entry. Per-step
// results follow the order of steps; ids found only in the ledger follow,
// sorted. Days are ascending.
func ComputeMetrics(entries []history.Entry, steps []workflow.Step, rangeDays int, now time.Time) Metrics {
	out := Metrics{
		RangeDays:          rangeDays,
		PerStepAverageTime: []StepAverage{},
		PerStepOutcomes:    []StepOutcomes{},
		DailyTrend:         []DayTrend{},
	}

	var cutoff time.Time
	if rangeDays > 0 {
		cutoff = now.Add(-time.Duration(rangeDays) * 24 * time.Hour)
	}

	titles := make(map[string]string, len(steps))
	var order []string
	for _, st := range steps {
		titles[st.ID] = st.Title
		order = append(order, st.ID)
	}

	type acc struct {
		title    string
		outcomes StepOutcomes
		total    time.Duration
		samples  int
	}
	perStep := map[string]*acc{}
	var extra []string

	type dayAcc struct {
		completions int
		total       time.Duration
	}
	days := map[string]*dayAcc{}

	for _, e := range entries {
		if rangeDays > 0 && (e.Timestamp.Before(cutoff) || e.Timestamp.After(now)) {
			continue
		}
		out.Entries++

		a, ok := perStep[e.StepID]
		if !ok {
			title := e.StepTitle
			if t, known := titles[e.StepID]; known {
				title = t
			} else {
				extra = append(extra, e.StepID)
			}
			a = &acc{title: title}
			perStep[e.StepID] = a
		}
		switch e.Status {
		case workflow.StatusCompleted:
			a.outcomes.Completed++
		case workflow.StatusSkipped:
			a.outcomes.Skipped++
		case workflow.StatusFailed:
			a.outcomes.Failed++
		}
		if e.Status != workflow.StatusSkipped {
			a.total += e.Elapsed()
			a.samples++
		}

		if e.Status == workflow.StatusCompleted {
			key := e.Timestamp.UTC().Format(time.DateOnly)
			d, ok := days[key]
			if !ok {
				d = &dayAcc{}
				days[key] = d
			}
			d.completions++
			d.total += e.Elapsed()
		}
	}

	slices.Sort(extra)
	for _, id := range append(order, extra...) {
		a, ok := perStep[id]
		if !ok {
			continue
		}
		o := a.outcomes
		o.StepID, o.StepTitle = id, a.title
		out.PerStepOutcomes = append(out.PerStepOutcomes, o)
		avg := StepAverage{StepID: id, StepTitle: a.title, Samples: a.samples}
		if a.samples > 0 {
			avg.AverageTime = seconds(a.total / time.Duration(a.samples))
		}
		out.PerStepAverageTime = append(out.PerStepAverageTime, avg)
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		d := days[k]
		out.DailyTrend = append(out.DailyTrend, DayTrend{
			Day:         k,
			Completions: d.completions,
			AverageTime: seconds(d.total / time.Duration(d.completions)),
		})
	}
	return out
}

func seconds(d time.Duration) int64 {
	return int64(d.Round(time.Second) / time.Second)
}
