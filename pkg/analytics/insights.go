package analytics

import (
	"context"
	"time"

	"github.com/ormasoftchile/remedy/pkg/history"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// Insights are figures that come from outside the session: how many
// collaborators looked at the problem, how well the chosen solution tends
// to work. No backend ships with remedy; sources are pluggable.
type Insights struct {
	Collaborators        int     `json:"collaborators"`
	SolutionSuccessRate  float64 `json:"solutionSuccessRate"`  // 0..1
	MedianResolutionTime int64   `json:"medianResolutionTime"` // seconds
}

// InsightSource supplies Insights for a session.
type InsightSource interface {
	Insights(ctx context.Context, sessionID string) (Insights, error)
}

// StaticInsights returns the same Insights for every session.
type StaticInsights Insights

func (s StaticInsights) Insights(context.Context, string) (Insights, error) {
	return Insights(s), nil
}

// Report combines the instance analytics, the ledger metrics and external
// insights into one document.
type Report struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	Analytics   Snapshot        `json:"analytics"`
	Metrics     Metrics         `json:"metrics"`
	Categories  []CategoryCount `json:"categories"`
	Insights    *Insights       `json:"insights,omitempty"`
}

// ReportInput is everything BuildReport reads.
type ReportInput struct {
	SessionID string
	Steps     []workflow.Step
	Durations map[string]time.Duration
	Entries   []history.Entry
	RangeDays int
	Now       time.Time
	Source    InsightSource // optional
}

// BuildReport computes a Report. A failing insight source does not fail
// the report; its error is returned alongside so the caller can log it.
func BuildReport(ctx context.Context, in ReportInput) (Report, error) {
	r := Report{
		GeneratedAt: in.Now,
		Analytics:   ComputeAnalytics(in.Steps, in.Durations),
		Metrics:     ComputeMetrics(in.Entries, in.Steps, in.RangeDays, in.Now),
		Categories:  CategoryBreakdown(in.Steps),
	}
	if in.Source == nil {
		return r, nil
	}
	ins, err := in.Source.Insights(ctx, in.SessionID)
	if err != nil {
		return r, err
	}
	r.Insights = &ins
	return r, nil
}
