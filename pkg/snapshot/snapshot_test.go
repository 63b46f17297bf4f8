package snapshot

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/remedy/pkg/analytics"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

var exportTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleSteps(t *testing.T) []workflow.Step {
	t.Helper()
	steps, err := workflow.BuildInitialSteps(workflow.DefaultCatalog(), "review")
	if err != nil {
		t.Fatal(err)
	}
	return steps
}

func TestExport_Metadata(t *testing.T) {
	steps := sampleSteps(t)
	snap := analytics.ComputeAnalytics(steps, nil)
	doc := Export(steps, snap, "", exportTime)

	if doc.Version != Version {
		t.Errorf("Version = %q", doc.Version)
	}
	if !doc.Timestamp.Equal(exportTime) {
		t.Errorf("Timestamp = %v", doc.Timestamp)
	}
	md := doc.Workflow.Metadata
	if md.TotalSteps != 6 || md.CompletedSteps != 2 || md.ExportedBy != DefaultExportedBy {
		t.Errorf("Metadata = %+v", md)
	}
	if doc.Workflow.Analytics == nil || doc.Workflow.Analytics.TotalSteps != 6 {
		t.Errorf("Analytics = %+v", doc.Workflow.Analytics)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	steps := sampleSteps(t)
	doc := Export(steps, analytics.ComputeAnalytics(steps, nil), "cli", exportTime)
	data, err := Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}

	res, err := Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Steps) != len(steps) {
		t.Fatalf("imported %d steps, want %d", len(res.Steps), len(steps))
	}
	for i := range steps {
		got, want := res.Steps[i], steps[i]
		if got.ID != want.ID || got.Title != want.Title || got.Status != want.Status {
			t.Errorf("step %d = %s/%s/%s, want %s/%s/%s", i, got.ID, got.Title, got.Status, want.ID, want.Title, want.Status)
		}
		if len(got.Requirements) != len(want.Requirements) || len(got.Rules) != len(want.Rules) {
			t.Errorf("step %s lost requirements or rules", got.ID)
		}
	}
	if res.Analytics == nil || res.Metadata.ExportedBy != "cli" {
		t.Errorf("Analytics = %v, Metadata = %+v", res.Analytics, res.Metadata)
	}
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{"workflow":`, ErrMalformedDocument},
		{"empty text", ``, ErrMalformedDocument},
		{"missing steps", `{"workflow":{}}`, ErrInvalidSchema},
		{"missing workflow", `{"version":"1.0"}`, ErrInvalidSchema},
		{"steps not a list", `{"workflow":{"steps":{}}}`, ErrInvalidSchema},
		{"step without title", `{"workflow":{"steps":[{"id":"a","status":"active"}]}}`, ErrInvalidSchema},
		{"step without status", `{"workflow":{"steps":[{"id":"a","title":"A"}]}}`, ErrInvalidSchema},
		{"step without id", `{"workflow":{"steps":[{"title":"A","status":"pending"}]}}`, ErrInvalidSchema},
		{"unknown status", `{"workflow":{"steps":[{"id":"a","title":"A","status":"done"}]}}`, ErrInvalidSchema},
		{"two active", `{"workflow":{"steps":[{"id":"a","title":"A","status":"active"},{"id":"b","title":"B","status":"active"}]}}`, ErrInvalidSchema},
		{"duplicate id", `{"workflow":{"steps":[{"id":"a","title":"A","status":"active"},{"id":"a","title":"B","status":"pending"}]}}`, ErrInvalidSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import([]byte(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Errorf("Import error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestImport_SchemaErrorNamesPath(t *testing.T) {
	_, err := Import([]byte(`{"workflow":{"steps":[{"id":"a","status":"active"}]}}`))
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SchemaError", err)
	}
	found := false
	for _, p := range se.Problems {
		if strings.Contains(p.Path, "steps/0") {
			found = true
		}
	}
	if !found {
		t.Errorf("problems = %+v, want one under workflow/steps/0", se.Problems)
	}
}

func TestImport_AnalyticsOptionalAndUnknownFieldsAllowed(t *testing.T) {
	raw := `{"version":"0.9","extra":true,"workflow":{"steps":[{"id":"a","title":"A","status":"active","note":"x"}]}}`
	res, err := Import([]byte(raw))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Analytics != nil {
		t.Errorf("Analytics = %+v, want nil", res.Analytics)
	}
	if len(res.Steps) != 1 || res.Steps[0].Status != workflow.StatusActive {
		t.Errorf("Steps = %+v", res.Steps)
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if m["$id"] == nil || m["title"] == nil {
		t.Errorf("schema missing $id/title: %v", m)
	}
	if !strings.Contains(string(data), `"steps"`) {
		t.Error("schema does not mention steps")
	}
}

func TestSaveLoadFile(t *testing.T) {
	steps := sampleSteps(t)
	path := filepath.Join(t.TempDir(), "snap.json")
	if err := SaveFile(Export(steps, analytics.ComputeAnalytics(steps, nil), "", exportTime), path); err != nil {
		t.Fatal(err)
	}
	res, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Steps) != len(steps) {
		t.Errorf("loaded %d steps", len(res.Steps))
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
