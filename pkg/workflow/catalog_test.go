package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := DefaultCatalog()
	if errs := c.Validate(); len(errs) > 0 {
		t.Fatalf("default catalog invalid: %v", errs)
	}
	if len(c.Steps) != 6 {
		t.Errorf("steps = %d, want 6", len(c.Steps))
	}
	last := c.Steps[len(c.Steps)-1]
	if !last.Optional {
		t.Errorf("%s should be optional", last.ID)
	}
	if c.Steps[1].Kind.Name != "analyze" {
		t.Errorf("kind = %q, want analyze", c.Steps[1].Kind.Name)
	}
}

func TestBuildInitialSteps(t *testing.T) {
	steps, err := BuildInitialSteps(abcCatalog(), "c")
	if err != nil {
		t.Fatal(err)
	}
	want := []Status{StatusCompleted, StatusCompleted, StatusActive, StatusPending, StatusPending}
	for i, s := range steps {
		if s.Status != want[i] {
			t.Errorf("%s = %s, want %s", s.ID, s.Status, want[i])
		}
	}
}

func TestBuildInitialSteps_DefaultsToFirst(t *testing.T) {
	steps, err := BuildInitialSteps(abcCatalog(), "")
	if err != nil {
		t.Fatal(err)
	}
	if steps[0].Status != StatusActive {
		t.Errorf("first = %s, want active", steps[0].Status)
	}
}

func TestBuildInitialSteps_DoesNotAliasCatalog(t *testing.T) {
	c := abcCatalog()
	steps, err := BuildInitialSteps(c, "b")
	if err != nil {
		t.Fatal(err)
	}
	steps[2].Requirements[0] = "mutated"
	if c.Steps[2].Requirements[0] != "a" {
		t.Error("catalog requirements were aliased")
	}
	if c.Steps[0].Status != "" {
		t.Errorf("catalog status mutated to %q", c.Steps[0].Status)
	}
}

func TestBuildInitialSteps_Errors(t *testing.T) {
	if _, err := BuildInitialSteps(abcCatalog(), "nope"); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("err = %v, want ErrUnknownStep", err)
	}

	c := &Catalog{Steps: []Step{
		{ID: "x", Title: "X", Requirements: []string{"y"}},
		{ID: "y", Title: "Y"},
	}}
	if _, err := BuildInitialSteps(c, "x"); err == nil {
		t.Error("expected error for requirement ordered after entry")
	}
}

const catalogYAML = `apiVersion: remedy/v0
name: network
steps:
  - id: upload
    title: Capture
    validation_rules:
      - id: described
        expr: len(problem) > 0
        error_message: describe it
  - id: ping
    title: Ping the host
    category: diagnosis
    requirements: [upload]
  - id: document
    title: Write it up
    optional: true
    requirements: [ping]
`

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(strings.NewReader(catalogYAML))
	if err != nil {
		t.Fatal(err)
	}
	if errs := c.Validate(); len(errs) > 0 {
		t.Fatalf("Validate: %v", errs)
	}
	if c.Steps[1].Kind != KindGeneric {
		t.Errorf("ping kind = %+v, want generic", c.Steps[1].Kind)
	}
	if c.Steps[0].Rules[0].ErrorMessage != "describe it" {
		t.Errorf("error message = %q", c.Steps[0].Rules[0].ErrorMessage)
	}
}

func TestLoadCatalog_UnknownField(t *testing.T) {
	_, err := LoadCatalog(strings.NewReader("apiVersion: remedy/v0\nname: x\nsteps: []\nbogus: 1\n"))
	if err == nil {
		t.Fatal("expected structural error for unknown field")
	}
}

func TestCatalogValidate_Problems(t *testing.T) {
	tests := []struct {
		name string
		c    Catalog
		want string
	}{
		{
			name: "unknown requirement",
			c:    Catalog{APIVersion: APIVersionCatalog, Steps: []Step{{ID: "a", Title: "A", Requirements: []string{"ghost"}}}},
			want: `unknown step "ghost"`,
		},
		{
			name: "duplicate id",
			c:    Catalog{APIVersion: APIVersionCatalog, Steps: []Step{{ID: "a", Title: "A"}, {ID: "a", Title: "A2"}}},
			want: "duplicate step id",
		},
		{
			name: "cycle",
			c: Catalog{APIVersion: APIVersionCatalog, Steps: []Step{
				{ID: "a", Title: "A", Requirements: []string{"b"}},
				{ID: "b", Title: "B", Requirements: []string{"a"}},
			}},
			want: "requirement cycle",
		},
		{
			name: "bad expression",
			c: Catalog{APIVersion: APIVersionCatalog, Steps: []Step{{ID: "a", Title: "A", Rules: []ValidationRule{
				{ID: "r", Expr: "nonsense +", ErrorMessage: "x"},
			}}}},
			want: "invalid expression",
		},
		{
			name: "wrong api version",
			c:    Catalog{APIVersion: "v9", Steps: []Step{{ID: "a", Title: "A"}}},
			want: "unrecognized apiVersion",
		},
		{
			name: "self requirement",
			c:    Catalog{APIVersion: APIVersionCatalog, Steps: []Step{{ID: "a", Title: "A", Requirements: []string{"a"}}}},
			want: "cannot require itself",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.c.Validate()
			found := false
			for _, e := range errs {
				if strings.Contains(e.Error(), tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %q", errs, tt.want)
			}
		})
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(catalogYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "network" {
		t.Errorf("name = %q", c.Name)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("apiVersion: remedy/v0\nname: x\nsteps:\n  - id: a\n    title: A\n    requirements: [z]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalogFile(bad); err == nil {
		t.Error("expected error for unknown requirement")
	}
}
