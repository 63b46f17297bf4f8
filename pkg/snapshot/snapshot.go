// Package snapshot exports and imports versioned workflow documents.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ormasoftchile/remedy/pkg/analytics"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// Version is written into every exported document.
const Version = "1.0"

// DefaultExportedBy tags documents whose caller gave no source.
const DefaultExportedBy = "remedy"

var (
	// ErrMalformedDocument means the text is not parseable JSON.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrInvalidSchema means the text parsed but is not a workflow document.
	ErrInvalidSchema = errors.New("invalid document schema")
)

// Document is the export/import unit.
type Document struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Workflow  Workflow  `json:"workflow" jsonschema:"required"`
}

// Workflow is the body of a Document.
type Workflow struct {
	Steps     []workflow.Step     `json:"steps"               jsonschema:"required"`
	Analytics *analytics.Snapshot `json:"analytics,omitempty"`
	Metadata  Metadata            `json:"metadata"`
}

// Metadata describes the exported workflow.
type Metadata struct {
	TotalSteps     int    `json:"totalSteps"`
	CompletedSteps int    `json:"completedSteps"`
	ExportedBy     string `json:"exportedBy"`
}

// Problem is one reason a document was rejected.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// SchemaError lists everything wrong with a parseable document.
type SchemaError struct {
	Problems []Problem
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%v: %s", ErrInvalidSchema, strings.Join(parts, "; "))
}

func (e *SchemaError) Unwrap() error { return ErrInvalidSchema }

// Export wraps steps and their analytics into a Document stamped at now.
func Export(steps []workflow.Step, snap analytics.Snapshot, exportedBy string, now time.Time) *Document {
	if exportedBy == "" {
		exportedBy = DefaultExportedBy
	}
	completed := 0
	for _, s := range steps {
		if s.Status == workflow.StatusCompleted {
			completed++
		}
	}
	return &Document{
		Version:   Version,
		Timestamp: now.UTC(),
		Workflow: Workflow{
			Steps:     workflow.CloneSteps(steps),
			Analytics: &snap,
			Metadata: Metadata{
				TotalSteps:     len(steps),
				CompletedSteps: completed,
				ExportedBy:     exportedBy,
			},
		},
	}
}

// Marshal renders doc as indented JSON.
func Marshal(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Result is a successfully imported document. Steps replace the current
// workflow wholesale; Analytics is only a hint and may be nil.
type Result struct {
	Version   string
	Timestamp time.Time
	Steps     []workflow.Step
	Analytics *analytics.Snapshot
	Metadata  Metadata
}

// Import parses raw as a Document. It fails with ErrMalformedDocument when
// raw is not JSON and with ErrInvalidSchema (as a *SchemaError) when the
// document lacks workflow.steps, a step lacks id, title or status, or the
// steps could not form a workflow.
func Import(raw []byte) (*Result, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if problems := validateAgainstSchema(generic); len(problems) > 0 {
		return nil, &SchemaError{Problems: problems}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &SchemaError{Problems: []Problem{{Message: err.Error()}}}
	}
	if problems := checkSteps(doc.Workflow.Steps); len(problems) > 0 {
		return nil, &SchemaError{Problems: problems}
	}
	return &Result{
		Version:   doc.Version,
		Timestamp: doc.Timestamp,
		Steps:     doc.Workflow.Steps,
		Analytics: doc.Workflow.Analytics,
		Metadata:  doc.Workflow.Metadata,
	}, nil
}

// checkSteps catches what a per-step schema cannot: duplicate ids and more
// than one active step.
func checkSteps(steps []workflow.Step) []Problem {
	var problems []Problem
	seen := make(map[string]bool, len(steps))
	active := ""
	for i, s := range steps {
		path := fmt.Sprintf("workflow/steps/%d", i)
		if seen[s.ID] {
			problems = append(problems, Problem{Path: path + "/id", Message: fmt.Sprintf("duplicate step id %q", s.ID)})
		}
		seen[s.ID] = true
		if s.Status == workflow.StatusActive {
			if active != "" {
				problems = append(problems, Problem{Path: path + "/status", Message: fmt.Sprintf("step %q is active but %q already is", s.ID, active)})
			} else {
				active = s.ID
			}
		}
	}
	return problems
}

// SaveFile writes doc to path.
func SaveFile(doc *Document, path string) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadFile reads and imports the document at path.
func LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Import(data)
}
