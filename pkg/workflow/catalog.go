package workflow

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/expr-lang/expr"
	"gopkg.in/yaml.v3"
)

// APIVersionCatalog is the only catalog document version understood.
const APIVersionCatalog = "remedy/v0"

// Catalog is the static definition of the remediation steps.
type Catalog struct {
	APIVersion  string `yaml:"apiVersion"            json:"apiVersion"`
	Name        string `yaml:"name"                  json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step `yaml:"steps"                 json:"steps"`
}

// CatalogError is a single problem found while checking a catalog.
type CatalogError struct {
	Path    string `json:"path"` // e.g. "steps[2].requirements[0]"
	Message string `json:"message"`
}

func (e *CatalogError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// DefaultCatalog is the built-in troubleshooting flow: capture the error,
// analyze it, review candidate solutions, apply one, verify it, and
// optionally write it up.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		APIVersion:  APIVersionCatalog,
		Name:        "troubleshooting",
		Description: "Guided remediation of a reported error",
		Steps: []Step{
			{
				ID:          "upload",
				Title:       "Capture the error",
				Description: "Upload a screenshot of the error or paste the message text.",
				Category:    "intake",
				Rules: []ValidationRule{{
					ID:           "problem-described",
					Description:  "A problem description or screenshot is present",
					Expr:         `len(trim(problem)) > 0 || attachments > 0`,
					ErrorMessage: "Describe the problem or upload a screenshot before continuing.",
				}},
			},
			{
				ID:           "analyze",
				Title:        "Analyze the problem",
				Description:  "Add context: what changed, when it started, and what was already tried.",
				Category:     "diagnosis",
				Requirements: []string{"upload"},
				Rules: []ValidationRule{{
					ID:           "enough-context",
					Description:  "The description carries enough detail to analyze",
					Expr:         `len(trim(problem)) >= 10`,
					ErrorMessage: "Add more detail to the problem description (at least 10 characters).",
				}},
			},
			{
				ID:           "review",
				Title:        "Review solutions",
				Description:  "Compare the suggested solutions and pick one to apply.",
				Category:     "diagnosis",
				Requirements: []string{"analyze"},
				Rules: []ValidationRule{{
					ID:           "has-solutions",
					Description:  "At least one solution is available",
					Expr:         `solutions > 0`,
					ErrorMessage: "No solutions are available yet; generate or add one first.",
				}},
			},
			{
				ID:           "execute",
				Title:        "Apply the fix",
				Description:  "Follow the steps of the chosen solution.",
				Category:     "remediation",
				Requirements: []string{"review"},
			},
			{
				ID:           "verify",
				Title:        "Verify the fix",
				Description:  "Confirm the error no longer reproduces.",
				Category:     "remediation",
				Requirements: []string{"execute"},
			},
			{
				ID:           "document",
				Title:        "Document the resolution",
				Description:  "Record what fixed the problem for next time.",
				Optional:     true,
				Category:     "follow-up",
				Requirements: []string{"verify"},
			},
		},
	}
	resolveKinds(c.Steps)
	return c
}

// LoadCatalogFile reads, decodes, and checks a catalog YAML file.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	c, err := LoadCatalog(f)
	if err != nil {
		return nil, err
	}
	if errs := c.Validate(); len(errs) > 0 {
		return nil, joinCatalogErrors(errs)
	}
	return c, nil
}

// LoadCatalog structurally decodes a catalog. Unknown fields are rejected.
// Call Validate for the semantic checks.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	resolveKinds(c.Steps)
	return &c, nil
}

// Validate checks ids, requirement edges, and rule expressions.
func (c *Catalog) Validate() []*CatalogError {
	var errs []*CatalogError
	add := func(path, format string, args ...any) {
		errs = append(errs, &CatalogError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if c.APIVersion != APIVersionCatalog {
		add("apiVersion", "unrecognized apiVersion %q, expected %q", c.APIVersion, APIVersionCatalog)
	}
	if len(c.Steps) == 0 {
		add("steps", "at least one step is required")
	}

	ids := make(map[string]int, len(c.Steps))
	for i, s := range c.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		switch {
		case s.ID == "":
			add(path+".id", "step id is required")
		case ids[s.ID] > 0:
			add(path+".id", "duplicate step id %q", s.ID)
		default:
			ids[s.ID] = i + 1
		}
		if s.Title == "" {
			add(path+".title", "step title is required")
		}
		if s.Status != "" && s.Status != StatusPending {
			add(path+".status", "catalog steps must not declare a status other than pending (got %q)", s.Status)
		}
	}

	sample := SampleEnv()
	for i, s := range c.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		for j, req := range s.Requirements {
			rpath := fmt.Sprintf("%s.requirements[%d]", path, j)
			switch {
			case req == s.ID:
				add(rpath, "step %q cannot require itself", s.ID)
			case ids[req] == 0:
				add(rpath, "unknown step %q", req)
			}
		}
		ruleIDs := make(map[string]bool, len(s.Rules))
		for j, rule := range s.Rules {
			rpath := fmt.Sprintf("%s.validation_rules[%d]", path, j)
			if rule.ID == "" {
				add(rpath+".id", "rule id is required")
			} else if ruleIDs[rule.ID] {
				add(rpath+".id", "duplicate rule id %q", rule.ID)
			}
			ruleIDs[rule.ID] = true
			if strings.TrimSpace(rule.Expr) == "" {
				add(rpath+".expr", "rule expression is required")
				continue
			}
			if _, err := expr.Compile(rule.Expr, expr.Env(sample), expr.AsBool()); err != nil {
				add(rpath+".expr", "invalid expression: %v", err)
			}
		}
	}

	if cycle := findCycle(c.Steps); len(cycle) > 0 {
		add("steps", "requirement cycle: %s", strings.Join(cycle, " -> "))
	}
	return errs
}

// findCycle returns one requirement cycle, or nil.
func findCycle(steps []Step) []string {
	reqs := make(map[string][]string, len(steps))
	for _, s := range steps {
		reqs[s.ID] = s.Requirements
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(steps))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case visiting:
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
				}
			}
			cycle = append(append([]string{}, stack[start:]...), id)
			return true
		case done:
			return false
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, r := range reqs[id] {
			if _, known := reqs[r]; known && r != id && visit(r) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, s := range steps {
		if state[s.ID] == unvisited && visit(s.ID) {
			return cycle
		}
	}
	return nil
}

func joinCatalogErrors(errs []*CatalogError) error {
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return fmt.Errorf("invalid catalog: %w", errors.Join(joined...))
}

// BuildInitialSteps seeds a session from the catalog: every step ordered
// before entryStepID is completed, the entry step is active, and every step
// after it is pending. An empty entryStepID starts at the first step.
//
// Seeding is a convenience only; the state machine still enforces
// requirements on every transition.
func BuildInitialSteps(c *Catalog, entryStepID string) ([]Step, error) {
	if c == nil || len(c.Steps) == 0 {
		return nil, errors.New("catalog has no steps")
	}
	if entryStepID == "" {
		entryStepID = c.Steps[0].ID
	}

	entry := -1
	for i, s := range c.Steps {
		if s.ID == entryStepID {
			entry = i
			break
		}
	}
	if entry < 0 {
		return nil, fmt.Errorf("%w: entry step %q", ErrUnknownStep, entryStepID)
	}

	before := make(map[string]bool, entry)
	for _, s := range c.Steps[:entry] {
		before[s.ID] = true
	}
	for _, req := range c.Steps[entry].Requirements {
		if !before[req] {
			return nil, fmt.Errorf("entry step %q requires %q, which is not ordered before it", entryStepID, req)
		}
	}

	steps := CloneSteps(c.Steps)
	for i := range steps {
		switch {
		case i < entry:
			steps[i].Status = StatusCompleted
		case i == entry:
			steps[i].Status = StatusActive
		default:
			steps[i].Status = StatusPending
		}
	}
	resolveKinds(steps)
	return steps, nil
}
