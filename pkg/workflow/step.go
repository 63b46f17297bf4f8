// Package workflow implements the remediation step catalog, the validation
// runner, and the state machine that moves a troubleshooting session from
// one step to the next.
package workflow

import (
	"context"
	"slices"
)

// Status is the lifecycle state of a single step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// Closed reports whether the step has finished and can no longer be entered.
// Failed steps stay open so they can be retried.
func (s Status) Closed() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Env is the variable scope visible to validation predicates.
type Env map[string]any

// Predicate is a side-effect-free check. It may block; the runner awaits it.
type Predicate func(ctx context.Context, env Env) (bool, error)

// ValidationRule must hold before a step may be left.
// Rules loaded from catalog files carry an Expr; rules built in code may
// set Predicate directly, which takes precedence.
type ValidationRule struct {
	ID           string    `yaml:"id"                    json:"id"`
	Description  string    `yaml:"description,omitempty" json:"description,omitempty"`
	Expr         string    `yaml:"expr,omitempty"        json:"expr,omitempty"`
	ErrorMessage string    `yaml:"error_message"         json:"errorMessage"`
	Predicate    Predicate `yaml:"-"                     json:"-"`
}

// message is the text reported when the rule does not hold.
func (r ValidationRule) message() string {
	switch {
	case r.ErrorMessage != "":
		return r.ErrorMessage
	case r.Description != "":
		return r.Description
	default:
		return "rule " + r.ID + " failed"
	}
}

// Step is one unit of the remediation workflow.
type Step struct {
	ID           string           `yaml:"id"                         json:"id"     jsonschema:"required,minLength=1"`
	Title        string           `yaml:"title"                      json:"title"  jsonschema:"required"`
	Description  string           `yaml:"description,omitempty"      json:"description,omitempty"`
	Status       Status           `yaml:"status,omitempty"           json:"status" jsonschema:"required,enum=pending,enum=active,enum=completed,enum=skipped,enum=failed"`
	Optional     bool             `yaml:"optional,omitempty"         json:"optional,omitempty"`
	Category     string           `yaml:"category,omitempty"         json:"category,omitempty"`
	Requirements []string         `yaml:"requirements,omitempty"     json:"requirements,omitempty"`
	Rules        []ValidationRule `yaml:"validation_rules,omitempty" json:"validationRules,omitempty"`

	// Kind is resolved from ID when the step enters a catalog or machine.
	Kind Kind `yaml:"-" json:"-"`
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	s.Requirements = slices.Clone(s.Requirements)
	s.Rules = slices.Clone(s.Rules)
	return s
}

// CloneSteps deep-copies a step list.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}
