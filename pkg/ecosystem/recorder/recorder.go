// Package recorder wraps an outcome recorder so that secrets pasted into
// failure notes never reach the persisted history.
package recorder

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// Redacted replaces every secret value found in recorded text.
const Redacted = "<REDACTED>"

// Rule is a pattern whose matches are replaced in recorded text.
type Rule struct {
	Pattern string
	Replace string
}

// compiledRule is a pre-compiled redaction rule.
type compiledRule struct {
	re      *regexp.Regexp
	replace string
}

// Recorder delegates to an inner recorder after redacting outcome notes.
type Recorder struct {
	inner   workflow.Recorder
	secrets []string // env var names whose values should be redacted
	lookup  func(string) string
	rules   []compiledRule
}

// New creates a redacting wrapper around an existing recorder.
func New(inner workflow.Recorder) *Recorder {
	return &Recorder{inner: inner, lookup: os.Getenv}
}

// SetSecrets configures secret env var names whose values are redacted.
func (r *Recorder) SetSecrets(envVars []string) {
	r.secrets = envVars
}

// SetRules compiles pattern rules, applied after the env var secrets. An
// empty Replace means Redacted.
func (r *Recorder) SetRules(rules []Rule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("redaction pattern %q: %w", rule.Pattern, err)
		}
		repl := rule.Replace
		if repl == "" {
			repl = Redacted
		}
		compiled = append(compiled, compiledRule{re: re, replace: repl})
	}
	r.rules = compiled
	return nil
}

// Record redacts the outcome and hands it to the inner recorder. Nothing is
// retained here.
func (r *Recorder) Record(o workflow.Outcome) error {
	o.Notes = r.redact(o.Notes)
	return r.inner.Record(o)
}

// redact replaces secret values and rule matches.
func (r *Recorder) redact(s string) string {
	if s == "" {
		return s
	}
	for _, envVar := range r.secrets {
		if val := r.lookup(envVar); val != "" {
			s = strings.ReplaceAll(s, val, Redacted)
		}
	}
	for _, rule := range r.rules {
		s = rule.re.ReplaceAllString(s, rule.replace)
	}
	return s
}
