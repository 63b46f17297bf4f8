package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
)

var errNoCheck = errors.New("rule has neither a predicate nor an expression")

// SampleEnv is an environment with every variable a session exposes,
// set to zero values. Catalog expressions are type-checked against it.
func SampleEnv() Env {
	return Env{
		"problem":     "",
		"solutions":   0,
		"attachments": 0,
		"history":     0,
		"step":        "",
	}
}

// ExprPredicate compiles an expr-lang boolean expression into a Predicate.
// Compilation happens per call against the live environment so that
// variable types always match what the session provides.
func ExprPredicate(source string) Predicate {
	return func(_ context.Context, env Env) (bool, error) {
		program, err := expr.Compile(source, expr.Env(map[string]any(env)), expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("compile %q: %w", source, err)
		}
		out, err := expr.Run(program, map[string]any(env))
		if err != nil {
			return false, fmt.Errorf("eval %q: %w", source, err)
		}
		ok, isBool := out.(bool)
		if !isBool {
			return false, fmt.Errorf("expression %q did not return bool (got %T)", source, out)
		}
		return ok, nil
	}
}

// Runner executes a step's validation rules.
type Runner struct {
	// Timeout bounds each predicate. Zero means wait indefinitely.
	Timeout time.Duration
}

// Run evaluates every rule in declaration order, one at a time, and returns
// the messages of all rules that did not hold. It never stops at the first
// failure. A predicate that errors, panics, or times out counts as failed.
// The result is never nil.
func (r Runner) Run(ctx context.Context, step Step, env Env) []string {
	msgs := []string{}
	for _, rule := range step.Rules {
		ok, err := r.check(ctx, rule, env)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: validation check failed: %v", rule.ID, err))
			continue
		}
		if !ok {
			msgs = append(msgs, rule.message())
		}
	}
	return msgs
}

func (r Runner) check(ctx context.Context, rule ValidationRule, env Env) (bool, error) {
	pred := rule.Predicate
	if pred == nil {
		if rule.Expr == "" {
			return false, errNoCheck
		}
		pred = ExprPredicate(rule.Expr)
	}
	if r.Timeout <= 0 {
		return callPredicate(ctx, pred, env)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := callPredicate(ctx, pred, env)
		done <- result{ok, err}
	}()

	select {
	case res := <-done:
		return res.ok, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, fmt.Errorf("timed out after %s", r.Timeout)
		}
		return false, ctx.Err()
	}
}

// callPredicate shields the caller from a panicking predicate.
func callPredicate(ctx context.Context, pred Predicate, env Env) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("panic: %v", p)
		}
	}()
	return pred(ctx, env)
}
