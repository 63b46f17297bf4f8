package workflow

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunner_CollectsAllFailures(t *testing.T) {
	step := Step{ID: "s", Rules: []ValidationRule{
		{ID: "one", Expr: "false", ErrorMessage: "first"},
		{ID: "two", Expr: "true", ErrorMessage: "never shown"},
		{ID: "three", Expr: "false", Description: "fallback to description"},
		{ID: "four"},
	}}
	msgs := Runner{}.Run(context.Background(), step, Env{})
	if len(msgs) != 3 {
		t.Fatalf("msgs = %v, want 3", msgs)
	}
	if msgs[0] != "first" || msgs[1] != "fallback to description" {
		t.Errorf("msgs = %v", msgs)
	}
	if !strings.Contains(msgs[2], "four: validation check failed") {
		t.Errorf("msgs[2] = %q", msgs[2])
	}
}

func TestRunner_EmptyIsNotNil(t *testing.T) {
	msgs := Runner{}.Run(context.Background(), Step{ID: "s"}, Env{})
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("msgs = %#v, want empty non-nil", msgs)
	}
}

func TestRunner_Timeout(t *testing.T) {
	step := Step{ID: "s", Rules: []ValidationRule{{
		ID: "hang",
		Predicate: func(ctx context.Context, _ Env) (bool, error) {
			<-ctx.Done()
			return true, nil
		},
	}}}
	msgs := Runner{Timeout: 10 * time.Millisecond}.Run(context.Background(), step, Env{})
	if len(msgs) != 1 || !strings.Contains(msgs[0], "timed out") {
		t.Errorf("msgs = %v, want a timeout failure", msgs)
	}
}

func TestExprPredicate(t *testing.T) {
	tests := []struct {
		expr string
		env  Env
		want bool
		err  bool
	}{
		{`len(trim(problem)) > 0`, Env{"problem": "  disk full "}, true, false},
		{`len(trim(problem)) > 0`, Env{"problem": "   "}, false, false},
		{`solutions >= 2`, Env{"solutions": 1}, false, false},
		{`problem`, Env{"problem": "x"}, false, true},
		{`missing > 1`, Env{}, false, true},
	}
	for _, tt := range tests {
		got, err := ExprPredicate(tt.expr)(context.Background(), tt.env)
		if (err != nil) != tt.err {
			t.Errorf("%s: err = %v, want err=%v", tt.expr, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %v, want %v", tt.expr, got, tt.want)
		}
	}
}
