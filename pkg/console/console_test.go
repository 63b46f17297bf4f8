package console

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/remedy/pkg/kv"
	"github.com/ormasoftchile/remedy/pkg/session"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

func newConsole(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	sess, err := session.New(kv.NewMemory(), session.Options{Clock: func() time.Time { return start }})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	c := New(sess)
	c.SetOutput(&buf)
	return c, &buf
}

func run(t *testing.T, c *Console, buf *bytes.Buffer, line string) string {
	t.Helper()
	buf.Reset()
	c.Exec(context.Background(), line)
	return buf.String()
}

func TestConsoleHelp(t *testing.T) {
	c, buf := newConsole(t)
	out := run(t, c, buf, "help")
	for _, cmd := range []string{"status", "next", "goto", "skip", "fail", "validate", "show", "history", "analytics", "metrics", "export", "import", "bookmark", "quit"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help output missing command %q", cmd)
		}
	}
}

func TestConsoleNextReportsValidation(t *testing.T) {
	c, buf := newConsole(t)
	out := run(t, c, buf, "next")
	if !strings.Contains(out, "upload is not done yet") || !strings.Contains(out, "Describe the problem") {
		t.Errorf("next without problem:\n%s", out)
	}

	run(t, c, buf, "problem OOMKilled in the worker pods")
	out = run(t, c, buf, "next")
	if !strings.Contains(out, "upload completed") || !strings.Contains(out, "Analyze the problem") {
		t.Errorf("next output:\n%s", out)
	}
	if got := c.sess.Machine.CurrentStepID(); got != "analyze" {
		t.Errorf("current = %q, want analyze", got)
	}
}

func TestConsoleGotoReportsRequirements(t *testing.T) {
	c, buf := newConsole(t)
	out := run(t, c, buf, "goto verify force")
	if !strings.Contains(out, "Cannot start verify yet") || !strings.Contains(out, "Apply the fix") {
		t.Errorf("goto verify:\n%s", out)
	}
}

func TestConsoleSkipAndFail(t *testing.T) {
	c, buf := newConsole(t)
	out := run(t, c, buf, "skip analyze")
	if !strings.Contains(out, "Error") {
		t.Errorf("skip of required step should fail:\n%s", out)
	}
	out = run(t, c, buf, "skip document")
	if !strings.Contains(out, "document skipped") {
		t.Errorf("skip document:\n%s", out)
	}
	out = run(t, c, buf, "fail upload screenshot unreadable")
	if !strings.Contains(out, "upload marked failed") {
		t.Errorf("fail:\n%s", out)
	}
	st, _ := c.sess.Machine.Step("upload")
	if st.Status != workflow.StatusFailed {
		t.Errorf("upload = %s, want failed", st.Status)
	}
	out = run(t, c, buf, "history")
	if !strings.Contains(out, "screenshot unreadable") {
		t.Errorf("history missing failure note:\n%s", out)
	}
}

func TestConsoleValidate(t *testing.T) {
	c, buf := newConsole(t)
	out := run(t, c, buf, "validate")
	if !strings.Contains(out, "✗") {
		t.Errorf("validate:\n%s", out)
	}
	run(t, c, buf, "problem something broke")
	out = run(t, c, buf, "validate upload")
	if !strings.Contains(out, "passes all checks") {
		t.Errorf("validate after problem:\n%s", out)
	}
}

func TestConsoleSolutionsAndBookmarks(t *testing.T) {
	c, buf := newConsole(t)
	if out := run(t, c, buf, "solutions"); !strings.Contains(out, "No solutions") {
		t.Errorf("solutions:\n%s", out)
	}
	run(t, c, buf, "solution add Increase the memory limit")
	if out := run(t, c, buf, "solutions"); !strings.Contains(out, "1. Increase the memory limit") {
		t.Errorf("solutions:\n%s", out)
	}
	if out := run(t, c, buf, "bookmark add Increase the memory limit"); !strings.Contains(out, "Bookmarked as") {
		t.Errorf("bookmark add:\n%s", out)
	}
	bms := c.sess.Bookmarks.List()
	if len(bms) != 1 || bms[0].Solution["title"] != "Increase the memory limit" {
		t.Fatalf("bookmarks = %+v", bms)
	}
	if out := run(t, c, buf, "bookmark rm "+bms[0].ID); !strings.Contains(out, "removed") {
		t.Errorf("bookmark rm:\n%s", out)
	}
}

func TestConsoleExportImport(t *testing.T) {
	c, buf := newConsole(t)
	run(t, c, buf, "problem disk pressure on node-3")
	run(t, c, buf, "next")

	path := filepath.Join(t.TempDir(), "snap.json")
	if out := run(t, c, buf, "export "+path); !strings.Contains(out, "written") {
		t.Fatalf("export:\n%s", out)
	}

	other, obuf := newConsole(t)
	if out := run(t, other, obuf, "import "+path); !strings.Contains(out, "Imported 6 steps") {
		t.Fatalf("import:\n%s", out)
	}
	if got := other.sess.Machine.CurrentStepID(); got != "analyze" {
		t.Errorf("current after import = %q", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(bad, []byte(`{"workflow":{}}`), 0o644)
	if out := run(t, other, obuf, "import "+bad); !strings.Contains(out, "invalid document schema") {
		t.Errorf("bad import:\n%s", out)
	}
}

func TestConsoleNextFinishesWorkflow(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	sess, err := session.New(kv.NewMemory(), session.Options{EntryStep: "document", Clock: func() time.Time { return start }})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	c := New(sess)
	c.SetOutput(&buf)
	if out := run(t, c, &buf, "next"); !strings.Contains(out, "workflow complete") {
		t.Errorf("next on last step:\n%s", out)
	}
	if p := c.prompt(); !strings.Contains(p, "completed") {
		t.Errorf("prompt = %q", p)
	}
}

func TestConsolePrompt(t *testing.T) {
	c, _ := newConsole(t)
	if p := c.prompt(); p != "remedy[1/6 | upload]> " {
		t.Errorf("prompt = %q", p)
	}
}

func TestConsoleUnknownAndQuit(t *testing.T) {
	c, buf := newConsole(t)
	if out := run(t, c, buf, "dance"); !strings.Contains(out, "Unknown command") {
		t.Errorf("unknown:\n%s", out)
	}
	if !c.Exec(context.Background(), "quit") {
		t.Error("quit did not report quit")
	}
	if c.Exec(context.Background(), "   ") {
		t.Error("blank line reported quit")
	}
}

func TestConsoleReadOnlyViews(t *testing.T) {
	c, buf := newConsole(t)
	for line, want := range map[string]string{
		"status":          "Capture the error",
		"analytics":       "unknown",
		"metrics 7":       "DAY",
		"metrics x":       "non-negative",
		"diagram mermaid": "flowchart TD",
		"show analyze":    "Analyze the problem",
		"report":          "Workflow report",
		"history":         "No history",
	} {
		if out := run(t, c, buf, line); !strings.Contains(out, want) {
			t.Errorf("%q output missing %q:\n%s", line, want, out)
		}
	}
}

func TestConsoleAttach(t *testing.T) {
	c, buf := newConsole(t)
	if out := run(t, c, buf, "attachments"); !strings.Contains(out, "No attachments") {
		t.Errorf("attachments:\n%s", out)
	}
	path := filepath.Join(t.TempDir(), "shot.png")
	os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nbody"), 0o644)
	if out := run(t, c, buf, "attach "+path); !strings.Contains(out, "Attached shot.png (image/png") {
		t.Fatalf("attach:\n%s", out)
	}
	if out := run(t, c, buf, "next"); !strings.Contains(out, "upload completed") {
		t.Errorf("next after attach:\n%s", out)
	}
}
