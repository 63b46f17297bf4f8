package console

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ormasoftchile/remedy/pkg/render"
	"github.com/ormasoftchile/remedy/pkg/session"
	"github.com/ormasoftchile/remedy/pkg/snapshot"
)

// force reports whether args ask to bypass validation.
func force(args []string) bool {
	for _, a := range args {
		if a == "force" || a == "-f" || a == "--force" {
			return true
		}
	}
	return false
}

func (c *Console) handleStatus() {
	m := c.sess.Machine
	render.Steps(c.output, m.Steps(), m.Durations())
	fmt.Fprintln(c.output, render.Summary(c.sess.Analytics()))
}

// handleNext advances to the next pending step, or finishes the workflow
// when none is left.
func (c *Console) handleNext(ctx context.Context, args []string) error {
	m := c.sess.Machine
	target, ok := m.NextPending()
	if !ok {
		if err := m.Finish(ctx, force(args)); err != nil {
			return err
		}
		fmt.Fprintf(c.output, "  ✓ workflow complete\n")
		return nil
	}
	return c.advance(ctx, target, force(args))
}

func (c *Console) handleGoto(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintf(c.output, "Usage: goto <step> [force]\n")
		return nil
	}
	return c.advance(ctx, args[0], force(args[1:]))
}

func (c *Console) advance(ctx context.Context, target string, skipValidation bool) error {
	m := c.sess.Machine
	from := m.CurrentStepID()
	if err := m.AdvanceToStep(ctx, target, skipValidation); err != nil {
		return err
	}
	st, _ := m.Step(target)
	if from != "" && from != target {
		fmt.Fprintf(c.output, "  ✓ %s completed\n", from)
	}
	fmt.Fprintf(c.output, "  ▸ %s %s\n", st.Kind.Verb, st.Title)
	return nil
}

func (c *Console) handleSkip(args []string) error {
	id := c.sess.Machine.CurrentStepID()
	if len(args) > 0 {
		id = args[0]
	}
	if err := c.sess.Machine.SkipStep(id); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  ↷ %s skipped\n", id)
	return nil
}

func (c *Console) handleFail(args []string) error {
	id := c.sess.Machine.CurrentStepID()
	reason := ""
	if len(args) > 0 {
		id = args[0]
		reason = strings.Join(args[1:], " ")
	}
	if err := c.sess.Machine.MarkStepFailed(id, reason); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  ✗ %s marked failed\n", id)
	return nil
}

func (c *Console) handleValidate(ctx context.Context, args []string) error {
	m := c.sess.Machine
	id := m.CurrentStepID()
	if len(args) > 0 {
		id = args[0]
	}
	ok, err := m.ValidateStep(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(c.output, "  ✓ %s passes all checks\n", id)
		return nil
	}
	for _, msg := range m.ValidationErrors(id) {
		fmt.Fprintf(c.output, "  ✗ %s\n", msg)
	}
	return nil
}

// handleShow prints a step, including finished ones, without changing it.
func (c *Console) handleShow(args []string) error {
	m := c.sess.Machine
	id := m.CurrentStepID()
	if len(args) > 0 {
		id = args[0]
	}
	st, err := m.Revisit(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.output, render.Markdown(render.StepMarkdown(st, m.ValidationErrors(id)), c.width))
	return nil
}

func (c *Console) handleProblem(args []string) {
	if len(args) == 0 {
		p := c.sess.Problem()
		if p == "" {
			p = "(none)"
		}
		fmt.Fprintf(c.output, "Problem: %s\n", p)
		return
	}
	c.sess.SetProblem(strings.Join(args, " "))
	fmt.Fprintf(c.output, "Problem recorded.\n")
}

func (c *Console) handleAttach(args []string) error {
	if len(args) != 1 {
		fmt.Fprintf(c.output, "Usage: attach <file>\n")
		return nil
	}
	a, err := c.sess.Attach(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Attached %s (%s, %d bytes, sha256 %s)\n", a.Name, a.MediaType, a.Size, a.SHA256[:12])
	return nil
}

func (c *Console) handleAttachments() {
	atts := c.sess.Attachments()
	if len(atts) == 0 {
		fmt.Fprintf(c.output, "No attachments.\n")
		return
	}
	for i, a := range atts {
		fmt.Fprintf(c.output, "  %d. %s  %s  %d bytes\n", i+1, a.Name, a.MediaType, a.Size)
	}
}

func (c *Console) handleSolution(args []string) error {
	if len(args) < 2 || args[0] != "add" {
		fmt.Fprintf(c.output, "Usage: solution add <title>\n")
		return nil
	}
	sols := c.sess.Solutions()
	sols = append(sols, session.Solution{"title": strings.Join(args[1:], " ")})
	c.sess.SetSolutions(sols)
	fmt.Fprintf(c.output, "Solution %d added.\n", len(sols))
	return nil
}

func (c *Console) handleSolutions() {
	sols := c.sess.Solutions()
	if len(sols) == 0 {
		fmt.Fprintf(c.output, "No solutions yet.\n")
		return
	}
	for i, s := range sols {
		title := s.Title()
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(c.output, "  %d. %s\n", i+1, title)
	}
}

func (c *Console) handleHistory(args []string) error {
	if len(args) > 0 && args[0] == "clear" {
		if err := c.sess.ClearHistory(); err != nil {
			return err
		}
		fmt.Fprintf(c.output, "History cleared.\n")
		return nil
	}
	entries := c.sess.Ledger.All()
	if len(entries) == 0 {
		fmt.Fprintf(c.output, "No history recorded.\n")
		return nil
	}
	render.History(c.output, entries)
	return nil
}

func (c *Console) handleAnalytics() {
	render.Analytics(c.output, c.sess.Analytics())
}

func (c *Console) handleMetrics(args []string) error {
	days := -1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("metrics: days must be a non-negative number, got %q", args[0])
		}
		days = n
	}
	render.Metrics(c.output, c.sess.Metrics(days))
	return nil
}

func (c *Console) handleReport(ctx context.Context) {
	fmt.Fprintln(c.output, render.Markdown(render.ReportMarkdown(c.sess.Report(ctx)), c.width))
}

func (c *Console) handleDiagram(args []string) error {
	format := render.FormatASCII
	if len(args) > 0 {
		format = render.Format(args[0])
	}
	out, err := render.Diagram("remedy", c.sess.Machine.Steps(), format)
	if err != nil {
		return err
	}
	fmt.Fprint(c.output, out)
	return nil
}

func (c *Console) handleExport(args []string) error {
	doc := c.sess.Export()
	if len(args) == 0 {
		data, err := snapshot.Marshal(doc)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.output, string(data))
		return nil
	}
	if err := snapshot.SaveFile(doc, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Snapshot written to %s\n", args[0])
	return nil
}

func (c *Console) handleImport(args []string) error {
	if len(args) < 1 {
		fmt.Fprintf(c.output, "Usage: import <file>\n")
		return nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	res, err := c.sess.Import(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Imported %d steps (version %s).\n", len(res.Steps), res.Version)
	return nil
}

func (c *Console) handleBookmark(args []string) error {
	if len(args) < 2 {
		fmt.Fprintf(c.output, "Usage: bookmark add <title> | bookmark rm <id>\n")
		return nil
	}
	switch args[0] {
	case "add":
		title := strings.Join(args[1:], " ")
		var sol map[string]any
		for _, s := range c.sess.Solutions() {
			if s.Title() == title {
				sol = s
			}
		}
		bm, err := c.sess.Bookmarks.Add(title, sol)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.output, "Bookmarked as %s\n", bm.ID)
	case "rm", "remove":
		if err := c.sess.Bookmarks.Remove(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(c.output, "Bookmark removed.\n")
	default:
		fmt.Fprintf(c.output, "Usage: bookmark add <title> | bookmark rm <id>\n")
	}
	return nil
}

func (c *Console) handleBookmarks() {
	bms := c.sess.Bookmarks.List()
	if len(bms) == 0 {
		fmt.Fprintf(c.output, "No bookmarks.\n")
		return
	}
	render.Bookmarks(c.output, bms)
}

func (c *Console) handleHelp() {
	fmt.Fprintf(c.output, `Commands:
  status, s                 Show all steps and progress
  next, n [force]           Move to the next pending step (force skips checks)
  goto, g <step> [force]    Move to a specific step
  skip [step]               Skip an optional step
  fail [step] [reason]      Mark a step failed
  validate, v [step]        Run a step's checks
  show [step]               Describe a step (finished steps are read-only)
  problem [text]            Show or set the problem description
  attach <file>             Attach a screenshot or log of the error
  attachments               List attachments
  solution add <title>      Add a candidate solution
  solutions                 List candidate solutions
  history, h [clear]        Show or clear the step history
  analytics, a              Show progress and timing
  metrics [days]            Show per-step and daily metrics
  report                    Show the full analytics report
  diagram [ascii|mermaid]   Draw the step requirements
  export [file]             Export a snapshot (stdout if no file)
  import <file>             Replace the workflow from a snapshot
  bookmark add <title>      Save a solution
  bookmark rm <id>          Remove a bookmark
  bookmarks                 List bookmarks
  help, ?                   Show this help
  quit, q                   Exit
`)
}
