// Package console implements the interactive line-oriented driver for a
// troubleshooting session.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/remedy/pkg/analytics"
	"github.com/ormasoftchile/remedy/pkg/session"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

var commands = []string{
	"status", "next", "goto", "skip", "fail", "validate", "show",
	"problem", "attach", "attachments", "solution add", "solutions", "history", "history clear",
	"analytics", "metrics", "report", "diagram", "export", "import",
	"bookmark add", "bookmark rm", "bookmarks", "help", "quit",
}

// Console drives a session from typed commands.
type Console struct {
	sess   *session.Session
	output io.Writer
	width  int
}

// New creates a console over sess writing to stdout.
func New(sess *session.Session) *Console {
	return &Console{sess: sess, output: os.Stdout, width: 80}
}

// SetOutput redirects console output.
func (c *Console) SetOutput(w io.Writer) { c.output = w }

// Run starts the interactive loop. It returns nil on quit, EOF or ^C.
func (c *Console) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	steps := c.sess.Machine.Steps()
	fmt.Fprintf(c.output, "remedy: %d steps, session %s\n", len(steps), c.sess.ID)
	fmt.Fprintf(c.output, "Type 'help' for available commands, 'next' to move on.\n\n")

	for {
		rl.SetPrompt(c.prompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if quit := c.Exec(ctx, line); quit {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the user asked to quit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd, args := parts[0], parts[1:]

	var err error
	switch cmd {
	case "status", "s":
		c.handleStatus()
	case "next", "n":
		err = c.handleNext(ctx, args)
	case "goto", "g":
		err = c.handleGoto(ctx, args)
	case "skip":
		err = c.handleSkip(args)
	case "fail":
		err = c.handleFail(args)
	case "validate", "v":
		err = c.handleValidate(ctx, args)
	case "show":
		err = c.handleShow(args)
	case "problem":
		c.handleProblem(args)
	case "attach":
		err = c.handleAttach(args)
	case "attachments":
		c.handleAttachments()
	case "solution":
		err = c.handleSolution(args)
	case "solutions":
		c.handleSolutions()
	case "history", "h":
		err = c.handleHistory(args)
	case "analytics", "a":
		c.handleAnalytics()
	case "metrics":
		err = c.handleMetrics(args)
	case "report":
		c.handleReport(ctx)
	case "diagram":
		err = c.handleDiagram(args)
	case "export":
		err = c.handleExport(args)
	case "import":
		err = c.handleImport(args)
	case "bookmark":
		err = c.handleBookmark(args)
	case "bookmarks":
		c.handleBookmarks()
	case "help", "?":
		c.handleHelp()
	case "quit", "q", "exit":
		fmt.Fprintf(c.output, "Exiting.\n")
		return true
	default:
		fmt.Fprintf(c.output, "Unknown command: %q. Type 'help' for available commands.\n", cmd)
	}
	if err != nil {
		c.printError(err)
	}
	return false
}

// prompt shows the focused step: remedy[3/6 | review 1m 5s]>
func (c *Console) prompt() string {
	m := c.sess.Machine
	cur := m.CurrentStepID()
	steps := m.Steps()
	pos := 0
	for i, s := range steps {
		if s.ID == cur {
			pos = i + 1
		}
	}
	if cur == "" || pos == 0 {
		return "remedy> "
	}
	if st, _ := m.Step(cur); st.Status != workflow.StatusActive {
		return fmt.Sprintf("remedy[%d/%d | %s %s]> ", pos, len(steps), cur, st.Status)
	}
	elapsed := m.Elapsed(cur)
	if elapsed <= 0 {
		return fmt.Sprintf("remedy[%d/%d | %s]> ", pos, len(steps), cur)
	}
	return fmt.Sprintf("remedy[%d/%d | %s %s]> ", pos, len(steps), cur, analytics.FormatDuration(elapsed))
}

// printError explains a rejected operation with what the user can do.
func (c *Console) printError(err error) {
	var req *workflow.RequirementsError
	var val *workflow.ValidationFailedError
	switch {
	case errors.As(err, &req):
		fmt.Fprintf(c.output, "Cannot start %s yet. Finish first:\n", req.StepID)
		for _, m := range req.Missing {
			fmt.Fprintf(c.output, "  - %s\n", m)
		}
	case errors.As(err, &val):
		fmt.Fprintf(c.output, "%s is not done yet:\n", val.StepID)
		for _, m := range val.Messages {
			fmt.Fprintf(c.output, "  ✗ %s\n", m)
		}
		fmt.Fprintf(c.output, "Use 'next force' to move on anyway.\n")
	default:
		fmt.Fprintf(c.output, "Error: %v\n", err)
	}
}
