// Package guide turns a Markdown troubleshooting guide into a step catalog.
//
// The first level-1 heading names the catalog and the prose under it becomes
// the catalog description. Every level-2 heading starts a step that requires
// the previous required step; a heading ending in "(optional)" makes the step
// optional. Deeper headings stay inside the step they appear in.
package guide

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// BlockKind tells how a block is written back into a step description.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockItem
	BlockCode
)

// Block is one paragraph, list item, or fenced code block, in source order.
type Block struct {
	Kind     BlockKind
	Text     string
	Language string // code blocks only
	Line     int    // 1-based
}

// Section is a heading and the blocks up to the next heading.
type Section struct {
	Heading string
	Level   int
	Line    int
	Blocks  []Block
}

// Document is a parsed guide.
type Document struct {
	Title    string
	Preamble []Block // blocks before the first heading
	Sections []Section
}

const optionalSuffix = "(optional)"

// unsafeCommands make a step worth a second look before anyone runs it.
var unsafeCommands = map[string]bool{
	"rm":       true,
	"rmdir":    true,
	"dd":       true,
	"mkfs":     true,
	"fdisk":    true,
	"sudo":     true,
	"chmod":    true,
	"chown":    true,
	"kill":     true,
	"shutdown": true,
	"reboot":   true,
}

// Parse reads a Markdown guide.
func Parse(source []byte) (*Document, error) {
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	doc := &Document{}
	var cur *Section
	add := func(b Block) {
		if cur == nil {
			doc.Preamble = append(doc.Preamble, b)
			return
		}
		cur.Blocks = append(cur.Blocks, b)
	}

	err := ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			heading := inlineText(n, source)
			if doc.Title == "" && n.Level == 1 {
				doc.Title = heading
			}
			doc.Sections = append(doc.Sections, Section{Heading: heading, Level: n.Level, Line: lineOf(source, n)})
			cur = &doc.Sections[len(doc.Sections)-1]
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			add(Block{Kind: BlockCode, Text: codeText(n, source), Language: string(n.Language(source)), Line: lineOf(source, n)})
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph:
			if t := inlineText(n, source); t != "" {
				add(Block{Kind: BlockParagraph, Text: t, Line: lineOf(source, n)})
			}
			return ast.WalkSkipChildren, nil

		case *ast.ListItem:
			if t := inlineText(n, source); t != "" {
				add(Block{Kind: BlockItem, Text: t, Line: lineOf(source, n)})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse guide: %w", err)
	}
	return doc, nil
}

// Compile parses source and builds a validated catalog from it. Warnings
// flag steps whose code blocks run destructive commands.
func Compile(source []byte) (*workflow.Catalog, []string, error) {
	doc, err := Parse(source)
	if err != nil {
		return nil, nil, err
	}

	c := &workflow.Catalog{
		APIVersion: workflow.APIVersionCatalog,
		Name:       doc.Title,
	}
	if c.Name == "" {
		c.Name = "guide"
	}

	var (
		warnings []string
		desc     []Block
		current  *workflow.Step
		required string
		used     = map[string]int{}
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Description = renderBlocks(desc)
		c.Steps = append(c.Steps, *current)
		if !current.Optional {
			required = current.ID
		}
		current, desc = nil, nil
	}

	for _, sec := range doc.Sections {
		switch {
		case sec.Level == 1:
			if c.Description == "" {
				c.Description = renderBlocks(sec.Blocks)
			}
			continue
		case sec.Level > 2 && current != nil:
			desc = append(desc, Block{Kind: BlockParagraph, Text: "**" + sec.Heading + "**"})
			desc = append(desc, sec.Blocks...)
			warnings = append(warnings, unsafeWarnings(current.ID, sec.Blocks)...)
			continue
		case sec.Level > 2:
			continue
		}

		flush()
		title, optional := splitOptional(sec.Heading)
		id := uniqueID(slug(title), len(c.Steps)+1, used)
		current = &workflow.Step{ID: id, Title: title, Optional: optional}
		if required != "" {
			current.Requirements = []string{required}
		}
		desc = append(desc, sec.Blocks...)
		warnings = append(warnings, unsafeWarnings(id, sec.Blocks)...)
	}
	flush()

	if c.Description == "" {
		c.Description = renderBlocks(doc.Preamble)
	}
	if len(c.Steps) == 0 {
		return nil, nil, fmt.Errorf("guide has no level-2 headings to turn into steps")
	}
	if errs := c.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, nil, fmt.Errorf("compiled catalog is invalid: %s", strings.Join(msgs, "; "))
	}
	return c, warnings, nil
}

// IsUnsafeCommand reports whether the first word of line is a destructive
// command.
func IsUnsafeCommand(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	base := fields[0]
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return unsafeCommands[base]
}

func unsafeWarnings(stepID string, blocks []Block) []string {
	var out []string
	for _, b := range blocks {
		if b.Kind != BlockCode {
			continue
		}
		for i, line := range strings.Split(b.Text, "\n") {
			if IsUnsafeCommand(line) {
				out = append(out, fmt.Sprintf("step %q line %d runs %q; review it before applying", stepID, b.Line+i, strings.TrimSpace(line)))
			}
		}
	}
	return out
}

func renderBlocks(blocks []Block) string {
	var parts []string
	var items []string
	flushItems := func() {
		if len(items) > 0 {
			parts = append(parts, strings.Join(items, "\n"))
			items = nil
		}
	}
	for _, b := range blocks {
		switch b.Kind {
		case BlockItem:
			items = append(items, "- "+b.Text)
			continue
		case BlockCode:
			flushItems()
			parts = append(parts, "```"+b.Language+"\n"+b.Text+"\n```")
		default:
			flushItems()
			parts = append(parts, b.Text)
		}
	}
	flushItems()
	return strings.Join(parts, "\n\n")
}

func splitOptional(heading string) (string, bool) {
	lower := strings.ToLower(heading)
	if !strings.HasSuffix(lower, optionalSuffix) {
		return heading, false
	}
	return strings.TrimSpace(heading[:len(heading)-len(optionalSuffix)]), true
}

// slug lowercases s and joins its letter and digit runs with dashes.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

func uniqueID(base string, n int, used map[string]int) string {
	if base == "" {
		base = fmt.Sprintf("step-%d", n)
	}
	used[base]++
	if used[base] == 1 {
		return base
	}
	id := fmt.Sprintf("%s-%d", base, used[base])
	used[id]++
	return id
}

// inlineText flattens the inline content under node.
func inlineText(node ast.Node, source []byte) string {
	var sb strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			sb.Write(c.Segment.Value(source))
			if c.SoftLineBreak() || c.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.CodeSpan:
			sb.WriteByte('`')
			sb.WriteString(inlineText(c, source))
			sb.WriteByte('`')
		default:
			sb.WriteString(inlineText(child, source))
		}
	}
	return strings.TrimSpace(sb.String())
}

func codeText(n *ast.FencedCodeBlock, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// lineOf returns the 1-based source line where node starts.
func lineOf(source []byte, node ast.Node) int {
	for n := node; n != nil; n = n.FirstChild() {
		if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
			return strings.Count(string(source[:n.Lines().At(0).Start]), "\n") + 1
		}
		if t, ok := n.(*ast.Text); ok {
			return strings.Count(string(source[:t.Segment.Start]), "\n") + 1
		}
	}
	return 0
}
