package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds all TUI key bindings.
type keyMap struct {
	Next     key.Binding
	Force    key.Binding
	Goto     key.Binding
	Up       key.Binding
	Down     key.Binding
	Skip     key.Binding
	Fail     key.Binding
	Validate key.Binding
	Problem  key.Binding
	PgUp     key.Binding
	PgDown   key.Binding
	Help     key.Binding
	Quit     key.Binding
	Submit   key.Binding
	Cancel   key.Binding
}

var keys = keyMap{
	Next: key.NewBinding(
		key.WithKeys("enter", "n"),
		key.WithHelp("enter", "next"),
	),
	Force: key.NewBinding(
		key.WithKeys("N"),
		key.WithHelp("N", "force next"),
	),
	Goto: key.NewBinding(
		key.WithKeys("g"),
		key.WithHelp("g", "go to selected"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Skip: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "skip"),
	),
	Fail: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "mark failed"),
	),
	Validate: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "validate"),
	),
	Problem: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "problem"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "save"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
}

func hint(b key.Binding) string {
	h := b.Help()
	return keyStyle.Render(h.Key) + keyDescStyle.Render(":"+h.Desc)
}

// keyBarText renders the context-sensitive key hint string.
func keyBarText(editing, full bool) string {
	if editing {
		return hint(keys.Submit) + "  " + hint(keys.Cancel)
	}
	short := []string{hint(keys.Next), hint(keys.Goto), hint(keys.Skip), hint(keys.Validate), hint(keys.Problem), hint(keys.Help), hint(keys.Quit)}
	if !full {
		return joinHints(short)
	}
	return joinHints(short) + "\n" + joinHints([]string{
		hint(keys.Force), hint(keys.Fail), hint(keys.Up), hint(keys.Down), hint(keys.PgUp), hint(keys.PgDown),
	})
}

func joinHints(hs []string) string { return strings.Join(hs, "  ") }
