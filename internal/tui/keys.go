package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the key bindings of the watch TUI.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Preview key.Binding
	Quit    key.Binding
}

// DefaultKeyMap pairs vim-style j/k with the arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("↑/k", "選択"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("↓/j", "選択"),
	),
	Preview: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("Space", "プレビュー"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "終了"),
	),
}

// helpLine renders the bindings as "[q] 終了  [↑/k] 選択 ...".
func (k KeyMap) helpLine() string {
	var parts []string
	for _, b := range []key.Binding{k.Quit, k.Up, k.Down, k.Preview} {
		h := b.Help()
		parts = append(parts, "["+h.Key+"] "+h.Desc)
	}
	return "操作: " + strings.Join(parts, "  ")
}
