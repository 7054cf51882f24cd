package watch

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the watch view's bindings.
type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
	Cells   key.Binding
	DND     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Cells: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "cells"),
		),
		DND: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "do not disturb"),
		),
	}
}

func (k keyMap) bindings() []key.Binding {
	return []key.Binding{k.Refresh, k.Cells, k.DND, k.Quit}
}
