// Package keys contains keybinding definitions.
package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings for the console.
type KeyMap struct {
	// Navigation
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	NextPane key.Binding

	// Call actions
	Attach   key.Binding
	OnScene  key.Binding
	Close    key.Binding
	CloseAll key.Binding

	// Unit status
	Available    key.Binding
	EnRoute      key.Binding
	UnitOnScene  key.Binding
	OutOfService key.Binding

	// Confirm dialog
	Confirm key.Binding
	Cancel  key.Binding

	// General
	Mute         key.Binding
	Refresh      key.Binding
	Help         key.Binding
	ToggleStatus key.Binding
	Logs         key.Binding
	Quit         key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		// Navigation
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "first call"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "last call"),
		),
		NextPane: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "calls/queue"),
		),

		// Call actions
		Attach: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "attach to call"),
		),
		OnScene: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "mark on scene"),
		),
		Close: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "close call"),
		),
		CloseAll: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "close all calls"),
		),

		// Unit status
		Available: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "available"),
		),
		EnRoute: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "en route"),
		),
		UnitOnScene: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "on scene"),
		),
		OutOfService: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "out of service"),
		),

		// Confirm dialog
		Confirm: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n/esc", "cancel"),
		),

		// General
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute/unmute alerts"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh now"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		ToggleStatus: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "toggle status bar"),
		),
		Logs: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "debug log"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Attach, k.OnScene, k.Close, k.Mute, k.Help, k.Quit}
}

// FullHelp returns keybindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom, k.NextPane},
		{k.Attach, k.OnScene, k.Close, k.CloseAll},
		{k.Available, k.EnRoute, k.UnitOnScene, k.OutOfService},
		{k.Mute, k.Refresh, k.Help, k.ToggleStatus, k.Quit},
	}
}
