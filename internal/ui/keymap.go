package ui

import "charm.land/bubbles/v2/key"

// keyMap is the chrome-level bindings. Everything not listed here goes
// to the debugger prompt through the pseudo-terminal.
type keyMap struct {
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Live       key.Binding
	Detach     key.Binding
	Help       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll back"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll forward"),
		),
		Live: key.NewBinding(
			key.WithKeys("end"),
			key.WithHelp("end", "jump to live"),
		),
		Detach: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("ctrl+q", "leave UI"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "help"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ScrollUp, k.ScrollDown, k.Live, k.Detach, k.Help}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
