package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Pause     key.Binding
	Stop      key.Binding
	Interrupt key.Binding
	Leave     key.Binding
	Confirm   key.Binding
	Cancel    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Pause: key.NewBinding(
			key.WithKeys("p", "P", " "),
			key.WithHelp("p", "pause/resume"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s", "S"),
			key.WithHelp("s", "stop & save"),
		),
		Interrupt: key.NewBinding(
			key.WithKeys("i", "I"),
			key.WithHelp("i", "interrupt"),
		),
		Leave: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q/esc", "leave running"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Stop, k.Interrupt, k.Leave}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
