package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the chat TUI. Printable keys are
// left to the input line.
type KeyMap struct {
	// Submit joins the queue from the lobby or sends the input in a chat.
	Submit     key.Binding
	LeaveQueue key.Binding
	EndChat    key.Binding
	Refresh    key.Binding

	ScrollUp   key.Binding
	ScrollDown key.Binding

	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "join queue / send"),
	),
	LeaveQueue: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "leave queue"),
	),
	EndChat: key.NewBinding(
		key.WithKeys("ctrl+e"),
		key.WithHelp("C-e", "end chat"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("C-r", "refresh"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("PgUp", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("PgDn", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}
