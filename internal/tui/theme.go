package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette of the TUI, in ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	OwnMessage    lipgloss.Color
	PeerMessage   lipgloss.Color
	SystemMessage lipgloss.Color

	Connected    lipgloss.Color
	Connecting   lipgloss.Color
	Disconnected lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	BannerForeground lipgloss.Color
	ErrorText        lipgloss.Color
	WarnText         lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("243"),

	OwnMessage:    lipgloss.Color("117"),
	PeerMessage:   lipgloss.Color("252"),
	SystemMessage: lipgloss.Color("179"),

	Connected:    lipgloss.Color("78"),
	Connecting:   lipgloss.Color("220"),
	Disconnected: lipgloss.Color("203"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
	BannerForeground: lipgloss.Color("213"),
	ErrorText:        lipgloss.Color("196"),
	WarnText:         lipgloss.Color("214"),
}
