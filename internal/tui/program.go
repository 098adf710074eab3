package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the TUI until the user quits or ctx is done. logs, when not
// nil, is attached to the program so that log records reach the status
// bar.
func Run(ctx context.Context, s Session, logs *LogHandler) error {
	program := tea.NewProgram(NewModel(s),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	if logs != nil {
		logs.SetProgram(program)
		defer logs.SetProgram(nil)
	}
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
