package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	var model tea.Model
	switch {
	case strings.HasPrefix(viewType, "inspect_"):
		model = NewFleetModel(data)
	case strings.HasPrefix(viewType, "stats_"):
		model = NewStatsModel(viewType, data)
	default:
		return fmt.Errorf("unknown view type: %s", viewType)
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{
		"inspect_fleet",
		"stats_dataset",
		"stats_metrics",
	}
}

// RenderStatic renders a view without starting a program.
func RenderStatic(viewType string, data any) string {
	var view string
	if strings.HasPrefix(viewType, "inspect_") {
		view = NewFleetModel(data).View()
	} else {
		view = NewStatsModel(viewType, data).View()
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(view)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// quitOnKey handles the update messages shared by every view.
func quitOnKey(msg tea.Msg) bool {
	k, ok := msg.(tea.KeyMsg)
	return ok && key.Matches(k, keys.Quit)
}
