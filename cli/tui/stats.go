package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/mavbridge/cli/reader"
)

// maxMessageRows caps the per-message table in the dataset view.
const maxMessageRows = 12

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = ws.Width
		m.height = ws.Height
		return m, nil
	}
	if quitOnKey(msg) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_dataset":
		content = m.renderDataset()
	case "stats_metrics":
		content = m.renderMetrics()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderDataset() string {
	data, ok := m.data.(*reader.DatasetStats)
	if !ok {
		return "Invalid data type for stats_dataset"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Dataset " + data.Dataset))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Records", data.Records, highlightColor),
		renderStatBox("Recordings", int64(len(data.Recordings)), primaryColor),
		renderStatBox("Vehicles", int64(len(data.Vehicles)), successColor),
		renderStatBox("Message types", int64(len(data.Messages)), warningColor),
	))
	b.WriteString("\n\n")

	if !data.First.IsZero() {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("First:"), ValueStyle.Render(data.First.Format("2006-01-02 15:04:05"))))
		b.WriteString(fmt.Sprintf("%s %s\n\n", LabelStyle.Render("Last:"), ValueStyle.Render(data.Last.Format("2006-01-02 15:04:05"))))
	}

	rows := data.Messages
	if len(rows) > maxMessageRows {
		rows = rows[:maxMessageRows]
	}
	for _, mc := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Width(24).Render(mc.Message), ValueStyle.Render(fmt.Sprintf("%d", mc.Count))))
	}
	if n := len(data.Messages) - len(rows); n > 0 {
		b.WriteString(HelpStyle.Render(fmt.Sprintf("... %d more", n)))
	}
	return b.String()
}

func (m StatsModel) renderMetrics() string {
	data, ok := m.data.(*reader.MetricsSnapshot)
	if !ok {
		return "Invalid data type for stats_metrics"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Recording " + data.RecordingID))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Frames", data.FramesValid, successColor),
		renderStatBox("Rejected", data.TotalRejects(), errorColor),
		renderStatBox("Seq gaps", data.SequenceGaps, warningColor),
		renderStatBox("Vehicles", data.VehiclesSeen, highlightColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Persisted", data.RecordsPersisted, successColor),
		renderStatBox("Dropped", data.RecordsDropped+data.RecordQueueDropped, errorColor),
		renderStatBox("Sessions", data.SessionsOpened, primaryColor),
		renderStatBox("Datagrams", data.DatagramsIn, highlightColor),
	))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Policy:"), ValueStyle.Render(data.Policy)))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Storage:"), ValueStyle.Render(data.StorageBackend)))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Completed:"), ValueStyle.Render(data.Ts)))
	return b.String()
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}
