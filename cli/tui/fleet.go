package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/mavbridge/vehicle"
)

// staleAfter marks a vehicle whose last heartbeat is older than this,
// relative to the newest heartbeat in the view.
const staleAfter = 5 * time.Second

// FleetModel is a Bubble Tea model listing vehicle states.
type FleetModel struct {
	vehicles []vehicle.State
	width    int
	height   int
	quitting bool
}

// NewFleetModel creates a fleet model. data must be []vehicle.State.
func NewFleetModel(data any) FleetModel {
	vs, _ := data.([]vehicle.State)
	return FleetModel{vehicles: vs}
}

// Init implements tea.Model.
func (m FleetModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m FleetModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m FleetModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Fleet (%d)", len(m.vehicles))))
	b.WriteString("\n\n")
	if len(m.vehicles) == 0 {
		b.WriteString(ValueStyle.Render("no vehicles seen"))
		b.WriteString("\n")
	}

	var newest time.Time
	for _, v := range m.vehicles {
		if v.LastHeartbeat.After(newest) {
			newest = v.LastHeartbeat
		}
	}
	for _, v := range m.vehicles {
		b.WriteString(BoxStyle.Render(renderVehicle(v, newest)))
		b.WriteString("\n")
	}

	return b.String() + HelpStyle.Render("Press q or Ctrl+C to quit")
}

func vehicleState(v vehicle.State, newest time.Time) string {
	switch {
	case newest.Sub(v.LastHeartbeat) > staleAfter:
		return "stale"
	case v.Armed:
		return "armed"
	default:
		return "disarmed"
	}
}

func renderVehicle(v vehicle.State, newest time.Time) string {
	state := vehicleState(v, newest)
	rows := [][2]string{
		{"System", fmt.Sprintf("%d/%d", v.SystemID, v.ComponentID)},
		{"Type", fmt.Sprintf("%d", v.Type)},
		{"Autopilot", fmt.Sprintf("%d", v.Autopilot)},
		{"Messages", fmt.Sprintf("%d", v.MessagesApplied)},
		{"Heartbeat", v.LastHeartbeat.Format("15:04:05.000")},
	}
	if v.Position != nil {
		rows = append(rows, [2]string{"Position", fmt.Sprintf("%.7f, %.7f",
			float64(v.Position.Lat)/1e7, float64(v.Position.Lon)/1e7)})
	}
	if v.Attitude != nil {
		rows = append(rows, [2]string{"Attitude", fmt.Sprintf("r %.2f p %.2f y %.2f",
			v.Attitude.Roll, v.Attitude.Pitch, v.Attitude.Yaw)})
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("State:"), StateStyle(state).Render(state)))
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(r[0]+":"), ValueStyle.Render(r[1])))
	}
	return strings.TrimSuffix(b.String(), "\n")
}
