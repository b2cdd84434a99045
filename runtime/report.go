package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/policy"
	"github.com/justapithecus/mavbridge/vehicle"
)

// Report is the JSON summary written by --report when the bridge stops.
type Report struct {
	BridgeID    string    `json:"bridge_id,omitempty"`
	RecordingID string    `json:"recording_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`

	Recording *ReportRecording `json:"recording,omitempty"`
	Vehicles  []ReportVehicle  `json:"vehicles"`
	Metrics   *metrics.Snapshot `json:"metrics"`
}

// ReportRecording holds recorder policy stats.
type ReportRecording struct {
	Policy           string           `json:"policy"`
	RecordsReceived  int64            `json:"records_received"`
	RecordsPersisted int64            `json:"records_persisted"`
	RecordsDropped   int64            `json:"records_dropped"`
	DroppedByType    map[string]int64 `json:"dropped_by_type,omitempty"`
	QueueDropped     int64            `json:"queue_dropped"`
}

// ReportVehicle is the final state summary of one vehicle.
type ReportVehicle struct {
	SystemID        uint8     `json:"system_id"`
	Type            uint8     `json:"type"`
	Autopilot       uint8     `json:"autopilot"`
	Armed           bool      `json:"armed"`
	FirstSeen       time.Time `json:"first_seen"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	MessagesApplied int64     `json:"messages_applied"`
	LatE7           *int32    `json:"lat_e7,omitempty"`
	LonE7           *int32    `json:"lon_e7,omitempty"`
}

// BuildReport composes a Report from a finished bridge run.
// recording is nil when the recorder was disabled.
func BuildReport(result *Result, snap metrics.Snapshot, policyName string, recording *policy.Stats) *Report {
	report := &Report{
		BridgeID:    snap.BridgeID,
		RecordingID: result.RecordingID,
		StartedAt:   result.StartedAt.UTC(),
		DurationMs:  result.Duration.Milliseconds(),
		Vehicles:    make([]ReportVehicle, 0, len(result.Vehicles)),
		Metrics:     &snap,
	}
	if recording != nil {
		report.Recording = &ReportRecording{
			Policy:           policyName,
			RecordsReceived:  recording.TotalRecords,
			RecordsPersisted: recording.RecordsPersisted,
			RecordsDropped:   recording.RecordsDropped,
			DroppedByType:    recording.DroppedByType,
			QueueDropped:     snap.RecordQueueDropped,
		}
	}
	for _, v := range result.Vehicles {
		report.Vehicles = append(report.Vehicles, reportVehicle(v))
	}
	return report
}

func reportVehicle(v vehicle.State) ReportVehicle {
	rv := ReportVehicle{
		SystemID:        v.SystemID,
		Type:            v.Type,
		Autopilot:       v.Autopilot,
		Armed:           v.Armed,
		FirstSeen:       v.FirstSeen.UTC(),
		LastHeartbeat:   v.LastHeartbeat.UTC(),
		MessagesApplied: v.MessagesApplied,
	}
	if v.Position != nil {
		lat, lon := v.Position.Lat, v.Position.Lon
		rv.LatE7, rv.LonE7 = &lat, &lon
	}
	return rv
}

// WriteReport writes the report as indented JSON to path, or to stderr
// when path is "-".
func WriteReport(report *Report, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeReportTo(report *Report, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
