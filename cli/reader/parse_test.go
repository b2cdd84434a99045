package reader

import (
	"strings"
	"testing"
)

func TestParseMetricsRecord(t *testing.T) {
	// JSON-round-tripped record: numbers arrive as float64
	record := map[string]any{
		"record_kind":          "metrics",
		"ts":                   "2026-10-18T15:00:00Z",
		"recording_id":         "rec-1",
		"bridge_id":            "bridge-a",
		"policy":               "buffered",
		"storage_backend":      "fs",
		"sessions_opened":      float64(3),
		"datagrams_in":         float64(1200),
		"bytes_received":       float64(48000),
		"frames_valid":         float64(1190),
		"rejects_by_kind":      map[string]any{"crc_mismatch": float64(7), "unknown_message": float64(3)},
		"sequence_gaps":        float64(2),
		"vehicles_seen":        float64(1),
		"records_received":     float64(1190),
		"records_persisted":    float64(1180),
		"records_dropped":      float64(10),
		"record_queue_dropped": float64(4),
		"dropped_by_type":      map[string]any{"ATTITUDE": float64(10)},
	}

	parsed, err := ParseMetricsRecord(record)
	if err != nil {
		t.Fatalf("ParseMetricsRecord failed: %v", err)
	}

	checks := []struct {
		name      string
		got, want int64
	}{
		{"SessionsOpened", parsed.SessionsOpened, 3},
		{"DatagramsIn", parsed.DatagramsIn, 1200},
		{"BytesReceived", parsed.BytesReceived, 48000},
		{"FramesValid", parsed.FramesValid, 1190},
		{"SequenceGaps", parsed.SequenceGaps, 2},
		{"VehiclesSeen", parsed.VehiclesSeen, 1},
		{"RecordsPersisted", parsed.RecordsPersisted, 1180},
		{"RecordsDropped", parsed.RecordsDropped, 10},
		{"RecordQueueDropped", parsed.RecordQueueDropped, 4},
		{"TotalRejects", parsed.TotalRejects(), 10},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if parsed.Policy != "buffered" || parsed.StorageBackend != "fs" || parsed.BridgeID != "bridge-a" {
		t.Errorf("dimensions = %q/%q/%q", parsed.Policy, parsed.StorageBackend, parsed.BridgeID)
	}
	if parsed.DroppedByType["ATTITUDE"] != 10 {
		t.Errorf("DroppedByType[ATTITUDE] = %d, want 10", parsed.DroppedByType["ATTITUDE"])
	}
}

func TestParseMetricsRecord_Int64Values(t *testing.T) {
	record := map[string]any{
		"ts":              "2026-10-18T15:00:00Z",
		"recording_id":    "rec-1",
		"frames_valid":    int64(42),
		"dropped_by_type": map[string]int64{"RC_CHANNELS": 5},
	}
	parsed, err := ParseMetricsRecord(record)
	if err != nil {
		t.Fatalf("ParseMetricsRecord failed: %v", err)
	}
	if parsed.FramesValid != 42 {
		t.Errorf("FramesValid = %d, want 42", parsed.FramesValid)
	}
	if parsed.DroppedByType["RC_CHANNELS"] != 5 {
		t.Errorf("DroppedByType = %v", parsed.DroppedByType)
	}
}

func TestParseMetricsRecord_MissingRequired(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		want   string
	}{
		{"nil", nil, "nil record"},
		{"no ts", map[string]any{"recording_id": "rec-1"}, "ts"},
		{"no recording", map[string]any{"ts": "2026-10-18T15:00:00Z"}, "recording_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetricsRecord(tt.record)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{int64(5), 5},
		{float64(7.9), 7},
		{3, 3},
		{"12", 0},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := toInt64(tt.in); got != tt.want {
			t.Errorf("toInt64(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
