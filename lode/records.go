package lode

import (
	"time"

	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/types"
)

// record_kind partition values.
const (
	RecordKindTelemetry = "telemetry"
	RecordKindMetrics   = "metrics"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "recording_id", "record_kind"}

// toTelemetryRecordMap flattens a record for Lode, which requires
// map[string]any records carrying every partition key.
func toTelemetryRecordMap(r *types.TelemetryRecord, cfg Config) map[string]any {
	recordingID := r.RecordingID
	if recordingID == "" {
		recordingID = cfg.RecordingID
	}
	m := map[string]any{
		"record_kind":    RecordKindTelemetry,
		"schema_version": r.SchemaVersion,
		"recording_id":   recordingID,
		"session_id":     r.SessionID,
		"transport":      string(r.Transport),
		"seq":            r.Seq,
		"received_at":    r.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"system_id":      int(r.SystemID),
		"component_id":   int(r.ComponentID),
		"sequence":       int(r.Sequence),
		"message_id":     int64(r.MessageID),
		"message":        r.Message,
		"wire_version":   r.WireVersion,
		"fields":         r.Fields,
		"day":            cfg.Day,
	}
	if cfg.BridgeID != "" {
		m["bridge_id"] = cfg.BridgeID
	}
	return m
}

// toMetricsRecordMap flattens a metrics snapshot for Lode.
func toMetricsRecordMap(s metrics.Snapshot, completedAt time.Time, cfg Config) map[string]any {
	return map[string]any{
		"record_kind":  RecordKindMetrics,
		"recording_id": cfg.RecordingID,
		"day":          cfg.Day,
		"bridge_id":    s.BridgeID,
		"ts":           completedAt.UTC().Format(time.RFC3339Nano),

		"policy":          s.Policy,
		"storage_backend": s.StorageBackend,

		"sessions_opened":   s.SessionsOpened,
		"sessions_closed":   s.SessionsClosed,
		"sessions_rejected": s.SessionsRejected,

		"datagrams_in":        s.DatagramsIn,
		"datagrams_out":       s.DatagramsOut,
		"ws_messages_in":      s.WSMessagesIn,
		"ws_messages_out":     s.WSMessagesOut,
		"ws_send_dropped":     s.WSSendDropped,
		"udp_no_peer_dropped": s.UDPNoPeerDropped,

		"bytes_received":   s.BytesReceived,
		"bytes_skipped":    s.BytesSkipped,
		"frames_valid":     s.FramesValid,
		"rejects_by_kind":  s.RejectsByKind,
		"messages_by_type": s.MessagesByType,

		"unhandled":           s.Unhandled,
		"handler_errors":      s.HandlerErrors,
		"handler_panics":      s.HandlerPanics,
		"sequence_gaps":       s.SequenceGaps,
		"sequence_duplicates": s.SequenceDuplicates,

		"vehicles_seen": s.VehiclesSeen,
		"state_updates": s.StateUpdates,

		"publish_success": s.PublishSuccess,
		"publish_failure": s.PublishFailure,
		"publish_dropped": s.PublishDropped,

		"record_queue_dropped": s.RecordQueueDropped,
		"records_received":     s.RecordsReceived,
		"records_persisted":    s.RecordsPersisted,
		"records_dropped":      s.RecordsDropped,
		"dropped_by_type":      s.DroppedByType,

		"lode_write_success": s.LodeWriteSuccess,
		"lode_write_failure": s.LodeWriteFailure,
	}
}
