package reader

import "errors"

// ParseMetricsRecord converts a Lode metrics record (map[string]any) to a
// MetricsSnapshot. Numbers may be int64 (direct writes) or float64 (JSON
// round-trips).
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		Ts:          toString(record["ts"]),
		RecordingID: toString(record["recording_id"]),
		BridgeID:    toString(record["bridge_id"]),

		Policy:         toString(record["policy"]),
		StorageBackend: toString(record["storage_backend"]),

		SessionsOpened:   toInt64(record["sessions_opened"]),
		SessionsRejected: toInt64(record["sessions_rejected"]),

		DatagramsIn:      toInt64(record["datagrams_in"]),
		DatagramsOut:     toInt64(record["datagrams_out"]),
		WSMessagesIn:     toInt64(record["ws_messages_in"]),
		WSMessagesOut:    toInt64(record["ws_messages_out"]),
		WSSendDropped:    toInt64(record["ws_send_dropped"]),
		UDPNoPeerDropped: toInt64(record["udp_no_peer_dropped"]),

		BytesReceived: toInt64(record["bytes_received"]),
		BytesSkipped:  toInt64(record["bytes_skipped"]),
		FramesValid:   toInt64(record["frames_valid"]),
		RejectsByKind: parseCounts(record["rejects_by_kind"]),

		Unhandled:      toInt64(record["unhandled"]),
		HandlerErrors:  toInt64(record["handler_errors"]),
		SequenceGaps:   toInt64(record["sequence_gaps"]),
		VehiclesSeen:   toInt64(record["vehicles_seen"]),
		PublishSuccess: toInt64(record["publish_success"]),
		PublishFailure: toInt64(record["publish_failure"]),
		PublishDropped: toInt64(record["publish_dropped"]),

		RecordsReceived:    toInt64(record["records_received"]),
		RecordsPersisted:   toInt64(record["records_persisted"]),
		RecordsDropped:     toInt64(record["records_dropped"]),
		RecordQueueDropped: toInt64(record["record_queue_dropped"]),
		DroppedByType:      parseCounts(record["dropped_by_type"]),

		LodeWriteSuccess: toInt64(record["lode_write_success"]),
		LodeWriteFailure: toInt64(record["lode_write_failure"]),
	}

	// the write path always sets these; a gap means a malformed record
	if snap.Ts == "" {
		return nil, errors.New("metrics record missing required field: ts")
	}
	if snap.RecordingID == "" {
		return nil, errors.New("metrics record missing required field: recording_id")
	}
	return snap, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// parseCounts accepts map[string]int64 (direct) and map[string]any (JSON).
func parseCounts(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		out := make(map[string]int64, len(m))
		for k, val := range m {
			out[k] = toInt64(val)
		}
		return out
	default:
		return nil
	}
}
