// Package reader provides the read-side data access layer for the
// mavbridge CLI.
//
// It turns recorded Lode datasets into the view payloads rendered by the
// stats command, in plain or TUI mode. Nothing here touches the bridge
// runtime.
package reader

import "time"

// DatasetStats summarizes the telemetry records of a dataset.
type DatasetStats struct {
	Dataset    string         `json:"dataset"`
	Records    int64          `json:"records"`
	Recordings []string       `json:"recordings"`
	First      time.Time      `json:"first"`
	Last       time.Time      `json:"last"`
	Messages   []MessageCount `json:"messages"`
	Vehicles   []VehicleCount `json:"vehicles"`
}

// MessageCount is the number of records of one message type.
type MessageCount struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// VehicleCount is the number of records from one system ID.
type VehicleCount struct {
	SystemID int   `json:"system_id"`
	Count    int64 `json:"count"`
}

// MetricsSnapshot is the metrics record of one finished recording.
type MetricsSnapshot struct {
	Ts          string `json:"ts"`
	RecordingID string `json:"recording_id"`
	BridgeID    string `json:"bridge_id,omitempty"`

	Policy         string `json:"policy"`
	StorageBackend string `json:"storage_backend"`

	SessionsOpened   int64 `json:"sessions_opened"`
	SessionsRejected int64 `json:"sessions_rejected"`

	DatagramsIn      int64 `json:"datagrams_in"`
	DatagramsOut     int64 `json:"datagrams_out"`
	WSMessagesIn     int64 `json:"ws_messages_in"`
	WSMessagesOut    int64 `json:"ws_messages_out"`
	WSSendDropped    int64 `json:"ws_send_dropped"`
	UDPNoPeerDropped int64 `json:"udp_no_peer_dropped"`

	BytesReceived int64            `json:"bytes_received"`
	BytesSkipped  int64            `json:"bytes_skipped"`
	FramesValid   int64            `json:"frames_valid"`
	RejectsByKind map[string]int64 `json:"rejects_by_kind,omitempty"`

	Unhandled      int64 `json:"unhandled"`
	HandlerErrors  int64 `json:"handler_errors"`
	SequenceGaps   int64 `json:"sequence_gaps"`
	VehiclesSeen   int64 `json:"vehicles_seen"`
	PublishSuccess int64 `json:"publish_success"`
	PublishFailure int64 `json:"publish_failure"`
	PublishDropped int64 `json:"publish_dropped"`

	RecordsReceived    int64            `json:"records_received"`
	RecordsPersisted   int64            `json:"records_persisted"`
	RecordsDropped     int64            `json:"records_dropped"`
	RecordQueueDropped int64            `json:"record_queue_dropped"`
	DroppedByType      map[string]int64 `json:"dropped_by_type,omitempty"`

	LodeWriteSuccess int64 `json:"lode_write_success"`
	LodeWriteFailure int64 `json:"lode_write_failure"`
}

// TotalRejects sums the rejected-frame counters.
func (m *MetricsSnapshot) TotalRejects() int64 {
	var n int64
	for _, v := range m.RejectsByKind {
		n += v
	}
	return n
}
