package types

import "time"

// Transport names the side of the bridge a message arrived on.
type Transport string

const (
	TransportUDP       Transport = "udp"
	TransportWebSocket Transport = "ws"
	TransportCapture   Transport = "capture"
)

// TelemetryRecord is one decoded MAVLink message as persisted by the
// recorder. Fields holds the decoded values in schema order; arrays are
// slices and char arrays are strings.
type TelemetryRecord struct {
	// SchemaVersion is the record shape version, see SchemaVersion.
	SchemaVersion string `msgpack:"schema_version" json:"schema_version"`
	// RecordingID identifies the recorder run that wrote this record.
	RecordingID string `msgpack:"recording_id" json:"recording_id"`
	// SessionID identifies the connection the bytes arrived on.
	SessionID string `msgpack:"session_id" json:"session_id"`
	// Transport is udp, ws, or capture.
	Transport Transport `msgpack:"transport" json:"transport"`
	// Seq is the recorder-assigned sequence number, starting at 1.
	Seq int64 `msgpack:"seq" json:"seq"`
	// ReceivedAt is when the frame was decoded.
	ReceivedAt time.Time `msgpack:"received_at" json:"received_at"`

	SystemID    uint8  `msgpack:"system_id" json:"system_id"`
	ComponentID uint8  `msgpack:"component_id" json:"component_id"`
	Sequence    uint8  `msgpack:"sequence" json:"sequence"`
	MessageID   uint32 `msgpack:"message_id" json:"message_id"`
	Message     string `msgpack:"message" json:"message"`
	// WireVersion is 1 or 2.
	WireVersion int `msgpack:"wire_version" json:"wire_version"`

	Fields map[string]any `msgpack:"fields" json:"fields"`
}

// Day returns the UTC partition day (YYYY-MM-DD) of the record.
func (r *TelemetryRecord) Day() string {
	return r.ReceivedAt.UTC().Format("2006-01-02")
}

// EstimatedSize is a rough in-memory size used for buffer accounting.
func (r *TelemetryRecord) EstimatedSize() int64 {
	size := int64(160 + len(r.Message) + len(r.SessionID) + len(r.RecordingID))
	for k, v := range r.Fields {
		size += int64(len(k)) + 16
		switch v := v.(type) {
		case string:
			size += int64(len(v))
		case []uint8:
			size += int64(len(v))
		case []uint16, []int16:
			size += 32
		}
	}
	return size
}
