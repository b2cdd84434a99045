// Package adapter publishes vehicle state changes to downstream systems.
//
// A Publisher sits on the vehicle.Fleet listener list, filters and throttles
// updates, and hands them to an Adapter on a bounded worker pool so the
// dispatching goroutine never blocks on network I/O.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/mavbridge/types"
	"github.com/justapithecus/mavbridge/vehicle"
)

// EventType is the event_type of every published vehicle event.
const EventType = "vehicle_update"

// VehicleEvent is the payload published for one vehicle update.
type VehicleEvent struct {
	SchemaVersion string `json:"schema_version" msgpack:"schema_version"`
	EventType     string `json:"event_type" msgpack:"event_type"` // always "vehicle_update"
	EventID       string `json:"event_id" msgpack:"event_id"`
	BridgeID      string `json:"bridge_id,omitempty" msgpack:"bridge_id,omitempty"`
	Kind          string `json:"kind" msgpack:"kind"`
	SystemID      uint8  `json:"system_id" msgpack:"system_id"`
	ComponentID   uint8  `json:"component_id" msgpack:"component_id"`
	Message       string `json:"message" msgpack:"message"`
	Timestamp     string `json:"timestamp" msgpack:"timestamp"` // RFC 3339, UTC
	VehicleType   uint8  `json:"vehicle_type" msgpack:"vehicle_type"`
	Armed         bool   `json:"armed" msgpack:"armed"`
	Data          any    `json:"data,omitempty" msgpack:"data,omitempty"`
}

// EventFromUpdate builds the published form of u.
func EventFromUpdate(u vehicle.Update, bridgeID string) *VehicleEvent {
	return &VehicleEvent{
		SchemaVersion: types.SchemaVersion,
		EventType:     EventType,
		EventID:       uuid.NewString(),
		BridgeID:      bridgeID,
		Kind:          string(u.Kind),
		SystemID:      u.SystemID,
		ComponentID:   u.State.ComponentID,
		Message:       u.MessageID.String(),
		Timestamp:     u.Time.UTC().Format(time.RFC3339Nano),
		VehicleType:   u.State.Type,
		Armed:         u.State.Armed,
		Data:          u.Message,
	}
}

// Adapter publishes vehicle events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *VehicleEvent) error

	// Close releases adapter resources.
	Close() error
}

// Codec serializes events for the wire.
type Codec interface {
	Marshal(event *VehicleEvent) ([]byte, error)
	ContentType() string
}

// Supported codec formats.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// NewCodec returns the codec for format. An empty format means JSON.
func NewCodec(format string) (Codec, error) {
	switch format {
	case "", FormatJSON:
		return jsonCodec{}, nil
	case FormatMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown adapter format %q (want json or msgpack)", format)
	}
}

type jsonCodec struct{}

func (jsonCodec) Marshal(e *VehicleEvent) ([]byte, error) { return json.Marshal(e) }
func (jsonCodec) ContentType() string                     { return "application/json" }

type msgpackCodec struct{}

func (msgpackCodec) Marshal(e *VehicleEvent) ([]byte, error) { return msgpack.Marshal(e) }
func (msgpackCodec) ContentType() string                     { return "application/msgpack" }
