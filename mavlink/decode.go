package mavlink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// FieldValue is one decoded payload field.
type FieldValue struct {
	Name  string
	Value any
}

// DecodedMessage is a frame body decoded through its schema.
// Fields keep wire order. Message holds the typed variant when the schema
// defines one, and is nil otherwise.
type DecodedMessage struct {
	ID      MessageID
	Name    string
	Version Version
	Header  MessageHeader
	Fields  []FieldValue
	Message Message

	schema *Schema
}

// Field returns the value of the named field.
func (m *DecodedMessage) Field(name string) (any, bool) {
	if m.schema != nil {
		if i := m.schema.FieldIndex(name); i >= 0 && i < len(m.Fields) {
			return m.Fields[i].Value, true
		}
		return nil, false
	}
	for _, f := range m.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// FieldMap returns the fields as a map, for serialization.
func (m *DecodedMessage) FieldMap() map[string]any {
	out := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		out[f.Name] = f.Value
	}
	return out
}

// fieldAs returns the named field converted to T, or the zero value.
func fieldAs[T any](m *DecodedMessage, name string) T {
	var zero T
	v, ok := m.Field(name)
	if !ok {
		return zero
	}
	t, ok := v.(T)
	if !ok {
		return zero
	}
	return t
}

// Decode decodes a validated frame with its schema. Payloads shorter than the
// schema (v2 trailing-zero truncation, v1 frames without extensions) are
// zero-filled before decoding; bytes past the last known field are ignored.
func Decode(frame *Frame, schema *Schema) (*DecodedMessage, error) {
	if schema == nil || schema.ID != frame.Header.MessageID {
		return nil, &FrameError{
			Kind:      RejectUnknownMessage,
			Msg:       fmt.Sprintf("no schema for message id %d", uint32(frame.Header.MessageID)),
			MessageID: frame.Header.MessageID,
			SystemID:  frame.Header.SystemID,
		}
	}

	payload := frame.Payload
	if len(payload) != int(frame.Header.Length) {
		return nil, &FrameError{
			Kind:      RejectLength,
			Msg:       fmt.Sprintf("%s: payload %d bytes, length byte says %d", schema.Name, len(payload), frame.Header.Length),
			MessageID: frame.Header.MessageID,
			SystemID:  frame.Header.SystemID,
		}
	}
	if len(payload) > schema.totalLen {
		payload = payload[:schema.totalLen]
	}
	if len(payload) < schema.totalLen {
		padded := make([]byte, schema.totalLen)
		copy(padded, payload)
		payload = padded
	}

	fields := make([]FieldValue, len(schema.Fields))
	for i, f := range schema.Fields {
		off := schema.offsets[i]
		fields[i] = FieldValue{Name: f.Name, Value: decodeField(f, payload[off:off+f.Len()])}
	}

	msg := &DecodedMessage{
		ID:      schema.ID,
		Name:    schema.Name,
		Version: frame.Header.Version,
		Header:  frame.MessageHeader(),
		Fields:  fields,
		schema:  schema,
	}
	if schema.typed != nil {
		msg.Message = schema.typed(msg)
	}
	return msg, nil
}

// DecodeFrame looks up the frame's schema in reg and decodes it.
func DecodeFrame(frame *Frame, reg *Registry) (*DecodedMessage, error) {
	schema, _ := reg.Lookup(frame.Header.MessageID)
	return Decode(frame, schema)
}

func decodeField(f Field, b []byte) any {
	if f.Type == Char {
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
		return string(b)
	}
	if f.ArrayLen == 0 {
		return decodeScalar(f.Type, b)
	}

	size := f.Type.Size()
	switch f.Type {
	case Uint8:
		out := make([]uint8, f.ArrayLen)
		copy(out, b)
		return out
	case Int8:
		out := make([]int8, f.ArrayLen)
		for i := range out {
			out[i] = int8(b[i])
		}
		return out
	case Uint16:
		out := make([]uint16, f.ArrayLen)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(b[i*size:])
		}
		return out
	case Int16:
		out := make([]int16, f.ArrayLen)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(b[i*size:]))
		}
		return out
	case Uint32:
		out := make([]uint32, f.ArrayLen)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(b[i*size:])
		}
		return out
	case Int32:
		out := make([]int32, f.ArrayLen)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(b[i*size:]))
		}
		return out
	case Uint64:
		out := make([]uint64, f.ArrayLen)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(b[i*size:])
		}
		return out
	case Int64:
		out := make([]int64, f.ArrayLen)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(b[i*size:]))
		}
		return out
	case Float:
		out := make([]float32, f.ArrayLen)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size:]))
		}
		return out
	case Double:
		out := make([]float64, f.ArrayLen)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*size:]))
		}
		return out
	}
	return nil
}

func decodeScalar(t FieldType, b []byte) any {
	switch t {
	case Uint8:
		return b[0]
	case Int8:
		return int8(b[0])
	case Uint16:
		return binary.LittleEndian.Uint16(b)
	case Int16:
		return int16(binary.LittleEndian.Uint16(b))
	case Uint32:
		return binary.LittleEndian.Uint32(b)
	case Int32:
		return int32(binary.LittleEndian.Uint32(b))
	case Uint64:
		return binary.LittleEndian.Uint64(b)
	case Int64:
		return int64(binary.LittleEndian.Uint64(b))
	case Float:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case Double:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return nil
}
