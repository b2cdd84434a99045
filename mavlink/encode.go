package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// EncodePayload serializes values through schema into a full-length payload.
// Missing fields encode as zero. Integer fields accept any Go integer or
// float64; float fields accept float32, float64 or integers. Arrays accept a
// typed slice or []any, char arrays accept string or []byte.
func EncodePayload(schema *Schema, values map[string]any) ([]byte, error) {
	buf := make([]byte, schema.totalLen)
	for i, f := range schema.Fields {
		v, ok := values[f.Name]
		if !ok || v == nil {
			continue
		}
		off := schema.offsets[i]
		if err := encodeField(f, buf[off:off+f.Len()], v); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", schema.Name, f.Name, err)
		}
	}
	return buf, nil
}

// EncodeFrame builds a complete wire frame. h.Length is derived from the
// payload: v1 drops extension fields, v2 truncates trailing zero bytes
// (keeping at least one). signature is required when h is signed and is
// appended after the checksum.
func EncodeFrame(h Header, schema *Schema, payload []byte, signature []byte) ([]byte, error) {
	switch h.Version {
	case V1:
		if h.MessageID > 0xFF {
			return nil, fmt.Errorf("message id %d does not fit a v1 frame", uint32(h.MessageID))
		}
		if len(payload) > schema.baseLen {
			payload = payload[:schema.baseLen]
		}
		h.IncompatFlags, h.CompatFlags = 0, 0
	case V2:
		end := len(payload)
		for end > 1 && payload[end-1] == 0 {
			end--
		}
		payload = payload[:end]
	default:
		return nil, fmt.Errorf("unsupported version %d", int(h.Version))
	}
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("payload length %d exceeds %d", len(payload), MaxPayloadLen)
	}
	if h.Signed() && len(signature) != SignatureLen {
		return nil, fmt.Errorf("signature length %d, want %d", len(signature), SignatureLen)
	}
	h.Length = uint8(len(payload))

	hl := h.headerLen()
	total := hl + len(payload) + ChecksumLen
	if h.Signed() {
		total += SignatureLen
	}
	out := make([]byte, total)
	if h.Version == V2 {
		out[0] = MarkerV2
		out[1] = h.Length
		out[2] = h.IncompatFlags
		out[3] = h.CompatFlags
		out[4] = h.Sequence
		out[5] = h.SystemID
		out[6] = h.ComponentID
		out[7] = byte(h.MessageID)
		out[8] = byte(h.MessageID >> 8)
		out[9] = byte(h.MessageID >> 16)
	} else {
		out[0] = MarkerV1
		out[1] = h.Length
		out[2] = h.Sequence
		out[3] = h.SystemID
		out[4] = h.ComponentID
		out[5] = byte(h.MessageID)
	}
	copy(out[hl:], payload)
	sum := Checksum(out[1:hl+len(payload)], schema.CRCExtra)
	binary.LittleEndian.PutUint16(out[hl+len(payload):], sum)
	if h.Signed() {
		copy(out[hl+len(payload)+ChecksumLen:], signature)
	}
	return out, nil
}

// Encoder produces outbound frames for one local system/component,
// incrementing the sequence number per frame. Safe for concurrent use.
type Encoder struct {
	registry    *Registry
	version     Version
	systemID    uint8
	componentID uint8

	mu  sync.Mutex
	seq uint8
}

// NewEncoder creates an encoder. A nil reg uses Common().
func NewEncoder(reg *Registry, version Version, systemID, componentID uint8) *Encoder {
	if reg == nil {
		reg = Common()
	}
	return &Encoder{registry: reg, version: version, systemID: systemID, componentID: componentID}
}

// Encode serializes the named fields of message id into a frame.
func (e *Encoder) Encode(id MessageID, values map[string]any) ([]byte, error) {
	schema, ok := e.registry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("unknown message id %d", uint32(id))
	}
	payload, err := EncodePayload(schema, values)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	seq := e.seq
	e.seq++
	e.mu.Unlock()

	return EncodeFrame(Header{
		Version:     e.version,
		Sequence:    seq,
		SystemID:    e.systemID,
		ComponentID: e.componentID,
		MessageID:   id,
	}, schema, payload, nil)
}

func encodeField(f Field, b []byte, v any) error {
	if f.Type == Char {
		switch s := v.(type) {
		case string:
			copy(b, s)
		case []byte:
			copy(b, s)
		default:
			return fmt.Errorf("cannot encode %T as char", v)
		}
		return nil
	}
	if f.ArrayLen == 0 {
		return encodeScalar(f.Type, b, v)
	}

	elems, err := toSlice(v)
	if err != nil {
		return err
	}
	if len(elems) > f.ArrayLen {
		return fmt.Errorf("array length %d exceeds %d", len(elems), f.ArrayLen)
	}
	size := f.Type.Size()
	for i, e := range elems {
		if err := encodeScalar(f.Type, b[i*size:(i+1)*size], e); err != nil {
			return err
		}
	}
	return nil
}

func encodeScalar(t FieldType, b []byte, v any) error {
	switch t {
	case Float:
		x, err := toFloat(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(x)))
		return nil
	case Double:
		x, err := toFloat(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
		return nil
	}

	x, err := toInt(v)
	if err != nil {
		return err
	}
	switch t.Size() {
	case 1:
		b[0] = byte(x)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(x))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(x))
	}
	return nil
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case float32:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot encode %T as integer", v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	}
	i, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("cannot encode %T as float", v)
	}
	return float64(i), nil
}

func toSlice(v any) ([]any, error) {
	switch s := v.(type) {
	case []any:
		return s, nil
	case []uint8:
		return sliceOf(s), nil
	case []int8:
		return sliceOf(s), nil
	case []uint16:
		return sliceOf(s), nil
	case []int16:
		return sliceOf(s), nil
	case []uint32:
		return sliceOf(s), nil
	case []int32:
		return sliceOf(s), nil
	case []uint64:
		return sliceOf(s), nil
	case []int64:
		return sliceOf(s), nil
	case []float32:
		return sliceOf(s), nil
	case []float64:
		return sliceOf(s), nil
	}
	return nil, fmt.Errorf("cannot encode %T as array", v)
}

func sliceOf[T any](s []T) []any {
	out := make([]any, len(s))
	for i, e := range s {
		out[i] = e
	}
	return out
}
