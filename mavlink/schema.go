package mavlink

import (
	"fmt"
	"sort"
)

// FieldType is the wire type of a payload field.
type FieldType int

// Wire types. Char is a single byte of text; char arrays decode to strings.
const (
	Uint8 FieldType = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float
	Double
	Char
)

// Size returns the width in bytes of one element of this type.
func (t FieldType) Size() int {
	switch t {
	case Uint8, Int8, Char:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float:
		return 4
	case Uint64, Int64, Double:
		return 8
	default:
		return 0
	}
}

func (t FieldType) String() string {
	switch t {
	case Uint8:
		return "uint8_t"
	case Int8:
		return "int8_t"
	case Uint16:
		return "uint16_t"
	case Int16:
		return "int16_t"
	case Uint32:
		return "uint32_t"
	case Int32:
		return "int32_t"
	case Uint64:
		return "uint64_t"
	case Int64:
		return "int64_t"
	case Float:
		return "float"
	case Double:
		return "double"
	case Char:
		return "char"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field describes one payload field in wire order.
// ArrayLen is zero for scalar fields.
type Field struct {
	Name      string
	Type      FieldType
	ArrayLen  int
	Extension bool
}

// Len returns the number of payload bytes the field occupies.
func (f Field) Len() int {
	if f.ArrayLen > 0 {
		return f.Type.Size() * f.ArrayLen
	}
	return f.Type.Size()
}

// Schema is the wire layout of a single message type.
// Fields are listed in wire order (MAVLink sorts base fields by type size;
// extension fields follow in declaration order).
type Schema struct {
	ID       MessageID
	Name     string
	CRCExtra byte
	Fields   []Field

	offsets  []int
	index    map[string]int
	baseLen  int
	totalLen int
	typed    func(*DecodedMessage) Message
}

// NewSchema builds a schema and precomputes field offsets.
func NewSchema(id MessageID, name string, crcExtra byte, fields ...Field) *Schema {
	s := &Schema{
		ID:       id,
		Name:     name,
		CRCExtra: crcExtra,
		Fields:   fields,
		offsets:  make([]int, len(fields)),
		index:    make(map[string]int, len(fields)),
	}
	off := 0
	for i, f := range fields {
		s.offsets[i] = off
		s.index[f.Name] = i
		off += f.Len()
		if !f.Extension {
			s.baseLen = off
		}
	}
	s.totalLen = off
	return s
}

// PayloadLen returns the full payload length including extension fields.
func (s *Schema) PayloadLen() int { return s.totalLen }

// BaseLen returns the payload length without extension fields (the MAVLink v1 length).
func (s *Schema) BaseLen() int { return s.baseLen }

// FieldIndex returns the position of the named field, or -1.
func (s *Schema) FieldIndex(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Registry is an immutable messageID → schema table.
// It is safe for concurrent use once constructed.
type Registry struct {
	byID   map[MessageID]*Schema
	byName map[string]*Schema
}

// NewRegistry builds a registry from schemas. Duplicate IDs or names are errors.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{
		byID:   make(map[MessageID]*Schema, len(schemas)),
		byName: make(map[string]*Schema, len(schemas)),
	}
	for _, s := range schemas {
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate message id %d (%s)", s.ID, s.Name)
		}
		if _, dup := r.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate message name %s", s.Name)
		}
		r.byID[s.ID] = s
		r.byName[s.Name] = s
	}
	return r, nil
}

// Lookup returns the schema for id.
func (r *Registry) Lookup(id MessageID) (*Schema, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// LookupName returns the schema with the given message name.
func (r *Registry) LookupName(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// IDs returns all registered message IDs in ascending order.
func (r *Registry) IDs() []MessageID {
	ids := make([]MessageID, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int { return len(r.byID) }
