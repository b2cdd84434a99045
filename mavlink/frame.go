// Package mavlink implements MAVLink v1/v2 stream framing, validation and
// payload decoding.
//
// Bytes arrive in arbitrary chunks through a Parser (Feed), which scans for
// start markers, validates length and CRC against a Registry of message
// schemas, and yields immutable Frames. Decode turns a Frame into a
// DecodedMessage carrying both an ordered field list and a typed Message.
// Rejected frames are reported as *FrameError values and never stop the stream.
package mavlink

import "fmt"

// Wire constants.
const (
	// MarkerV1 starts a MAVLink v1 frame.
	MarkerV1 byte = 0xFE
	// MarkerV2 starts a MAVLink v2 frame.
	MarkerV2 byte = 0xFD

	// HeaderLenV1 is the v1 header length including the marker.
	HeaderLenV1 = 6
	// HeaderLenV2 is the v2 header length including the marker.
	HeaderLenV2 = 10
	// ChecksumLen is the trailing CRC length.
	ChecksumLen = 2
	// SignatureLen is the length of the optional v2 signature block.
	SignatureLen = 13

	// MaxPayloadLen is the largest payload the length byte can declare.
	MaxPayloadLen = 255
	// MaxFrameLenV1 is the largest possible v1 frame.
	MaxFrameLenV1 = HeaderLenV1 + MaxPayloadLen + ChecksumLen
	// MaxFrameLenV2 is the largest possible v2 frame (signed).
	MaxFrameLenV2 = HeaderLenV2 + MaxPayloadLen + ChecksumLen + SignatureLen

	// IncompatFlagSigned marks a v2 frame carrying a signature block.
	IncompatFlagSigned byte = 0x01
)

// Version is the MAVLink protocol version of a frame.
type Version int

const (
	// V1 frames start with 0xFE and carry an 8-bit message ID.
	V1 Version = 1
	// V2 frames start with 0xFD and carry a 24-bit message ID.
	V2 Version = 2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("v%d", int(v))
	}
}

// MessageID identifies a message type. v1 frames only carry the low byte.
type MessageID uint32

func (id MessageID) String() string {
	if s, ok := common.Lookup(id); ok {
		return s.Name
	}
	return fmt.Sprintf("MSG_%d", uint32(id))
}

// Header holds the positional header fields of a frame.
// IncompatFlags and CompatFlags are always zero for v1.
type Header struct {
	Version       Version
	Length        uint8
	IncompatFlags uint8
	CompatFlags   uint8
	Sequence      uint8
	SystemID      uint8
	ComponentID   uint8
	MessageID     MessageID
}

// headerLen returns the header length (marker included) for the version.
func (h Header) headerLen() int {
	if h.Version == V2 {
		return HeaderLenV2
	}
	return HeaderLenV1
}

// Signed reports whether the v2 signature bit is set.
func (h Header) Signed() bool {
	return h.Version == V2 && h.IncompatFlags&IncompatFlagSigned != 0
}

// CandidateFrame is a length-complete frame sliced out of the stream buffer
// before CRC validation. Its byte slices alias the buffer and are only valid
// until the next Feed or Next call.
type CandidateFrame struct {
	Header    Header
	Payload   []byte
	Checksum  uint16
	Signature []byte

	// raw spans marker through signature.
	raw []byte
}

// Len returns the total number of bytes the candidate spans.
func (c *CandidateFrame) Len() int { return len(c.raw) }

// crcSpan returns the bytes covered by the checksum (after the marker,
// through the end of the payload).
func (c *CandidateFrame) crcSpan() []byte {
	return c.raw[1 : c.Header.headerLen()+len(c.Payload)]
}

// Frame is a validated frame. It owns its bytes and must not be modified.
type Frame struct {
	Header    Header
	Payload   []byte
	Checksum  uint16
	Signature []byte
	// Raw is the complete frame as received, marker through signature.
	Raw []byte
}

// MessageHeader is the addressing information carried alongside a decoded body.
type MessageHeader struct {
	SystemID    uint8
	ComponentID uint8
	Sequence    uint8
}

// MessageHeader returns the addressing subset of the frame header.
func (f *Frame) MessageHeader() MessageHeader {
	return MessageHeader{
		SystemID:    f.Header.SystemID,
		ComponentID: f.Header.ComponentID,
		Sequence:    f.Header.Sequence,
	}
}
