package mavlink

import (
	"errors"
	"fmt"
)

// ErrNeedMore is returned by Parser.Next when the buffer holds no complete frame.
var ErrNeedMore = errors.New("mavlink: insufficient data")

// RejectKind classifies why a candidate frame was rejected.
type RejectKind int

const (
	// RejectCRC indicates the recomputed checksum did not match.
	RejectCRC RejectKind = iota
	// RejectUnknownMessage indicates no schema is registered for the message ID.
	RejectUnknownMessage
	// RejectLength indicates the length byte disagrees with the payload bytes.
	RejectLength
	// RejectIncompatFlags indicates unsupported v2 incompatibility flags.
	RejectIncompatFlags
)

func (k RejectKind) String() string {
	switch k {
	case RejectCRC:
		return "crc_mismatch"
	case RejectUnknownMessage:
		return "unknown_message"
	case RejectLength:
		return "bad_length"
	case RejectIncompatFlags:
		return "incompat_flags"
	default:
		return fmt.Sprintf("reject(%d)", int(k))
	}
}

// FrameError reports a rejected frame. It is a signal for the caller to
// continue scanning, not a stream failure.
type FrameError struct {
	Kind      RejectKind
	Msg       string
	MessageID MessageID
	SystemID  uint8
	Err       error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// RejectKindOf returns the reject kind of err if it is a *FrameError.
func RejectKindOf(err error) (RejectKind, bool) {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind, true
	}
	return 0, false
}
