package dispatch

import "github.com/justapithecus/mavbridge/mavlink"

// SeqResult classifies a sequence number against the previous one from the
// same source.
type SeqResult int

const (
	// SeqFirst is the first message seen from a source.
	SeqFirst SeqResult = iota
	// SeqInOrder follows the previous sequence number by one (mod 256).
	SeqInOrder
	// SeqGap skips one or more sequence numbers.
	SeqGap
	// SeqDuplicate repeats the previous sequence number.
	SeqDuplicate
)

func (r SeqResult) String() string {
	switch r {
	case SeqFirst:
		return "first"
	case SeqInOrder:
		return "in_order"
	case SeqGap:
		return "gap"
	case SeqDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// SourceKey identifies a MAVLink source component.
type SourceKey struct {
	SystemID    uint8
	ComponentID uint8
}

// SequenceTracker remembers the last sequence number per source. Results are
// informational; delivery never depends on them. One tracker per session, not
// safe for concurrent use.
type SequenceTracker struct {
	last map[SourceKey]uint8
}

// NewSequenceTracker creates an empty tracker.
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{last: make(map[SourceKey]uint8)}
}

// Observe records h's sequence number. For a gap it also returns how many
// sequence numbers were skipped.
func (t *SequenceTracker) Observe(h mavlink.MessageHeader) (SeqResult, int) {
	key := SourceKey{SystemID: h.SystemID, ComponentID: h.ComponentID}
	last, seen := t.last[key]
	t.last[key] = h.Sequence
	if !seen {
		return SeqFirst, 0
	}
	switch diff := h.Sequence - last; diff {
	case 1:
		return SeqInOrder, 0
	case 0:
		return SeqDuplicate, 0
	default:
		return SeqGap, int(diff) - 1
	}
}

// Sources returns the number of tracked sources.
func (t *SequenceTracker) Sources() int { return len(t.last) }

// Reset forgets all sources, e.g. after a reconnect.
func (t *SequenceTracker) Reset() {
	clear(t.last)
}
