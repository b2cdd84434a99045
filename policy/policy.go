// Package policy decides how recorded telemetry reaches storage.
//
// Two policies exist. Strict writes every record as it arrives and never
// drops. Buffered batches records in a bounded buffer and, when full, sheds
// high-rate message types (attitude, RC, servo output and the like) before
// it refuses anything else.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/justapithecus/mavbridge/types"
)

// Policy controls buffering, dropping and persistence of telemetry records.
type Policy interface {
	// Ingest handles one record. Droppable records may be discarded;
	// a non-droppable record that cannot be accepted returns an error.
	Ingest(ctx context.Context, record *types.TelemetryRecord) error

	// Flush writes any buffered records.
	Flush(ctx context.Context) error

	// Close flushes what it can and closes the sink.
	Close() error

	// Stats returns a consistent snapshot of policy counters.
	Stats() Stats
}

// Policy names accepted by New.
const (
	NameStrict   = "strict"
	NameBuffered = "buffered"
)

// New builds the named policy over sink.
func New(name string, sink Sink, buffered BufferedConfig) (Policy, error) {
	switch name {
	case "", NameStrict:
		return NewStrictPolicy(sink), nil
	case NameBuffered:
		return NewBufferedPolicy(sink, buffered)
	default:
		return nil, fmt.Errorf("unknown policy %q (want strict or buffered)", name)
	}
}

// Stats are policy observability counters.
type Stats struct {
	// TotalRecords is the number of records received.
	TotalRecords int64
	// RecordsPersisted is the number of records written to the sink.
	RecordsPersisted int64
	// RecordsDropped is the number of records discarded.
	RecordsDropped int64
	// DroppedByType maps message names to drop counts.
	DroppedByType map[string]int64
	// BufferSize is the current estimated buffer size in bytes.
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors counts sink failures and refused records.
	Errors int64
}

// DefaultDroppable lists the high-rate messages that may be shed under
// pressure. Heartbeats, status text, commands, parameters and home
// position are never dropped.
var DefaultDroppable = []string{
	"ATTITUDE",
	"RC_CHANNELS",
	"SERVO_OUTPUT_RAW",
	"VFR_HUD",
	"SYSTEM_TIME",
	"GPS_RAW_INT",
}

// DropSet is a set of droppable message names.
type DropSet map[string]bool

// NewDropSet builds a set from names. Nil names means DefaultDroppable.
func NewDropSet(names []string) DropSet {
	if names == nil {
		names = DefaultDroppable
	}
	s := make(DropSet, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Droppable reports whether records of message name may be dropped.
func (s DropSet) Droppable(name string) bool { return s[name] }

// statsRecorder holds counters behind a mutex. StrictPolicy uses the
// locking methods; BufferedPolicy calls the Locked variants while holding
// its own mutex so buffer state and counters move together.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{stats: Stats{DroppedByType: make(map[string]int64)}}
}

func (r *statsRecorder) add(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(r.stats.BufferSize)
}

func (r *statsRecorder) incDroppedLocked(name string) {
	r.stats.RecordsDropped++
	r.stats.DroppedByType[name]++
}

// snapshotLocked copies the counters with the given buffer size.
func (r *statsRecorder) snapshotLocked(bufferSize int64) Stats {
	s := r.stats
	s.BufferSize = bufferSize
	s.DroppedByType = make(map[string]int64, len(r.stats.DroppedByType))
	for k, v := range r.stats.DroppedByType {
		s.DroppedByType[k] = v
	}
	return s
}
