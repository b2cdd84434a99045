// Package metrics provides per-bridge counters.
//
// The Collector accumulates counters for one bridge process. It is a leaf
// package with no internal dependencies: reject reasons and message names are
// plain strings. Recording policy metrics are absorbed from policy.Stats at
// shutdown rather than recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Sessions
	SessionsOpened   int64
	SessionsClosed   int64
	SessionsRejected int64

	// Transport
	DatagramsIn      int64
	DatagramsOut     int64
	WSMessagesIn     int64
	WSMessagesOut    int64
	WSSendDropped    int64
	UDPNoPeerDropped int64

	// Framing
	BytesReceived int64
	BytesSkipped  int64
	FramesValid   int64
	RejectsByKind map[string]int64

	// Dispatch
	MessagesByType     map[string]int64
	Unhandled          int64
	HandlerErrors      int64
	HandlerPanics      int64
	SequenceGaps       int64
	SequenceDuplicates int64

	// Vehicle state
	VehiclesSeen int64
	StateUpdates int64

	// Adapter publishing
	PublishSuccess int64
	PublishFailure int64
	PublishDropped int64

	// Recording (absorbed from policy.Stats at shutdown, except the queue drop)
	RecordQueueDropped int64
	RecordsReceived    int64
	RecordsPersisted   int64
	RecordsDropped     int64
	DroppedByType      map[string]int64

	// Lode / Storage
	LodeWriteSuccess int64
	LodeWriteFailure int64

	// Dimensions (informational, set at construction)
	Policy         string
	StorageBackend string
	BridgeID       string
}

// Collector accumulates bridge counters.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, storageBackend, bridgeID string) *Collector {
	return &Collector{s: Snapshot{
		RejectsByKind:  make(map[string]int64),
		MessagesByType: make(map[string]int64),
		DroppedByType:  make(map[string]int64),
		Policy:         policy,
		StorageBackend: storageBackend,
		BridgeID:       bridgeID,
	}}
}

// update applies f under the lock. No-op on a nil collector.
func (c *Collector) update(f func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	f(&c.s)
	c.mu.Unlock()
}

// --- Sessions ---

// IncSessionOpened records an accepted WebSocket session.
func (c *Collector) IncSessionOpened() { c.update(func(s *Snapshot) { s.SessionsOpened++ }) }

// IncSessionClosed records a closed WebSocket session.
func (c *Collector) IncSessionClosed() { c.update(func(s *Snapshot) { s.SessionsClosed++ }) }

// IncSessionRejected records a session refused because the hub was full.
func (c *Collector) IncSessionRejected() { c.update(func(s *Snapshot) { s.SessionsRejected++ }) }

// --- Transport ---

func (c *Collector) IncDatagramIn()  { c.update(func(s *Snapshot) { s.DatagramsIn++ }) }
func (c *Collector) IncDatagramOut() { c.update(func(s *Snapshot) { s.DatagramsOut++ }) }
func (c *Collector) IncWSIn()        { c.update(func(s *Snapshot) { s.WSMessagesIn++ }) }
func (c *Collector) IncWSOut()       { c.update(func(s *Snapshot) { s.WSMessagesOut++ }) }

// IncWSSendDropped records a broadcast dropped because a client queue was full.
func (c *Collector) IncWSSendDropped() { c.update(func(s *Snapshot) { s.WSSendDropped++ }) }

// IncUDPNoPeer records WebSocket traffic dropped because no UDP peer was known yet.
func (c *Collector) IncUDPNoPeer() { c.update(func(s *Snapshot) { s.UDPNoPeerDropped++ }) }

// --- Framing ---

// AddBytes records received and skipped (non-frame) stream bytes.
func (c *Collector) AddBytes(received, skipped int64) {
	c.update(func(s *Snapshot) {
		s.BytesReceived += received
		s.BytesSkipped += skipped
	})
}

// IncFrameValid records a frame that passed validation.
func (c *Collector) IncFrameValid() { c.update(func(s *Snapshot) { s.FramesValid++ }) }

// IncReject records a rejected candidate frame by reason.
func (c *Collector) IncReject(kind string) {
	c.update(func(s *Snapshot) { s.RejectsByKind[kind]++ })
}

// --- Dispatch ---

// IncMessage records a dispatched message by name.
func (c *Collector) IncMessage(name string) {
	c.update(func(s *Snapshot) { s.MessagesByType[name]++ })
}

// IncUnhandled records a message no handler was registered for.
func (c *Collector) IncUnhandled() { c.update(func(s *Snapshot) { s.Unhandled++ }) }

// IncHandlerError records a handler that returned an error.
func (c *Collector) IncHandlerError() { c.update(func(s *Snapshot) { s.HandlerErrors++ }) }

// IncHandlerPanic records a handler panic that was recovered.
func (c *Collector) IncHandlerPanic() { c.update(func(s *Snapshot) { s.HandlerPanics++ }) }

// IncSequenceGap records a per-source sequence discontinuity.
func (c *Collector) IncSequenceGap() { c.update(func(s *Snapshot) { s.SequenceGaps++ }) }

// IncSequenceDuplicate records a repeated sequence number.
func (c *Collector) IncSequenceDuplicate() { c.update(func(s *Snapshot) { s.SequenceDuplicates++ }) }

// --- Vehicle state ---

func (c *Collector) IncVehicleSeen()  { c.update(func(s *Snapshot) { s.VehiclesSeen++ }) }
func (c *Collector) IncStateUpdate()  { c.update(func(s *Snapshot) { s.StateUpdates++ }) }

// --- Adapter publishing ---

func (c *Collector) IncPublishSuccess() { c.update(func(s *Snapshot) { s.PublishSuccess++ }) }
func (c *Collector) IncPublishFailure() { c.update(func(s *Snapshot) { s.PublishFailure++ }) }

// IncPublishDropped records an update dropped because the worker pool was saturated.
func (c *Collector) IncPublishDropped() { c.update(func(s *Snapshot) { s.PublishDropped++ }) }

// --- Lode / Storage ---
// Lode counters are per-call, not per-record. Per-record granularity is
// tracked separately by policy.Stats.

// IncLodeWriteSuccess records a successful Lode write operation (per-call).
func (c *Collector) IncLodeWriteSuccess() { c.update(func(s *Snapshot) { s.LodeWriteSuccess++ }) }

// IncLodeWriteFailure records a failed Lode write operation (per-call).
func (c *Collector) IncLodeWriteFailure() { c.update(func(s *Snapshot) { s.LodeWriteFailure++ }) }

// --- Recording ---

// IncRecordQueueDropped records a message the recorder queue had no room for.
func (c *Collector) IncRecordQueueDropped() { c.update(func(s *Snapshot) { s.RecordQueueDropped++ }) }

// AbsorbPolicyStats copies recording counters from policy.Stats into the collector.
// Called once at shutdown with the final policy stats snapshot.
func (c *Collector) AbsorbPolicyStats(total, persisted, dropped int64, droppedByType map[string]int64) {
	c.update(func(s *Snapshot) {
		s.RecordsReceived = total
		s.RecordsPersisted = persisted
		s.RecordsDropped = dropped
		s.DroppedByType = copyMap(droppedByType)
	})
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.s
	out.RejectsByKind = copyMap(c.s.RejectsByKind)
	out.MessagesByType = copyMap(c.s.MessagesByType)
	out.DroppedByType = copyMap(c.s.DroppedByType)
	return out
}

// TotalRejects sums RejectsByKind.
func (s Snapshot) TotalRejects() int64 {
	var n int64
	for _, v := range s.RejectsByKind {
		n += v
	}
	return n
}

func copyMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
