package policy

import (
	"context"
	"sync"

	"github.com/justapithecus/mavbridge/types"
)

// Sink persists batches of telemetry records.
type Sink interface {
	// WriteRecords persists a batch, preserving its order.
	WriteRecords(ctx context.Context, records []*types.TelemetryRecord) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink records writes in memory for tests.
type StubSink struct {
	mu sync.Mutex

	// Batches holds every successful WriteRecords call.
	Batches [][]*types.TelemetryRecord
	// Closed indicates whether Close was called.
	Closed bool
	// ErrorOnWrite, if non-nil, is returned by WriteRecords.
	ErrorOnWrite error
}

// NewStubSink creates an empty stub sink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteRecords records the batch unless ErrorOnWrite is set.
func (s *StubSink) WriteRecords(_ context.Context, records []*types.TelemetryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.Batches = append(s.Batches, records)
	return nil
}

// SetError sets ErrorOnWrite under the sink's lock.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	s.ErrorOnWrite = err
	s.mu.Unlock()
}

// Records returns every written record in write order.
func (s *StubSink) Records() []*types.TelemetryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.TelemetryRecord
	for _, b := range s.Batches {
		out = append(out, b...)
	}
	return out
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

var _ Sink = (*StubSink)(nil)
