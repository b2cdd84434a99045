package lode

import (
	"context"

	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/policy"
	"github.com/justapithecus/mavbridge/types"
)

// InstrumentedSink counts successful and failed writes of an inner sink.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps inner. collector may be nil.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteRecords delegates and records the outcome.
func (s *InstrumentedSink) WriteRecords(ctx context.Context, records []*types.TelemetryRecord) error {
	err := s.inner.WriteRecords(ctx, records)
	if err != nil {
		s.collector.IncLodeWriteFailure()
	} else {
		s.collector.IncLodeWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

var _ policy.Sink = (*InstrumentedSink)(nil)
