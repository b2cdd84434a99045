package policy

import (
	"context"

	"github.com/justapithecus/mavbridge/types"
)

// StrictPolicy writes each record to the sink as it arrives. Nothing is
// buffered or dropped; the caller absorbs sink latency and sink errors.
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a strict policy writing to sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink, stats: newStatsRecorder()}
}

// Ingest writes the record immediately as a batch of one.
func (p *StrictPolicy) Ingest(ctx context.Context, record *types.TelemetryRecord) error {
	p.stats.add(func(s *Stats) { s.TotalRecords++ })

	if err := p.sink.WriteRecords(ctx, []*types.TelemetryRecord{record}); err != nil {
		p.stats.add(func(s *Stats) { s.Errors++ })
		return err
	}
	p.stats.add(func(s *Stats) { s.RecordsPersisted++ })
	return nil
}

// Flush only counts; there is nothing buffered.
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.add(func(s *Stats) { s.FlushCount++ })
	return nil
}

// Close closes the sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*StrictPolicy)(nil)
