// Package lode persists recorded telemetry in a Lode dataset.
//
// Records are stored as JSONL under a Hive layout partitioned by
// day/recording_id/record_kind. Telemetry records and the recorder's final
// metrics snapshot share the dataset; sidecar files (the final fleet state)
// sit beside them under files/.
package lode

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/policy"
	"github.com/justapithecus/mavbridge/types"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "mavbridge"

// DeriveDay computes the partition day (YYYY-MM-DD, UTC) from a start time.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds the partition identity of one recording.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Day is the partition day of the recording start.
	Day string
	// RecordingID identifies this recorder run.
	RecordingID string
	// BridgeID is copied onto every record when set.
	BridgeID string
}

// Client abstracts the Lode storage client.
type Client interface {
	// WriteRecords writes a batch of telemetry records in order.
	WriteRecords(ctx context.Context, records []*types.TelemetryRecord) error

	// WriteMetrics writes the final metrics snapshot of the recording.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error

	// Close releases client resources.
	Close() error
}

// Sink adapts a Client to policy.Sink.
type Sink struct {
	client Client
}

// NewSink creates a sink writing through client.
func NewSink(client Client) *Sink {
	return &Sink{client: client}
}

// WriteRecords implements policy.Sink.
func (s *Sink) WriteRecords(ctx context.Context, records []*types.TelemetryRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.client.WriteRecords(ctx, records)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

var _ policy.Sink = (*Sink)(nil)

// StubClient keeps writes in memory for tests.
type StubClient struct {
	mu      sync.Mutex
	Records []*types.TelemetryRecord
	Metrics []metrics.Snapshot
	Closed  bool
}

// NewStubClient creates an empty stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteRecords implements Client.
func (c *StubClient) WriteRecords(_ context.Context, records []*types.TelemetryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Records = append(c.Records, records...)
	return nil
}

// WriteMetrics implements Client.
func (c *StubClient) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Metrics = append(c.Metrics, snap)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ Client = (*StubClient)(nil)
