package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/justapithecus/mavbridge/dispatch"
	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/mavlink"
	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/policy"
	"github.com/justapithecus/mavbridge/types"
	"github.com/justapithecus/mavbridge/vehicle"
)

// Recorder defaults.
const (
	DefaultRecordQueue   = 4096
	DefaultFlushInterval = 2 * time.Second
	// FleetFile is the sidecar holding the final fleet state.
	FleetFile = "fleet.json"
)

// MetricsWriter persists the final metrics snapshot of a recording.
type MetricsWriter interface {
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error
}

// FileStore stores sidecar files beside a recording.
type FileStore interface {
	PutFile(ctx context.Context, filename string, data []byte) error
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// RecordingID is stamped on every record.
	RecordingID string
	// Policy receives every record. Required.
	Policy policy.Policy
	// Metrics, if set, receives the final snapshot on Close.
	Metrics MetricsWriter
	// Files and Fleet, if both set, store the final fleet state on Close.
	Files FileStore
	Fleet *vehicle.Fleet
	// QueueSize bounds records waiting for the policy.
	QueueSize int
	// FlushInterval is how often the policy is flushed while running.
	FlushInterval time.Duration
	Logger        *log.Logger
	Collector     *metrics.Collector
}

// Recorder turns dispatched messages into telemetry records and feeds
// them to an ingestion policy off the dispatch path.
//
// Taps enqueue without blocking; when the queue is full the record is
// dropped and counted. Run drains the queue into the policy.
type Recorder struct {
	cfg    RecorderConfig
	queue  chan *types.TelemetryRecord
	seq    atomic.Int64
	logger *log.Logger
	now    func() time.Time
}

// NewRecorder validates cfg and applies defaults.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Policy == nil {
		return nil, errors.New("recorder: policy is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultRecordQueue
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Recorder{
		cfg:    cfg,
		queue:  make(chan *types.TelemetryRecord, cfg.QueueSize),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Tap returns a catch-all handler recording every message of one session.
func (r *Recorder) Tap(sessionID string, transport types.Transport) dispatch.HandlerFunc {
	return func(_ context.Context, msg *mavlink.DecodedMessage) error {
		r.Enqueue(r.record(sessionID, transport, msg))
		return nil
	}
}

func (r *Recorder) record(sessionID string, transport types.Transport, msg *mavlink.DecodedMessage) *types.TelemetryRecord {
	return &types.TelemetryRecord{
		SchemaVersion: types.SchemaVersion,
		RecordingID:   r.cfg.RecordingID,
		SessionID:     sessionID,
		Transport:     transport,
		Seq:           r.seq.Add(1),
		ReceivedAt:    r.now().UTC(),
		SystemID:      msg.Header.SystemID,
		ComponentID:   msg.Header.ComponentID,
		Sequence:      msg.Header.Sequence,
		MessageID:     uint32(msg.ID),
		Message:       msg.Name,
		WireVersion:   int(msg.Version),
		Fields:        msg.FieldMap(),
	}
}

// Enqueue queues rec for the policy. It reports false, and counts the
// drop, when the queue is full.
func (r *Recorder) Enqueue(rec *types.TelemetryRecord) bool {
	select {
	case r.queue <- rec:
		return true
	default:
		r.cfg.Collector.IncRecordQueueDropped()
		return false
	}
}

// Run feeds queued records to the policy and flushes it periodically
// until ctx is done. Records still queued at that point are ingested
// before Run returns.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	// ingestion outlives ctx so the final drain can complete
	ingestCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			r.drain(ingestCtx)
			return
		case rec := <-r.queue:
			r.ingest(ingestCtx, rec)
		case <-ticker.C:
			if err := r.cfg.Policy.Flush(ingestCtx); err != nil {
				r.logger.Warn("periodic flush failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case rec := <-r.queue:
			r.ingest(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) ingest(ctx context.Context, rec *types.TelemetryRecord) {
	if err := r.cfg.Policy.Ingest(ctx, rec); err != nil {
		r.logger.Warn("record not ingested", map[string]any{
			"message": rec.Message,
			"seq":     rec.Seq,
			"error":   err.Error(),
		})
	}
}

// Close finishes the recording: it flushes the policy, folds its stats
// into the collector, writes the metrics snapshot and fleet sidecar, and
// closes the policy. Call it after Run has returned. Every step runs even
// if an earlier one fails.
func (r *Recorder) Close(ctx context.Context) error {
	var result *multierror.Error

	if err := r.cfg.Policy.Flush(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("final flush: %w", err))
	}

	stats := r.cfg.Policy.Stats()
	r.cfg.Collector.AbsorbPolicyStats(stats.TotalRecords, stats.RecordsPersisted, stats.RecordsDropped, stats.DroppedByType)

	if r.cfg.Metrics != nil {
		if err := r.cfg.Metrics.WriteMetrics(ctx, r.cfg.Collector.Snapshot(), r.now()); err != nil {
			result = multierror.Append(result, fmt.Errorf("write metrics: %w", err))
		}
	}

	if r.cfg.Files != nil && r.cfg.Fleet != nil {
		data, err := json.MarshalIndent(r.cfg.Fleet.Vehicles(), "", "  ")
		if err == nil {
			err = r.cfg.Files.PutFile(ctx, FleetFile, data)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("write %s: %w", FleetFile, err))
		}
	}

	if err := r.cfg.Policy.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close policy: %w", err))
	}

	r.logger.Info("recording closed", map[string]any{
		"recording_id":      r.cfg.RecordingID,
		"records":           stats.TotalRecords,
		"records_persisted": stats.RecordsPersisted,
		"records_dropped":   stats.RecordsDropped,
	})
	return result.ErrorOrNil()
}

// Stats returns the policy's current counters.
func (r *Recorder) Stats() policy.Stats {
	return r.cfg.Policy.Stats()
}
