package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferRecords caps the number of buffered records. Zero means no
	// count limit.
	MaxBufferRecords int

	// MaxBufferBytes caps the estimated buffer size. Zero means no byte
	// limit. At least one limit must be set.
	MaxBufferBytes int64

	// Droppable lists message names that may be shed when the buffer is
	// full. Nil means DefaultDroppable.
	Droppable []string

	// Logger is optional.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferRecords: 5000,
		MaxBufferBytes:   8 * 1024 * 1024,
	}
}

// ErrBufferFull is returned when the buffer is full and the record may not
// be dropped.
var ErrBufferFull = errors.New("buffer full: cannot accept non-droppable record")

// ErrInvalidConfig is returned when neither buffer limit is set.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferRecords or MaxBufferBytes must be set")

// BufferedPolicy batches records and writes them on Flush.
//
// When the buffer is full, an incoming droppable record is discarded. An
// incoming non-droppable record evicts the oldest buffered droppable one;
// if there is none, Ingest returns ErrBufferFull. Records are written in
// arrival order. A failed flush keeps the buffer for the next attempt, so
// a retry may write records twice but never loses them.
type BufferedPolicy struct {
	sink      Sink
	config    BufferedConfig
	droppable DropSet
	logger    *log.Logger

	flushMu sync.Mutex // serializes flushes

	mu          sync.Mutex // guards buffer and stats
	buffer      []*types.TelemetryRecord
	bufferBytes int64
	stats       *statsRecorder
}

// NewBufferedPolicy creates a buffered policy. Returns ErrInvalidConfig if
// no limit is set.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferRecords <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &BufferedPolicy{
		sink:      sink,
		config:    config,
		droppable: NewDropSet(config.Droppable),
		logger:    logger,
		buffer:    make([]*types.TelemetryRecord, 0, min(max(config.MaxBufferRecords, 64), 4096)),
		stats:     newStatsRecorder(),
	}, nil
}

// Ingest buffers the record, applying drop rules when full.
func (p *BufferedPolicy) Ingest(_ context.Context, record *types.TelemetryRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.stats.TotalRecords++
	size := record.EstimatedSize()

	if p.hasRoom(size) {
		p.append(record, size)
		return nil
	}

	if p.droppable.Droppable(record.Message) {
		p.stats.incDroppedLocked(record.Message)
		p.logDrop(record.Message, "buffer_full")
		return nil
	}

	if p.evictOldestDroppable() && p.hasRoom(size) {
		p.append(record, size)
		return nil
	}

	p.stats.stats.Errors++
	p.logger.Error("buffer overflow", map[string]any{
		"message": record.Message,
		"policy":  NameBuffered,
	})
	return fmt.Errorf("%w (%s)", ErrBufferFull, record.Message)
}

// Flush writes the buffered records in one batch. Records ingested while
// the write is in flight wait for the next flush. On failure the batch is
// put back ahead of them.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	p.stats.stats.FlushCount++
	batch := p.buffer
	p.buffer = make([]*types.TelemetryRecord, 0, cap(batch))
	p.bufferBytes = 0
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := p.sink.WriteRecords(ctx, batch)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.stats.stats.Errors++
		p.buffer = append(batch, p.buffer...)
		p.recalculate()
		p.logger.Error("flush failed", map[string]any{
			"records": len(batch),
			"error":   err.Error(),
			"policy":  NameBuffered,
		})
		return err
	}
	p.stats.stats.RecordsPersisted += int64(len(batch))
	return nil
}

// Close flushes what it can and closes the sink.
func (p *BufferedPolicy) Close() error {
	flushErr := p.Flush(context.Background())
	if err := p.sink.Close(); err != nil {
		return err
	}
	return flushErr
}

// Stats returns a snapshot taken under the buffer lock.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(p.bufferBytes)
}

func (p *BufferedPolicy) hasRoom(size int64) bool {
	if p.config.MaxBufferRecords > 0 && len(p.buffer) >= p.config.MaxBufferRecords {
		return false
	}
	return p.config.MaxBufferBytes <= 0 || p.bufferBytes+size <= p.config.MaxBufferBytes
}

func (p *BufferedPolicy) append(record *types.TelemetryRecord, size int64) {
	p.buffer = append(p.buffer, record)
	p.bufferBytes += size
}

// evictOldestDroppable removes the oldest droppable record. Caller must
// hold mu.
func (p *BufferedPolicy) evictOldestDroppable() bool {
	for i, r := range p.buffer {
		if !p.droppable.Droppable(r.Message) {
			continue
		}
		p.buffer = append(p.buffer[:i], p.buffer[i+1:]...)
		p.bufferBytes -= r.EstimatedSize()
		p.stats.incDroppedLocked(r.Message)
		p.logDrop(r.Message, "evicted_for_non_droppable")
		return true
	}
	return false
}

func (p *BufferedPolicy) recalculate() {
	var total int64
	for _, r := range p.buffer {
		total += r.EstimatedSize()
	}
	p.bufferBytes = total
}

func (p *BufferedPolicy) logDrop(message, reason string) {
	p.logger.Debug("record dropped", map[string]any{
		"message": message,
		"reason":  reason,
		"policy":  NameBuffered,
	})
}

var _ Policy = (*BufferedPolicy)(nil)
