package dispatch

import (
	"context"
	"errors"

	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/mavlink"
	"github.com/justapithecus/mavbridge/metrics"
)

// ProcessResult summarizes one Process call.
type ProcessResult struct {
	Frames   int
	Rejected int
	Skipped  int64
}

// Pipeline is one session's parse → validate → decode → dispatch chain.
// Process is synchronous and must not be called concurrently.
type Pipeline struct {
	parser     *mavlink.Parser
	dispatcher *Dispatcher
	logger     *log.Logger
	collector  *metrics.Collector
}

// NewPipeline wires a parser over schemas to a dispatcher over handlers.
// A nil schemas uses the built-in catalogue.
func NewPipeline(schemas *mavlink.Registry, handlers *Registry, logger *log.Logger, collector *metrics.Collector) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	return &Pipeline{
		parser:     mavlink.NewParser(schemas),
		dispatcher: NewDispatcher(handlers, logger, collector),
		logger:     logger,
		collector:  collector,
	}
}

// Process feeds chunk and dispatches every complete frame now buffered.
// Incomplete trailing bytes stay buffered for the next call.
func (p *Pipeline) Process(ctx context.Context, chunk []byte) ProcessResult {
	var res ProcessResult
	skippedBefore := p.parser.Stats().BytesSkipped
	p.parser.Feed(chunk)

	for {
		frame, err := p.parser.Next()
		if errors.Is(err, mavlink.ErrNeedMore) {
			break
		}
		if err != nil {
			res.Rejected++
			p.reject(err)
			continue
		}

		msg, err := mavlink.DecodeFrame(frame, p.parser.Registry())
		if err != nil {
			res.Rejected++
			p.reject(err)
			continue
		}
		res.Frames++
		p.collector.IncFrameValid()
		p.dispatcher.Dispatch(ctx, msg)
	}

	res.Skipped = p.parser.Stats().BytesSkipped - skippedBefore
	p.collector.AddBytes(int64(len(chunk)), res.Skipped)
	return res
}

func (p *Pipeline) reject(err error) {
	kind, _ := mavlink.RejectKindOf(err)
	p.collector.IncReject(kind.String())
	p.logger.Debug("frame rejected", map[string]any{
		"reason": kind.String(),
		"error":  err.Error(),
	})
}

// Stats returns the parser counters for this session.
func (p *Pipeline) Stats() mavlink.ParserStats { return p.parser.Stats() }

// Tracker returns the session's sequence tracker.
func (p *Pipeline) Tracker() *SequenceTracker { return p.dispatcher.Tracker() }

// Reset drops buffered bytes and sequence history, e.g. after a reconnect.
func (p *Pipeline) Reset() {
	p.parser.Reset()
	p.dispatcher.Tracker().Reset()
}
