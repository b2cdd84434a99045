package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/mavlink"
	"github.com/justapithecus/mavbridge/metrics"
)

// Result summarizes one Dispatch call.
type Result struct {
	Seq      SeqResult
	Lost     int
	Handled  int
	Failed   int
	Panicked int
}

// Dispatcher delivers messages for one session: it updates the session's
// sequence tracker, then runs the registry's handlers in order.
type Dispatcher struct {
	registry  *Registry
	tracker   *SequenceTracker
	logger    *log.Logger
	collector *metrics.Collector
}

// NewDispatcher creates a dispatcher over reg. logger and collector may be nil.
func NewDispatcher(reg *Registry, logger *log.Logger, collector *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		registry:  reg,
		tracker:   NewSequenceTracker(),
		logger:    logger,
		collector: collector,
	}
}

// Tracker returns the session's sequence tracker.
func (d *Dispatcher) Tracker() *SequenceTracker { return d.tracker }

// Dispatch routes msg to its handlers. Messages without an ID-specific
// handler still reach catch-all handlers and are counted as unhandled.
// Handler errors and panics are logged and counted, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *mavlink.DecodedMessage) Result {
	var res Result
	res.Seq, res.Lost = d.tracker.Observe(msg.Header)
	switch res.Seq {
	case SeqGap:
		d.collector.IncSequenceGap()
		d.logger.Debug("sequence gap", map[string]any{
			"system_id":    msg.Header.SystemID,
			"component_id": msg.Header.ComponentID,
			"sequence":     msg.Header.Sequence,
			"lost":         res.Lost,
		})
	case SeqDuplicate:
		d.collector.IncSequenceDuplicate()
	}
	d.collector.IncMessage(msg.Name)

	handlers, specific := d.registry.handlers(msg.ID)
	if !specific {
		d.collector.IncUnhandled()
	}
	for _, h := range handlers {
		panicked, err := d.invoke(ctx, h, msg)
		switch {
		case panicked:
			res.Panicked++
		case err != nil:
			res.Failed++
			d.collector.IncHandlerError()
			d.logger.Warn("handler failed", map[string]any{
				"handler": h.name,
				"message": msg.Name,
				"error":   err.Error(),
			})
		default:
			res.Handled++
		}
	}
	return res
}

// invoke runs one handler, converting a panic into a logged, counted event.
func (d *Dispatcher) invoke(ctx context.Context, h entry, msg *mavlink.DecodedMessage) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			d.collector.IncHandlerPanic()
			d.logger.Error("handler panicked", map[string]any{
				"handler": h.name,
				"message": msg.Name,
				"panic":   fmt.Sprint(r),
				"stack":   string(debug.Stack()),
			})
		}
	}()
	return false, h.fn(ctx, msg)
}
