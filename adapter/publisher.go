package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"

	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/vehicle"
)

// DefaultWorkers is the default publisher pool size.
const DefaultWorkers = 4

// DefaultPublishTimeout bounds one Publish call, retries included.
const DefaultPublishTimeout = 15 * time.Second

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// BridgeID is stamped on every event.
	BridgeID string
	// Kinds limits publishing to these update kinds. Empty means all.
	Kinds []vehicle.Kind
	// MinInterval is the minimum spacing between published updates of the
	// same kind for the same vehicle. Zero disables throttling.
	MinInterval time.Duration
	// Workers is the pool size (default 4). When every worker is busy,
	// updates are dropped and counted.
	Workers int
	// Timeout bounds each Publish call (default 15s).
	Timeout time.Duration
}

type throttleKey struct {
	system uint8
	kind   vehicle.Kind
}

// Publisher forwards fleet updates to an Adapter without blocking the caller.
type Publisher struct {
	adapter   Adapter
	config    PublisherConfig
	kinds     map[vehicle.Kind]bool
	pool      *ants.Pool
	logger    *log.Logger
	collector *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	last map[throttleKey]time.Time
	now  func() time.Time
}

// NewPublisher creates a publisher over a. logger and collector may be nil.
func NewPublisher(a Adapter, cfg PublisherConfig, logger *log.Logger, collector *metrics.Collector) (*Publisher, error) {
	if a == nil {
		return nil, errors.New("publisher requires an adapter")
	}
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPublishTimeout
	}
	if cfg.MinInterval < 0 {
		return nil, fmt.Errorf("min interval must be >= 0, got %s", cfg.MinInterval)
	}

	pool, err := ants.NewPool(cfg.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(r any) {
			collector.IncPublishFailure()
			logger.Error("publish worker panicked", map[string]any{"panic": fmt.Sprint(r)})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create publisher pool: %w", err)
	}

	var kinds map[vehicle.Kind]bool
	if len(cfg.Kinds) > 0 {
		kinds = make(map[vehicle.Kind]bool, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			kinds[k] = true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		adapter:   a,
		config:    cfg,
		kinds:     kinds,
		pool:      pool,
		logger:    logger,
		collector: collector,
		ctx:       ctx,
		cancel:    cancel,
		last:      make(map[throttleKey]time.Time),
		now:       time.Now,
	}, nil
}

// Listener returns the publisher as a fleet listener.
func (p *Publisher) Listener() vehicle.Listener { return p.Handle }

// Handle submits u for publishing unless it is filtered, throttled, or the
// pool is saturated.
func (p *Publisher) Handle(u vehicle.Update) {
	if p.kinds != nil && !p.kinds[u.Kind] {
		return
	}
	if !p.allow(u) {
		return
	}

	event := EventFromUpdate(u, p.config.BridgeID)
	err := p.pool.Submit(func() { p.publish(event) })
	if err != nil {
		p.collector.IncPublishDropped()
		if errors.Is(err, ants.ErrPoolOverload) {
			p.logger.Debug("publish dropped, pool saturated", map[string]any{
				"kind":      event.Kind,
				"system_id": event.SystemID,
			})
		}
	}
}

// allow applies the per-vehicle, per-kind throttle. Vehicle creation is
// never throttled.
func (p *Publisher) allow(u vehicle.Update) bool {
	if p.config.MinInterval == 0 || u.Kind == vehicle.KindCreated {
		return true
	}
	key := throttleKey{system: u.SystemID, kind: u.Kind}
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.last[key]; ok && now.Sub(last) < p.config.MinInterval {
		return false
	}
	p.last[key] = now
	return true
}

func (p *Publisher) publish(event *VehicleEvent) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
	defer cancel()

	if err := p.adapter.Publish(ctx, event); err != nil {
		p.collector.IncPublishFailure()
		p.logger.Warn("publish failed", map[string]any{
			"kind":      event.Kind,
			"system_id": event.SystemID,
			"error":     err.Error(),
		})
		return
	}
	p.collector.IncPublishSuccess()
}

// Close waits up to grace for in-flight publishes, then cancels the rest
// and closes the adapter.
func (p *Publisher) Close(grace time.Duration) error {
	var result *multierror.Error
	if err := p.pool.ReleaseTimeout(grace); err != nil {
		result = multierror.Append(result, fmt.Errorf("drain publisher: %w", err))
	}
	p.cancel()
	if err := p.adapter.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close adapter: %w", err))
	}
	return result.ErrorOrNil()
}
