// Package runtime runs the UDP↔WebSocket bridge.
//
// A Bridge binds the UDP endpoint and the WebSocket server, relays raw
// bytes between them, and feeds every datagram and inbound WebSocket
// message through a per-connection dispatch pipeline whose handlers
// update the shared fleet and, optionally, the recorder.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/justapithecus/mavbridge/adapter"
	"github.com/justapithecus/mavbridge/capture"
	"github.com/justapithecus/mavbridge/dispatch"
	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/mavlink"
	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/relay"
	"github.com/justapithecus/mavbridge/types"
	"github.com/justapithecus/mavbridge/vehicle"
)

// GCS heartbeat identity.
const (
	DefaultGCSSystemID    uint8 = 255
	DefaultGCSComponentID uint8 = 190
	mavAutopilotInvalid         = 8
	mavStateActive              = 4
)

// DefaultShutdownGrace bounds each shutdown step.
const DefaultShutdownGrace = 5 * time.Second

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// UDPAddr is the UDP bind address, e.g. ":16450".
	UDPAddr string
	// WSAddr is the WebSocket listen address, e.g. ":8811".
	WSAddr string
	WS     relay.WSConfig
	// MaxClients caps concurrent WebSocket sessions.
	MaxClients int
	// Heartbeat, when positive, sends a GCS HEARTBEAT to the UDP peer at
	// this interval.
	Heartbeat      time.Duration
	GCSSystemID    uint8
	GCSComponentID uint8
	// ShutdownGrace bounds each shutdown step.
	ShutdownGrace time.Duration
	// RecordingID is copied to the result.
	RecordingID string
}

// BridgeDeps are the collaborators a Bridge wires together. Only Fleet
// is required.
type BridgeDeps struct {
	Logger    *log.Logger
	Collector *metrics.Collector
	// Schemas defaults to the built-in catalogue.
	Schemas *mavlink.Registry
	Fleet   *vehicle.Fleet
	// Recorder, Capture and Publisher are optional. The publisher's
	// listener must already be attached to Fleet; the bridge only
	// closes it.
	Recorder  *Recorder
	Capture   *capture.Writer
	Publisher *adapter.Publisher
}

// Result summarizes a finished bridge run.
type Result struct {
	RecordingID string
	StartedAt   time.Time
	Duration    time.Duration
	Vehicles    []vehicle.State
}

// Bridge relays bytes between one UDP endpoint and many WebSocket clients.
type Bridge struct {
	cfg    BridgeConfig
	deps   BridgeDeps
	logger *log.Logger

	hub *relay.Hub
	udp *relay.UDPEndpoint

	udpPipeline *dispatch.Pipeline

	mu       sync.Mutex
	sessions map[string]*dispatch.Pipeline
	closing  bool
	// active counts tracked sessions; Add only happens while !closing.
	active   sync.WaitGroup

	ready   chan struct{}
	udpAddr net.Addr
	wsAddr  net.Addr
}

// NewBridge validates the wiring.
func NewBridge(cfg BridgeConfig, deps BridgeDeps) (*Bridge, error) {
	if deps.Fleet == nil {
		return nil, errors.New("bridge: fleet is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	if deps.Schemas == nil {
		deps.Schemas = mavlink.Common()
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.GCSSystemID == 0 {
		cfg.GCSSystemID = DefaultGCSSystemID
	}
	if cfg.GCSComponentID == 0 {
		cfg.GCSComponentID = DefaultGCSComponentID
	}
	return &Bridge{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		hub:      relay.NewHub(cfg.MaxClients, deps.Logger, deps.Collector),
		sessions: make(map[string]*dispatch.Pipeline),
		ready:    make(chan struct{}),
	}, nil
}

// Ready is closed once both endpoints are bound.
func (b *Bridge) Ready() <-chan struct{} { return b.ready }

// UDPAddr returns the bound UDP address. Valid after Ready.
func (b *Bridge) UDPAddr() net.Addr { return b.udpAddr }

// WSAddr returns the bound WebSocket address. Valid after Ready.
func (b *Bridge) WSAddr() net.Addr { return b.wsAddr }

// Hub returns the session hub.
func (b *Bridge) Hub() *relay.Hub { return b.hub }

// Run binds both endpoints and relays until ctx is done or a transport
// fails. Bind failures are returned immediately. Shutdown errors from
// the optional collaborators are combined into the returned error.
func (b *Bridge) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	udp, err := relay.ListenUDP(b.cfg.UDPAddr, b.logger, b.deps.Collector)
	if err != nil {
		return nil, err
	}
	b.udp = udp

	ln, err := net.Listen("tcp", b.cfg.WSAddr)
	if err != nil {
		_ = udp.Close()
		return nil, fmt.Errorf("bind %s: %w", b.cfg.WSAddr, err)
	}
	b.udpAddr, b.wsAddr = udp.LocalAddr(), ln.Addr()

	b.udpPipeline = b.newPipeline("udp", types.TransportUDP)

	ws := relay.NewWSServer(b.cfg.WS, b.hub, b, b.logger, b.deps.Collector)
	srv := &http.Server{Handler: ws, ReadHeaderTimeout: 10 * time.Second}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("websocket server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := udp.Serve(runCtx, b.onDatagram); err != nil {
			errs <- err
		}
	}()

	// the recorder outlives the transports so late taps still land
	recCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRecorder()
	recorderDone := make(chan struct{})
	if b.deps.Recorder != nil {
		go func() {
			defer close(recorderDone)
			b.deps.Recorder.Run(recCtx)
		}()
	} else {
		close(recorderDone)
	}

	if b.cfg.Heartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.heartbeatLoop(runCtx)
		}()
	}

	b.logger.Info("bridge started", map[string]any{
		"udp":       b.udpAddr.String(),
		"websocket": b.wsAddr.String(),
	})
	close(b.ready)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		b.logger.Error("transport failed", map[string]any{"error": runErr.Error()})
	}

	cancel()
	shutdownErr := b.shutdown(srv, &wg, stopRecorder, recorderDone)

	result := &Result{
		RecordingID: b.cfg.RecordingID,
		StartedAt:   started,
		Duration:    time.Since(started),
		Vehicles:    b.deps.Fleet.Vehicles(),
	}
	if runErr != nil {
		return result, multierror.Append(runErr, shutdownErr).ErrorOrNil()
	}
	return result, shutdownErr
}

// shutdown stops transports first, so nothing new reaches the recorder
// or publisher, then drains and closes those.
func (b *Bridge) shutdown(srv *http.Server, wg *sync.WaitGroup, stopRecorder context.CancelFunc, recorderDone <-chan struct{}) error {
	var result *multierror.Error
	grace := b.cfg.ShutdownGrace

	b.beginClose()
	b.hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("websocket shutdown: %w", err))
	}
	if !waitTimeout(&b.active, grace) {
		result = multierror.Append(result, errors.New("websocket sessions did not close in time"))
	}
	if err := b.udp.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		result = multierror.Append(result, fmt.Errorf("udp close: %w", err))
	}
	wg.Wait()
	stopRecorder()
	<-recorderDone

	if b.deps.Recorder != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), grace)
		err := b.deps.Recorder.Close(closeCtx)
		cancel()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("recorder: %w", err))
		}
	}
	if b.deps.Publisher != nil {
		if err := b.deps.Publisher.Close(grace); err != nil {
			result = multierror.Append(result, fmt.Errorf("publisher: %w", err))
		}
	}
	if b.deps.Capture != nil {
		if err := b.deps.Capture.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("capture: %w", err))
		}
	}

	b.logger.Info("bridge stopped", nil)
	return result.ErrorOrNil()
}

// newPipeline builds an isolated pipeline for one connection: its own
// reassembly buffer, sequence tracker and handler registry.
func (b *Bridge) newPipeline(sessionID string, transport types.Transport) *dispatch.Pipeline {
	reg := dispatch.NewRegistry()
	b.deps.Fleet.Register(reg)
	if b.deps.Recorder != nil {
		reg.RegisterAny("recorder", b.deps.Recorder.Tap(sessionID, transport))
	}
	logger := b.logger.With(map[string]any{
		"session_id": sessionID,
		"transport":  string(transport),
	})
	return dispatch.NewPipeline(b.deps.Schemas, reg, logger, b.deps.Collector)
}

func (b *Bridge) onDatagram(data []byte, _ *net.UDPAddr) {
	if b.deps.Capture != nil {
		if err := b.deps.Capture.Write(data); err != nil {
			b.logger.Warn("capture write failed", map[string]any{"error": err.Error()})
		}
	}
	b.hub.Broadcast(data)
	b.udpPipeline.Process(context.Background(), data)
}

// beginClose stops Opened from tracking new sessions.
func (b *Bridge) beginClose() {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()
}

// Opened implements relay.SessionHandler. Sessions that open after shutdown
// began are not tracked; the hub has already closed them.
func (b *Bridge) Opened(s *relay.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return
	}
	b.active.Add(1)
	b.sessions[s.ID] = b.newPipeline(s.ID, types.TransportWebSocket)
}

// Message implements relay.SessionHandler. The bytes are parsed on the
// session's own pipeline and forwarded raw to the UDP peer.
func (b *Bridge) Message(ctx context.Context, s *relay.Session, data []byte) {
	b.mu.Lock()
	p := b.sessions[s.ID]
	b.mu.Unlock()
	if p == nil {
		return
	}
	p.Process(ctx, data)
	if err := b.udp.Send(data); err != nil && !errors.Is(err, relay.ErrNoPeer) {
		b.logger.Warn("forward to udp failed", map[string]any{
			"session_id": s.ID,
			"error":      err.Error(),
		})
	}
}

// Closed implements relay.SessionHandler.
func (b *Bridge) Closed(s *relay.Session) {
	b.mu.Lock()
	_, tracked := b.sessions[s.ID]
	delete(b.sessions, s.ID)
	b.mu.Unlock()
	if tracked {
		b.active.Done()
	}
}

// waitTimeout waits for wg and reports whether it finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func (b *Bridge) heartbeatLoop(ctx context.Context) {
	enc := mavlink.NewEncoder(b.deps.Schemas, mavlink.V2, b.cfg.GCSSystemID, b.cfg.GCSComponentID)
	ticker := time.NewTicker(b.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := enc.Encode(mavlink.MsgIDHeartbeat, map[string]any{
				"type":            mavlink.MavTypeGCS,
				"autopilot":       mavAutopilotInvalid,
				"system_status":   mavStateActive,
				"mavlink_version": 3,
			})
			if err != nil {
				b.logger.Error("encode heartbeat", map[string]any{"error": err.Error()})
				return
			}
			// before any peer the heartbeat has nowhere to go
			if b.udp.Peer() == nil {
				continue
			}
			if err := b.udp.Send(frame); err != nil {
				b.logger.Warn("heartbeat send failed", map[string]any{"error": err.Error()})
			}
		}
	}
}
