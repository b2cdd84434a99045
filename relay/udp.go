// Package relay moves raw MAVLink bytes between one UDP endpoint and any
// number of WebSocket clients.
//
// The relay forwards bytes untouched. Parsing happens beside it: every
// datagram and every inbound WebSocket message is also handed to the
// caller, which feeds it to a per-connection pipeline.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/metrics"
)

// DefaultUDPPort is the port the UDP endpoint binds when none is configured.
const DefaultUDPPort = 16450

// Read loop tuning.
const (
	// MaxDatagram is the read buffer size; larger datagrams are truncated.
	MaxDatagram = 64 * 1024
	// pollInterval bounds how long a read blocks before checking ctx.
	pollInterval = 500 * time.Millisecond
)

// ErrNoPeer is returned by Send before any datagram has arrived.
var ErrNoPeer = errors.New("no UDP peer seen yet")

// UDPEndpoint is a bound UDP socket that remembers the last peer it heard
// from and sends outbound traffic there.
type UDPEndpoint struct {
	conn      *net.UDPConn
	logger    *log.Logger
	collector *metrics.Collector

	mu   sync.RWMutex
	peer *net.UDPAddr
}

// ListenUDP binds addr ("host:port" or ":port").
func ListenUDP(addr string, logger *log.Logger, collector *metrics.Collector) (*UDPEndpoint, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &UDPEndpoint{conn: conn, logger: logger, collector: collector}, nil
}

// LocalAddr returns the bound address.
func (u *UDPEndpoint) LocalAddr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// Peer returns the last peer seen, or nil.
func (u *UDPEndpoint) Peer() *net.UDPAddr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.peer
}

// Serve reads datagrams until ctx is done or the socket fails, calling
// onDatagram with a copy of each. onDatagram runs on the read goroutine,
// so the next datagram is not read until it returns.
func (u *UDPEndpoint) Serve(ctx context.Context, onDatagram func(data []byte, from *net.UDPAddr)) error {
	buf := make([]byte, MaxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		_ = u.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}

		u.setPeer(from)
		u.collector.IncDatagramIn()
		data := make([]byte, n)
		copy(data, buf[:n])
		onDatagram(data, from)
	}
}

func (u *UDPEndpoint) setPeer(from *net.UDPAddr) {
	u.mu.Lock()
	changed := u.peer == nil || !u.peer.IP.Equal(from.IP) || u.peer.Port != from.Port
	u.peer = from
	u.mu.Unlock()
	if changed {
		u.logger.Info("udp peer", map[string]any{"remote": from.String()})
	}
}

// Send writes data to the last peer. Without a peer the data is dropped,
// counted and ErrNoPeer returned.
func (u *UDPEndpoint) Send(data []byte) error {
	peer := u.Peer()
	if peer == nil {
		u.collector.IncUDPNoPeer()
		return ErrNoPeer
	}
	if _, err := u.conn.WriteToUDP(data, peer); err != nil {
		return fmt.Errorf("udp write %s: %w", peer, err)
	}
	u.collector.IncDatagramOut()
	return nil
}

// Close closes the socket, unblocking Serve.
func (u *UDPEndpoint) Close() error {
	return u.conn.Close()
}
