package relay

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/mavbridge/metrics"
)

func TestUDPEndpoint_SendWithoutPeer(t *testing.T) {
	collector := metrics.NewCollector("", "", "")
	u, err := ListenUDP("127.0.0.1:0", nil, collector)
	require.NoError(t, err)
	defer func() { _ = u.Close() }()

	assert.ErrorIs(t, u.Send([]byte{0xFD}), ErrNoPeer)
	assert.Nil(t, u.Peer())
	assert.Equal(t, int64(1), collector.Snapshot().UDPNoPeerDropped)
}

func TestUDPEndpoint_LastPeerRoundTrip(t *testing.T) {
	collector := metrics.NewCollector("", "", "")
	u, err := ListenUDP("127.0.0.1:0", nil, collector)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	got := make(chan []byte, 1)
	served := make(chan error, 1)
	go func() {
		served <- u.Serve(ctx, func(data []byte, _ *net.UDPAddr) { got <- data })
	}()

	client, err := net.DialUDP("udp", nil, u.LocalAddr())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = client.Write([]byte{0xFE, 0x09})
	require.NoError(t, err)

	select {
	case data := <-got:
		assert.Equal(t, []byte{0xFE, 0x09}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not delivered")
	}
	require.NotNil(t, u.Peer())
	assert.Equal(t, client.LocalAddr().(*net.UDPAddr).Port, u.Peer().Port)

	require.NoError(t, u.Send([]byte("reply")))
	buf := make([]byte, 16)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(buf[:n]))

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.DatagramsIn)
	assert.Equal(t, int64(1), snap.DatagramsOut)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.NoError(t, u.Close())
}

func TestListenUDP_BindFailure(t *testing.T) {
	u, err := ListenUDP("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	defer func() { _ = u.Close() }()

	_, err = ListenUDP(u.LocalAddr().String(), nil, nil)
	assert.Error(t, err)
}

func newTestSession(id string, queue int) *Session {
	return &Session{ID: id, send: make(chan []byte, queue), done: make(chan struct{})}
}

func TestHub_BroadcastDropsOnFullQueue(t *testing.T) {
	collector := metrics.NewCollector("", "", "")
	hub := NewHub(4, nil, collector)
	fast := newTestSession("a", 4)
	slow := newTestSession("b", 1)
	require.NoError(t, hub.Add(fast))
	require.NoError(t, hub.Add(slow))

	assert.Equal(t, 2, hub.Broadcast([]byte{1}))
	assert.Equal(t, 1, hub.Broadcast([]byte{2}))

	assert.Len(t, fast.send, 2)
	assert.Len(t, slow.send, 1)
	assert.Equal(t, int64(1), collector.Snapshot().WSSendDropped)
}

func TestHub_MaxClients(t *testing.T) {
	hub := NewHub(1, nil, nil)
	require.NoError(t, hub.Add(newTestSession("a", 1)))
	assert.ErrorIs(t, hub.Add(newTestSession("b", 1)), ErrHubFull)

	hub.Remove("a")
	hub.Remove("missing")
	assert.NoError(t, hub.Add(newTestSession("b", 1)))
	assert.Equal(t, []string{"b"}, hub.IDs())
}

func TestHub_AddAfterCloseAll(t *testing.T) {
	hub := NewHub(4, nil, nil)
	a := newTestSession("a", 1)
	require.NoError(t, hub.Add(a))

	hub.CloseAll()
	assert.False(t, a.Enqueue([]byte{1}))
	assert.ErrorIs(t, hub.Add(newTestSession("b", 1)), ErrHubClosed)
	assert.Equal(t, []string{"a"}, hub.IDs())
}

func TestSession_EnqueueAfterClose(t *testing.T) {
	s := newTestSession("a", 4)
	s.Close()
	s.Close()
	assert.False(t, s.Enqueue([]byte{1}))
}

// recordingHandler captures session callbacks.
type recordingHandler struct {
	mu       sync.Mutex
	opened   []string
	closed   []string
	messages chan []byte
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{messages: make(chan []byte, 16)}
}

func (h *recordingHandler) Opened(s *Session) {
	h.mu.Lock()
	h.opened = append(h.opened, s.ID)
	h.mu.Unlock()
}

func (h *recordingHandler) Message(_ context.Context, _ *Session, data []byte) {
	h.messages <- data
}

func (h *recordingHandler) Closed(s *Session) {
	h.mu.Lock()
	h.closed = append(h.closed, s.ID)
	h.mu.Unlock()
}

func (h *recordingHandler) closedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.closed)
}

func dial(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestWSServer_RelaysBothWays(t *testing.T) {
	collector := metrics.NewCollector("", "", "")
	hub := NewHub(4, nil, collector)
	handler := newRecordingHandler()
	srv := httptest.NewServer(NewWSServer(WSConfig{Path: "/ws"}, hub, handler, nil, collector))
	defer srv.Close()

	conn, _, err := dial(t, srv, "/ws")
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	// inbound
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xFD, 0x01}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ignored")))
	select {
	case data := <-handler.messages:
		assert.Equal(t, []byte{0xFD, 0x01}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message not delivered")
	}

	// outbound
	assert.Equal(t, 1, hub.Broadcast([]byte{0xFE, 0x02}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, []byte{0xFE, 0x02}, data)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return handler.closedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Len())

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.SessionsOpened)
	assert.Equal(t, int64(1), snap.SessionsClosed)
	assert.Equal(t, int64(1), snap.WSMessagesIn)
	assert.Equal(t, int64(1), snap.WSMessagesOut)
}

func TestWSServer_IndependentClients(t *testing.T) {
	hub := NewHub(4, nil, nil)
	srv := httptest.NewServer(NewWSServer(WSConfig{}, hub, newRecordingHandler(), nil, nil))
	defer srv.Close()

	a, _, err := dial(t, srv, "/")
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	b, _, err := dial(t, srv, "/")
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.Eventually(t, func() bool { return hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	ids := hub.IDs()
	assert.NotEqual(t, ids[0], ids[1])

	hub.Broadcast([]byte{7})
	for _, c := range []*websocket.Conn{a, b} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, []byte{7}, data)
	}
}

func TestWSServer_RejectsOverMaxClients(t *testing.T) {
	collector := metrics.NewCollector("", "", "")
	hub := NewHub(1, nil, collector)
	srv := httptest.NewServer(NewWSServer(WSConfig{}, hub, newRecordingHandler(), nil, collector))
	defer srv.Close()

	first, _, err := dial(t, srv, "/")
	require.NoError(t, err)
	defer func() { _ = first.Close() }()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := dial(t, srv, "/")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int64(1), collector.Snapshot().SessionsRejected)
}

func TestWSServer_WrongPath(t *testing.T) {
	srv := httptest.NewServer(NewWSServer(WSConfig{Path: "/ws"}, NewHub(1, nil, nil), newRecordingHandler(), nil, nil))
	defer srv.Close()

	_, resp, err := dial(t, srv, "/other")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWSServer_CloseAllEndsSessions(t *testing.T) {
	hub := NewHub(2, nil, nil)
	handler := newRecordingHandler()
	srv := httptest.NewServer(NewWSServer(WSConfig{}, hub, handler, nil, nil))
	defer srv.Close()

	conn, _, err := dial(t, srv, "/")
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.CloseAll()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err = %v", err)
	require.Eventually(t, func() bool { return handler.closedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}
