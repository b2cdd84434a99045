package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/mavbridge/mavlink"
	"github.com/justapithecus/mavbridge/metrics"
)

func frame(t *testing.T, sys, seq uint8, id mavlink.MessageID, values map[string]any) []byte {
	t.Helper()
	schema, ok := mavlink.Common().Lookup(id)
	require.True(t, ok)
	payload, err := mavlink.EncodePayload(schema, values)
	require.NoError(t, err)
	raw, err := mavlink.EncodeFrame(mavlink.Header{
		Version:     mavlink.V2,
		Sequence:    seq,
		SystemID:    sys,
		ComponentID: 1,
		MessageID:   id,
	}, schema, payload, nil)
	require.NoError(t, err)
	return raw
}

func heartbeat(t *testing.T, sys, seq uint8) []byte {
	return frame(t, sys, seq, mavlink.MsgIDHeartbeat, map[string]any{"type": 2, "autopilot": 3, "mavlink_version": 3})
}

func TestPipeline_HeartbeatThenAttitude(t *testing.T) {
	reg := NewRegistry()
	var got []mavlink.Message
	reg.RegisterAny("collect", func(_ context.Context, msg *mavlink.DecodedMessage) error {
		got = append(got, msg.Message)
		return nil
	})

	p := NewPipeline(nil, reg, nil, nil)
	stream := append(heartbeat(t, 7, 0), frame(t, 7, 1, mavlink.MsgIDAttitude, map[string]any{"roll": float32(0.1)})...)
	res := p.Process(context.Background(), stream)

	assert.Equal(t, 2, res.Frames)
	assert.Equal(t, 0, res.Rejected)
	require.Len(t, got, 2)
	hb, ok := got[0].(*mavlink.Heartbeat)
	require.True(t, ok, "first message is %T", got[0])
	assert.Equal(t, uint8(2), hb.Type)
	att, ok := got[1].(*mavlink.Attitude)
	require.True(t, ok, "second message is %T", got[1])
	assert.Equal(t, float32(0.1), att.Roll)
}

func TestPipeline_SequenceGapCountedNotRejected(t *testing.T) {
	reg := NewRegistry()
	var seqs []uint8
	reg.Register(mavlink.MsgIDHeartbeat, "seq", func(_ context.Context, msg *mavlink.DecodedMessage) error {
		seqs = append(seqs, msg.Header.Sequence)
		return nil
	})
	collector := metrics.NewCollector("", "", "")
	p := NewPipeline(nil, reg, nil, collector)

	for _, seq := range []uint8{1, 2, 5} {
		p.Process(context.Background(), heartbeat(t, 1, seq))
	}

	assert.Equal(t, []uint8{1, 2, 5}, seqs)
	assert.Equal(t, int64(1), collector.Snapshot().SequenceGaps)
}

func TestPipeline_SplitChunks(t *testing.T) {
	reg := NewRegistry()
	count := 0
	reg.RegisterAny("count", func(context.Context, *mavlink.DecodedMessage) error {
		count++
		return nil
	})
	p := NewPipeline(nil, reg, nil, nil)

	stream := append(heartbeat(t, 1, 0), heartbeat(t, 1, 1)...)
	for i := range stream {
		p.Process(context.Background(), stream[i:i+1])
	}
	assert.Equal(t, 2, count)
}

func TestPipeline_RejectsCounted(t *testing.T) {
	collector := metrics.NewCollector("", "", "")
	p := NewPipeline(nil, NewRegistry(), nil, collector)

	bad := heartbeat(t, 1, 0)
	bad[len(bad)-1] ^= 0x55
	stream := append([]byte{0x00, 0x01}, bad...)
	stream = append(stream, heartbeat(t, 1, 1)...)

	res := p.Process(context.Background(), stream)
	assert.Equal(t, 1, res.Frames)
	assert.GreaterOrEqual(t, res.Rejected, 1)

	s := collector.Snapshot()
	assert.GreaterOrEqual(t, s.RejectsByKind["crc_mismatch"], int64(1))
	assert.Equal(t, int64(len(stream)), s.BytesReceived)
	assert.GreaterOrEqual(t, s.BytesSkipped, int64(2))
	assert.Equal(t, int64(1), s.FramesValid)
}

func TestDispatcher_HandlerIsolation(t *testing.T) {
	reg := NewRegistry()
	var order []string
	reg.Register(mavlink.MsgIDHeartbeat, "panics", func(context.Context, *mavlink.DecodedMessage) error {
		order = append(order, "panics")
		panic("boom")
	})
	reg.Register(mavlink.MsgIDHeartbeat, "fails", func(context.Context, *mavlink.DecodedMessage) error {
		order = append(order, "fails")
		return errors.New("nope")
	})
	reg.RegisterAny("tap", func(context.Context, *mavlink.DecodedMessage) error {
		order = append(order, "tap")
		return nil
	})
	collector := metrics.NewCollector("", "", "")
	p := NewPipeline(nil, reg, nil, collector)

	p.Process(context.Background(), heartbeat(t, 1, 0))
	p.Process(context.Background(), heartbeat(t, 1, 1))

	assert.Equal(t, []string{"panics", "fails", "tap", "panics", "fails", "tap"}, order)
	s := collector.Snapshot()
	assert.Equal(t, int64(2), s.HandlerPanics)
	assert.Equal(t, int64(2), s.HandlerErrors)
}

func TestDispatcher_Result(t *testing.T) {
	reg := NewRegistry()
	reg.Register(mavlink.MsgIDAttitude, "ok", func(context.Context, *mavlink.DecodedMessage) error { return nil })
	reg.Register(mavlink.MsgIDAttitude, "err", func(context.Context, *mavlink.DecodedMessage) error { return errors.New("x") })
	reg.Register(mavlink.MsgIDAttitude, "panic", func(context.Context, *mavlink.DecodedMessage) error { panic(1) })
	d := NewDispatcher(reg, nil, nil)

	msg := &mavlink.DecodedMessage{ID: mavlink.MsgIDAttitude, Name: "ATTITUDE", Header: mavlink.MessageHeader{SystemID: 1, Sequence: 9}}
	res := d.Dispatch(context.Background(), msg)
	assert.Equal(t, Result{Seq: SeqFirst, Handled: 1, Failed: 1, Panicked: 1}, res)

	res = d.Dispatch(context.Background(), msg)
	assert.Equal(t, SeqDuplicate, res.Seq)
}

func TestDispatcher_UnhandledCounted(t *testing.T) {
	reg := NewRegistry()
	tapped := 0
	reg.RegisterAny("tap", func(context.Context, *mavlink.DecodedMessage) error {
		tapped++
		return nil
	})
	collector := metrics.NewCollector("", "", "")
	d := NewDispatcher(reg, nil, collector)

	d.Dispatch(context.Background(), &mavlink.DecodedMessage{ID: mavlink.MsgIDVFRHud, Name: "VFR_HUD"})

	assert.Equal(t, 1, tapped)
	assert.Equal(t, int64(1), collector.Snapshot().Unhandled)
	assert.Equal(t, int64(1), collector.Snapshot().MessagesByType["VFR_HUD"])
	assert.False(t, reg.Handles(mavlink.MsgIDVFRHud))
}

func TestSequenceTracker(t *testing.T) {
	tr := NewSequenceTracker()
	h := func(sys, comp, seq uint8) mavlink.MessageHeader {
		return mavlink.MessageHeader{SystemID: sys, ComponentID: comp, Sequence: seq}
	}

	tests := []struct {
		name string
		hdr  mavlink.MessageHeader
		want SeqResult
		lost int
	}{
		{"first", h(1, 1, 254), SeqFirst, 0},
		{"next", h(1, 1, 255), SeqInOrder, 0},
		{"wraparound", h(1, 1, 0), SeqInOrder, 0},
		{"duplicate", h(1, 1, 0), SeqDuplicate, 0},
		{"gap", h(1, 1, 4), SeqGap, 3},
		{"other component is separate", h(1, 2, 100), SeqFirst, 0},
		{"wrapping gap", h(1, 2, 1), SeqGap, 156},
	}
	for _, tt := range tests {
		got, lost := tr.Observe(tt.hdr)
		assert.Equal(t, tt.want, got, tt.name)
		assert.Equal(t, tt.lost, lost, tt.name)
	}
	assert.Equal(t, 2, tr.Sources())

	tr.Reset()
	got, _ := tr.Observe(h(1, 1, 9))
	assert.Equal(t, SeqFirst, got)
}
