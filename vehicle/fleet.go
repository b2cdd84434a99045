// Package vehicle folds decoded telemetry into per-vehicle state.
//
// A Fleet registers handlers on a dispatch.Registry. A vehicle comes into
// existence on its first non-GCS HEARTBEAT; telemetry from systems without a
// heartbeat is ignored. Every applied change is reported to the listeners
// passed at construction, in arrival order per vehicle.
package vehicle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/justapithecus/mavbridge/dispatch"
	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/mavlink"
	"github.com/justapithecus/mavbridge/metrics"
)

// Kind names the part of vehicle state an update touched.
type Kind string

const (
	KindCreated   Kind = "created"
	KindHeartbeat Kind = "heartbeat"
	KindAttitude  Kind = "attitude"
	KindPosition  Kind = "position"
	KindHome      Kind = "home"
	KindRC        Kind = "rc_channels"
	KindServo     Kind = "servo_output"
	KindSysStatus Kind = "sys_status"
	KindGPS       Kind = "gps"
	KindHUD       Kind = "vfr_hud"
	KindBattery   Kind = "battery"
	KindText      Kind = "statustext"
)

// AllKinds lists every update kind in a stable order.
var AllKinds = []Kind{
	KindCreated, KindHeartbeat, KindAttitude, KindPosition, KindHome, KindRC,
	KindServo, KindSysStatus, KindGPS, KindHUD, KindBattery, KindText,
}

// State is the latest known state of one vehicle. Message pointers are
// shared with updates and never mutated after being applied.
type State struct {
	SystemID        uint8
	ComponentID     uint8
	Type            uint8
	Autopilot       uint8
	BaseMode        uint8
	CustomMode      uint32
	SystemStatus    uint8
	Armed           bool
	FirstSeen       time.Time
	LastHeartbeat   time.Time
	LastUpdate      time.Time
	MessagesApplied int64

	Attitude  *mavlink.Attitude
	Position  *mavlink.GlobalPositionInt
	Home      *mavlink.HomePosition
	RC        *mavlink.RCChannels
	Servo     *mavlink.ServoOutputRaw
	SysStatus *mavlink.SysStatus
	GPS       *mavlink.GPSRawInt
	HUD       *mavlink.VFRHud
	Battery   *mavlink.BatteryStatus
	LastText  *mavlink.StatusText
}

// Update describes one applied change.
type Update struct {
	Kind      Kind
	SystemID  uint8
	MessageID mavlink.MessageID
	Time      time.Time
	Message   mavlink.Message
	State     State // copy after the change
}

// Listener receives updates. It runs on the dispatching goroutine and
// should hand off anything slow.
type Listener func(Update)

// Fleet holds the state of every known vehicle. Safe for concurrent use.
type Fleet struct {
	mu        sync.RWMutex
	vehicles  map[uint8]*State
	listeners []Listener
	now       func() time.Time
	logger    *log.Logger
	collector *metrics.Collector
}

// NewFleet creates an empty fleet. logger and collector may be nil.
func NewFleet(logger *log.Logger, collector *metrics.Collector, listeners ...Listener) *Fleet {
	if logger == nil {
		logger = log.Nop()
	}
	return &Fleet{
		vehicles:  make(map[uint8]*State),
		listeners: listeners,
		now:       time.Now,
		logger:    logger,
		collector: collector,
	}
}

// Register attaches the fleet's handlers to reg.
func (f *Fleet) Register(reg *dispatch.Registry) {
	reg.Register(mavlink.MsgIDHeartbeat, "vehicle.heartbeat", f.handleHeartbeat)
	for _, id := range []mavlink.MessageID{
		mavlink.MsgIDAttitude,
		mavlink.MsgIDGlobalPositionInt,
		mavlink.MsgIDHomePosition,
		mavlink.MsgIDRCChannels,
		mavlink.MsgIDServoOutputRaw,
		mavlink.MsgIDSysStatus,
		mavlink.MsgIDGPSRawInt,
		mavlink.MsgIDVFRHud,
		mavlink.MsgIDBatteryStatus,
		mavlink.MsgIDStatusText,
	} {
		reg.Register(id, "vehicle.apply", f.handleTelemetry)
	}
}

// Get returns a copy of the state of system id.
func (f *Fleet) Get(id uint8) (State, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.vehicles[id]
	if !ok {
		return State{}, false
	}
	return *v, true
}

// Vehicles returns copies of all vehicle states ordered by system ID.
func (f *Fleet) Vehicles() []State {
	f.mu.RLock()
	out := make([]State, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		out = append(out, *v)
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SystemID < out[j].SystemID })
	return out
}

// Len returns the number of known vehicles.
func (f *Fleet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vehicles)
}

func (f *Fleet) handleHeartbeat(_ context.Context, msg *mavlink.DecodedMessage) error {
	hb, ok := msg.Message.(*mavlink.Heartbeat)
	if !ok || hb.IsGCS() {
		return nil
	}
	now := f.now()
	sys := msg.Header.SystemID

	f.mu.Lock()
	v, exists := f.vehicles[sys]
	if !exists {
		v = &State{SystemID: sys, ComponentID: msg.Header.ComponentID, FirstSeen: now}
		f.vehicles[sys] = v
	}
	v.Type = hb.Type
	v.Autopilot = hb.Autopilot
	v.BaseMode = hb.BaseMode
	v.CustomMode = hb.CustomMode
	v.SystemStatus = hb.SystemStatus
	v.Armed = hb.Armed()
	v.LastHeartbeat = now
	v.LastUpdate = now
	v.MessagesApplied++
	snapshot := *v
	f.mu.Unlock()

	if !exists {
		f.collector.IncVehicleSeen()
		f.logger.Info("vehicle discovered", map[string]any{
			"system_id": sys,
			"type":      hb.Type,
			"autopilot": hb.Autopilot,
		})
		f.emit(Update{Kind: KindCreated, SystemID: sys, MessageID: msg.ID, Time: now, Message: hb, State: snapshot})
	}
	f.emit(Update{Kind: KindHeartbeat, SystemID: sys, MessageID: msg.ID, Time: now, Message: hb, State: snapshot})
	return nil
}

func (f *Fleet) handleTelemetry(_ context.Context, msg *mavlink.DecodedMessage) error {
	if msg.Message == nil {
		return nil
	}
	now := f.now()
	sys := msg.Header.SystemID

	f.mu.Lock()
	v, ok := f.vehicles[sys]
	if !ok {
		f.mu.Unlock()
		return nil
	}
	kind, applied := apply(v, msg.Message)
	if !applied {
		f.mu.Unlock()
		return nil
	}
	v.LastUpdate = now
	v.MessagesApplied++
	snapshot := *v
	f.mu.Unlock()

	f.emit(Update{Kind: kind, SystemID: sys, MessageID: msg.ID, Time: now, Message: msg.Message, State: snapshot})
	return nil
}

// apply stores m on v, last writer wins.
func apply(v *State, m mavlink.Message) (Kind, bool) {
	switch m := m.(type) {
	case *mavlink.Attitude:
		v.Attitude = m
		return KindAttitude, true
	case *mavlink.GlobalPositionInt:
		v.Position = m
		return KindPosition, true
	case *mavlink.HomePosition:
		v.Home = m
		return KindHome, true
	case *mavlink.RCChannels:
		v.RC = m
		return KindRC, true
	case *mavlink.ServoOutputRaw:
		v.Servo = m
		return KindServo, true
	case *mavlink.SysStatus:
		v.SysStatus = m
		return KindSysStatus, true
	case *mavlink.GPSRawInt:
		v.GPS = m
		return KindGPS, true
	case *mavlink.VFRHud:
		v.HUD = m
		return KindHUD, true
	case *mavlink.BatteryStatus:
		v.Battery = m
		return KindBattery, true
	case *mavlink.StatusText:
		v.LastText = m
		return KindText, true
	}
	return "", false
}

func (f *Fleet) emit(u Update) {
	f.collector.IncStateUpdate()
	for _, l := range f.listeners {
		l(u)
	}
}
