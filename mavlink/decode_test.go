package mavlink

import (
	"testing"
)

func parseOne(t *testing.T, raw []byte) *DecodedMessage {
	t.Helper()
	p := NewParser(nil)
	p.Feed(raw)
	f, err := p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	msg, err := DecodeFrame(f, p.Registry())
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	return msg
}

func TestDecode_AttitudeRoundTrip(t *testing.T) {
	for _, v := range []Version{V1, V2} {
		t.Run(v.String(), func(t *testing.T) {
			msg := parseOne(t, encodeMsg(t, v, 1, MsgIDAttitude, attitudeValues()))
			att, ok := msg.Message.(*Attitude)
			if !ok {
				t.Fatalf("Message = %T, want *Attitude", msg.Message)
			}
			want := Attitude{TimeBootMs: 1000, Roll: 0.5, Pitch: -0.25, Yaw: 1.5, RollSpeed: 0.125, PitchSpeed: 2, YawSpeed: 0.75}
			if *att != want {
				t.Errorf("Attitude = %+v, want %+v", *att, want)
			}
			if msg.Name != "ATTITUDE" {
				t.Errorf("Name = %q, want ATTITUDE", msg.Name)
			}
			if msg.Header.SystemID != 1 || msg.Header.Sequence != 1 {
				t.Errorf("Header = %+v", msg.Header)
			}
		})
	}
}

func TestDecode_FieldOrderIsWireOrder(t *testing.T) {
	msg := parseOne(t, encodeMsg(t, V2, 0, MsgIDHeartbeat, map[string]any{"type": 2}))
	want := []string{"custom_mode", "type", "autopilot", "base_mode", "system_status", "mavlink_version"}
	if len(msg.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(msg.Fields), len(want))
	}
	for i, name := range want {
		if msg.Fields[i].Name != name {
			t.Errorf("Fields[%d] = %q, want %q", i, msg.Fields[i].Name, name)
		}
	}
}

func TestDecode_HeartbeatTyped(t *testing.T) {
	msg := parseOne(t, encodeMsg(t, V2, 0, MsgIDHeartbeat, map[string]any{
		"custom_mode":     uint32(4),
		"type":            2,
		"autopilot":       3,
		"base_mode":       0x81,
		"system_status":   4,
		"mavlink_version": 3,
	}))
	hb, ok := msg.Message.(*Heartbeat)
	if !ok {
		t.Fatalf("Message = %T, want *Heartbeat", msg.Message)
	}
	if !hb.Armed() {
		t.Error("Armed = false, want true")
	}
	if hb.IsGCS() {
		t.Error("IsGCS = true, want false")
	}
	if hb.CustomMode != 4 || hb.Autopilot != 3 || hb.SystemStatus != 4 {
		t.Errorf("Heartbeat = %+v", *hb)
	}
}

func TestDecode_TruncatedPayloadZeroFilled(t *testing.T) {
	// v2 drops the trailing zero rate fields on the wire.
	values := map[string]any{"time_boot_ms": uint32(5), "roll": float32(1)}
	raw := encodeMsg(t, V2, 0, MsgIDAttitude, values)
	if raw[1] >= 28 {
		t.Fatalf("length = %d, expected truncation", raw[1])
	}
	msg := parseOne(t, raw)
	att := msg.Message.(*Attitude)
	if att.TimeBootMs != 5 || att.Roll != 1 || att.Pitch != 0 || att.YawSpeed != 0 {
		t.Errorf("Attitude = %+v", *att)
	}

	// v1 sender with a short payload.
	schema, _ := Common().Lookup(MsgIDAttitude)
	payload, _ := EncodePayload(schema, attitudeValues())
	short, err := EncodeFrame(Header{Version: V1, SystemID: 1, ComponentID: 1, MessageID: MsgIDAttitude}, schema, payload[:8], nil)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	msg = parseOne(t, short)
	att = msg.Message.(*Attitude)
	if att.TimeBootMs != 1000 || att.Roll != 0.5 || att.Pitch != 0 {
		t.Errorf("short v1 Attitude = %+v", *att)
	}
}

func TestDecode_ExtensionsDroppedOnV1(t *testing.T) {
	values := map[string]any{
		"time_usec":          uint64(123456789),
		"lat":                int32(473977418),
		"lon":                int32(85455939),
		"alt":                int32(488000),
		"fix_type":           3,
		"satellites_visible": 12,
		"h_acc":              uint32(1500),
	}
	v1 := parseOne(t, encodeMsg(t, V1, 0, MsgIDGPSRawInt, values)).Message.(*GPSRawInt)
	if v1.Lat != 473977418 || v1.SatellitesVisible != 12 {
		t.Errorf("v1 GPS = %+v", *v1)
	}
	if v1.HAcc != 0 {
		t.Errorf("v1 HAcc = %d, want 0 (extension not sent)", v1.HAcc)
	}

	v2 := parseOne(t, encodeMsg(t, V2, 0, MsgIDGPSRawInt, values)).Message.(*GPSRawInt)
	if v2.HAcc != 1500 {
		t.Errorf("v2 HAcc = %d, want 1500", v2.HAcc)
	}
}

func TestDecode_CharArrayAndArrays(t *testing.T) {
	st := parseOne(t, encodeMsg(t, V2, 0, MsgIDStatusText, map[string]any{
		"severity": 6,
		"text":     "PreArm: Gyros inconsistent",
	})).Message.(*StatusText)
	if st.Text != "PreArm: Gyros inconsistent" {
		t.Errorf("Text = %q", st.Text)
	}
	if st.Severity != 6 {
		t.Errorf("Severity = %d, want 6", st.Severity)
	}

	bat := parseOne(t, encodeMsg(t, V2, 0, MsgIDBatteryStatus, map[string]any{
		"voltages":          []uint16{4200, 4190, 4180},
		"battery_remaining": int8(-1),
		"current_battery":   int16(-1),
	})).Message.(*BatteryStatus)
	if bat.Voltages[0] != 4200 || bat.Voltages[2] != 4180 || bat.Voltages[3] != 0 {
		t.Errorf("Voltages = %v", bat.Voltages)
	}
	if bat.BatteryRemaining != -1 || bat.CurrentBattery != -1 {
		t.Errorf("BatteryRemaining=%d CurrentBattery=%d, want -1 -1", bat.BatteryRemaining, bat.CurrentBattery)
	}
}

func TestDecode_FieldLookup(t *testing.T) {
	msg := parseOne(t, encodeMsg(t, V2, 0, MsgIDVFRHud, map[string]any{
		"groundspeed": float32(12.5),
		"heading":     int16(270),
	}))
	v, ok := msg.Field("groundspeed")
	if !ok || v.(float32) != 12.5 {
		t.Errorf("groundspeed = %v, %v", v, ok)
	}
	if _, ok := msg.Field("nope"); ok {
		t.Error("Field(nope) found")
	}
	if got := msg.FieldMap()["heading"]; got != int16(270) {
		t.Errorf("FieldMap heading = %v", got)
	}
}

func TestDecode_SchemaMismatch(t *testing.T) {
	p := NewParser(nil)
	p.Feed(encodeMsg(t, V2, 0, MsgIDHeartbeat, nil))
	f, err := p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	att, _ := Common().Lookup(MsgIDAttitude)
	if _, err := Decode(f, att); err == nil {
		t.Error("Decode with wrong schema succeeded")
	}
}

func TestDecode_LengthByteMismatch(t *testing.T) {
	p := NewParser(nil)
	p.Feed(encodeMsg(t, V2, 0, MsgIDAttitude, attitudeValues()))
	f, err := p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	f.Header.Length--
	_, err = DecodeFrame(f, p.Registry())
	if kind, _ := RejectKindOf(err); kind != RejectLength {
		t.Errorf("DecodeFrame = %v, want bad_length", err)
	}
}

func TestRegistry_LookupName(t *testing.T) {
	s, ok := Common().LookupName("GLOBAL_POSITION_INT")
	if !ok || s.ID != MsgIDGlobalPositionInt {
		t.Errorf("LookupName = %v, %v", s, ok)
	}
	if _, ok := Common().LookupName("global_position_int"); ok {
		t.Error("LookupName matched a lowercase name")
	}
}

func TestRegistry_Duplicates(t *testing.T) {
	a := NewSchema(1, "A", 0)
	b := NewSchema(1, "B", 0)
	if _, err := NewRegistry(a, b); err == nil {
		t.Error("duplicate id accepted")
	}
	c := NewSchema(2, "A", 0)
	if _, err := NewRegistry(a, c); err == nil {
		t.Error("duplicate name accepted")
	}
}

func TestCommon_PayloadLengths(t *testing.T) {
	tests := []struct {
		id        MessageID
		base, all int
	}{
		{MsgIDHeartbeat, 9, 9},
		{MsgIDSysStatus, 31, 43},
		{MsgIDSystemTime, 12, 12},
		{MsgIDParamValue, 25, 25},
		{MsgIDGPSRawInt, 30, 52},
		{MsgIDAttitude, 28, 28},
		{MsgIDGlobalPositionInt, 28, 28},
		{MsgIDServoOutputRaw, 21, 37},
		{MsgIDRCChannels, 42, 42},
		{MsgIDVFRHud, 20, 20},
		{MsgIDCommandLong, 33, 33},
		{MsgIDBatteryStatus, 36, 54},
		{MsgIDHomePosition, 52, 60},
		{MsgIDStatusText, 51, 54},
	}
	for _, tt := range tests {
		s, ok := Common().Lookup(tt.id)
		if !ok {
			t.Errorf("%d not registered", tt.id)
			continue
		}
		if s.BaseLen() != tt.base || s.PayloadLen() != tt.all {
			t.Errorf("%s: base=%d all=%d, want %d %d", s.Name, s.BaseLen(), s.PayloadLen(), tt.base, tt.all)
		}
	}
	if MsgIDAttitude.String() != "ATTITUDE" {
		t.Errorf("String = %q", MsgIDAttitude.String())
	}
	if MessageID(9999).String() != "MSG_9999" {
		t.Errorf("String = %q", MessageID(9999).String())
	}
}

func TestEncoder_SequenceIncrements(t *testing.T) {
	enc := NewEncoder(nil, V2, 255, 190)
	for i := range 3 {
		raw, err := enc.Encode(MsgIDHeartbeat, map[string]any{"type": MavTypeGCS})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if raw[4] != uint8(i) {
			t.Errorf("seq = %d, want %d", raw[4], i)
		}
		if raw[5] != 255 || raw[6] != 190 {
			t.Errorf("sys/comp = %d/%d", raw[5], raw[6])
		}
	}
	if _, err := enc.Encode(9999, nil); err == nil {
		t.Error("Encode of unknown id succeeded")
	}
}
