package mavlink

import "fmt"

// Message IDs of the built-in catalogue.
const (
	MsgIDHeartbeat         MessageID = 0
	MsgIDSysStatus         MessageID = 1
	MsgIDSystemTime        MessageID = 2
	MsgIDParamValue        MessageID = 22
	MsgIDGPSRawInt         MessageID = 24
	MsgIDAttitude          MessageID = 30
	MsgIDGlobalPositionInt MessageID = 33
	MsgIDServoOutputRaw    MessageID = 36
	MsgIDRCChannels        MessageID = 65
	MsgIDVFRHud            MessageID = 74
	MsgIDCommandLong       MessageID = 76
	MsgIDBatteryStatus     MessageID = 147
	MsgIDHomePosition      MessageID = 242
	MsgIDStatusText        MessageID = 253
)

var common = mustRegistry(
	typedSchema(NewSchema(MsgIDHeartbeat, "HEARTBEAT", 50,
		Field{Name: "custom_mode", Type: Uint32},
		Field{Name: "type", Type: Uint8},
		Field{Name: "autopilot", Type: Uint8},
		Field{Name: "base_mode", Type: Uint8},
		Field{Name: "system_status", Type: Uint8},
		Field{Name: "mavlink_version", Type: Uint8},
	), decodeHeartbeat),
	typedSchema(NewSchema(MsgIDSysStatus, "SYS_STATUS", 124,
		Field{Name: "onboard_control_sensors_present", Type: Uint32},
		Field{Name: "onboard_control_sensors_enabled", Type: Uint32},
		Field{Name: "onboard_control_sensors_health", Type: Uint32},
		Field{Name: "load", Type: Uint16},
		Field{Name: "voltage_battery", Type: Uint16},
		Field{Name: "current_battery", Type: Int16},
		Field{Name: "drop_rate_comm", Type: Uint16},
		Field{Name: "errors_comm", Type: Uint16},
		Field{Name: "errors_count1", Type: Uint16},
		Field{Name: "errors_count2", Type: Uint16},
		Field{Name: "errors_count3", Type: Uint16},
		Field{Name: "errors_count4", Type: Uint16},
		Field{Name: "battery_remaining", Type: Int8},
		Field{Name: "onboard_control_sensors_present_extended", Type: Uint32, Extension: true},
		Field{Name: "onboard_control_sensors_enabled_extended", Type: Uint32, Extension: true},
		Field{Name: "onboard_control_sensors_health_extended", Type: Uint32, Extension: true},
	), decodeSysStatus),
	typedSchema(NewSchema(MsgIDSystemTime, "SYSTEM_TIME", 137,
		Field{Name: "time_unix_usec", Type: Uint64},
		Field{Name: "time_boot_ms", Type: Uint32},
	), decodeSystemTime),
	typedSchema(NewSchema(MsgIDParamValue, "PARAM_VALUE", 220,
		Field{Name: "param_value", Type: Float},
		Field{Name: "param_count", Type: Uint16},
		Field{Name: "param_index", Type: Uint16},
		Field{Name: "param_id", Type: Char, ArrayLen: 16},
		Field{Name: "param_type", Type: Uint8},
	), decodeParamValue),
	typedSchema(NewSchema(MsgIDGPSRawInt, "GPS_RAW_INT", 24,
		Field{Name: "time_usec", Type: Uint64},
		Field{Name: "lat", Type: Int32},
		Field{Name: "lon", Type: Int32},
		Field{Name: "alt", Type: Int32},
		Field{Name: "eph", Type: Uint16},
		Field{Name: "epv", Type: Uint16},
		Field{Name: "vel", Type: Uint16},
		Field{Name: "cog", Type: Uint16},
		Field{Name: "fix_type", Type: Uint8},
		Field{Name: "satellites_visible", Type: Uint8},
		Field{Name: "alt_ellipsoid", Type: Int32, Extension: true},
		Field{Name: "h_acc", Type: Uint32, Extension: true},
		Field{Name: "v_acc", Type: Uint32, Extension: true},
		Field{Name: "vel_acc", Type: Uint32, Extension: true},
		Field{Name: "hdg_acc", Type: Uint32, Extension: true},
		Field{Name: "yaw", Type: Uint16, Extension: true},
	), decodeGPSRawInt),
	typedSchema(NewSchema(MsgIDAttitude, "ATTITUDE", 39,
		Field{Name: "time_boot_ms", Type: Uint32},
		Field{Name: "roll", Type: Float},
		Field{Name: "pitch", Type: Float},
		Field{Name: "yaw", Type: Float},
		Field{Name: "rollspeed", Type: Float},
		Field{Name: "pitchspeed", Type: Float},
		Field{Name: "yawspeed", Type: Float},
	), decodeAttitude),
	typedSchema(NewSchema(MsgIDGlobalPositionInt, "GLOBAL_POSITION_INT", 104,
		Field{Name: "time_boot_ms", Type: Uint32},
		Field{Name: "lat", Type: Int32},
		Field{Name: "lon", Type: Int32},
		Field{Name: "alt", Type: Int32},
		Field{Name: "relative_alt", Type: Int32},
		Field{Name: "vx", Type: Int16},
		Field{Name: "vy", Type: Int16},
		Field{Name: "vz", Type: Int16},
		Field{Name: "hdg", Type: Uint16},
	), decodeGlobalPositionInt),
	typedSchema(NewSchema(MsgIDServoOutputRaw, "SERVO_OUTPUT_RAW", 222,
		append(append(append([]Field{{Name: "time_usec", Type: Uint32}},
			numbered("servo%d_raw", 1, 8, Uint16, false)...),
			Field{Name: "port", Type: Uint8}),
			numbered("servo%d_raw", 9, 16, Uint16, true)...)...,
	), decodeServoOutputRaw),
	typedSchema(NewSchema(MsgIDRCChannels, "RC_CHANNELS", 118,
		append(append([]Field{{Name: "time_boot_ms", Type: Uint32}},
			numbered("chan%d_raw", 1, 18, Uint16, false)...),
			Field{Name: "chancount", Type: Uint8},
			Field{Name: "rssi", Type: Uint8})...,
	), decodeRCChannels),
	typedSchema(NewSchema(MsgIDVFRHud, "VFR_HUD", 20,
		Field{Name: "airspeed", Type: Float},
		Field{Name: "groundspeed", Type: Float},
		Field{Name: "alt", Type: Float},
		Field{Name: "climb", Type: Float},
		Field{Name: "heading", Type: Int16},
		Field{Name: "throttle", Type: Uint16},
	), decodeVFRHud),
	typedSchema(NewSchema(MsgIDCommandLong, "COMMAND_LONG", 152,
		append(numbered("param%d", 1, 7, Float, false),
			Field{Name: "command", Type: Uint16},
			Field{Name: "target_system", Type: Uint8},
			Field{Name: "target_component", Type: Uint8},
			Field{Name: "confirmation", Type: Uint8})...,
	), decodeCommandLong),
	typedSchema(NewSchema(MsgIDBatteryStatus, "BATTERY_STATUS", 154,
		Field{Name: "current_consumed", Type: Int32},
		Field{Name: "energy_consumed", Type: Int32},
		Field{Name: "temperature", Type: Int16},
		Field{Name: "voltages", Type: Uint16, ArrayLen: 10},
		Field{Name: "current_battery", Type: Int16},
		Field{Name: "id", Type: Uint8},
		Field{Name: "battery_function", Type: Uint8},
		Field{Name: "type", Type: Uint8},
		Field{Name: "battery_remaining", Type: Int8},
		Field{Name: "time_remaining", Type: Int32, Extension: true},
		Field{Name: "charge_state", Type: Uint8, Extension: true},
		Field{Name: "voltages_ext", Type: Uint16, ArrayLen: 4, Extension: true},
		Field{Name: "mode", Type: Uint8, Extension: true},
		Field{Name: "fault_bitmask", Type: Uint32, Extension: true},
	), decodeBatteryStatus),
	typedSchema(NewSchema(MsgIDHomePosition, "HOME_POSITION", 104,
		Field{Name: "latitude", Type: Int32},
		Field{Name: "longitude", Type: Int32},
		Field{Name: "altitude", Type: Int32},
		Field{Name: "x", Type: Float},
		Field{Name: "y", Type: Float},
		Field{Name: "z", Type: Float},
		Field{Name: "q", Type: Float, ArrayLen: 4},
		Field{Name: "approach_x", Type: Float},
		Field{Name: "approach_y", Type: Float},
		Field{Name: "approach_z", Type: Float},
		Field{Name: "time_usec", Type: Uint64, Extension: true},
	), decodeHomePosition),
	typedSchema(NewSchema(MsgIDStatusText, "STATUSTEXT", 83,
		Field{Name: "severity", Type: Uint8},
		Field{Name: "text", Type: Char, ArrayLen: 50},
		Field{Name: "id", Type: Uint16, Extension: true},
		Field{Name: "chunk_seq", Type: Uint8, Extension: true},
	), decodeStatusText),
)

// Common returns the built-in registry of common-dialect messages.
func Common() *Registry { return common }

func mustRegistry(schemas ...*Schema) *Registry {
	r, err := NewRegistry(schemas...)
	if err != nil {
		panic(err)
	}
	return r
}

func typedSchema(s *Schema, fn func(*DecodedMessage) Message) *Schema {
	s.typed = fn
	return s
}

// numbered returns fields named by format for indices from..to inclusive.
func numbered(format string, from, to int, t FieldType, ext bool) []Field {
	out := make([]Field, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, Field{Name: fmt.Sprintf(format, i), Type: t, Extension: ext})
	}
	return out
}
