package mavlink

import "fmt"

// Message is a typed message body. Consumers switch on the concrete type.
type Message interface {
	MessageID() MessageID
}

// MavTypeGCS is MAV_TYPE_GCS, the type a ground station announces.
const MavTypeGCS uint8 = 6

// MAV_MODE_FLAG_SAFETY_ARMED.
const baseModeArmed uint8 = 0x80

// Heartbeat announces a system and its state.
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

func (Heartbeat) MessageID() MessageID { return MsgIDHeartbeat }

// Armed reports whether the safety-armed bit is set in BaseMode.
func (h Heartbeat) Armed() bool { return h.BaseMode&baseModeArmed != 0 }

// IsGCS reports whether the sender is a ground control station.
func (h Heartbeat) IsGCS() bool { return h.Type == MavTypeGCS }

func decodeHeartbeat(m *DecodedMessage) Message {
	return &Heartbeat{
		CustomMode:     fieldAs[uint32](m, "custom_mode"),
		Type:           fieldAs[uint8](m, "type"),
		Autopilot:      fieldAs[uint8](m, "autopilot"),
		BaseMode:       fieldAs[uint8](m, "base_mode"),
		SystemStatus:   fieldAs[uint8](m, "system_status"),
		MavlinkVersion: fieldAs[uint8](m, "mavlink_version"),
	}
}

type SysStatus struct {
	SensorsPresent   uint32
	SensorsEnabled   uint32
	SensorsHealth    uint32
	Load             uint16
	VoltageBattery   uint16 // mV
	CurrentBattery   int16  // cA, -1 unknown
	DropRateComm     uint16
	ErrorsComm       uint16
	ErrorsCount      [4]uint16
	BatteryRemaining int8 // percent, -1 unknown

	SensorsPresentExtended uint32
	SensorsEnabledExtended uint32
	SensorsHealthExtended  uint32
}

func (SysStatus) MessageID() MessageID { return MsgIDSysStatus }

func decodeSysStatus(m *DecodedMessage) Message {
	s := &SysStatus{
		SensorsPresent:   fieldAs[uint32](m, "onboard_control_sensors_present"),
		SensorsEnabled:   fieldAs[uint32](m, "onboard_control_sensors_enabled"),
		SensorsHealth:    fieldAs[uint32](m, "onboard_control_sensors_health"),
		Load:             fieldAs[uint16](m, "load"),
		VoltageBattery:   fieldAs[uint16](m, "voltage_battery"),
		CurrentBattery:   fieldAs[int16](m, "current_battery"),
		DropRateComm:     fieldAs[uint16](m, "drop_rate_comm"),
		ErrorsComm:       fieldAs[uint16](m, "errors_comm"),
		BatteryRemaining: fieldAs[int8](m, "battery_remaining"),

		SensorsPresentExtended: fieldAs[uint32](m, "onboard_control_sensors_present_extended"),
		SensorsEnabledExtended: fieldAs[uint32](m, "onboard_control_sensors_enabled_extended"),
		SensorsHealthExtended:  fieldAs[uint32](m, "onboard_control_sensors_health_extended"),
	}
	for i := range s.ErrorsCount {
		s.ErrorsCount[i] = fieldAs[uint16](m, fmt.Sprintf("errors_count%d", i+1))
	}
	return s
}

type SystemTime struct {
	TimeUnixUsec uint64
	TimeBootMs   uint32
}

func (SystemTime) MessageID() MessageID { return MsgIDSystemTime }

func decodeSystemTime(m *DecodedMessage) Message {
	return &SystemTime{
		TimeUnixUsec: fieldAs[uint64](m, "time_unix_usec"),
		TimeBootMs:   fieldAs[uint32](m, "time_boot_ms"),
	}
}

type ParamValue struct {
	ParamID    string
	ParamValue float32
	ParamType  uint8
	ParamCount uint16
	ParamIndex uint16
}

func (ParamValue) MessageID() MessageID { return MsgIDParamValue }

func decodeParamValue(m *DecodedMessage) Message {
	return &ParamValue{
		ParamID:    fieldAs[string](m, "param_id"),
		ParamValue: fieldAs[float32](m, "param_value"),
		ParamType:  fieldAs[uint8](m, "param_type"),
		ParamCount: fieldAs[uint16](m, "param_count"),
		ParamIndex: fieldAs[uint16](m, "param_index"),
	}
}

// GPSRawInt is the raw GNSS fix. Lat/Lon are degE7, Alt is mm.
type GPSRawInt struct {
	TimeUsec          uint64
	FixType           uint8
	Lat               int32
	Lon               int32
	Alt               int32
	Eph               uint16
	Epv               uint16
	Vel               uint16
	Cog               uint16
	SatellitesVisible uint8
	AltEllipsoid      int32
	HAcc              uint32
	VAcc              uint32
	VelAcc            uint32
	HdgAcc            uint32
	Yaw               uint16
}

func (GPSRawInt) MessageID() MessageID { return MsgIDGPSRawInt }

func decodeGPSRawInt(m *DecodedMessage) Message {
	return &GPSRawInt{
		TimeUsec:          fieldAs[uint64](m, "time_usec"),
		FixType:           fieldAs[uint8](m, "fix_type"),
		Lat:               fieldAs[int32](m, "lat"),
		Lon:               fieldAs[int32](m, "lon"),
		Alt:               fieldAs[int32](m, "alt"),
		Eph:               fieldAs[uint16](m, "eph"),
		Epv:               fieldAs[uint16](m, "epv"),
		Vel:               fieldAs[uint16](m, "vel"),
		Cog:               fieldAs[uint16](m, "cog"),
		SatellitesVisible: fieldAs[uint8](m, "satellites_visible"),
		AltEllipsoid:      fieldAs[int32](m, "alt_ellipsoid"),
		HAcc:              fieldAs[uint32](m, "h_acc"),
		VAcc:              fieldAs[uint32](m, "v_acc"),
		VelAcc:            fieldAs[uint32](m, "vel_acc"),
		HdgAcc:            fieldAs[uint32](m, "hdg_acc"),
		Yaw:               fieldAs[uint16](m, "yaw"),
	}
}

// Attitude angles are radians, rates rad/s.
type Attitude struct {
	TimeBootMs uint32
	Roll       float32
	Pitch      float32
	Yaw        float32
	RollSpeed  float32
	PitchSpeed float32
	YawSpeed   float32
}

func (Attitude) MessageID() MessageID { return MsgIDAttitude }

func decodeAttitude(m *DecodedMessage) Message {
	return &Attitude{
		TimeBootMs: fieldAs[uint32](m, "time_boot_ms"),
		Roll:       fieldAs[float32](m, "roll"),
		Pitch:      fieldAs[float32](m, "pitch"),
		Yaw:        fieldAs[float32](m, "yaw"),
		RollSpeed:  fieldAs[float32](m, "rollspeed"),
		PitchSpeed: fieldAs[float32](m, "pitchspeed"),
		YawSpeed:   fieldAs[float32](m, "yawspeed"),
	}
}

// GlobalPositionInt is the fused position. Lat/Lon degE7, altitudes mm,
// velocities cm/s, Hdg cdeg (UINT16_MAX unknown).
type GlobalPositionInt struct {
	TimeBootMs  uint32
	Lat         int32
	Lon         int32
	Alt         int32
	RelativeAlt int32
	Vx          int16
	Vy          int16
	Vz          int16
	Hdg         uint16
}

func (GlobalPositionInt) MessageID() MessageID { return MsgIDGlobalPositionInt }

func decodeGlobalPositionInt(m *DecodedMessage) Message {
	return &GlobalPositionInt{
		TimeBootMs:  fieldAs[uint32](m, "time_boot_ms"),
		Lat:         fieldAs[int32](m, "lat"),
		Lon:         fieldAs[int32](m, "lon"),
		Alt:         fieldAs[int32](m, "alt"),
		RelativeAlt: fieldAs[int32](m, "relative_alt"),
		Vx:          fieldAs[int16](m, "vx"),
		Vy:          fieldAs[int16](m, "vy"),
		Vz:          fieldAs[int16](m, "vz"),
		Hdg:         fieldAs[uint16](m, "hdg"),
	}
}

type ServoOutputRaw struct {
	TimeUsec uint32
	Port     uint8
	Servos   [16]uint16
}

func (ServoOutputRaw) MessageID() MessageID { return MsgIDServoOutputRaw }

func decodeServoOutputRaw(m *DecodedMessage) Message {
	s := &ServoOutputRaw{
		TimeUsec: fieldAs[uint32](m, "time_usec"),
		Port:     fieldAs[uint8](m, "port"),
	}
	for i := range s.Servos {
		s.Servos[i] = fieldAs[uint16](m, fmt.Sprintf("servo%d_raw", i+1))
	}
	return s
}

type RCChannels struct {
	TimeBootMs uint32
	ChanCount  uint8
	Channels   [18]uint16
	RSSI       uint8
}

func (RCChannels) MessageID() MessageID { return MsgIDRCChannels }

func decodeRCChannels(m *DecodedMessage) Message {
	rc := &RCChannels{
		TimeBootMs: fieldAs[uint32](m, "time_boot_ms"),
		ChanCount:  fieldAs[uint8](m, "chancount"),
		RSSI:       fieldAs[uint8](m, "rssi"),
	}
	for i := range rc.Channels {
		rc.Channels[i] = fieldAs[uint16](m, fmt.Sprintf("chan%d_raw", i+1))
	}
	return rc
}

type VFRHud struct {
	Airspeed    float32
	Groundspeed float32
	Heading     int16
	Throttle    uint16
	Alt         float32
	Climb       float32
}

func (VFRHud) MessageID() MessageID { return MsgIDVFRHud }

func decodeVFRHud(m *DecodedMessage) Message {
	return &VFRHud{
		Airspeed:    fieldAs[float32](m, "airspeed"),
		Groundspeed: fieldAs[float32](m, "groundspeed"),
		Heading:     fieldAs[int16](m, "heading"),
		Throttle:    fieldAs[uint16](m, "throttle"),
		Alt:         fieldAs[float32](m, "alt"),
		Climb:       fieldAs[float32](m, "climb"),
	}
}

type CommandLong struct {
	TargetSystem    uint8
	TargetComponent uint8
	Command         uint16
	Confirmation    uint8
	Params          [7]float32
}

func (CommandLong) MessageID() MessageID { return MsgIDCommandLong }

func decodeCommandLong(m *DecodedMessage) Message {
	c := &CommandLong{
		TargetSystem:    fieldAs[uint8](m, "target_system"),
		TargetComponent: fieldAs[uint8](m, "target_component"),
		Command:         fieldAs[uint16](m, "command"),
		Confirmation:    fieldAs[uint8](m, "confirmation"),
	}
	for i := range c.Params {
		c.Params[i] = fieldAs[float32](m, fmt.Sprintf("param%d", i+1))
	}
	return c
}

// BatteryStatus voltages are mV (UINT16_MAX unused cell).
type BatteryStatus struct {
	ID               uint8
	BatteryFunction  uint8
	Type             uint8
	Temperature      int16
	Voltages         [10]uint16
	CurrentBattery   int16
	CurrentConsumed  int32
	EnergyConsumed   int32
	BatteryRemaining int8
	TimeRemaining    int32
	ChargeState      uint8
	VoltagesExt      [4]uint16
	Mode             uint8
	FaultBitmask     uint32
}

func (BatteryStatus) MessageID() MessageID { return MsgIDBatteryStatus }

func decodeBatteryStatus(m *DecodedMessage) Message {
	b := &BatteryStatus{
		ID:               fieldAs[uint8](m, "id"),
		BatteryFunction:  fieldAs[uint8](m, "battery_function"),
		Type:             fieldAs[uint8](m, "type"),
		Temperature:      fieldAs[int16](m, "temperature"),
		CurrentBattery:   fieldAs[int16](m, "current_battery"),
		CurrentConsumed:  fieldAs[int32](m, "current_consumed"),
		EnergyConsumed:   fieldAs[int32](m, "energy_consumed"),
		BatteryRemaining: fieldAs[int8](m, "battery_remaining"),
		TimeRemaining:    fieldAs[int32](m, "time_remaining"),
		ChargeState:      fieldAs[uint8](m, "charge_state"),
		Mode:             fieldAs[uint8](m, "mode"),
		FaultBitmask:     fieldAs[uint32](m, "fault_bitmask"),
	}
	copy(b.Voltages[:], fieldAs[[]uint16](m, "voltages"))
	copy(b.VoltagesExt[:], fieldAs[[]uint16](m, "voltages_ext"))
	return b
}

type HomePosition struct {
	Latitude  int32
	Longitude int32
	Altitude  int32
	X, Y, Z   float32
	Q         [4]float32
	ApproachX float32
	ApproachY float32
	ApproachZ float32
	TimeUsec  uint64
}

func (HomePosition) MessageID() MessageID { return MsgIDHomePosition }

func decodeHomePosition(m *DecodedMessage) Message {
	h := &HomePosition{
		Latitude:  fieldAs[int32](m, "latitude"),
		Longitude: fieldAs[int32](m, "longitude"),
		Altitude:  fieldAs[int32](m, "altitude"),
		X:         fieldAs[float32](m, "x"),
		Y:         fieldAs[float32](m, "y"),
		Z:         fieldAs[float32](m, "z"),
		ApproachX: fieldAs[float32](m, "approach_x"),
		ApproachY: fieldAs[float32](m, "approach_y"),
		ApproachZ: fieldAs[float32](m, "approach_z"),
		TimeUsec:  fieldAs[uint64](m, "time_usec"),
	}
	copy(h.Q[:], fieldAs[[]float32](m, "q"))
	return h
}

type StatusText struct {
	Severity uint8
	Text     string
	ID       uint16
	ChunkSeq uint8
}

func (StatusText) MessageID() MessageID { return MsgIDStatusText }

func decodeStatusText(m *DecodedMessage) Message {
	return &StatusText{
		Severity: fieldAs[uint8](m, "severity"),
		Text:     fieldAs[string](m, "text"),
		ID:       fieldAs[uint16](m, "id"),
		ChunkSeq: fieldAs[uint8](m, "chunk_seq"),
	}
}
