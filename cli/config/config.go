package config

import (
	"fmt"
	"time"
)

// Default ports.
const (
	DefaultUDPPort   = 16450
	DefaultWSPort    = 8811
	DefaultServePort = 8080
)

// Config represents a mavbridge.yaml (or .toml) configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	// BridgeID names this bridge in records, metrics and adapter events.
	BridgeID  string          `yaml:"bridge_id" toml:"bridge_id"`
	UDP       UDPConfig       `yaml:"udp" toml:"udp"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Serve     ServeConfig     `yaml:"serve" toml:"serve"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Record    RecordConfig    `yaml:"record" toml:"record"`
	Capture   CaptureConfig   `yaml:"capture" toml:"capture"`
	Adapter   AdapterConfig   `yaml:"adapter" toml:"adapter"`
	Stream    StreamConfig    `yaml:"stream" toml:"stream"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" toml:"heartbeat"`
}

// UDPConfig configures the UDP side of the bridge.
type UDPConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// WebSocketConfig configures the WebSocket endpoint.
type WebSocketConfig struct {
	Host       string `yaml:"host" toml:"host"`
	Port       int    `yaml:"port" toml:"port"`
	Path       string `yaml:"path" toml:"path"`
	MaxClients int    `yaml:"max_clients" toml:"max_clients"`
	SendQueue  int    `yaml:"send_queue" toml:"send_queue"`
	// PingInterval enables keepalive pings; zero disables them.
	PingInterval Duration `yaml:"ping_interval" toml:"ping_interval"`
}

// ServeConfig configures the static frontend server.
type ServeConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
	Dir  string `yaml:"dir" toml:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// RecordConfig configures telemetry recording.
type RecordConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Policy is strict or buffered.
	Policy        string        `yaml:"policy" toml:"policy"`
	BufferRecords int           `yaml:"buffer_records" toml:"buffer_records"`
	BufferBytes   int64         `yaml:"buffer_bytes" toml:"buffer_bytes"`
	Droppable     []string      `yaml:"droppable" toml:"droppable"`
	FlushInterval Duration      `yaml:"flush_interval" toml:"flush_interval"`
	QueueSize     int           `yaml:"queue_size" toml:"queue_size"`
	Storage       StorageConfig `yaml:"storage" toml:"storage"`
}

// StorageConfig holds recording storage settings.
type StorageConfig struct {
	Dataset     string `yaml:"dataset" toml:"dataset"`
	Backend     string `yaml:"backend" toml:"backend"`
	Path        string `yaml:"path" toml:"path"`
	Region      string `yaml:"region" toml:"region"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style" toml:"s3_path_style"`
}

// CaptureConfig configures raw datagram capture.
type CaptureConfig struct {
	Path     string `yaml:"path" toml:"path"`
	Compress bool   `yaml:"compress" toml:"compress"`
}

// AdapterConfig configures vehicle-update publishing.
type AdapterConfig struct {
	// Type is redis or webhook; empty disables publishing.
	Type        string            `yaml:"type" toml:"type"`
	URL         string            `yaml:"url" toml:"url"`
	Format      string            `yaml:"format" toml:"format"`
	Kinds       []string          `yaml:"kinds" toml:"kinds"`
	MinInterval Duration          `yaml:"min_interval" toml:"min_interval"`
	Workers     int               `yaml:"workers" toml:"workers"`
	Timeout     Duration          `yaml:"timeout" toml:"timeout"`
	Retries     *int              `yaml:"retries,omitempty" toml:"retries"`
	Channel     string            `yaml:"channel,omitempty" toml:"channel"`
	PerVehicle  bool              `yaml:"per_vehicle" toml:"per_vehicle"`
	Headers     map[string]string `yaml:"headers,omitempty" toml:"headers"`
}

// StreamConfig configures the Linux video pipe.
type StreamConfig struct {
	FFmpeg    string   `yaml:"ffmpeg" toml:"ffmpeg"`
	Device    string   `yaml:"device" toml:"device"`
	Size      string   `yaml:"size" toml:"size"`
	Framerate int      `yaml:"framerate" toml:"framerate"`
	Output    string   `yaml:"output" toml:"output"`
	ExtraArgs []string `yaml:"extra_args" toml:"extra_args"`
}

// HeartbeatConfig configures the GCS heartbeat sent to the UDP peer.
type HeartbeatConfig struct {
	Interval    Duration `yaml:"interval" toml:"interval"`
	SystemID    int      `yaml:"system_id" toml:"system_id"`
	ComponentID int      `yaml:"component_id" toml:"component_id"`
}

// Duration wraps time.Duration for string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// UnmarshalText lets TOML decode duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

func (d *Duration) parse(s string) error {
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ResolvePort returns port when it is a valid TCP/UDP port number and def
// otherwise. Zero means unset and resolves to def silently; any other
// out-of-range value calls warn first.
func ResolvePort(name string, port, def int, warn func(msg string, fields map[string]any)) int {
	if port == 0 {
		return def
	}
	if port < 1 || port > 65535 {
		if warn != nil {
			warn("invalid port, using default", map[string]any{
				"setting": name,
				"value":   port,
				"default": def,
			})
		}
		return def
	}
	return port
}
