package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `bridge_id: field-01

udp:
  host: 0.0.0.0
  port: 14550

websocket:
  port: 9000
  path: /mav
  max_clients: 8
  send_queue: 64
  ping_interval: 20s

serve:
  port: 8081
  dir: ./dist

log:
  level: debug
  format: console
  file: /var/log/mavbridge.log
  max_size_mb: 10

record:
  enabled: true
  policy: buffered
  buffer_records: 2000
  buffer_bytes: 1048576
  droppable: [ATTITUDE, RC_CHANNELS]
  flush_interval: 500ms
  storage:
    dataset: flights
    backend: s3
    path: my-bucket/prefix
    region: us-east-1
    endpoint: https://example.com
    s3_path_style: true

capture:
  path: ./captures/today.cap.zst
  compress: true

adapter:
  type: webhook
  url: https://hooks.example.com/mav
  format: msgpack
  kinds: [created, position]
  min_interval: 1s
  workers: 2
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3

stream:
  device: /dev/video2
  size: 640x480
  framerate: 15
  output: udp://10.0.0.2:5600

heartbeat:
  interval: 1s
  system_id: 250
`
	path := writeTemp(t, "mavbridge.yaml", yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "bridge_id", cfg.BridgeID, "field-01")
	assertEqual(t, "udp.host", cfg.UDP.Host, "0.0.0.0")
	if cfg.UDP.Port != 14550 {
		t.Errorf("udp.port = %d, want 14550", cfg.UDP.Port)
	}

	assertEqual(t, "websocket.path", cfg.WebSocket.Path, "/mav")
	if cfg.WebSocket.Port != 9000 || cfg.WebSocket.MaxClients != 8 || cfg.WebSocket.SendQueue != 64 {
		t.Errorf("websocket = %+v", cfg.WebSocket)
	}
	if cfg.WebSocket.PingInterval.Duration != 20*time.Second {
		t.Errorf("websocket.ping_interval = %v", cfg.WebSocket.PingInterval.Duration)
	}

	assertEqual(t, "serve.dir", cfg.Serve.Dir, "./dist")
	assertEqual(t, "log.level", cfg.Log.Level, "debug")
	assertEqual(t, "log.format", cfg.Log.Format, "console")
	if cfg.Log.MaxSizeMB != 10 {
		t.Errorf("log.max_size_mb = %d", cfg.Log.MaxSizeMB)
	}

	if !cfg.Record.Enabled {
		t.Error("expected record.enabled=true")
	}
	assertEqual(t, "record.policy", cfg.Record.Policy, "buffered")
	if cfg.Record.BufferRecords != 2000 || cfg.Record.BufferBytes != 1048576 {
		t.Errorf("record buffer = %d/%d", cfg.Record.BufferRecords, cfg.Record.BufferBytes)
	}
	if len(cfg.Record.Droppable) != 2 || cfg.Record.Droppable[1] != "RC_CHANNELS" {
		t.Errorf("record.droppable = %v", cfg.Record.Droppable)
	}
	if cfg.Record.FlushInterval.Duration != 500*time.Millisecond {
		t.Errorf("record.flush_interval = %v", cfg.Record.FlushInterval.Duration)
	}
	assertEqual(t, "record.storage.backend", cfg.Record.Storage.Backend, "s3")
	assertEqual(t, "record.storage.path", cfg.Record.Storage.Path, "my-bucket/prefix")
	if !cfg.Record.Storage.S3PathStyle {
		t.Error("expected record.storage.s3_path_style=true")
	}

	if !cfg.Capture.Compress {
		t.Error("expected capture.compress=true")
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.format", cfg.Adapter.Format, "msgpack")
	if len(cfg.Adapter.Kinds) != 2 || cfg.Adapter.Kinds[0] != "created" {
		t.Errorf("adapter.kinds = %v", cfg.Adapter.Kinds)
	}
	if cfg.Adapter.MinInterval.Duration != time.Second {
		t.Errorf("adapter.min_interval = %v", cfg.Adapter.MinInterval.Duration)
	}
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("adapter.timeout = %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization header")
	}

	assertEqual(t, "stream.device", cfg.Stream.Device, "/dev/video2")
	if cfg.Stream.Framerate != 15 {
		t.Errorf("stream.framerate = %d", cfg.Stream.Framerate)
	}
	if cfg.Heartbeat.Interval.Duration != time.Second || cfg.Heartbeat.SystemID != 250 {
		t.Errorf("heartbeat = %+v", cfg.Heartbeat)
	}
}

func TestLoad_TOML(t *testing.T) {
	content := `bridge_id = "field-02"

[udp]
port = 14551

[websocket]
max_clients = 4
ping_interval = "15s"

[record]
enabled = true
policy = "strict"

[record.storage]
backend = "fs"
path = "/data/mav"

[adapter]
type = "redis"
url = "redis://localhost:6379/0"
channel = "fleet"
per_vehicle = true
min_interval = "250ms"
`
	path := writeTemp(t, "mavbridge.toml", content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "bridge_id", cfg.BridgeID, "field-02")
	if cfg.UDP.Port != 14551 || cfg.WebSocket.MaxClients != 4 {
		t.Errorf("ports/clients = %d/%d", cfg.UDP.Port, cfg.WebSocket.MaxClients)
	}
	if cfg.WebSocket.PingInterval.Duration != 15*time.Second {
		t.Errorf("websocket.ping_interval = %v", cfg.WebSocket.PingInterval.Duration)
	}
	assertEqual(t, "record.storage.path", cfg.Record.Storage.Path, "/data/mav")
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "fleet")
	if !cfg.Adapter.PerVehicle {
		t.Error("expected adapter.per_vehicle=true")
	}
	if cfg.Adapter.MinInterval.Duration != 250*time.Millisecond {
		t.Errorf("adapter.min_interval = %v", cfg.Adapter.MinInterval.Duration)
	}
}

func TestLoad_TOMLUnknownKeyRejected(t *testing.T) {
	path := writeTemp(t, "mavbridge.toml", "[udp]\nport = 1\nbogus = true\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeTemp(t, "mavbridge.yaml", "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BridgeID != "" || cfg.UDP.Port != 0 {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/mavbridge.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "mavbridge.yaml", "{{invalid yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BRIDGE", "expanded-bridge")

	path := writeTemp(t, "mavbridge.yaml", "bridge_id: ${TEST_BRIDGE}\nudp:\n  port: ${TEST_UDP_PORT:-14560}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "bridge_id", cfg.BridgeID, "expanded-bridge")
	if cfg.UDP.Port != 14560 {
		t.Errorf("udp.port = %d, want default 14560", cfg.UDP.Port)
	}
}

func TestLoad_RequiredEnvMissing(t *testing.T) {
	path := writeTemp(t, "mavbridge.yaml", "adapter:\n  type: webhook\n  url: ${MAVBRIDGE_TEST_HOOK:?webhook endpoint}\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing required variable")
	}
	if !strings.Contains(err.Error(), "MAVBRIDGE_TEST_HOOK: webhook endpoint") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeTemp(t, "mavbridge.yaml", "bridge_id: a\nbogus_key: should_fail\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `record:
  storage:
    backend: fs
    path: ./data
    unknown_field: bad
`
	path := writeTemp(t, "mavbridge.yaml", yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	path := writeTemp(t, "mavbridge.yaml", "# This is a comment\n# Another comment\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed for comments-only config: %v", err)
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	path := writeTemp(t, "mavbridge.yaml", "adapter:\n  type: webhook\n  url: https://example.com\n  retries: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil {
		t.Fatal("retries: 0 should be non-nil")
	}
	if *cfg.Adapter.Retries != 0 {
		t.Errorf("retries = %d, want 0", *cfg.Adapter.Retries)
	}

	path = writeTemp(t, "mavbridge.yaml", "adapter:\n  type: webhook\n")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("omitted retries should be nil, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	path := writeTemp(t, "mavbridge.yaml", "heartbeat:\n  interval: soon\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v", err)
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("got %v, want 1m30s", d.Duration)
	}
	d = Duration{}
	if err := d.UnmarshalText(nil); err != nil || d.Duration != 0 {
		t.Errorf("empty text: %v, %v", d.Duration, err)
	}
}

func TestResolvePort(t *testing.T) {
	tests := []struct {
		name     string
		port     int
		want     int
		wantWarn bool
	}{
		{"unset", 0, DefaultUDPPort, false},
		{"valid", 14550, 14550, false},
		{"max", 65535, 65535, false},
		{"negative", -1, DefaultUDPPort, true},
		{"too large", 70000, DefaultUDPPort, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warned := false
			got := ResolvePort("udp.port", tt.port, DefaultUDPPort, func(string, map[string]any) { warned = true })
			if got != tt.want {
				t.Errorf("ResolvePort(%d) = %d, want %d", tt.port, got, tt.want)
			}
			if warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v", warned, tt.wantWarn)
			}
		})
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
