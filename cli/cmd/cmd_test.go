package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/capture"
	"github.com/justapithecus/mavbridge/cli/config"
	"github.com/justapithecus/mavbridge/cli/reader"
	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/mavlink"
	"github.com/justapithecus/mavbridge/server"
	"github.com/justapithecus/mavbridge/stream"
	"github.com/justapithecus/mavbridge/vehicle"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}

func TestCommands_FlagNamesUnique(t *testing.T) {
	for _, c := range []*cli.Command{ServeCommand(), Udp2wsCommand(), StreamCommand(), UpCommand(), DecodeCommand()} {
		seen := map[string]bool{}
		for _, f := range c.Flags {
			for _, n := range f.Names() {
				if seen[n] {
					t.Errorf("%s: duplicate flag %q", c.Name, n)
				}
				seen[n] = true
			}
		}
	}
}

func TestExitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"missing index", fmt.Errorf("serve: %w", server.ErrMissingIndex), exitMissingAssets},
		{"unsupported platform", fmt.Errorf("%w (running on darwin)", stream.ErrUnsupportedPlatform), exitUnsupportedPlatform},
		{"generic", errors.New("bind: address in use"), exitFailure},
		{"already coded", cli.Exit("x", 7), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ec cli.ExitCoder
			require.True(t, errors.As(exitError(tt.err), &ec))
			assert.Equal(t, tt.code, ec.ExitCode())
		})
	}
	assert.NoError(t, exitError(nil))
}

// runApp runs one command with a non-exiting error handler.
func runApp(t *testing.T, cmd *cli.Command, args ...string) error {
	t.Helper()
	app := &cli.App{
		Name:           "mavbridge",
		Commands:       []*cli.Command{cmd},
		ExitErrHandler: func(*cli.Context, error) {},
		Writer:         io.Discard,
		ErrWriter:      io.Discard,
	}
	return app.Run(append([]string{"mavbridge", cmd.Name}, args...))
}

// captureBridgeOptions resolves bridge options through a real flag parse.
func captureBridgeOptions(t *testing.T, args ...string) (bridgeOptions, error) {
	t.Helper()
	var opts bridgeOptions
	var resolveErr error
	cmd := &cli.Command{
		Name:  "udp2ws",
		Flags: append(commonFlags(), bridgeFlags()...),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			opts, resolveErr = bridgeOptionsFrom(c, cfg, log.Nop())
			return nil
		},
	}
	require.NoError(t, runApp(t, cmd, args...))
	return opts, resolveErr
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestBridgeOptions_Defaults(t *testing.T) {
	opts, err := captureBridgeOptions(t)
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf(":%d", config.DefaultUDPPort), opts.UDPAddr)
	assert.Equal(t, fmt.Sprintf(":%d", config.DefaultWSPort), opts.WSAddr)
	assert.False(t, opts.Record.Enabled)
	assert.Empty(t, opts.Adapter.Type)
	assert.Equal(t, uint8(255), opts.GCSSystemID)
	assert.NotEmpty(t, opts.BridgeID)
}

func TestBridgeOptions_FlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, "mavbridge.yaml", `
bridge_id: field-1
udp:
  host: 0.0.0.0
  port: 14550
websocket:
  port: 9000
  max_clients: 4
heartbeat:
  interval: 1s
  system_id: 250
`)
	opts, err := captureBridgeOptions(t, "--config", path, "--ws-port", "9100", "--bridge-id", "cli")
	require.NoError(t, err)

	assert.Equal(t, "cli", opts.BridgeID)
	assert.Equal(t, "0.0.0.0:14550", opts.UDPAddr)
	assert.Equal(t, ":9100", opts.WSAddr)
	assert.Equal(t, 4, opts.MaxClients)
	assert.Equal(t, time.Second, opts.Heartbeat)
	assert.Equal(t, uint8(250), opts.GCSSystemID)
}

func TestBridgeOptions_InvalidPortFallsBack(t *testing.T) {
	opts, err := captureBridgeOptions(t, "--udp-port", "70000", "--ws-port", "-1")
	require.NoError(t, err)
	assert.Equal(t, ":16450", opts.UDPAddr)
	assert.Equal(t, ":8811", opts.WSAddr)
}

func TestBridgeOptions_Recording(t *testing.T) {
	_, err := captureBridgeOptions(t, "--record")
	assert.ErrorContains(t, err, "storage-path")

	_, err = captureBridgeOptions(t, "--record", "--storage-path", t.TempDir(), "--policy", "lossy")
	assert.ErrorContains(t, err, "invalid policy")

	_, err = captureBridgeOptions(t, "--record", "--storage-path", "b/p", "--storage-backend", "gcs")
	assert.ErrorContains(t, err, "unsupported storage-backend")

	opts, err := captureBridgeOptions(t, "--record", "--storage-path", "/data", "--policy", "buffered", "--buffer-records", "10")
	require.NoError(t, err)
	assert.Equal(t, "buffered", opts.Record.Policy)
	assert.Equal(t, 10, opts.Record.Buffered.MaxBufferRecords)
	assert.Equal(t, "fs", opts.Record.Storage.Backend)
	assert.Equal(t, "mavbridge", opts.Record.Storage.Dataset)
}

func TestBridgeOptions_Adapter(t *testing.T) {
	_, err := captureBridgeOptions(t, "--adapter", "kafka", "--adapter-url", "x")
	assert.ErrorContains(t, err, "unsupported adapter")

	_, err = captureBridgeOptions(t, "--adapter", "redis")
	assert.ErrorContains(t, err, "adapter-url")

	_, err = captureBridgeOptions(t, "--adapter", "redis", "--adapter-url", "redis://x", "--adapter-kinds", "teleport")
	assert.ErrorContains(t, err, "unknown update kind")

	path := writeConfig(t, "mavbridge.toml", `
[adapter]
type = "webhook"
url = "http://localhost:9/hook"
kinds = ["heartbeat", "position"]
retries = 0
min_interval = "500ms"
`)
	opts, err := captureBridgeOptions(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "webhook", opts.Adapter.Type)
	assert.Equal(t, []vehicle.Kind{vehicle.KindHeartbeat, vehicle.KindPosition}, opts.Adapter.Kinds)
	assert.Equal(t, 0, opts.Adapter.Retries)
	assert.Equal(t, 500*time.Millisecond, opts.Adapter.MinInterval)

	opts, err = captureBridgeOptions(t, "--config", path, "--adapter-retries", "5")
	require.NoError(t, err)
	assert.Equal(t, 5, opts.Adapter.Retries)
}

func TestBridgeOptions_BadHeartbeatID(t *testing.T) {
	path := writeConfig(t, "mavbridge.yaml", "heartbeat:\n  system_id: 300\n")
	_, err := captureBridgeOptions(t, "--config", path)
	assert.ErrorContains(t, err, "heartbeat.system_id")
}

func TestServe_MissingIndexExitsTwo(t *testing.T) {
	err := runApp(t, ServeCommand(), "--dir", t.TempDir(), "--log-level", "error")

	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec), "got %v", err)
	assert.Equal(t, exitMissingAssets, ec.ExitCode())
}

func TestUp_MissingIndexExitsTwo(t *testing.T) {
	err := runApp(t, UpCommand(), "--dir", t.TempDir(), "--log-level", "error")

	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec), "got %v", err)
	assert.Equal(t, exitMissingAssets, ec.ExitCode())
}

func TestStreamConfig_FromConfig(t *testing.T) {
	path := writeConfig(t, "mavbridge.yaml", `
stream:
  device: /dev/video4
  framerate: 60
  extra_args: ["-g", "30"]
`)
	var got stream.Config
	cmd := &cli.Command{
		Name:  "stream",
		Flags: append(commonFlags(), streamFlags()...),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			got = streamConfigFrom(c, cfg)
			return nil
		},
	}
	require.NoError(t, runApp(t, cmd, "--config", path, "--size", "640x480"))

	assert.Equal(t, "/dev/video4", got.Device)
	assert.Equal(t, 60, got.Framerate)
	assert.Equal(t, "640x480", got.Size)
	assert.Equal(t, []string{"-g", "30"}, got.ExtraArgs)
	assert.Equal(t, stream.DefaultFFmpeg, got.FFmpeg)
}

func encodeFrames(t *testing.T) (heartbeat, attitude []byte) {
	t.Helper()
	enc := mavlink.NewEncoder(nil, mavlink.V2, 7, 1)
	heartbeat, err := enc.Encode(mavlink.MsgIDHeartbeat, map[string]any{"type": 2, "base_mode": 0x80})
	require.NoError(t, err)
	attitude, err = enc.Encode(mavlink.MsgIDAttitude, map[string]any{"roll": 0.5, "pitch": -0.25})
	require.NoError(t, err)
	return heartbeat, attitude
}

func TestDecodeFile_Capture(t *testing.T) {
	hb, att := encodeFrames(t)
	path := filepath.Join(t.TempDir(), "flight.cap.zst")
	w, err := capture.Create(path, false)
	require.NoError(t, err)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteAt(base, hb))
	require.NoError(t, w.WriteAt(base.Add(time.Second), att))
	require.NoError(t, w.WriteAt(base.Add(2*time.Second), []byte{0x00, 0x01, 0x02}))
	require.NoError(t, w.Close())

	res, err := decodeFile(t.Context(), decodeOptions{Path: path}, log.Nop())
	require.NoError(t, err)

	require.Len(t, res.Messages, 2)
	assert.Equal(t, "HEARTBEAT", res.Messages[0].Message)
	assert.Equal(t, base, res.Messages[0].Time)
	assert.Equal(t, "ATTITUDE", res.Messages[1].Message)
	assert.Equal(t, uint8(7), res.Messages[1].SystemID)
	assert.Equal(t, 2, res.Messages[1].WireVersion)
	assert.InDelta(t, 0.5, res.Messages[1].Fields["roll"], 1e-6)
	assert.Equal(t, 2, res.Frames)
	assert.Equal(t, int64(3), res.Skipped)

	v, ok := res.Fleet.Get(7)
	require.True(t, ok)
	assert.True(t, v.Armed)
	require.NotNil(t, v.Attitude)
}

func TestDecodeFile_RawChunksAndFilter(t *testing.T) {
	hb, att := encodeFrames(t)
	path := filepath.Join(t.TempDir(), "raw.bin")
	data := append(append(append([]byte{}, hb...), att...), hb...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	// 3-byte chunks split every frame
	res, err := decodeFile(t.Context(), decodeOptions{Path: path, Raw: true, Chunk: 3, Messages: []string{"heartbeat"}}, log.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Frames)
	require.Len(t, res.Messages, 2)
	for _, m := range res.Messages {
		assert.Equal(t, "HEARTBEAT", m.Message)
		assert.True(t, m.Time.IsZero())
	}

	res, err = decodeFile(t.Context(), decodeOptions{Path: path, Raw: true, Limit: 1}, log.Nop())
	require.NoError(t, err)
	assert.Len(t, res.Messages, 1)
	assert.Equal(t, 3, res.Frames)
}

func TestDecodeFile_TruncatedCaptureKeepsPrefix(t *testing.T) {
	hb, _ := encodeFrames(t)
	path := filepath.Join(t.TempDir(), "cut.cap")
	w, err := capture.Create(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(hb))
	require.NoError(t, w.Write(hb))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-4))

	res, err := decodeFile(t.Context(), decodeOptions{Path: path}, log.Nop())
	require.NoError(t, err)
	assert.Len(t, res.Messages, 1)
}

func TestDecodeFile_Missing(t *testing.T) {
	_, err := decodeFile(t.Context(), decodeOptions{Path: filepath.Join(t.TempDir(), "nope")}, log.Nop())
	assert.Error(t, err)
}

func TestDecodeFile_UnknownMessageFilter(t *testing.T) {
	_, err := decodeFile(t.Context(), decodeOptions{Path: "unused", Messages: []string{"heartbeat", "HEARTBEET"}}, log.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"HEARTBEET"`)
}

func TestTableRows(t *testing.T) {
	rows := tableRows([]DecodedRow{{
		Message: "ATTITUDE",
		Fields:  map[string]any{"yaw": 1, "roll": 2},
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, "roll=2 yaw=1", rows[0].Fields)
	assert.Empty(t, rows[0].Time)
}

func TestAssembleBridge_RecordsAndReports(t *testing.T) {
	storage := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "report.json")
	opts := bridgeOptions{
		BridgeID:       "test-bridge",
		UDPAddr:        "127.0.0.1:0",
		WSAddr:         "127.0.0.1:0",
		GCSSystemID:    255,
		GCSComponentID: 190,
		Record: recordOptions{
			Enabled:       true,
			Policy:        "strict",
			FlushInterval: 10 * time.Millisecond,
			Storage:       reader.StorageOptions{Dataset: "mavbridge", Backend: "fs", Path: storage},
		},
		CapturePath: filepath.Join(t.TempDir(), "run.cap"),
		ReportPath:  reportPath,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	run, err := assembleBridge(ctx, opts, log.Nop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- run.execute(ctx) }()
	select {
	case <-run.bridge.Ready():
	case err := <-done:
		t.Fatalf("bridge exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge not ready")
	}

	hb, att := encodeFrames(t)
	conn, err := net.DialUDP("udp", nil, run.bridge.UDPAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_, err = conn.Write(hb)
	require.NoError(t, err)
	_, err = conn.Write(att)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return run.collector.Snapshot().FramesValid == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	_, err = os.Stat(reportPath)
	require.NoError(t, err)

	ds, err := reader.Open(t.Context(), opts.Record.Storage)
	require.NoError(t, err)
	stats, err := reader.New("mavbridge", ds).Stats(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Records)

	capRes, err := decodeFile(t.Context(), decodeOptions{Path: opts.CapturePath}, log.Nop())
	require.NoError(t, err)
	assert.Len(t, capRes.Messages, 2)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cmd := &cli.Command{
		Name:   "serve",
		Flags:  commonFlags(),
		Action: func(c *cli.Context) error { _, err := loadConfig(c); return err },
	}
	err := runApp(t, cmd, "--config", filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}
