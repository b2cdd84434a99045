package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/adapter"
	"github.com/justapithecus/mavbridge/adapter/redis"
	"github.com/justapithecus/mavbridge/adapter/webhook"
	"github.com/justapithecus/mavbridge/capture"
	"github.com/justapithecus/mavbridge/cli/config"
	"github.com/justapithecus/mavbridge/cli/reader"
	"github.com/justapithecus/mavbridge/lode"
	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/policy"
	"github.com/justapithecus/mavbridge/relay"
	"github.com/justapithecus/mavbridge/runtime"
	"github.com/justapithecus/mavbridge/vehicle"
)

// Udp2wsCommand returns the udp2ws command, the bridge itself.
func Udp2wsCommand() *cli.Command {
	return &cli.Command{
		Name:   "udp2ws",
		Usage:  "Relay MAVLink between a UDP endpoint and WebSocket clients",
		Flags:  append(commonFlags(), bridgeFlags()...),
		Action: udp2wsAction,
	}
}

func udp2wsAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return exitError(err)
	}
	defer closeLogger(logger)

	opts, err := bridgeOptionsFrom(c, cfg, logger)
	if err != nil {
		return exitError(err)
	}

	ctx, stop := signalContext()
	defer stop()

	run, err := assembleBridge(ctx, opts, logger)
	if err != nil {
		return exitError(err)
	}
	return exitError(run.execute(ctx))
}

// recordOptions configures telemetry recording.
type recordOptions struct {
	Enabled       bool
	Policy        string
	Buffered      policy.BufferedConfig
	FlushInterval time.Duration
	QueueSize     int
	Storage       reader.StorageOptions
}

// adapterOptions configures vehicle-update publishing.
type adapterOptions struct {
	Type        string
	URL         string
	Format      string
	Kinds       []vehicle.Kind
	MinInterval time.Duration
	Workers     int
	Timeout     time.Duration
	Retries     int
	Channel     string
	PerVehicle  bool
	Headers     map[string]string
}

// bridgeOptions is the resolved configuration of one bridge run.
type bridgeOptions struct {
	BridgeID       string
	UDPAddr        string
	WSAddr         string
	WS             relay.WSConfig
	MaxClients     int
	Heartbeat      time.Duration
	GCSSystemID    uint8
	GCSComponentID uint8

	Record          recordOptions
	CapturePath     string
	CaptureCompress bool
	Adapter         adapterOptions
	ReportPath      string
}

func bridgeOptionsFrom(c *cli.Context, cfg *config.Config, logger *log.Logger) (bridgeOptions, error) {
	udpPort := config.ResolvePort("udp.port", intOpt(c, "udp-port", cfg.UDP.Port, 0), config.DefaultUDPPort, logger.Warn)
	wsPort := config.ResolvePort("websocket.port", intOpt(c, "ws-port", cfg.WebSocket.Port, 0), config.DefaultWSPort, logger.Warn)

	opts := bridgeOptions{
		BridgeID: stringOpt(c, "bridge-id", cfg.BridgeID, defaultBridgeID()),
		UDPAddr:  hostPort(stringOpt(c, "udp-host", cfg.UDP.Host, ""), udpPort),
		WSAddr:   hostPort(stringOpt(c, "ws-host", cfg.WebSocket.Host, ""), wsPort),
		WS: relay.WSConfig{
			Path:         stringOpt(c, "ws-path", cfg.WebSocket.Path, ""),
			SendQueue:    cfg.WebSocket.SendQueue,
			PingInterval: cfg.WebSocket.PingInterval.Duration,
		},
		MaxClients:      intOpt(c, "max-clients", cfg.WebSocket.MaxClients, 0),
		Heartbeat:       durationOpt(c, "heartbeat", cfg.Heartbeat.Interval, 0),
		CapturePath:     stringOpt(c, "capture", cfg.Capture.Path, ""),
		CaptureCompress: boolOpt(c, "capture-compress", cfg.Capture.Compress),
		ReportPath:      c.String("report"),
	}
	if opts.MaxClients < 0 {
		return opts, fmt.Errorf("max-clients must be >= 0, got %d", opts.MaxClients)
	}

	var err error
	if opts.GCSSystemID, err = byteID("heartbeat.system_id", cfg.Heartbeat.SystemID, runtime.DefaultGCSSystemID); err != nil {
		return opts, err
	}
	if opts.GCSComponentID, err = byteID("heartbeat.component_id", cfg.Heartbeat.ComponentID, runtime.DefaultGCSComponentID); err != nil {
		return opts, err
	}
	if opts.Record, err = recordOptionsFrom(c, cfg); err != nil {
		return opts, err
	}
	if opts.Adapter, err = adapterOptionsFrom(c, cfg); err != nil {
		return opts, err
	}
	return opts, nil
}

func recordOptionsFrom(c *cli.Context, cfg *config.Config) (recordOptions, error) {
	rc := cfg.Record
	buffered := policy.DefaultBufferedConfig()
	opts := recordOptions{
		Enabled: boolOpt(c, "record", rc.Enabled),
		Policy:  stringOpt(c, "policy", rc.Policy, policy.NameStrict),
		Buffered: policy.BufferedConfig{
			MaxBufferRecords: intOpt(c, "buffer-records", rc.BufferRecords, buffered.MaxBufferRecords),
			MaxBufferBytes:   int64Opt(c, "buffer-bytes", rc.BufferBytes, buffered.MaxBufferBytes),
			Droppable:        sliceOpt(c, "droppable", rc.Droppable),
		},
		FlushInterval: rc.FlushInterval.Duration,
		QueueSize:     rc.QueueSize,
		Storage: reader.StorageOptions{
			Dataset:   stringOpt(c, "storage-dataset", rc.Storage.Dataset, lode.DefaultDataset),
			Backend:   stringOpt(c, "storage-backend", rc.Storage.Backend, "fs"),
			Path:      stringOpt(c, "storage-path", rc.Storage.Path, ""),
			Region:    stringOpt(c, "storage-region", rc.Storage.Region, ""),
			Endpoint:  stringOpt(c, "storage-endpoint", rc.Storage.Endpoint, ""),
			PathStyle: boolOpt(c, "storage-s3-path-style", rc.Storage.S3PathStyle),
		},
	}
	if !opts.Enabled {
		return opts, nil
	}
	switch opts.Policy {
	case policy.NameStrict, policy.NameBuffered:
	default:
		return opts, fmt.Errorf("invalid policy: %s (must be strict or buffered)", opts.Policy)
	}
	switch opts.Storage.Backend {
	case "fs", "s3":
	default:
		return opts, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", opts.Storage.Backend)
	}
	if opts.Storage.Path == "" {
		return opts, errors.New("recording requires --storage-path")
	}
	return opts, nil
}

func adapterOptionsFrom(c *cli.Context, cfg *config.Config) (adapterOptions, error) {
	ac := cfg.Adapter
	opts := adapterOptions{
		Type:        stringOpt(c, "adapter", ac.Type, ""),
		URL:         stringOpt(c, "adapter-url", ac.URL, ""),
		Format:      stringOpt(c, "adapter-format", ac.Format, adapter.FormatJSON),
		MinInterval: durationOpt(c, "adapter-min-interval", ac.MinInterval, 0),
		Workers:     ac.Workers,
		Timeout:     ac.Timeout.Duration,
		Retries:     redis.DefaultRetries,
		Channel:     ac.Channel,
		PerVehicle:  ac.PerVehicle,
		Headers:     ac.Headers,
	}
	switch {
	case c.IsSet("adapter-retries"):
		opts.Retries = c.Int("adapter-retries")
	case ac.Retries != nil:
		opts.Retries = *ac.Retries
	}

	if opts.Type == "" {
		return opts, nil
	}
	if opts.Type != "redis" && opts.Type != "webhook" {
		return opts, fmt.Errorf("unsupported adapter: %s (must be redis or webhook)", opts.Type)
	}
	if opts.URL == "" {
		return opts, fmt.Errorf("%s adapter requires --adapter-url", opts.Type)
	}
	kinds, err := parseKinds(sliceOpt(c, "adapter-kinds", ac.Kinds))
	if err != nil {
		return opts, err
	}
	opts.Kinds = kinds
	return opts, nil
}

func parseKinds(names []string) ([]vehicle.Kind, error) {
	known := make(map[vehicle.Kind]bool, len(vehicle.AllKinds))
	for _, k := range vehicle.AllKinds {
		known[k] = true
	}
	kinds := make([]vehicle.Kind, 0, len(names))
	for _, n := range names {
		k := vehicle.Kind(n)
		if !known[k] {
			return nil, fmt.Errorf("unknown update kind %q", n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func byteID(name string, v int, def uint8) (uint8, error) {
	if v == 0 {
		return def, nil
	}
	if v < 1 || v > 255 {
		return 0, fmt.Errorf("%s must be between 1 and 255, got %d", name, v)
	}
	return uint8(v), nil
}

func defaultBridgeID() string {
	host, err := os.Hostname()
	if err != nil {
		return "mavbridge"
	}
	return host
}

// bridgeRun is an assembled, not yet started bridge.
type bridgeRun struct {
	bridge     *runtime.Bridge
	collector  *metrics.Collector
	recorder   *runtime.Recorder
	policyName string
	reportPath string
	logger     *log.Logger
}

// assembleBridge builds every optional collaborator and the bridge. On
// error, whatever was already opened is closed.
func assembleBridge(ctx context.Context, opts bridgeOptions, logger *log.Logger) (_ *bridgeRun, err error) {
	var cleanup []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i]()
		}
	}()

	policyName, backend := "", ""
	if opts.Record.Enabled {
		policyName, backend = opts.Record.Policy, opts.Record.Storage.Backend
	}
	collector := metrics.NewCollector(policyName, backend, opts.BridgeID)
	logger = logger.With(map[string]any{"bridge_id": opts.BridgeID})

	var publisher *adapter.Publisher
	var listeners []vehicle.Listener
	if opts.Adapter.Type != "" {
		a, err := newAdapter(opts.Adapter)
		if err != nil {
			return nil, err
		}
		publisher, err = adapter.NewPublisher(a, adapter.PublisherConfig{
			BridgeID:    opts.BridgeID,
			Kinds:       opts.Adapter.Kinds,
			MinInterval: opts.Adapter.MinInterval,
			Workers:     opts.Adapter.Workers,
			Timeout:     opts.Adapter.Timeout,
		}, logger, collector)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		cleanup = append(cleanup, func() error { return publisher.Close(time.Second) })
		listeners = append(listeners, publisher.Listener())
	}

	fleet := vehicle.NewFleet(logger, collector, listeners...)

	var capWriter *capture.Writer
	if opts.CapturePath != "" {
		capWriter, err = capture.Create(opts.CapturePath, opts.CaptureCompress)
		if err != nil {
			return nil, err
		}
		cleanup = append(cleanup, capWriter.Close)
	}

	recordingID := uuid.NewString()
	var recorder *runtime.Recorder
	if opts.Record.Enabled {
		recorder, err = newRecorder(ctx, opts, recordingID, fleet, logger, collector)
		if err != nil {
			return nil, err
		}
		cleanup = append(cleanup, func() error { return recorder.Close(context.WithoutCancel(ctx)) })
	}

	bridge, err := runtime.NewBridge(runtime.BridgeConfig{
		UDPAddr:        opts.UDPAddr,
		WSAddr:         opts.WSAddr,
		WS:             opts.WS,
		MaxClients:     opts.MaxClients,
		Heartbeat:      opts.Heartbeat,
		GCSSystemID:    opts.GCSSystemID,
		GCSComponentID: opts.GCSComponentID,
		RecordingID:    recordingID,
	}, runtime.BridgeDeps{
		Logger:    logger,
		Collector: collector,
		Fleet:     fleet,
		Recorder:  recorder,
		Capture:   capWriter,
		Publisher: publisher,
	})
	if err != nil {
		return nil, err
	}

	return &bridgeRun{
		bridge:     bridge,
		collector:  collector,
		recorder:   recorder,
		policyName: policyName,
		reportPath: opts.ReportPath,
		logger:     logger,
	}, nil
}

func newAdapter(opts adapterOptions) (adapter.Adapter, error) {
	switch opts.Type {
	case "redis":
		return redis.New(redis.Config{
			URL:        opts.URL,
			Channel:    opts.Channel,
			PerVehicle: opts.PerVehicle,
			Format:     opts.Format,
			Timeout:    opts.Timeout,
			Retries:    opts.Retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     opts.URL,
			Headers: opts.Headers,
			Timeout: opts.Timeout,
			Retries: opts.Retries,
			Format:  opts.Format,
		})
	default:
		return nil, fmt.Errorf("unsupported adapter: %s", opts.Type)
	}
}

// newRecorder opens the recording dataset and builds the policy chain:
// policy → instrumented sink → lode sink → lode client.
func newRecorder(ctx context.Context, opts bridgeOptions, recordingID string, fleet *vehicle.Fleet, logger *log.Logger, collector *metrics.Collector) (*runtime.Recorder, error) {
	rec := opts.Record
	lodeCfg := lode.Config{
		Dataset:     rec.Storage.Dataset,
		Day:         lode.DeriveDay(time.Now()),
		RecordingID: recordingID,
		BridgeID:    opts.BridgeID,
	}
	client, err := openRecording(ctx, lodeCfg, rec.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording storage: %w", err)
	}

	buffered := rec.Buffered
	buffered.Logger = logger
	sink := lode.NewInstrumentedSink(lode.NewSink(client), collector)
	pol, err := policy.New(rec.Policy, sink, buffered)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}

	recorder, err := runtime.NewRecorder(runtime.RecorderConfig{
		RecordingID:   recordingID,
		Policy:        pol,
		Metrics:       client,
		Files:         client,
		Fleet:         fleet,
		QueueSize:     rec.QueueSize,
		FlushInterval: rec.FlushInterval,
		Logger:        logger,
		Collector:     collector,
	})
	if err != nil {
		_ = pol.Close()
		return nil, err
	}
	logger.Info("recording telemetry", map[string]any{
		"recording_id": recordingID,
		"policy":       rec.Policy,
		"backend":      rec.Storage.Backend,
		"path":         rec.Storage.Path,
	})
	return recorder, nil
}

func openRecording(ctx context.Context, cfg lode.Config, storage reader.StorageOptions) (*lode.LodeClient, error) {
	switch storage.Backend {
	case "", "fs":
		return lode.NewLodeClient(cfg, storage.Path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(storage.Path)
		return lode.NewLodeS3Client(ctx, cfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       storage.Region,
			Endpoint:     storage.Endpoint,
			UsePathStyle: storage.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", storage.Backend)
	}
}

// execute runs the bridge until ctx is done and writes the report.
func (r *bridgeRun) execute(ctx context.Context) error {
	result, runErr := r.bridge.Run(ctx)
	if r.reportPath == "" || result == nil {
		return runErr
	}

	var recStats *policy.Stats
	if r.recorder != nil {
		s := r.recorder.Stats()
		recStats = &s
	}
	report := runtime.BuildReport(result, r.collector.Snapshot(), r.policyName, recStats)
	if err := runtime.WriteReport(report, r.reportPath); err != nil {
		return multierror.Append(runErr, err).ErrorOrNil()
	}
	r.logger.Info("report written", map[string]any{"path": r.reportPath})
	return runErr
}
