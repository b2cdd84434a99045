package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/types"
)

// ErrInvalidFilename is returned by PutFile for names containing a path
// separator or "..".
var ErrInvalidFilename = errors.New("invalid sidecar filename")

// LodeClient writes telemetry to a Lode dataset.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewLodeClient creates a client with filesystem storage under root.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a client over a custom store factory.
// Tests use a shared lode.NewMemory() store.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{dataset: ds, config: cfg, storeFactory: factory}, nil
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteRecords writes a batch of telemetry records as one snapshot.
func (c *LodeClient) WriteRecords(ctx context.Context, records []*types.TelemetryRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := make([]any, 0, len(records))
	for _, r := range records {
		batch = append(batch, toTelemetryRecordMap(r, c.config))
	}
	if _, err := c.dataset.Write(ctx, batch, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindTelemetry))
	}
	return nil
}

// WriteMetrics writes the recording's final metrics snapshot.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(snap, completedAt, c.config)
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindMetrics))
	}
	return nil
}

// PutFile writes a sidecar file beside the recording's partitions,
// bypassing the dataset's snapshot machinery.
func (c *LodeClient) PutFile(ctx context.Context, filename string, data []byte) error {
	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	if c.storeErr != nil {
		return WrapInitError(c.storeErr, c.config.Dataset)
	}
	path := c.FilePath(filename)
	if err := c.store.Put(ctx, path, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, path)
	}
	return nil
}

// FilePath is the store path of a sidecar file:
// datasets/<dataset>/partitions/day=<d>/recording_id=<r>/files/<name>.
func (c *LodeClient) FilePath(filename string) string {
	return fmt.Sprintf("datasets/%s/partitions/day=%s/recording_id=%s/files/%s",
		c.config.Dataset, c.config.Day, c.config.RecordingID, filename)
}

func (c *LodeClient) partitionPath(kind string) string {
	return fmt.Sprintf("%s/day=%s/recording_id=%s/record_kind=%s",
		c.config.Dataset, c.config.Day, c.config.RecordingID, kind)
}

// Close releases client resources. The dataset holds none.
func (c *LodeClient) Close() error {
	return nil
}

var _ Client = (*LodeClient)(nil)
