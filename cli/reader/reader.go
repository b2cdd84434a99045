package reader

import (
	"context"
	"fmt"
	"sort"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/mavbridge/lode"
)

// StorageOptions locates a recorded dataset.
type StorageOptions struct {
	Dataset string
	// Backend is fs or s3.
	Backend string
	// Path is a directory (fs) or bucket/prefix (s3).
	Path     string
	Region   string
	Endpoint string
	// PathStyle forces S3 path-style addressing.
	PathStyle bool
}

// Open opens the dataset described by opts for reading.
func Open(ctx context.Context, opts StorageOptions) (lodelibrary.Dataset, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	switch opts.Backend {
	case "", "fs":
		return lode.NewReadDatasetFS(opts.Dataset, opts.Path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(opts.Path)
		return lode.NewReadDatasetS3(ctx, opts.Dataset, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       opts.Region,
			Endpoint:     opts.Endpoint,
			UsePathStyle: opts.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (must be fs or s3)", opts.Backend)
	}
}

// Reader answers read-only questions about one dataset.
type Reader struct {
	name string
	ds   lodelibrary.Dataset
}

// New creates a reader over ds. name is reported in DatasetStats.
func New(name string, ds lodelibrary.Dataset) *Reader {
	if name == "" {
		name = lode.DefaultDataset
	}
	return &Reader{name: name, ds: ds}
}

// Stats summarizes telemetry records, optionally for one recording.
func (r *Reader) Stats(ctx context.Context, recordingID string) (*DatasetStats, error) {
	sum, err := lode.Summarize(ctx, r.ds, recordingID)
	if err != nil {
		return nil, err
	}
	return fromSummary(r.name, sum), nil
}

// Metrics returns the newest metrics record, optionally for one recording.
func (r *Reader) Metrics(ctx context.Context, recordingID string) (*MetricsSnapshot, error) {
	record, err := lode.QueryLatestMetrics(ctx, r.ds, recordingID)
	if err != nil {
		return nil, err
	}
	return ParseMetricsRecord(record)
}

// fromSummary orders counts by descending count, then by key.
func fromSummary(name string, sum *lode.Summary) *DatasetStats {
	out := &DatasetStats{
		Dataset:    name,
		Records:    sum.Records,
		Recordings: sum.Recordings,
		First:      sum.First,
		Last:       sum.Last,
		Messages:   make([]MessageCount, 0, len(sum.ByMessage)),
		Vehicles:   make([]VehicleCount, 0, len(sum.BySystem)),
	}
	for msg, n := range sum.ByMessage {
		out.Messages = append(out.Messages, MessageCount{Message: msg, Count: n})
	}
	sort.Slice(out.Messages, func(i, j int) bool {
		a, b := out.Messages[i], out.Messages[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Message < b.Message
	})
	for sys, n := range sum.BySystem {
		out.Vehicles = append(out.Vehicles, VehicleCount{SystemID: sys, Count: n})
	}
	sort.Slice(out.Vehicles, func(i, j int) bool {
		return out.Vehicles[i].SystemID < out.Vehicles[j].SystemID
	})
	return out
}
