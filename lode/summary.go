package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/justapithecus/lode/lode"
)

// ErrNoTelemetryFound is returned when no telemetry record matches.
var ErrNoTelemetryFound = errors.New("no telemetry records found")

// Summary aggregates the telemetry records of a dataset.
type Summary struct {
	Records    int64
	Recordings []string
	ByMessage  map[string]int64
	BySystem   map[int]int64
	First      time.Time
	Last       time.Time
}

// Summarize reads every telemetry snapshot, optionally restricted to one
// recording, and counts records per message and per system.
func Summarize(ctx context.Context, ds lode.Dataset, recordingID string) (*Summary, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	sum := &Summary{
		ByMessage: make(map[string]int64),
		BySystem:  make(map[int]int64),
	}
	recordings := make(map[string]struct{})

	for _, snap := range snapshots {
		if !snapshotHasPartition(snap, "record_kind", RecordKindTelemetry) ||
			!snapshotHasPartition(snap, "recording_id", recordingID) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindTelemetry {
				continue
			}
			id := asString(record["recording_id"])
			if recordingID != "" && id != recordingID {
				continue
			}
			sum.add(record)
			recordings[id] = struct{}{}
		}
	}
	if sum.Records == 0 {
		return nil, ErrNoTelemetryFound
	}

	for id := range recordings {
		sum.Recordings = append(sum.Recordings, id)
	}
	sort.Strings(sum.Recordings)
	return sum, nil
}

func (s *Summary) add(record map[string]any) {
	s.Records++
	s.ByMessage[asString(record["message"])]++
	s.BySystem[int(asInt64(record["system_id"]))]++

	ts, err := time.Parse(time.RFC3339Nano, asString(record["received_at"]))
	if err != nil {
		return
	}
	if s.First.IsZero() || ts.Before(s.First) {
		s.First = ts
	}
	if ts.After(s.Last) {
		s.Last = ts
	}
}
