package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/capture"
	"github.com/justapithecus/mavbridge/cli/render"
	"github.com/justapithecus/mavbridge/dispatch"
	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/mavlink"
	"github.com/justapithecus/mavbridge/metrics"
	"github.com/justapithecus/mavbridge/vehicle"
)

// decodeWarningThreshold is the row count above which an unlimited decode
// suggests --limit on a terminal.
const decodeWarningThreshold = 1000

// DefaultRawChunk is how many bytes of a raw file are fed per step.
const DefaultRawChunk = 4096

// DecodedRow is one decoded message as rendered by decode.
type DecodedRow struct {
	Time        time.Time      `json:"time,omitzero" yaml:"time,omitempty"`
	SystemID    uint8          `json:"system_id" yaml:"system_id"`
	ComponentID uint8          `json:"component_id" yaml:"component_id"`
	Sequence    uint8          `json:"sequence" yaml:"sequence"`
	MessageID   uint32         `json:"message_id" yaml:"message_id"`
	Message     string         `json:"message" yaml:"message"`
	WireVersion int            `json:"wire_version" yaml:"wire_version"`
	Fields      map[string]any `json:"fields" yaml:"fields"`
}

// tableRow flattens fields for the table format.
type tableRow struct {
	Time    string `json:"time"`
	System  uint8  `json:"sys"`
	Comp    uint8  `json:"comp"`
	Seq     uint8  `json:"seq"`
	Message string `json:"message"`
	Fields  string `json:"fields"`
}

// DecodeCommand returns the decode command.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a capture file (or raw MAVLink bytes) through the pipeline",
		ArgsUsage: "<file>",
		Flags: append(TUIReadOnlyFlags(),
			&cli.BoolFlag{Name: "raw", Usage: "Treat the file as a raw MAVLink byte stream instead of a capture"},
			&cli.IntFlag{Name: "chunk", Usage: "Bytes fed per step for --raw", Value: DefaultRawChunk},
			&cli.StringSliceFlag{Name: "message", Aliases: []string{"m"}, Usage: "Only show these message names"},
			&cli.IntFlag{Name: "limit", Usage: "Show at most this many messages (0: all)"},
			&cli.BoolFlag{Name: "fleet", Usage: "Show the final vehicle states instead of messages"},
		),
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("decode requires exactly one file argument", exitFailure)
	}
	if c.Int("limit") < 0 {
		return cli.Exit("--limit must be >= 0", exitFailure)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	res, err := decodeFile(c.Context, decodeOptions{
		Path:     c.Args().First(),
		Raw:      c.Bool("raw"),
		Chunk:    c.Int("chunk"),
		Messages: c.StringSlice("message"),
		Limit:    c.Int("limit"),
	}, log.Nop())
	if err != nil {
		return exitError(err)
	}

	if isStderrTTY() {
		fmt.Fprintf(os.Stderr, "decoded %d frames, %d rejected, %d bytes skipped\n", res.Frames, res.Rejected, res.Skipped)
		if c.Int("limit") == 0 && len(res.Messages) > decodeWarningThreshold && !c.Bool("fleet") {
			fmt.Fprintf(os.Stderr, "Warning: %d messages; use --limit or --message to narrow the output\n", len(res.Messages))
		}
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_fleet", res.Fleet.Vehicles())
	}
	if c.Bool("fleet") {
		return r.Render(res.Fleet.Vehicles())
	}
	if r.Format() == render.FormatTable {
		return r.Render(tableRows(res.Messages))
	}
	return r.Render(res.Messages)
}

type decodeOptions struct {
	Path     string
	Raw      bool
	Chunk    int
	Messages []string
	Limit    int
}

type decodeResult struct {
	Messages []DecodedRow
	Fleet    *vehicle.Fleet
	Frames   int
	Rejected int
	Skipped  int64
	Rejects  map[string]int64
}

// decodeFile replays a file through a fresh pipeline with the fleet
// registered, collecting every decoded message that passes the filter.
func decodeFile(ctx context.Context, opts decodeOptions, logger *log.Logger) (*decodeResult, error) {
	collector := metrics.NewCollector("", "", "")
	fleet := vehicle.NewFleet(logger, collector)
	res := &decodeResult{Fleet: fleet}

	wanted := make(map[string]bool, len(opts.Messages))
	for _, m := range opts.Messages {
		name := strings.ToUpper(m)
		if _, ok := mavlink.Common().LookupName(name); !ok {
			return nil, fmt.Errorf("unknown message %q", m)
		}
		wanted[name] = true
	}

	var current time.Time
	reg := dispatch.NewRegistry()
	fleet.Register(reg)
	reg.RegisterAny("decode", func(_ context.Context, msg *mavlink.DecodedMessage) error {
		if len(wanted) > 0 && !wanted[msg.Name] {
			return nil
		}
		if opts.Limit > 0 && len(res.Messages) >= opts.Limit {
			return nil
		}
		res.Messages = append(res.Messages, rowFrom(current, msg))
		return nil
	})
	pipeline := dispatch.NewPipeline(nil, reg, logger, collector)

	feed := func(data []byte) {
		pr := pipeline.Process(ctx, data)
		res.Frames += pr.Frames
		res.Rejected += pr.Rejected
		res.Skipped += pr.Skipped
	}

	var err error
	if opts.Raw {
		err = feedRaw(opts.Path, opts.Chunk, feed)
	} else {
		err = feedCapture(opts.Path, func(rec capture.Record) {
			current = rec.Time
			feed(rec.Data)
		})
	}
	if err != nil {
		return nil, err
	}
	res.Rejects = collector.Snapshot().RejectsByKind
	return res, nil
}

func feedRaw(path string, chunk int, feed func([]byte)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if chunk <= 0 {
		chunk = len(data)
	}
	for len(data) > 0 {
		n := min(chunk, len(data))
		feed(data[:n])
		data = data[n:]
	}
	return nil
}

// feedCapture stops at a truncated tail but still returns what was read.
func feedCapture(path string, each func(capture.Record)) error {
	r, err := capture.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, capture.ErrTruncated) {
			fmt.Fprintf(os.Stderr, "Warning: %s ends inside a record; decoded what was complete\n", path)
			return nil
		}
		if err != nil {
			return err
		}
		each(rec)
	}
}

func rowFrom(t time.Time, msg *mavlink.DecodedMessage) DecodedRow {
	return DecodedRow{
		Time:        t,
		SystemID:    msg.Header.SystemID,
		ComponentID: msg.Header.ComponentID,
		Sequence:    msg.Header.Sequence,
		MessageID:   uint32(msg.ID),
		Message:     msg.Name,
		WireVersion: int(msg.Version),
		Fields:      msg.FieldMap(),
	}
}

func tableRows(rows []DecodedRow) []tableRow {
	out := make([]tableRow, 0, len(rows))
	for _, r := range rows {
		tr := tableRow{
			System:  r.SystemID,
			Comp:    r.ComponentID,
			Seq:     r.Sequence,
			Message: r.Message,
			Fields:  formatFields(r.Fields),
		}
		if !r.Time.IsZero() {
			tr.Time = r.Time.Format("15:04:05.000")
		}
		out = append(out, tr)
	}
	return out
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
