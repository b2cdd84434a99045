// Package capture reads and writes raw datagram capture files.
//
// A capture is a sequence of records, each an 8-byte big-endian receive
// time in Unix microseconds, a 2-byte big-endian length and that many
// bytes of datagram. The whole stream may be zstd-compressed; readers
// detect compression from the zstd magic number.
package capture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
)

// Record layout.
const (
	timeSize   = 8
	lengthSize = 2
	headerSize = timeSize + lengthSize
	// MaxRecordData is the largest datagram a record can hold.
	MaxRecordData = 1<<16 - 1
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ErrTooLarge is returned by Write for datagrams over MaxRecordData.
var ErrTooLarge = errors.New("datagram exceeds capture record limit")

// ErrTruncated is returned by Next when the file ends inside a record.
var ErrTruncated = errors.New("truncated capture record")

// Record is one captured datagram.
type Record struct {
	Time time.Time
	Data []byte
}

// Writer appends records. Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	zw      *zstd.Encoder
	closer  io.Closer
	count   int64
	now     func() time.Time
	scratch [headerSize]byte
}

// NewWriter writes records to w, zstd-compressed when compress is set.
// Close does not close w.
func NewWriter(w io.Writer, compress bool) (*Writer, error) {
	cw := &Writer{now: time.Now}
	if compress {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		cw.zw = zw
		w = zw
	}
	cw.buf = bufio.NewWriter(w)
	return cw, nil
}

// Create creates path and writes records to it. Paths ending in .zst are
// always compressed.
func Create(path string, compress bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	w, err := NewWriter(f, compress || strings.HasSuffix(path, ".zst"))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write records data with the current time.
func (w *Writer) Write(data []byte) error {
	return w.WriteAt(w.now(), data)
}

// WriteAt records data with receive time ts.
func (w *Writer) WriteAt(ts time.Time, data []byte) error {
	if len(data) > MaxRecordData {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	binary.BigEndian.PutUint64(w.scratch[:timeSize], uint64(ts.UnixMicro()))
	binary.BigEndian.PutUint16(w.scratch[timeSize:], uint16(len(data)))
	if _, err := w.buf.Write(w.scratch[:]); err != nil {
		return err
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Flush pushes buffered records to the underlying writer. Compressed
// output is flushed as a complete zstd block.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.zw != nil {
		return w.zw.Flush()
	}
	return nil
}

// Close flushes, ends the zstd stream and closes the file if Create
// opened it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var result *multierror.Error
	if err := w.buf.Flush(); err != nil {
		result = multierror.Append(result, err)
	}
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Reader iterates records.
type Reader struct {
	r      *bufio.Reader
	zr     *zstd.Decoder
	closer io.Closer
	header [headerSize]byte
}

// NewReader reads records from r, decompressing if r starts with a zstd
// frame.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	if !bytes.Equal(magic, zstdMagic) {
		return &Reader{r: br}, nil
	}
	zr, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &Reader{r: bufio.NewReader(zr), zr: zr}, nil
}

// Open opens a capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Next returns the next record. It returns io.EOF at a clean end and
// ErrTruncated when the stream stops inside a record.
func (r *Reader) Next() (Record, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	usec := int64(binary.BigEndian.Uint64(r.header[:timeSize]))
	n := binary.BigEndian.Uint16(r.header[timeSize:])

	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return Record{Time: time.UnixMicro(usec).UTC(), Data: data}, nil
}

// Close releases the decoder and the file if Open opened it.
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
