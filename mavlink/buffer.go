package mavlink

// Compaction thresholds for the reassembly buffer.
const (
	// compactMinConsumed is the consumed-prefix size below which compaction is skipped.
	compactMinConsumed = 4096
	// maxRetainedCap bounds the capacity kept after the buffer drains.
	maxRetainedCap = 64 * 1024
)

// Reassembler accumulates stream bytes and tracks a read cursor.
// Bytes before the cursor are consumed; unread bytes are never dropped
// because of chunk boundaries. Not safe for concurrent use: one per stream.
type Reassembler struct {
	buf         []byte
	cursor      int
	compactions int64
}

// Feed appends chunk to the buffer. It never blocks.
func (r *Reassembler) Feed(chunk []byte) {
	r.buf = append(r.buf, chunk...)
}

// Buffered returns the number of unread bytes.
func (r *Reassembler) Buffered() int {
	return len(r.buf) - r.cursor
}

// Compactions returns how many times the consumed prefix was reclaimed.
func (r *Reassembler) Compactions() int64 {
	return r.compactions
}

// Reset discards all buffered bytes.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
	r.cursor = 0
}

// unread returns the bytes after the cursor. The slice aliases the buffer.
func (r *Reassembler) unread() []byte {
	return r.buf[r.cursor:]
}

// advance consumes n unread bytes.
func (r *Reassembler) advance(n int) {
	r.cursor += n
	if r.cursor >= len(r.buf) {
		r.cursor = 0
		if cap(r.buf) > maxRetainedCap {
			r.buf = nil
		} else {
			r.buf = r.buf[:0]
		}
		return
	}
	r.compact()
}

// compact copies the unread tail to the buffer start once the consumed
// prefix is both large and at least half of the buffer.
func (r *Reassembler) compact() {
	if r.cursor < compactMinConsumed || r.cursor*2 < len(r.buf) {
		return
	}
	n := copy(r.buf, r.buf[r.cursor:])
	r.buf = r.buf[:n]
	r.cursor = 0
	r.compactions++
}

// scan skips bytes until a start marker sits at the cursor and returns the
// length-complete candidate starting there. The candidate is not consumed.
// It returns nil when more bytes are needed. skipped counts bytes discarded
// while looking for a marker.
func (r *Reassembler) scan() (cand *CandidateFrame, skipped int) {
	for {
		data := r.unread()
		i := indexMarker(data)
		if i < 0 {
			skipped += len(data)
			r.advance(len(data))
			return nil, skipped
		}
		if i > 0 {
			skipped += i
			r.advance(i)
			continue
		}
		cand, _ = parseCandidate(data)
		return cand, skipped
	}
}

// indexMarker returns the index of the first v1 or v2 start marker, or -1.
func indexMarker(data []byte) int {
	for i, b := range data {
		if b == MarkerV1 || b == MarkerV2 {
			return i
		}
	}
	return -1
}

// parseCandidate slices a candidate frame from data, which must start with a
// marker byte. It returns (nil, headerComplete) when data is too short; the
// second result reports whether the full header was available.
func parseCandidate(data []byte) (*CandidateFrame, bool) {
	if len(data) < 2 {
		return nil, false
	}

	var h Header
	headerLen := HeaderLenV1
	if data[0] == MarkerV2 {
		h.Version = V2
		headerLen = HeaderLenV2
	} else {
		h.Version = V1
	}
	if len(data) < headerLen {
		return nil, false
	}

	h.Length = data[1]
	if h.Version == V2 {
		h.IncompatFlags = data[2]
		h.CompatFlags = data[3]
		h.Sequence = data[4]
		h.SystemID = data[5]
		h.ComponentID = data[6]
		h.MessageID = MessageID(uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16)
	} else {
		h.Sequence = data[2]
		h.SystemID = data[3]
		h.ComponentID = data[4]
		h.MessageID = MessageID(data[5])
	}

	payloadEnd := headerLen + int(h.Length)
	total := payloadEnd + ChecksumLen
	if h.Signed() {
		total += SignatureLen
	}
	if len(data) < total {
		return &CandidateFrame{Header: h}, true
	}

	cand := &CandidateFrame{
		Header:   h,
		Payload:  data[headerLen:payloadEnd],
		Checksum: uint16(data[payloadEnd]) | uint16(data[payloadEnd+1])<<8,
		raw:      data[:total],
	}
	if h.Signed() {
		cand.Signature = data[payloadEnd+ChecksumLen : total]
	}
	return cand, true
}
