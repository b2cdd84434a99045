package mavlink

// ParserStats counts stream-level parser activity.
type ParserStats struct {
	BytesFed        int64
	BytesSkipped    int64
	Frames          int64
	CRCErrors       int64
	UnknownMessages int64
	IncompatErrors  int64
}

// Parser turns an arbitrarily chunked byte stream into validated frames.
// One Parser serves one stream and is not safe for concurrent use.
type Parser struct {
	registry *Registry
	buf      Reassembler
	stats    ParserStats
}

// NewParser creates a parser validating against reg. A nil reg uses Common().
func NewParser(reg *Registry) *Parser {
	if reg == nil {
		reg = Common()
	}
	return &Parser{registry: reg}
}

// Registry returns the schema registry used for validation.
func (p *Parser) Registry() *Registry { return p.registry }

// Feed appends a chunk of stream bytes.
func (p *Parser) Feed(chunk []byte) {
	p.stats.BytesFed += int64(len(chunk))
	p.buf.Feed(chunk)
}

// Buffered returns the number of bytes not yet consumed.
func (p *Parser) Buffered() int { return p.buf.Buffered() }

// Stats returns a copy of the parser counters.
func (p *Parser) Stats() ParserStats { return p.stats }

// Reset drops all buffered bytes. Counters are kept.
func (p *Parser) Reset() { p.buf.Reset() }

// Next returns the next valid frame.
//
// It returns ErrNeedMore when no complete frame is buffered; nothing is
// consumed past the last complete candidate. A *FrameError reports a rejected
// candidate; the caller should keep calling Next. Corrupt frames (bad CRC,
// length or flags) advance the stream by one byte so a frame starting inside
// the corrupt span is still found. Frames with unknown IDs are consumed whole
// unless a valid frame starts inside them.
func (p *Parser) Next() (*Frame, error) {
	cand, skipped := p.buf.scan()
	p.stats.BytesSkipped += int64(skipped)
	if cand == nil || cand.raw == nil {
		return nil, ErrNeedMore
	}

	frame, err := Validate(cand, p.registry)
	if err == nil {
		p.buf.advance(cand.Len())
		p.stats.Frames++
		return frame, nil
	}

	kind, _ := RejectKindOf(err)
	switch kind {
	case RejectUnknownMessage:
		offset, wait := p.innerFrame(cand)
		if wait {
			return nil, ErrNeedMore
		}
		p.stats.UnknownMessages++
		if offset > 0 {
			p.stats.BytesSkipped += int64(offset)
			p.buf.advance(offset)
		} else {
			p.buf.advance(cand.Len())
		}
		return nil, err
	case RejectCRC:
		p.stats.CRCErrors++
	case RejectIncompatFlags:
		p.stats.IncompatErrors++
	}
	p.stats.BytesSkipped++
	p.buf.advance(1)
	return nil, err
}

// innerFrame looks for a valid known frame starting inside an unknown
// candidate. It returns the offset of that frame (0 if none), or wait=true
// when a possibly valid inner frame is not yet complete. Inner candidates
// longer than their schema are not considered.
func (p *Parser) innerFrame(cand *CandidateFrame) (offset int, wait bool) {
	data := p.buf.unread()
	for i := 1; i < cand.Len(); i++ {
		if data[i] != MarkerV1 && data[i] != MarkerV2 {
			continue
		}
		inner, headerComplete := parseCandidate(data[i:])
		if inner == nil {
			if !headerComplete {
				return 0, true
			}
			continue
		}
		schema, known := p.registry.Lookup(inner.Header.MessageID)
		if !known || int(inner.Header.Length) > schema.PayloadLen() {
			continue
		}
		if inner.raw == nil {
			return 0, true
		}
		if _, err := Validate(inner, p.registry); err == nil {
			return i, false
		}
	}
	return 0, false
}
