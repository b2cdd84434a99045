package mavlink

import "fmt"

// Validate checks a length-complete candidate against the registry and, on
// success, returns a Frame that owns a copy of the candidate bytes.
//
// Checks run in order: v2 incompatibility flags, schema lookup, checksum.
// Payloads longer than the schema are accepted; the sender may know newer
// extension fields. The signature block is stripped but not verified.
func Validate(cand *CandidateFrame, reg *Registry) (*Frame, error) {
	h := cand.Header

	if h.Version == V2 && h.IncompatFlags&^IncompatFlagSigned != 0 {
		return nil, &FrameError{
			Kind:      RejectIncompatFlags,
			Msg:       fmt.Sprintf("unsupported incompat flags 0x%02x", h.IncompatFlags),
			MessageID: h.MessageID,
			SystemID:  h.SystemID,
		}
	}

	schema, ok := reg.Lookup(h.MessageID)
	if !ok {
		return nil, &FrameError{
			Kind:      RejectUnknownMessage,
			Msg:       fmt.Sprintf("unknown message id %d", uint32(h.MessageID)),
			MessageID: h.MessageID,
			SystemID:  h.SystemID,
		}
	}

	if sum := Checksum(cand.crcSpan(), schema.CRCExtra); sum != cand.Checksum {
		return nil, &FrameError{
			Kind:      RejectCRC,
			Msg:       fmt.Sprintf("%s: checksum 0x%04x, want 0x%04x", schema.Name, cand.Checksum, sum),
			MessageID: h.MessageID,
			SystemID:  h.SystemID,
		}
	}

	raw := make([]byte, len(cand.raw))
	copy(raw, cand.raw)
	hl := h.headerLen()
	f := &Frame{
		Header:   h,
		Payload:  raw[hl : hl+int(h.Length)],
		Checksum: cand.Checksum,
		Raw:      raw,
	}
	if h.Signed() {
		f.Signature = raw[len(raw)-SignatureLen:]
	}
	return f, nil
}
