package negentropy

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ProtocolVersion is the NIP-77 protocol version byte that starts each message.
const ProtocolVersion byte = 0x61

// Mode specifies how the range is handled by the peer.
type Mode uint64

const (
	// ModeSkip means that no further processing is needed for the range.
	ModeSkip Mode = 0
	// ModeFingerprint carries the fingerprint of the sender's items in the range.
	ModeFingerprint Mode = 1
	// ModeIDList carries the full list of the sender's ids in the range.
	ModeIDList Mode = 2
)

var modeNames = []string{"skip", "fingerprint", "idList"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("<unknown %d>", uint64(m))
}

// Range is a single range in a Message. Its lower bound is the upper bound of the
// previous range in the message, or MinBound for the first range.
type Range struct {
	UpperBound  Bound
	Mode        Mode
	Fingerprint Fingerprint
	IDs         []ID
}

// String implements fmt.Stringer.
func (r Range) String() string {
	var sb strings.Builder
	sb.WriteString("<" + r.Mode.String() + " upper=" + r.UpperBound.String())
	switch r.Mode {
	case ModeFingerprint:
		sb.WriteString(" fp=" + r.Fingerprint.ShortString())
	case ModeIDList:
		fmt.Fprintf(&sb, " count=%d", len(r.IDs))
	}
	sb.WriteString(">")
	return sb.String()
}

func (r *Range) appendEncoded(buf []byte, prev uint64) ([]byte, error) {
	buf, err := r.UpperBound.AppendEncoded(buf, prev)
	if err != nil {
		return nil, err
	}
	buf = AppendVarint(buf, uint64(r.Mode))
	switch r.Mode {
	case ModeSkip:
	case ModeFingerprint:
		buf = append(buf, r.Fingerprint[:]...)
	case ModeIDList:
		buf = AppendVarint(buf, uint64(len(r.IDs)))
		for _, id := range r.IDs {
			buf = append(buf, id[:]...)
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %d", ErrProtocol, uint64(r.Mode))
	}
	return buf, nil
}

func decodeRange(rd *bytes.Reader, prev uint64) (Range, error) {
	var r Range
	var err error
	if r.UpperBound, err = DecodeBound(rd, prev); err != nil {
		return r, err
	}
	mode, err := ReadVarint(rd)
	if err != nil {
		return r, err
	}
	r.Mode = Mode(mode)
	switch r.Mode {
	case ModeSkip:
	case ModeFingerprint:
		if _, err := io.ReadFull(rd, r.Fingerprint[:]); err != nil {
			return r, fmt.Errorf("%w: truncated fingerprint", ErrProtocol)
		}
	case ModeIDList:
		n, err := ReadVarint(rd)
		if err != nil {
			return r, err
		}
		if n > uint64(rd.Len()/IDSize) {
			return r, fmt.Errorf("%w: truncated id list (%d ids)", ErrProtocol, n)
		}
		r.IDs = make([]ID, n)
		for i := range r.IDs {
			if _, err := io.ReadFull(rd, r.IDs[i][:]); err != nil {
				return r, fmt.Errorf("%w: truncated id list", ErrProtocol)
			}
		}
	default:
		return r, fmt.Errorf("%w: unknown mode %d", ErrProtocol, mode)
	}
	return r, nil
}

// Message is a single negentropy protocol message: an ordered list of ranges that
// partition the [MinBound, MaxBound) space. The space after the last range is
// implicitly skipped.
type Message struct {
	Ranges []Range
}

var _ zapcore.ArrayMarshaler = (*Message)(nil)

// Empty returns true if the message has no ranges that need any processing.
// An empty message terminates the reconciliation.
func (m *Message) Empty() bool {
	for _, r := range m.Ranges {
		if r.Mode != ModeSkip {
			return false
		}
	}
	return true
}

// Validate checks that the range upper bounds are strictly increasing.
func (m *Message) Validate() error {
	prev := MinBound()
	for n, r := range m.Ranges {
		if r.UpperBound.Compare(prev) <= 0 {
			return fmt.Errorf("%w: range %d: upper bound %s doesn't follow %s",
				ErrMessage, n, r.UpperBound, prev)
		}
		prev = r.UpperBound
	}
	return nil
}

// trimmed returns the ranges with adjacent skip ranges merged and trailing skip
// ranges removed.
func (m *Message) trimmed() []Range {
	var rs []Range
	for _, r := range m.Ranges {
		if r.Mode == ModeSkip && len(rs) != 0 && rs[len(rs)-1].Mode == ModeSkip {
			rs[len(rs)-1].UpperBound = r.UpperBound
			continue
		}
		rs = append(rs, r)
	}
	for len(rs) != 0 && rs[len(rs)-1].Mode == ModeSkip {
		rs = rs[:len(rs)-1]
	}
	return rs
}

// Encode returns the wire representation of the message.
// Trailing skip ranges are not included.
func (m *Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf := []byte{ProtocolVersion}
	var prev uint64
	for _, r := range m.trimmed() {
		var err error
		if buf, err = r.appendEncoded(buf, prev); err != nil {
			return nil, err
		}
		prev = r.UpperBound.Timestamp
	}
	return buf, nil
}

// EncodeHex returns the hex-encoded wire representation of the message.
func (m *Message) EncodeHex() (string, error) {
	b, err := m.Encode()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// String implements fmt.Stringer.
func (m *Message) String() string {
	var sb strings.Builder
	for n, r := range m.Ranges {
		if n != 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(r.String())
	}
	return sb.String()
}

// MarshalLogArray implements zapcore.ArrayMarshaler.
func (m *Message) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for n, r := range m.Ranges {
		if n == 8 {
			enc.AppendString("...")
			break
		}
		enc.AppendString(r.String())
	}
	return nil
}

// DecodeMessage decodes a message from its wire representation.
// The message is decoded completely before it is returned, so a message that is
// malformed at any point is rejected as a whole.
func DecodeMessage(b []byte) (*Message, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrProtocol)
	}
	if b[0] != ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported protocol version 0x%02x", ErrProtocol, b[0])
	}
	rd := bytes.NewReader(b[1:])
	m := &Message{}
	var prev uint64
	for rd.Len() != 0 {
		r, err := decodeRange(rd, prev)
		if err != nil {
			return nil, fmt.Errorf("range %d: %w", len(m.Ranges), err)
		}
		m.Ranges = append(m.Ranges, r)
		prev = r.UpperBound.Timestamp
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeMessageHex decodes a hex-encoded message.
func DecodeMessageHex(s string) (*Message, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad hex: %w", ErrProtocol, err)
	}
	return DecodeMessage(b)
}
