package negentropy

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Bound is a boundary in the (timestamp, id) space. Ranges are delimited by bounds,
// with the lower bound being inclusive and the upper bound exclusive.
// The id is either a full IDSize-byte id or a prefix of one.
type Bound struct {
	Timestamp uint64
	ID        []byte
}

var maxBoundID = bytes.Repeat([]byte{0xff}, IDSize)

// MinBound returns the bound that is less than or equal to any other bound.
func MinBound() Bound {
	return Bound{}
}

// MaxBound returns the bound that is greater than or equal to any other bound.
func MaxBound() Bound {
	return Bound{Timestamp: math.MaxUint64, ID: maxBoundID}
}

// IsInfinity returns true if the bound is the MaxBound sentinel or any other bound with
// the maximum timestamp, which is encoded as infinity on the wire.
func (b Bound) IsInfinity() bool {
	return b.Timestamp == math.MaxUint64
}

// Compare compares two bounds by timestamp, then by id.
func (b Bound) Compare(other Bound) int {
	switch {
	case b.Timestamp < other.Timestamp:
		return -1
	case b.Timestamp > other.Timestamp:
		return 1
	}
	return bytes.Compare(b.ID, other.ID)
}

// Equal returns true if the bounds are equal.
func (b Bound) Equal(other Bound) bool {
	return b.Compare(other) == 0
}

// String implements fmt.Stringer.
func (b Bound) String() string {
	switch {
	case b.IsInfinity():
		return "<inf>"
	case b.Timestamp == 0 && len(b.ID) == 0:
		return "<min>"
	case len(b.ID) == 0:
		return strconv.FormatUint(b.Timestamp, 10)
	case len(b.ID) > 5:
		return strconv.FormatUint(b.Timestamp, 10) + ":" + hex.EncodeToString(b.ID[:5])
	default:
		return strconv.FormatUint(b.Timestamp, 10) + ":" + hex.EncodeToString(b.ID)
	}
}

// AppendEncoded appends the wire form of the bound to buf. The timestamp is delta
// encoded against prev, the timestamp of the previous bound in the message.
func (b Bound) AppendEncoded(buf []byte, prev uint64) ([]byte, error) {
	if b.IsInfinity() {
		// infinity is sent with an empty id
		return append(buf, 0, 0), nil
	}
	if b.Timestamp < prev {
		return nil, fmt.Errorf("%w: bound timestamp %d is below the previous one %d",
			ErrMessage, b.Timestamp, prev)
	}
	if len(b.ID) > IDSize {
		return nil, fmt.Errorf("%w: bound id too long: %d bytes", ErrMessage, len(b.ID))
	}
	buf = AppendVarint(buf, b.Timestamp-prev+1)
	buf = AppendVarint(buf, uint64(len(b.ID)))
	return append(buf, b.ID...), nil
}

// DecodeBound reads a bound encoded with AppendEncoded.
func DecodeBound(r *bytes.Reader, prev uint64) (Bound, error) {
	delta, err := ReadVarint(r)
	if err != nil {
		return Bound{}, err
	}
	idLen, err := ReadVarint(r)
	if err != nil {
		return Bound{}, err
	}
	if idLen > IDSize {
		return Bound{}, fmt.Errorf("%w: bound id too long: %d bytes", ErrMessage, idLen)
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return Bound{}, fmt.Errorf("%w: truncated bound id", ErrProtocol)
	}
	if delta == 0 {
		return MaxBound(), nil
	}
	if delta-1 > math.MaxUint64-prev {
		return Bound{}, fmt.Errorf("%w: bound timestamp overflow", ErrProtocol)
	}
	ts := prev + delta - 1
	if ts == math.MaxUint64 {
		return Bound{}, fmt.Errorf("%w: non-infinity bound with the max timestamp", ErrMessage)
	}
	if idLen == 0 {
		id = nil
	}
	return Bound{Timestamp: ts, ID: id}, nil
}
