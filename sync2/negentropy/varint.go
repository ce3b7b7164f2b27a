package negentropy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
)

// maxVarintLen is the maximum number of bytes a varint may occupy.
const maxVarintLen = 10

// AppendVarint appends n to b as a base-128 varint, most significant group first.
// All bytes except the last one have the high bit set.
func AppendVarint(b []byte, n uint64) []byte {
	var tmp [maxVarintLen]byte
	i := len(tmp) - 1
	tmp[i] = byte(n & 0x7f)
	for n >>= 7; n != 0; n >>= 7 {
		i--
		tmp[i] = byte(n&0x7f) | 0x80
	}
	return append(b, tmp[i:]...)
}

// EncodeVarint encodes a non-negative integer as a varint.
func EncodeVarint(n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: can't encode negative varint %d", ErrProtocol, n)
	}
	return AppendVarint(nil, uint64(n)), nil
}

// ReadVarint reads a varint from r.
func ReadVarint(r io.ByteReader) (uint64, error) {
	var v uint64
	for i := 0; i < maxVarintLen; i++ {
		b, err := r.ReadByte()
		switch {
		case errors.Is(err, io.EOF):
			return 0, fmt.Errorf("%w: truncated varint", ErrProtocol)
		case err != nil:
			return 0, err
		}
		if v > math.MaxUint64>>7 {
			return 0, fmt.Errorf("%w: varint overflows uint64", ErrProtocol)
		}
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: varint longer than %d bytes", ErrProtocol, maxVarintLen)
}

// DecodeVarint decodes a varint from the beginning of b, returning the value and the
// number of bytes consumed.
func DecodeVarint(b []byte) (uint64, int, error) {
	r := bytes.NewReader(b)
	v, err := ReadVarint(r)
	if err != nil {
		return 0, 0, err
	}
	return v, len(b) - r.Len(), nil
}
