package negentropy

import (
	"encoding/binary"
	"encoding/hex"
	"math/bits"

	"github.com/nostrsync/relay/hash"
)

// FingerprintSize is the size of a fingerprint in bytes.
const FingerprintSize = 16

// Fingerprint is an order-independent digest of a set of ids.
type Fingerprint [FingerprintSize]byte

// EmptyFingerprint returns the fingerprint of an empty set.
func EmptyFingerprint() Fingerprint {
	return Fingerprint{}
}

// String implements fmt.Stringer.
func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:])
}

// ShortString implements log.ShortString.
func (fp Fingerprint) ShortString() string {
	return hex.EncodeToString(fp[:5])
}

// Equal returns true if the fingerprints match.
func (fp Fingerprint) Equal(other Fingerprint) bool {
	return fp == other
}

// IsZero returns true if the fingerprint is the empty set sentinel.
func (fp Fingerprint) IsZero() bool {
	return fp == Fingerprint{}
}

// Xor returns the bytewise XOR of two fingerprints.
func (fp Fingerprint) Xor(other Fingerprint) Fingerprint {
	var r Fingerprint
	for i := range fp {
		r[i] = fp[i] ^ other[i]
	}
	return r
}

// Accumulator incrementally computes a Fingerprint. The ids are summed as
// little-endian 256-bit unsigned integers modulo 2^256, so the result doesn't depend
// on the order in which the ids are added.
// The zero value is ready to use.
type Accumulator struct {
	sum   [IDSize / 8]uint64
	count uint64
}

// Add adds an id to the accumulator.
func (a *Accumulator) Add(id ID) {
	var carry uint64
	for i := range a.sum {
		a.sum[i], carry = bits.Add64(a.sum[i], binary.LittleEndian.Uint64(id[i*8:]), carry)
	}
	a.count++
}

// Count returns the number of ids added to the accumulator.
func (a *Accumulator) Count() int {
	return int(a.count)
}

// Fingerprint returns the fingerprint of the ids added so far.
func (a *Accumulator) Fingerprint() Fingerprint {
	if a.count == 0 {
		return EmptyFingerprint()
	}
	var tmp [IDSize + maxVarintLen]byte
	for i, v := range a.sum {
		binary.LittleEndian.PutUint64(tmp[i*8:], v)
	}
	buf := AppendVarint(tmp[:IDSize], a.count)
	h := hash.GetHasher()
	defer func() {
		h.Reset()
		hash.PutHasher(h)
	}()
	h.Write(buf)
	var fp Fingerprint
	copy(fp[:], h.Sum(tmp[:0]))
	return fp
}

// ComputeFingerprint returns the fingerprint of the given ids.
func ComputeFingerprint(ids []ID) Fingerprint {
	var a Accumulator
	for _, id := range ids {
		a.Add(id)
	}
	return a.Fingerprint()
}

func itemsFingerprint(items []Item) Fingerprint {
	var a Accumulator
	for i := range items {
		a.Add(items[i].ID)
	}
	return a.Fingerprint()
}
