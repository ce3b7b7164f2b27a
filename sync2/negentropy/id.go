package negentropy

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// IDSize is the size of a record id in bytes.
const IDSize = 32

// ID is a record (event) id.
type ID [IDSize]byte

// String implements fmt.Stringer.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ShortString implements log.ShortString.
func (id ID) ShortString() string {
	return hex.EncodeToString(id[:5])
}

// Compare compares two ids lexicographically.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// ParseID converts a hex string to an ID.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("bad id %q: %w", s, err)
	}
	if len(b) != IDSize {
		return id, fmt.Errorf("bad id %q: expected %d bytes, got %d", s, IDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// MustParseID converts a hex string to an ID and panics on error.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err.Error())
	}
	return id
}

// RandomID generates a random id for testing.
func RandomID() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		panic("failed to generate random id: " + err.Error())
	}
	return id
}

// Item is a record in the reconciled set, ordered by timestamp first and id second.
type Item struct {
	Timestamp uint64
	ID        ID
}

// Bound returns the Bound that corresponds to the item.
func (it Item) Bound() Bound {
	return Bound{Timestamp: it.Timestamp, ID: it.ID[:]}
}

// Compare compares two items using the (timestamp, id) order.
func (it Item) Compare(other Item) int {
	switch {
	case it.Timestamp < other.Timestamp:
		return -1
	case it.Timestamp > other.Timestamp:
		return 1
	}
	return it.ID.Compare(other.ID)
}

// compareBound compares the item's implied Bound against b without allocating.
func (it Item) compareBound(b Bound) int {
	switch {
	case it.Timestamp < b.Timestamp:
		return -1
	case it.Timestamp > b.Timestamp:
		return 1
	}
	return bytes.Compare(it.ID[:], b.ID)
}
