package negentropy

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Storage is a snapshot of local items used for reconciliation.
// Items are added to the storage before it is sealed. After Seal is called, the
// storage becomes immutable and can be queried, including from multiple goroutines.
type Storage struct {
	items  []Item
	sealed bool
}

// NewStorage creates a sealed Storage containing the specified items.
func NewStorage(items ...Item) (*Storage, error) {
	s := &Storage{items: make([]Item, 0, len(items))}
	for _, it := range items {
		if err := s.AddItem(it); err != nil {
			return nil, err
		}
	}
	if err := s.Seal(); err != nil {
		return nil, err
	}
	return s, nil
}

// Add adds an item to the storage.
func (s *Storage) Add(timestamp uint64, id ID) error {
	return s.AddItem(Item{Timestamp: timestamp, ID: id})
}

// AddItem adds an item to the storage.
func (s *Storage) AddItem(it Item) error {
	if s.sealed {
		return fmt.Errorf("%w: can't add items after seal", ErrStorage)
	}
	if it.Timestamp == math.MaxUint64 {
		return fmt.Errorf("%w: timestamp %d is reserved", ErrStorage, it.Timestamp)
	}
	s.items = append(s.items, it)
	return nil
}

// Seal sorts the items and makes the storage immutable.
func (s *Storage) Seal() error {
	if s.sealed {
		return fmt.Errorf("%w: already sealed", ErrStorage)
	}
	slices.SortFunc(s.items, Item.Compare)
	for i := 1; i < len(s.items); i++ {
		if s.items[i-1].Compare(s.items[i]) == 0 {
			return fmt.Errorf("%w: duplicate item %s", ErrStorage, s.items[i].ID)
		}
	}
	s.sealed = true
	return nil
}

// Sealed returns true if the storage is sealed.
func (s *Storage) Sealed() bool {
	return s.sealed
}

func (s *Storage) checkSealed() error {
	if !s.sealed {
		return fmt.Errorf("%w: storage not sealed", ErrStorage)
	}
	return nil
}

// Size returns the number of items in the storage.
func (s *Storage) Size() (int, error) {
	if err := s.checkSealed(); err != nil {
		return 0, err
	}
	return len(s.items), nil
}

// Items returns all of the items in the storage, in order.
// The returned slice must not be modified.
func (s *Storage) Items() ([]Item, error) {
	if err := s.checkSealed(); err != nil {
		return nil, err
	}
	return s.items, nil
}

// FindLowerBound returns the index of the first item that is greater than or equal to
// b, or the number of items if there's no such item.
func (s *Storage) FindLowerBound(b Bound) (int, error) {
	if err := s.checkSealed(); err != nil {
		return 0, err
	}
	return s.findLowerBound(b), nil
}

// Range returns the items within [lower, upper).
// The returned slice must not be modified.
func (s *Storage) Range(lower, upper Bound) ([]Item, error) {
	if err := s.checkSealed(); err != nil {
		return nil, err
	}
	return s.rangeItems(lower, upper), nil
}

// CountInRange returns the number of items within [lower, upper).
func (s *Storage) CountInRange(lower, upper Bound) (int, error) {
	if err := s.checkSealed(); err != nil {
		return 0, err
	}
	lo, hi := s.indices(lower, upper)
	return hi - lo, nil
}

// Fingerprint returns the fingerprint of the items within [lower, upper).
func (s *Storage) Fingerprint(lower, upper Bound) (Fingerprint, error) {
	if err := s.checkSealed(); err != nil {
		return Fingerprint{}, err
	}
	return s.fingerprint(lower, upper), nil
}

// Midpoint returns the bound of the middle item within [lower, upper), or lower if the
// range is empty. For ranges with 2 or more items, both [lower, midpoint) and
// [midpoint, upper) are non-empty.
func (s *Storage) Midpoint(lower, upper Bound) (Bound, error) {
	if err := s.checkSealed(); err != nil {
		return Bound{}, err
	}
	return s.midpoint(lower, upper), nil
}

func (s *Storage) findLowerBound(b Bound) int {
	return sort.Search(len(s.items), func(i int) bool {
		return s.items[i].compareBound(b) >= 0
	})
}

func (s *Storage) indices(lower, upper Bound) (lo, hi int) {
	lo = s.findLowerBound(lower)
	hi = lo + sort.Search(len(s.items)-lo, func(i int) bool {
		return s.items[lo+i].compareBound(upper) >= 0
	})
	return lo, hi
}

func (s *Storage) rangeItems(lower, upper Bound) []Item {
	lo, hi := s.indices(lower, upper)
	return s.items[lo:hi:hi]
}

func (s *Storage) fingerprint(lower, upper Bound) Fingerprint {
	return itemsFingerprint(s.rangeItems(lower, upper))
}

func (s *Storage) midpoint(lower, upper Bound) Bound {
	lo, hi := s.indices(lower, upper)
	if lo == hi {
		return lower
	}
	return s.items[lo+(hi-lo)/2].Bound()
}
