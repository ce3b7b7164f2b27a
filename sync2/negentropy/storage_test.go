package negentropy

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomItems(n int, maxTimestamp uint64) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{Timestamp: rand.Uint64N(maxTimestamp), ID: RandomID()}
	}
	return items
}

func mustStorage(tb testing.TB, items ...Item) *Storage {
	tb.Helper()
	s, err := NewStorage(items...)
	require.NoError(tb, err)
	return s
}

func TestStorageSeal(t *testing.T) {
	var s Storage
	require.NoError(t, s.Add(10, RandomID()))
	_, err := s.Size()
	require.ErrorIs(t, err, ErrStorage)
	_, err = s.Range(MinBound(), MaxBound())
	require.ErrorIs(t, err, ErrStorage)
	_, err = s.Fingerprint(MinBound(), MaxBound())
	require.ErrorIs(t, err, ErrStorage)
	require.False(t, s.Sealed())

	require.NoError(t, s.Seal())
	require.True(t, s.Sealed())
	require.ErrorIs(t, s.Add(11, RandomID()), ErrStorage)
	require.ErrorIs(t, s.Seal(), ErrStorage)
	n, err := s.Size()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStorageRejects(t *testing.T) {
	var s Storage
	require.ErrorIs(t, s.Add(math.MaxUint64, RandomID()), ErrStorage)

	id := RandomID()
	_, err := NewStorage(Item{Timestamp: 1, ID: id}, Item{Timestamp: 1, ID: id})
	require.ErrorIs(t, err, ErrStorage)
	// same id with different timestamps is a different item
	_, err = NewStorage(Item{Timestamp: 1, ID: id}, Item{Timestamp: 2, ID: id})
	require.NoError(t, err)
}

func TestStorageSorted(t *testing.T) {
	s := mustStorage(t, randomItems(100, 10)...)
	items, err := s.Items()
	require.NoError(t, err)
	require.Len(t, items, 100)
	require.True(t, slices.IsSortedFunc(items, Item.Compare))
}

func TestStorageRange(t *testing.T) {
	items := randomItems(200, 50)
	s := mustStorage(t, items...)
	sorted, err := s.Items()
	require.NoError(t, err)
	bounds := []Bound{MinBound(), MaxBound(), {Timestamp: 25}}
	for range 20 {
		bounds = append(bounds, sorted[rand.IntN(len(sorted))].Bound())
	}
	for _, lower := range bounds {
		for _, upper := range bounds {
			rng, err := s.Range(lower, upper)
			require.NoError(t, err)
			var expected []Item
			for _, it := range sorted {
				if it.compareBound(lower) >= 0 && it.compareBound(upper) < 0 {
					expected = append(expected, it)
				}
			}
			require.Equal(t, len(expected), len(rng), "[%s, %s)", lower, upper)
			if len(expected) != 0 {
				require.Equal(t, expected, rng)
			}
			n, err := s.CountInRange(lower, upper)
			require.NoError(t, err)
			require.Equal(t, len(expected), n)

			ids := make([]ID, len(expected))
			for i, it := range expected {
				ids[i] = it.ID
			}
			fp, err := s.Fingerprint(lower, upper)
			require.NoError(t, err)
			require.Equal(t, ComputeFingerprint(ids), fp)
		}
	}
}

func TestStorageFindLowerBound(t *testing.T) {
	items := []Item{
		{Timestamp: 10, ID: idWithPrefix(1)},
		{Timestamp: 10, ID: idWithPrefix(2)},
		{Timestamp: 20, ID: idWithPrefix(1)},
	}
	s := mustStorage(t, items...)
	for _, tc := range []struct {
		bound Bound
		index int
	}{
		{MinBound(), 0},
		{Bound{Timestamp: 10}, 0},
		{items[1].Bound(), 1},
		{Bound{Timestamp: 10, ID: []byte{3}}, 2},
		{Bound{Timestamp: 20}, 2},
		{Bound{Timestamp: 21}, 3},
		{MaxBound(), 3},
	} {
		n, err := s.FindLowerBound(tc.bound)
		require.NoError(t, err)
		require.Equal(t, tc.index, n, tc.bound.String())
	}
}

func TestStorageMidpoint(t *testing.T) {
	s := mustStorage(t, randomItems(101, 1000)...)
	sorted, err := s.Items()
	require.NoError(t, err)

	mid, err := s.Midpoint(MinBound(), MaxBound())
	require.NoError(t, err)
	require.Equal(t, sorted[50].Bound(), mid)

	lower, upper := sorted[10].Bound(), sorted[13].Bound()
	mid, err = s.Midpoint(lower, upper)
	require.NoError(t, err)
	require.Equal(t, sorted[11].Bound(), mid)

	for range 50 {
		i, j := rand.IntN(len(sorted)), rand.IntN(len(sorted))
		if j-i < 2 {
			continue
		}
		lower, upper := sorted[i].Bound(), sorted[j].Bound()
		mid, err := s.Midpoint(lower, upper)
		require.NoError(t, err)
		require.Equal(t, 1, mid.Compare(lower))
		require.Equal(t, -1, mid.Compare(upper))
		n0, _ := s.CountInRange(lower, mid)
		n1, _ := s.CountInRange(mid, upper)
		require.NotZero(t, n0)
		require.NotZero(t, n1)
		require.Equal(t, j-i, n0+n1)
	}

	// empty range
	b := Bound{Timestamp: 5000}
	mid, err = s.Midpoint(b, MaxBound())
	require.NoError(t, err)
	require.Equal(t, b, mid)
}

func TestStorageEmpty(t *testing.T) {
	s := mustStorage(t)
	n, err := s.Size()
	require.NoError(t, err)
	require.Zero(t, n)
	fp, err := s.Fingerprint(MinBound(), MaxBound())
	require.NoError(t, err)
	require.True(t, fp.IsZero())
	mid, err := s.Midpoint(MinBound(), MaxBound())
	require.NoError(t, err)
	require.Equal(t, MinBound(), mid)
}
