package negentropy

import (
	"encoding/hex"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func idWithPrefix(b ...byte) ID {
	var id ID
	copy(id[:], b)
	return id
}

func TestFingerprintVectors(t *testing.T) {
	for _, tc := range []struct {
		name string
		ids  []ID
		fp   string
	}{
		{
			name: "empty",
			fp:   "00000000000000000000000000000000",
		},
		{
			name: "single",
			ids:  []ID{idWithPrefix(1)},
			fp:   "2e255099d6d6bee307c8e7075acc78f9",
		},
		{
			name: "wraparound",
			ids:  []ID{MustParseID(hex.EncodeToString(maxBoundID)), idWithPrefix(1)},
			fp:   "58cc2f44d3a27866874701fbad573da9",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.fp, ComputeFingerprint(tc.ids).String())
		})
	}
}

func TestFingerprintMultibyteCount(t *testing.T) {
	var a Accumulator
	for range 200 {
		a.Add(idWithPrefix(2))
	}
	require.Equal(t, 200, a.Count())
	require.Equal(t, "a8c77a9ed12d39a2c653fe870d900c13", a.Fingerprint().String())
}

func TestFingerprintOrderIndependent(t *testing.T) {
	ids := make([]ID, 100)
	for i := range ids {
		ids[i] = RandomID()
	}
	fp := ComputeFingerprint(ids)
	for range 10 {
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		require.Equal(t, fp, ComputeFingerprint(ids))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	ids := []ID{RandomID(), RandomID(), RandomID()}
	fp := ComputeFingerprint(ids)
	require.False(t, fp.IsZero())
	for i := range ids {
		for bit := 0; bit < 8; bit++ {
			changed := append([]ID(nil), ids...)
			changed[i][bit*4] ^= 1 << bit
			other := ComputeFingerprint(changed)
			require.False(t, fp.Equal(other))
		}
	}
	// a subset differs, too
	require.NotEqual(t, fp, ComputeFingerprint(ids[:2]))
}

func TestFingerprintXor(t *testing.T) {
	a := ComputeFingerprint([]ID{RandomID()})
	b := ComputeFingerprint([]ID{RandomID()})
	require.Equal(t, EmptyFingerprint(), a.Xor(a))
	require.Equal(t, a, a.Xor(b).Xor(b))
	require.Equal(t, a.String()[:10], a.ShortString())
}
