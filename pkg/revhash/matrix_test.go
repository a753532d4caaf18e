package revhash_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jellyhash/kmerhash/pkg/revhash"
)

// Oracle: brute-force Gaussian elimination correctness via round trip.
// Technique: deterministic seeded reader so the matrix is reproducible.
func seededReader(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

type randReader struct{ r *rand.Rand }

func (rr randReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(rr.r.Intn(256))
	}
	return len(p), nil
}

func Test_Matrix_Inversion_Round_Trips_All_Keys(t *testing.T) {
	t.Parallel()

	m, err := revhash.NewFromReader(8, randReader{seededReader(1)})
	require.NoError(t, err)

	for k := 0; k < 256; k++ {
		h := m.Hash(uint64(k))
		got := m.Unhash(h)
		require.Equal(t, uint64(k), got, "key %d", k)
	}
}

func Test_Matrix_Inversion_Round_Trips_Random_Keys_Wide(t *testing.T) {
	t.Parallel()

	m, err := revhash.NewFromReader(48, randReader{seededReader(2)})
	require.NoError(t, err)

	rnd := seededReader(3)
	mask := (uint64(1) << 48) - 1
	for i := 0; i < 1000; i++ {
		k := (uint64(rnd.Uint32())<<17 ^ uint64(rnd.Uint32())) & mask
		require.Equal(t, k, m.Unhash(m.Hash(k)))
	}
}

func Test_Matrix_Rejects_Invalid_Bit_Width(t *testing.T) {
	t.Parallel()

	_, err := revhash.New(0)
	require.Error(t, err)

	_, err = revhash.New(65)
	require.Error(t, err)
}
