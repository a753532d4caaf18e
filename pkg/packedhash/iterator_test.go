package packedhash_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_IteratorSlice_Partitions_Cover_Every_Slot_Exactly_Once(t *testing.T) {
	t.Parallel()
	a := newTestArray(t, 64, 16, 4, 7)

	for k := uint64(1); k <= 10; k++ {
		require.NoError(t, a.Add(k*101, 3))
	}

	const slices = 4
	seen := map[uint64]int{}
	for s := 0; s < slices; s++ {
		it := a.IteratorSlice(s, slices)
		for it.Next() {
			seen[it.Entry().Key]++
		}
	}

	full := map[uint64]uint64{}
	it := a.IteratorAll()
	for it.Next() {
		full[it.Entry().Key] = it.Entry().Val
	}

	require.Len(t, seen, len(full))
	for k := range full {
		require.Equal(t, 1, seen[k], "key %d visited more than once across slices", k)
	}
}

func Test_Iterator_Skips_Empty_Slots(t *testing.T) {
	t.Parallel()
	a := newTestArray(t, 1024, 16, 4, 7)
	require.NoError(t, a.Add(42, 1))

	it := a.IteratorAll()
	count := 0
	for it.Next() {
		count++
	}
	require.Equal(t, 1, count)
}
