package verify_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jellyhash/kmerhash/pkg/packedhash"
	"github.com/jellyhash/kmerhash/pkg/packedhash/verify"
)

func newArray(t *testing.T) *packedhash.Array {
	t.Helper()
	a, err := packedhash.New(packedhash.Options{
		Size:         64,
		KeyBits:      16,
		ValBits:      6,
		ReprobeLimit: 15,
	})
	require.NoError(t, err)
	return a
}

func Test_Check_Passes_On_A_Freshly_Populated_Array(t *testing.T) {
	t.Parallel()
	a := newArray(t)

	want := map[uint64]uint64{3: 1, 17: 4, 999: 9}
	var total uint64
	for k, v := range want {
		for i := uint64(0); i < v; i++ {
			require.NoError(t, a.Add(k, 1))
		}
		total += v
	}

	entries, sum, err := verify.Check(a)
	require.NoError(t, err)
	require.Equal(t, len(want), entries)
	require.Equal(t, total, sum)
}

func Test_CheckTotal_Rejects_Mismatched_Expectation(t *testing.T) {
	t.Parallel()
	a := newArray(t)
	require.NoError(t, a.Add(5, 1))

	err := verify.CheckTotal(a, 99)
	require.Error(t, err)
}

func Test_CheckTotal_Accepts_Matching_Expectation(t *testing.T) {
	t.Parallel()
	a := newArray(t)
	require.NoError(t, a.Add(5, 1))
	require.NoError(t, a.Add(5, 1))
	require.NoError(t, a.Add(5, 1))

	require.NoError(t, verify.CheckTotal(a, 3))
}
