package offsets_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jellyhash/kmerhash/pkg/offsets"
)

// Oracle: round-trip every slot's Pack/Unpack over its full value range.
// Technique: exhaustive enumeration for small field widths.
func Test_Window_Pack_Unpack_Round_Trips(t *testing.T) {
	t.Parallel()

	l, err := offsets.New(6, 3, 4)
	require.NoError(t, err)

	for s := 0; s < l.BlockLen; s++ {
		slot := l.Normal[s]
		width := slot.Key.DataWidth + 2
		max := uint64(1) << width
		for v := uint64(0); v < max; v++ {
			w0, w1 := slot.Key.Overall.Pack(v)
			got := slot.Key.Overall.Unpack(w0, w1)
			require.Equal(t, v, got, "slot %d value %d", s, v)
		}
	}
}

func Test_Layout_Slot_Width_Is_Uniform_Across_Normal_And_Large(t *testing.T) {
	t.Parallel()

	l, err := offsets.New(10, 4, 6)
	require.NoError(t, err)

	for s := 0; s < l.BlockLen; s++ {
		n := l.Normal[s]
		g := l.Large[s]
		require.Equal(t, n.Key.DataWidth+2+l.ValBits, g.Key.DataWidth+2+l.LargeValBits)
	}
}

func Test_Layout_Status_And_Large_Bits_Are_Isolated(t *testing.T) {
	t.Parallel()

	l, err := offsets.New(6, 3, 4)
	require.NoError(t, err)

	slot := l.Normal[0]
	// setting only the status bit must not set the large bit, and vice versa.
	sw0, sw1 := slot.Key.StatusBit.Pack(1)
	require.Equal(t, uint64(0), slot.Key.LargeBit.Unpack(sw0, sw1))

	lw0, lw1 := slot.Key.LargeBit.Pack(1)
	require.Equal(t, uint64(0), slot.Key.StatusBit.Unpack(lw0, lw1))
}

func Test_Layout_Rejects_Oversized_Fields(t *testing.T) {
	t.Parallel()

	_, err := offsets.New(62, 5, 4)
	require.Error(t, err)
}

func Test_Layout_Rejects_Zero_Reprobe_Or_Value_Bits(t *testing.T) {
	t.Parallel()

	_, err := offsets.New(4, 0, 4)
	require.Error(t, err)

	_, err = offsets.New(4, 4, 0)
	require.Error(t, err)
}
