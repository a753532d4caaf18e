package sketch_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jellyhash/kmerhash/pkg/sketch"
)

func Test_Filter_Never_False_Negatives_After_Add(t *testing.T) {
	t.Parallel()

	f := sketch.New(1000, 0.01)
	keys := []uint64{1, 2, 3, 0xdeadbeef, 1 << 40}
	for _, k := range keys {
		f.Add(k)
	}
	for _, k := range keys {
		require.True(t, f.MaybeSeen(k))
	}
}

func Test_Filter_Reports_Unseen_Key_As_Not_Present_Before_Any_Add(t *testing.T) {
	t.Parallel()

	f := sketch.New(1000, 0.001)
	require.False(t, f.MaybeSeen(42))
}

// Run with -race: Add and MaybeSeen from many goroutines at once must
// not race on the filter's shared bitset.
func Test_Filter_Concurrent_Add_And_MaybeSeen_Does_Not_Race(t *testing.T) {
	t.Parallel()

	f := sketch.New(1000, 0.01)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(offset uint64) {
			defer wg.Done()
			for i := uint64(0); i < 200; i++ {
				key := offset*1000 + i
				f.Add(key)
				f.MaybeSeen(key)
			}
		}(uint64(g))
	}
	wg.Wait()
}
