package compact_test

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jellyhash/kmerhash/pkg/compact"
)

// seekBuffer adapts a byte slice into an io.WriteSeeker by tracking a
// write cursor over a growable backing slice, since bytes.Buffer itself
// has no Seek.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = int(offset)
	case io.SeekCurrent:
		b.pos += int(offset)
	case io.SeekEnd:
		b.pos = len(b.data) + int(offset)
	}
	return int64(b.pos), nil
}

// Oracle: scenario D (saturate a count that exceeds a 1-byte on-disk
// value width; header total must carry the true, unsaturated sum).
func Test_Writer_Saturates_Value_But_Header_Total_Is_True_Sum(t *testing.T) {
	t.Parallel()

	out := &seekBuffer{}
	var lock sync.Mutex
	w, err := compact.NewWriter(out, &lock, 16, 1, 4096)
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader(1))
	require.NoError(t, w.Put(compact.Entry{Key: 0xABCD, Val: 300}))
	require.NoError(t, w.UpdateStats())

	require.Equal(t, uint64(300), w.Total())
	require.Equal(t, uint64(1), w.Distinct())
	require.Equal(t, uint64(0), w.Unique()) // val != 1

	r, err := compact.NewReader(bytes.NewReader(out.data))
	require.NoError(t, err)
	h := r.Header()
	require.Equal(t, uint64(16), h.MerLen)
	require.Equal(t, uint64(1), h.ValLenBytes)
	require.Equal(t, uint64(300), h.Total)
	require.Equal(t, uint64(1), h.Distinct)

	entry, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(0xABCD), entry.Key)
	require.Equal(t, uint64(0xFF), entry.Val, "value must be saturated to the 1-byte max")

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func Test_Writer_Tracks_Unique_Distinct_Total_Across_Many_Records(t *testing.T) {
	t.Parallel()

	out := &seekBuffer{}
	var lock sync.Mutex
	w, err := compact.NewWriter(out, &lock, 20, 2, 32) // small buffer forces several flushes
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader(64))

	entries := []compact.Entry{
		{Key: 1, Val: 1},
		{Key: 2, Val: 1},
		{Key: 3, Val: 5},
		{Key: 4, Val: 70000}, // exceeds the 2-byte field
		{Key: 5, Val: 1},
	}
	for _, e := range entries {
		require.NoError(t, w.Put(e))
	}
	require.NoError(t, w.UpdateStats())

	require.Equal(t, uint64(3), w.Unique())
	require.Equal(t, uint64(5), w.Distinct())
	require.Equal(t, uint64(1+1+5+70000+1), w.Total())

	r, err := compact.NewReader(bytes.NewReader(out.data))
	require.NoError(t, err)
	got := map[uint64]uint64{}
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got[e.Key] = e.Val
	}
	require.Equal(t, uint64(65535), got[4], "2-byte field must saturate at 0xFFFF")
	require.Equal(t, uint64(5), got[3])
}

func Test_NewReader_Rejects_Short_Header(t *testing.T) {
	t.Parallel()
	_, err := compact.NewReader(bytes.NewReader([]byte{1, 2, 3}))
	require.ErrorIs(t, err, compact.ErrInvalidHeader)
}
