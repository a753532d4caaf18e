package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jellyhash/kmerhash/pkg/compact"
)

func TestRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		args       []string
		wantExit   int
		wantStderr []string
	}{
		{
			name:     "tallies overlapping mers from a single sequence",
			input:    "ACGTACGTACGT\n",
			args:     []string{"--mer-len", "4", "--size-log2", "8", "--val-bits", "4"},
			wantExit: 0,
		},
		{
			name:     "skips fasta header and blank lines",
			input:    ">seq1\nACGTACGT\n\n>seq2\nTTTTGGGG\n",
			args:     []string{"--mer-len", "3", "--size-log2", "6", "--val-bits", "4"},
			wantExit: 0,
		},
		{
			name:       "rejects out of range mer length",
			input:      "ACGT\n",
			args:       []string{"--mer-len", "64"},
			wantExit:   2,
			wantStderr: []string{"mer-len"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			outPath := filepath.Join(t.TempDir(), "counts.jf")
			args := append([]string{"--out", outPath}, tc.args...)

			var stdout, stderr bytes.Buffer
			code := run(strings.NewReader(tc.input), &stdout, &stderr, args)

			require.Equal(t, tc.wantExit, code)
			for _, s := range tc.wantStderr {
				require.Contains(t, stderr.String(), s)
			}

			if tc.wantExit == 0 {
				f, err := os.Open(outPath)
				require.NoError(t, err)
				defer func() { _ = f.Close() }()

				r, err := compact.NewReader(f)
				require.NoError(t, err)
				require.Greater(t, r.Header().Distinct, uint64(0))
			}
		})
	}
}

func Test_TallySequence_Counts_Every_Overlapping_Window(t *testing.T) {
	t.Parallel()

	outPath := filepath.Join(t.TempDir(), "counts.jf")
	var stdout, stderr bytes.Buffer
	code := run(strings.NewReader("AAACAAACAAAC\n"), &stdout, &stderr,
		[]string{"--out", outPath, "--mer-len", "4", "--size-log2", "8", "--val-bits", "8"})
	require.Equal(t, 0, code, stderr.String())

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	r, err := compact.NewReader(f)
	require.NoError(t, err)

	total := uint64(0)
	for {
		e, err := r.Next()
		if err != nil {
			break
		}
		total += e.Val
	}
	require.Equal(t, uint64(9), total) // 12 bases, 4-mers: 9 overlapping windows
	require.Equal(t, r.Header().Total, total)
}
