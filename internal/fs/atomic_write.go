package fs

import (
	"io"

	"github.com/natefinch/atomic"
)

// WriteAtomic streams r to path via a temp-file-then-rename so a reader
// never observes a partially written dump.
func WriteAtomic(path string, r io.Reader) error {
	return atomic.WriteFile(path, r)
}
