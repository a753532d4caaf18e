// Command kmercount tallies k-mer occurrences from a stream of DNA
// sequences (one per line, on stdin) into a concurrent packed hash
// array, then dumps the result as a compacted key/value file.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	flag "github.com/spf13/pflag"

	"github.com/jellyhash/kmerhash/internal/fs"
	"github.com/jellyhash/kmerhash/pkg/compact"
	"github.com/jellyhash/kmerhash/pkg/packedhash"
	"github.com/jellyhash/kmerhash/pkg/sketch"
)

func main() {
	os.Exit(run(os.Stdin, os.Stdout, os.Stderr, os.Args[1:]))
}

type options struct {
	merLen       int
	sizeLog2     int
	valBits      int
	reprobeLimit int
	workers      int
	useBloom     bool
	out          string
}

func run(in io.Reader, out, errOut io.Writer, args []string) int {
	if hasHelpFlag(args) {
		printHelp(out)
		return 0
	}

	opts, code := parseFlags(errOut, args)
	if code != 0 {
		return code
	}

	keyBits := uint(2 * opts.merLen)
	size := uint64(1) << uint(opts.sizeLog2)

	var sk *sketch.Filter
	if opts.useBloom {
		sk = sketch.New(uint(size), 0.01)
	}

	arr, err := packedhash.New(packedhash.Options{
		Size:         size,
		KeyBits:      keyBits,
		ValBits:      uint(opts.valBits),
		ReprobeLimit: opts.reprobeLimit,
		Sketch:       sk,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	if err := tally(in, arr, opts.merLen, opts.workers); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	if err := dumpAtomic(opts.out, arr, uint64(opts.merLen), uint64((opts.valBits+7)/8)); err != nil {
		fprintln(errOut, "error: dumping results:", err)
		return 1
	}

	return 0
}

// dumpAtomic writes the compacted dump to a private temp file (which
// needs Seek to rewrite the header's stats trailer), then publishes it
// to finalPath via a rename so a reader never observes a half-written
// file, even under a crash mid-dump.
func dumpAtomic(finalPath string, arr *packedhash.Array, merLen, valLenBytes uint64) error {
	dir := filepath.Dir(finalPath)
	tmp, err := os.CreateTemp(dir, ".kmercount-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp dump file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := dump(tmp, arr, merLen, valLenBytes); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("rewinding temp dump file: %w", err)
	}

	if err := fs.WriteAtomic(finalPath, tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("publishing dump file: %w", err)
	}
	return tmp.Close()
}

// tally reads newline-delimited sequences from in and feeds every
// overlapping mer_len-base window into arr, spreading lines across
// workers goroutines. The packed array's own CAS claim/increment path
// is what makes this safe without any synchronization here.
func tally(in io.Reader, arr *packedhash.Array, merLen, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	lines := make(chan string, workers*4)
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for line := range lines {
				if err := tallySequence(arr, line, merLen); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		}()
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ">") {
			continue
		}
		lines <- line
	}
	close(lines)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	return scanner.Err()
}

func tallySequence(arr *packedhash.Array, seq string, merLen int) error {
	if len(seq) < merLen {
		return nil
	}
	var window uint64
	mask := (uint64(1) << uint(2*merLen)) - 1
	loaded := 0
	for i := 0; i < len(seq); i++ {
		code, ok := encodeBase(seq[i])
		if !ok {
			loaded = 0
			window = 0
			continue
		}
		window = ((window << 2) | code) & mask
		loaded++
		if loaded < merLen {
			continue
		}
		if window == 0 {
			// the array reserves the all-zero key as "empty"; the
			// canonical source sidesteps this by construction upstream,
			// so here we simply skip the degenerate all-A mer.
			continue
		}
		if err := arr.Add(window, 1); err != nil {
			return fmt.Errorf("adding mer at offset %d: %w", i-merLen+1, err)
		}
	}
	return nil
}

func encodeBase(b byte) (uint64, bool) {
	switch b {
	case 'A', 'a':
		return 0, true
	case 'C', 'c':
		return 1, true
	case 'G', 'g':
		return 2, true
	case 'T', 't':
		return 3, true
	default:
		return 0, false
	}
}

func dump(out io.WriteSeeker, arr *packedhash.Array, merLen, valLenBytes uint64) error {
	var lock sync.Mutex
	w, err := compact.NewWriter(out, &lock, merLen, valLenBytes, 1<<20)
	if err != nil {
		return err
	}
	if err := w.WriteHeader(arr.Size()); err != nil {
		return err
	}

	it := arr.IteratorAll()
	for it.Next() {
		e := it.Entry()
		if err := w.Put(compact.Entry{Key: e.Key, Val: e.Val}); err != nil {
			return err
		}
	}
	return w.UpdateStats()
}

func parseFlags(errOut io.Writer, args []string) (options, int) {
	flagSet := flag.NewFlagSet("kmercount", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	opts := options{}
	flagSet.IntVar(&opts.merLen, "mer-len", 21, "k-mer length in bases")
	flagSet.IntVar(&opts.sizeLog2, "size-log2", 24, "log2 of the packed array's slot count")
	flagSet.IntVar(&opts.valBits, "val-bits", 8, "bits per home-slot value field")
	flagSet.IntVar(&opts.reprobeLimit, "reprobe-limit", 62, "maximum reprobe steps per slot claim")
	flagSet.IntVar(&opts.workers, "workers", 0, "tally worker goroutines (0 = GOMAXPROCS)")
	flagSet.BoolVar(&opts.useBloom, "bloom", false, "record every k-mer in a Bloom pre-filter")
	flagSet.StringVarP(&opts.out, "out", "o", "mer_counts.jf", "compacted output file path")

	if err := flagSet.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return options{}, 2
	}
	if opts.merLen <= 0 || opts.merLen > 31 {
		fprintln(errOut, "error: --mer-len must be in [1,31] to fit a uint64 key")
		return options{}, 2
	}
	if opts.sizeLog2 <= 0 || opts.sizeLog2 > 40 {
		fprintln(errOut, "error: --size-log2 out of range")
		return options{}, 2
	}
	return opts, 0
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return true
		}
	}
	return false
}

func printHelp(w io.Writer) {
	fprintln(w, "kmercount - tally k-mer occurrences into a compacted count file")
	fprintln(w)
	fprintln(w, "Usage: kmercount [flags] < sequences.txt")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, "  --mer-len <n>        k-mer length in bases (default 21)")
	fprintln(w, "  --size-log2 <n>      log2 of the packed array's slot count (default 24)")
	fprintln(w, "  --val-bits <n>       bits per home-slot value field (default 8)")
	fprintln(w, "  --reprobe-limit <n>  maximum reprobe steps per slot claim (default 62)")
	fprintln(w, "  --workers <n>        tally worker goroutines (default GOMAXPROCS)")
	fprintln(w, "  --bloom              record every k-mer in a Bloom pre-filter")
	fprintln(w, "  -o, --out <file>     compacted output file path (default mer_counts.jf)")
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
