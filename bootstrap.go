package ulog

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ashgrove-dev/ulog/internal/ring"
	"github.com/ashgrove-dev/ulog/internal/writer"
)

// writerMarker is the private argv[1] value that identifies a re-exec'd
// child as the Writer process (spec.md §4.3, §9: "private argv marker").
// It is checked before any user main() logic runs, so a host application's
// own flag parsing never sees it.
const writerMarker = "__ulog_writer__"

// stdoutSentinel stands in for the file path argument when the writer
// should target standard output instead of a file.
const stdoutSentinel = "-"

// init looks for the writer marker before any host main() runs. If present
// this process is the re-exec'd Writer child: it attaches the shared
// region named on argv, runs the writer main loop, and exits — it never
// returns control to a host main().
func init() {
	if len(os.Args) < 2 || os.Args[1] != writerMarker {
		return
	}
	os.Exit(runWriterChild(os.Args[2:]))
}

// runWriterChild parses the bootstrap argv (region path, ring data size,
// log path or stdout sentinel, archive settings, parent pid) and runs the
// writer loop to completion, returning the child's exit status.
func runWriterChild(argv []string) int {
	if len(argv) != 6 {
		fmt.Fprintf(os.Stderr, "ulog-writer: malformed bootstrap argv: %v\n", argv)
		return 2
	}
	regionPath := argv[0]
	dataSize, err := strconv.ParseUint(argv[1], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulog-writer: bad ring size %q: %v\n", argv[1], err)
		return 2
	}
	path := argv[2]
	maxFileSize, err := strconv.ParseInt(argv[3], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulog-writer: bad max file size %q: %v\n", argv[3], err)
		return 2
	}
	maxArchives, err := strconv.Atoi(argv[4])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulog-writer: bad archive count %q: %v\n", argv[4], err)
		return 2
	}
	parentPID, err := strconv.Atoi(argv[5])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulog-writer: bad parent pid %q: %v\n", argv[5], err)
		return 2
	}

	region, err := ring.OpenRegion(regionPath, ring.Layout(dataSize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulog-writer: open region: %v\n", err)
		return 2
	}
	r, err := ring.Attach(region, dataSize)
	if err != nil {
		region.Close()
		fmt.Fprintf(os.Stderr, "ulog-writer: attach region: %v\n", err)
		return 2
	}
	defer r.Close()

	cfg := writer.Config{MaxFileSize: maxFileSize, MaxArchives: maxArchives}
	if path == stdoutSentinel {
		cfg.Stdout = true
	} else {
		cfg.Path = path
	}
	w, err := writer.New(cfg, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulog-writer: %v\n", err)
		return 2
	}
	if err := w.Run(parentPID); err != nil {
		fmt.Fprintf(os.Stderr, "ulog-writer: %v\n", err)
		return 1
	}
	return 0
}
