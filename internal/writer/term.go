package writer

import (
	"os"

	"golang.org/x/term"
)

// isTerminalStdout reports whether stdout is attached to a terminal, used
// only to pick a flush cadence in OpenStdOut mode (spec.md §4.2 "Stdout
// mode flush cadence" in SPEC_FULL.md) — it never changes what bytes are
// written, only when.
func isTerminalStdout() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
