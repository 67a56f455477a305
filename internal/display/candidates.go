package display

import (
	"fmt"
	"iter"
)

// maxCandidate bounds automatic probing of display names
const maxCandidate = 32

// Candidates yields the conventional display names wayland-1 through
// wayland-31, computed on demand. wayland-0 is reserved for a session's
// primary compositor and skipped during automatic selection.
func Candidates() iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 1; i < maxCandidate; i++ {
			if !yield(fmt.Sprintf("wayland-%d", i)) {
				return
			}
		}
	}
}
