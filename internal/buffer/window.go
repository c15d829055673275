// Package buffer holds the per-channel bounded sample windows.
package buffer

import (
	"time"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
)

// TTL is how long a sample survives post-flush pruning.
const TTL = 5 * time.Minute

// Bounds is a channel's hard capacity and the tail retained once it is exceeded.
type Bounds struct {
	Cap  int
	Tail int
}

// Default channel bounds.
var (
	MovementBounds  = Bounds{Cap: 200, Tail: 100}
	ClickBounds     = Bounds{Cap: 50, Tail: 25}
	KeystrokeBounds = Bounds{Cap: 100, Tail: 50}
	ScrollBounds    = Bounds{Cap: 100, Tail: 50}
	TouchBounds     = Bounds{Cap: 100, Tail: 50}
	FocusBounds     = Bounds{Cap: 50, Tail: 25}
	FormBounds      = Bounds{Cap: 50, Tail: 25}
)

// Window is an append-only sequence bounded by Bounds. It grows up to Cap;
// the first append past Cap trims it to the last Tail entries, and from then
// on it slides, keeping at most Tail. The backing slice is compacted only
// when it reaches Cap, so appends stay amortized O(1).
//
// Window is not safe for concurrent use.
type Window[T event.Stamped] struct {
	buf       []T
	start     int
	bounds    Bounds
	saturated bool
}

// New returns an empty window. Tail is clamped into [1, Cap].
func New[T event.Stamped](b Bounds) *Window[T] {
	if b.Cap < 1 {
		b.Cap = 1
	}
	if b.Tail < 1 || b.Tail > b.Cap {
		b.Tail = b.Cap
	}
	return &Window[T]{buf: make([]T, 0, b.Cap), bounds: b}
}

// Append adds v at the end, evicting the oldest entries when bounds require.
func (w *Window[T]) Append(v T) {
	w.buf = append(w.buf, v)
	n := len(w.buf) - w.start
	if !w.saturated && n > w.bounds.Cap {
		w.saturated = true
	}
	if w.saturated && n > w.bounds.Tail {
		w.start = len(w.buf) - w.bounds.Tail
	}
	if len(w.buf) >= w.bounds.Cap && w.start > 0 {
		w.compact()
	}
}

func (w *Window[T]) compact() {
	live := copy(w.buf, w.buf[w.start:])
	var zero T
	for i := live; i < len(w.buf); i++ {
		w.buf[i] = zero
	}
	w.buf = w.buf[:live]
	w.start = 0
}

// Len is the number of live entries.
func (w *Window[T]) Len() int { return len(w.buf) - w.start }

// Bounds reports the window's configured bounds.
func (w *Window[T]) Bounds() Bounds { return w.bounds }

// Snapshot returns a copy of the live entries, oldest first.
func (w *Window[T]) Snapshot() []T {
	out := make([]T, w.Len())
	copy(out, w.buf[w.start:])
	return out
}

// Last returns a copy of the newest n entries, oldest first.
func (w *Window[T]) Last(n int) []T {
	live := w.buf[w.start:]
	if n < 0 {
		n = 0
	}
	if n > len(live) {
		n = len(live)
	}
	out := make([]T, n)
	copy(out, live[len(live)-n:])
	return out
}

// PruneOlderThan drops every entry stamped before cutoff (unix ms) and
// returns how many were removed. Order of survivors is preserved.
func (w *Window[T]) PruneOlderThan(cutoff int64) int {
	kept := w.buf[:0]
	removed := 0
	for _, v := range w.buf[w.start:] {
		if v.Stamp() < cutoff {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	var zero T
	for i := len(kept); i < len(w.buf); i++ {
		w.buf[i] = zero
	}
	w.buf = kept
	w.start = 0
	return removed
}
