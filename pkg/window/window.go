// Package window accumulates distinct plates over fixed-length time windows.
package window

import (
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/plate-logger/pkg/types"
)

// DefaultLength is the accumulation period of a window
const DefaultLength = 20 * time.Second

// Aggregator collects distinct plates seen since the last flush.
// It is not safe for concurrent use; the pipeline driver is its only writer.
type Aggregator struct {
	length time.Duration
	start  time.Time
	plates []string
	seen   map[string]struct{}
}

// New creates an Aggregator with the default window length starting at now
func New(now time.Time) *Aggregator {
	return NewWithLength(DefaultLength, now)
}

// NewWithLength creates an Aggregator with a custom window length
func NewWithLength(length time.Duration, now time.Time) *Aggregator {
	if length <= 0 {
		length = DefaultLength
	}
	a := &Aggregator{length: length}
	a.Reset(now)
	return a
}

// Reset discards accumulated plates and starts a new window at now
func (a *Aggregator) Reset(now time.Time) {
	a.start = now
	a.plates = nil
	a.seen = make(map[string]struct{})
}

// Observe records a plate in arrival order. Empty plates and repeats within
// the window are ignored; the result reports whether the plate was new.
func (a *Aggregator) Observe(plate string) bool {
	if plate == "" {
		return false
	}
	if _, ok := a.seen[plate]; ok {
		return false
	}
	a.seen[plate] = struct{}{}
	a.plates = append(a.plates, plate)
	return true
}

// ShouldFlush reports whether the window length has elapsed at now
func (a *Aggregator) ShouldFlush(now time.Time) bool {
	return now.Sub(a.start) >= a.length
}

// Flush closes the current window at now and starts the next one there.
// It is unconditional; callers check ShouldFlush first.
func (a *Aggregator) Flush(now time.Time) types.Window {
	end := now
	if end.Before(a.start) {
		end = a.start
	}
	w := types.Window{
		ID:     uuid.NewString(),
		Start:  a.start,
		End:    end,
		Plates: a.plates,
	}
	a.Reset(end)
	return w
}

// Start returns the start of the current window
func (a *Aggregator) Start() time.Time {
	return a.start
}

// Length returns the configured window length
func (a *Aggregator) Length() time.Duration {
	return a.length
}

// Len returns the number of distinct plates in the current window
func (a *Aggregator) Len() int {
	return len(a.plates)
}

// Contains reports whether plate was observed in the current window
func (a *Aggregator) Contains(plate string) bool {
	_, ok := a.seen[plate]
	return ok
}
