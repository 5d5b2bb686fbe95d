package mcphost

import (
	"slices"
	"sync"
)

// latencyWindow tracks the last N tool call latencies for percentile
// calculation, feeding [Host.recordAndUpdateTier] and [Host.Calibrate]'s
// budget-tier assignment for a single tool. It uses a ring buffer so that
// only the most recent [size] measurements are kept. All methods are safe
// for concurrent use.
type latencyWindow struct {
	mu      sync.Mutex
	samples []int64 // ring buffer of latency measurements in ms
	pos     int     // next write position
	count   int     // total samples written (may exceed len(samples))
	errors  int     // error count in current window
	size    int     // window capacity
}

// newLatencyWindow creates a new latency window with the given capacity.
// A size of 0 or negative defaults to 100.
func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 100
	}
	return &latencyWindow{
		samples: make([]int64, size),
		size:    size,
	}
}

// Record adds a latency measurement (in ms) to the window and increments the
// error counter when isError is true. The oldest measurement is overwritten
// once the buffer is full.
func (w *latencyWindow) Record(latencyMs int64, isError bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// If the slot we are about to overwrite already holds a value AND it was
	// an error, we would need to decrement errors — but we don't track which
	// slot was an error, so we maintain an approximation: errors count only
	// within the current window by resetting when the buffer wraps.
	if w.pos == 0 && w.count > 0 {
		w.errors = 0
	}
	w.samples[w.pos] = latencyMs
	w.pos = (w.pos + 1) % w.size
	w.count++

	if isError {
		w.errors++
		// Clamp errors to never exceed windowSize to avoid drift.
		if w.errors > w.size {
			w.errors = w.size
		}
	}
}

// windowLen returns the number of meaningful samples in the buffer (≤ size).
func (w *latencyWindow) windowLen() int {
	if w.count >= w.size {
		return w.size
	}
	return w.count
}

// sortedCopy returns a sorted copy of the current window samples.
func (w *latencyWindow) sortedCopy() []int64 {
	n := w.windowLen()
	if n == 0 {
		return nil
	}
	cp := make([]int64, n)
	// The ring buffer is laid out starting at pos (oldest) when full.
	if w.count >= w.size {
		// Full ring: oldest element is at pos.
		for i := 0; i < w.size; i++ {
			cp[i] = w.samples[(w.pos+i)%w.size]
		}
	} else {
		// Not yet full: valid data is indices 0 .. count-1.
		copy(cp, w.samples[:n])
	}
	slices.Sort(cp)
	return cp
}

// P50 returns the median (50th-percentile) latency in ms, the value
// [Host.AvailableTools] sorts by and [tierFromMeasuredP50] assigns a tier
// from. Returns 0 if no measurements have been recorded.
func (w *latencyWindow) P50() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	sorted := w.sortedCopy()
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)/2]
}

// P99 returns the 99th-percentile latency in ms.
// Returns 0 if no measurements have been recorded.
func (w *latencyWindow) P99() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	sorted := w.sortedCopy()
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * 0.99)
	return sorted[idx]
}

// ErrorRate returns the fraction of calls in the current window that resulted
// in an error (0.0–1.0), the signal [Host.recordAndUpdateTier] uses to demote
// a flaky tool to a higher budget tier. Returns 0 if no measurements have
// been recorded.
func (w *latencyWindow) ErrorRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.windowLen()
	if n == 0 {
		return 0
	}
	errInWindow := min(w.errors, n)
	return float64(errInWindow) / float64(n)
}

// Count returns the total number of invocations recorded (may exceed window
// capacity).
func (w *latencyWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
