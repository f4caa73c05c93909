package queue

import (
	"time"

	"golang.org/x/time/rate"
)

// slidingWindow admits at most max jobs in any span-long interval. It keeps
// the admission times of the current window; callers hold q.mu.
type slidingWindow struct {
	max      int
	span     time.Duration
	admitted []time.Time

	// rejections throttles the rejection warning.
	rejections rate.Sometimes
}

func newSlidingWindow(rl *RateLimit) *slidingWindow {
	if rl == nil || rl.Max <= 0 || rl.Window <= 0 {
		return nil
	}
	return &slidingWindow{
		max:        rl.Max,
		span:       rl.Window,
		rejections: rate.Sometimes{First: 1, Interval: rl.Window},
	}
}

// prune drops admissions older than one span.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	n := 0
	for n < len(w.admitted) && !w.admitted[n].After(cutoff) {
		n++
	}
	w.admitted = w.admitted[n:]
}

// full reports whether another admission at now would exceed the limit.
func (w *slidingWindow) full(now time.Time) bool {
	w.prune(now)
	return len(w.admitted) >= w.max
}

func (w *slidingWindow) admit(now time.Time) {
	w.admitted = append(w.admitted, now)
}

func (w *slidingWindow) remaining(now time.Time) int {
	w.prune(now)
	return max(w.max-len(w.admitted), 0)
}
