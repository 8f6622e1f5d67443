package ledger

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the window length used for peak load when none is given.
const DefaultWindow = 30 * time.Second

// LoadTracker records the time of every request. It is safe for concurrent
// use.
type LoadTracker struct {
	lock  sync.Mutex
	times []time.Time
}

// NewLoadTracker creates an empty LoadTracker.
func NewLoadTracker() *LoadTracker {
	return &LoadTracker{}
}

// Record appends t to the log.
func (lt *LoadTracker) Record(t time.Time) {
	lt.lock.Lock()
	lt.times = append(lt.times, t)
	lt.lock.Unlock()
}

// Len returns the number of recorded requests.
func (lt *LoadTracker) Len() int {
	lt.lock.Lock()
	defer lt.lock.Unlock()
	return len(lt.times)
}

// Snapshot returns a copy of the log in the order it was appended.
func (lt *LoadTracker) Snapshot() []time.Time {
	lt.lock.Lock()
	defer lt.lock.Unlock()
	return append([]time.Time(nil), lt.times...)
}

// Restore replaces the log with times.
func (lt *LoadTracker) Restore(times []time.Time) {
	restored := append([]time.Time(nil), times...)
	lt.lock.Lock()
	lt.times = restored
	lt.lock.Unlock()
}

// WindowedPeakLoad returns the largest number of requests in any window
// [t, t+window) that starts at a recorded request time t. It returns 0 when
// nothing has been recorded or window is not positive.
func (lt *LoadTracker) WindowedPeakLoad(window time.Duration) int {
	if window <= 0 {
		return 0
	}
	times := lt.Snapshot()
	// Concurrent appends are not guaranteed to land in time order.
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	var peak, end int
	for start := range times {
		limit := times[start].Add(window)
		if end < start {
			end = start
		}
		for end < len(times) && times[end].Before(limit) {
			end++
		}
		if n := end - start; n > peak {
			peak = n
		}
	}
	return peak
}
