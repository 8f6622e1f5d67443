package ledger

import (
	"sort"
	"sync"
	"time"
)

// Record is the occurrence log of one request key.
type Record struct {
	Key   string
	Times []time.Time
}

// RequestLedger records the times at which each key was requested. Keys are
// remembered in the order they were first seen, which breaks ties in the
// rankings. It is safe for concurrent use.
type RequestLedger struct {
	index   map[string]int
	records []Record
	lock    sync.RWMutex
}

// NewRequestLedger creates an empty RequestLedger.
func NewRequestLedger() *RequestLedger {
	return &RequestLedger{
		index: make(map[string]int),
	}
}

// Record appends t to the occurrence log of key, creating the log if key has
// not been seen before.
func (l *RequestLedger) Record(key string, t time.Time) {
	l.lock.Lock()
	defer l.lock.Unlock()

	i, ok := l.index[key]
	if !ok {
		l.index[key] = len(l.records)
		l.records = append(l.records, Record{
			Key:   key,
			Times: []time.Time{t},
		})
		return
	}
	l.records[i].Times = append(l.records[i].Times, t)
}

// Len returns the number of distinct keys.
func (l *RequestLedger) Len() int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return len(l.records)
}

// Zeitgeist returns up to limit keys ordered by total number of requests,
// most requested first. Keys with equal counts are ordered by when they were
// first seen.
func (l *RequestLedger) Zeitgeist(limit int) []string {
	counts := l.counts(func(ts []time.Time) int { return len(ts) })
	return rank(counts, limit)
}

// Trending returns up to maxItems keys ordered by number of requests in the
// window [now-window, now], most requested first. Keys with no requests in the
// window are left out. Ties are ordered by when the key was first seen.
func (l *RequestLedger) Trending(now time.Time, window time.Duration, maxItems int) []string {
	from := now.Add(-window)
	counts := l.counts(func(ts []time.Time) int {
		var n int
		for _, t := range ts {
			if !t.Before(from) && !t.After(now) {
				n++
			}
		}
		return n
	})
	return rank(counts, maxItems)
}

// Snapshot returns a deep copy of all records in first-seen order.
func (l *RequestLedger) Snapshot() []Record {
	l.lock.RLock()
	defer l.lock.RUnlock()

	out := make([]Record, len(l.records))
	for i, r := range l.records {
		out[i] = Record{
			Key:   r.Key,
			Times: append([]time.Time(nil), r.Times...),
		}
	}
	return out
}

// Restore replaces the contents of the ledger with records. Records with an
// empty log are skipped, and records with a repeated key are merged into the
// first.
func (l *RequestLedger) Restore(records []Record) {
	index := make(map[string]int, len(records))
	restored := make([]Record, 0, len(records))
	for _, r := range records {
		if len(r.Times) == 0 {
			continue
		}
		times := append([]time.Time(nil), r.Times...)
		if i, ok := index[r.Key]; ok {
			restored[i].Times = append(restored[i].Times, times...)
			continue
		}
		index[r.Key] = len(restored)
		restored = append(restored, Record{Key: r.Key, Times: times})
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	l.index = index
	l.records = restored
}

type keyCount struct {
	key   string
	count int
}

// counts applies count to a consistent snapshot of every record. The lock is
// held only while the logs are copied.
func (l *RequestLedger) counts(count func([]time.Time) int) []keyCount {
	snap := l.Snapshot()
	out := make([]keyCount, 0, len(snap))
	for _, r := range snap {
		if n := count(r.Times); n != 0 {
			out = append(out, keyCount{key: r.Key, count: n})
		}
	}
	return out
}

// rank stably sorts counts by descending count and returns at most limit
// keys.
func rank(counts []keyCount, limit int) []string {
	if limit <= 0 || len(counts) == 0 {
		return []string{}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].count > counts[j].count
	})
	if len(counts) > limit {
		counts = counts[:limit]
	}
	keys := make([]string, len(counts))
	for i := range counts {
		keys[i] = counts[i].key
	}
	return keys
}
