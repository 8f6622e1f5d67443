package tbcache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	// ErrNotFound is returned by Get when there is no live entry for an id.
	ErrNotFound = errors.New("not found in cache")
	// ErrInvalidArgument is returned for a non-positive capacity or ttl.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Identifiable is implemented by values that can be stored in a Cache. ID must
// return the same value for the lifetime of the value.
type Identifiable interface {
	ID() string
}

// Entry is a cached value together with its bookkeeping times.
type Entry[T Identifiable] struct {
	Value T
	// InsertedAt is when the value was put into the cache.
	InsertedAt time.Time
	// RefreshedAt is the time of the last refresh, or InsertedAt if the entry
	// was never refreshed. Expiry is measured from this time.
	RefreshedAt time.Time
	// Refreshed is true once the entry was read, touched or updated after
	// insertion. Only refreshed entries are eligible for eviction.
	Refreshed bool
}

// Cache is a capacity and time-to-live bounded cache. It is safe for
// concurrent use.
type Cache[T Identifiable] struct {
	capacity int
	clock    clock.Clock
	entries  map[string]*Entry[T]
	lock     sync.Mutex
	ttl      time.Duration
}

// New creates a new Cache.
func New[T Identifiable](options ...Option) (*Cache[T], error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	return &Cache[T]{
		capacity: opts.capacity,
		clock:    opts.clock,
		entries:  make(map[string]*Entry[T], opts.capacity),
		ttl:      opts.ttl,
	}, nil
}

// Put adds v to the cache. It returns false if an entry with the same id is
// already cached, or if the cache is full and no entry can be evicted.
func (c *Cache[T]) Put(v T) bool {
	id := v.ID()

	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.clock.Now()
	c.purge(now)

	if _, ok := c.entries[id]; ok {
		return false
	}
	if len(c.entries) >= c.capacity && !c.evict() {
		return false
	}
	c.entries[id] = &Entry[T]{
		Value:       v,
		InsertedAt:  now,
		RefreshedAt: now,
	}
	return true
}

// Get returns the value cached for id and refreshes its entry. If there is no
// live entry, ErrNotFound is returned.
func (c *Cache[T]) Get(id string) (T, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	e := c.refresh(id)
	if e == nil {
		var zero T
		return zero, ErrNotFound
	}
	return e.Value, nil
}

// Touch refreshes the entry for id without returning its value. It returns
// false if there is no live entry.
func (c *Cache[T]) Touch(id string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.refresh(id) != nil
}

// Update replaces the cached value that has the same id as v, and refreshes
// its entry. It returns false if there is no live entry.
func (c *Cache[T]) Update(v T) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	e := c.refresh(v.ID())
	if e == nil {
		return false
	}
	e.Value = v
	return true
}

// Remove deletes the entry for id. It returns false if there is no live
// entry.
func (c *Cache[T]) Remove(id string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.purge(c.clock.Now())
	if _, ok := c.entries[id]; !ok {
		return false
	}
	delete(c.entries, id)
	return true
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.purge(c.clock.Now())
	return len(c.entries)
}

// Capacity returns the maximum number of entries.
func (c *Cache[T]) Capacity() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.capacity
}

// TTL returns the time an entry may go without a refresh.
func (c *Cache[T]) TTL() time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ttl
}

// Entries returns a copy of all live entries, ordered by insertion time.
func (c *Cache[T]) Entries() []Entry[T] {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.purge(c.clock.Now())
	out := make([]Entry[T], 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sortEntries(out)
	return out
}

// Reset replaces the configuration and contents of the cache. Stale entries
// are dropped first. The rest are added in order of insertion time until the
// cache is full; entries with a duplicate id are dropped.
func (c *Cache[T]) Reset(capacity int, ttl time.Duration, entries []Entry[T]) error {
	if capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, capacity)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidArgument, ttl)
	}

	sorted := make([]Entry[T], len(entries))
	copy(sorted, entries)
	sortEntries(sorted)

	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.clock.Now()
	m := make(map[string]*Entry[T], capacity)
	for i := range sorted {
		if len(m) == capacity {
			break
		}
		e := sorted[i]
		if e.RefreshedAt.Before(e.InsertedAt) {
			e.RefreshedAt = e.InsertedAt
		}
		if now.Sub(e.RefreshedAt) > ttl {
			continue
		}
		id := e.Value.ID()
		if _, ok := m[id]; ok {
			continue
		}
		m[id] = &e
	}

	c.capacity = capacity
	c.ttl = ttl
	c.entries = m
	return nil
}

// refresh purges stale entries and then marks the entry for id as refreshed.
// Must be called with the lock held.
func (c *Cache[T]) refresh(id string) *Entry[T] {
	now := c.clock.Now()
	c.purge(now)

	e, ok := c.entries[id]
	if !ok {
		return nil
	}
	e.RefreshedAt = now
	e.Refreshed = true
	return e
}

// purge removes every entry that has gone longer than ttl without a refresh.
// Must be called with the lock held.
func (c *Cache[T]) purge(now time.Time) {
	for id, e := range c.entries {
		if now.Sub(e.RefreshedAt) > c.ttl {
			delete(c.entries, id)
		}
	}
}

// evict removes the refreshed entry with the oldest refresh time. Ties go to
// the smaller id. Returns false if no entry has been refreshed. Must be called
// with the lock held.
func (c *Cache[T]) evict() bool {
	var victim string
	var oldest *Entry[T]
	for id, e := range c.entries {
		if !e.Refreshed {
			continue
		}
		if oldest == nil || e.RefreshedAt.Before(oldest.RefreshedAt) ||
			(e.RefreshedAt.Equal(oldest.RefreshedAt) && id < victim) {
			victim = id
			oldest = e
		}
	}
	if oldest == nil {
		return false
	}
	delete(c.entries, victim)
	return true
}

func sortEntries[T Identifiable](entries []Entry[T]) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].InsertedAt.Equal(entries[j].InsertedAt) {
			return entries[i].InsertedAt.Before(entries[j].InsertedAt)
		}
		return entries[i].Value.ID() < entries[j].Value.ID()
	})
}
