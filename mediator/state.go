package mediator

import (
	"time"

	"github.com/votqanh/go-wikimediator/ledger"
	"github.com/votqanh/go-wikimediator/model"
	"github.com/votqanh/go-wikimediator/tbcache"
)

// State is the part of a Mediator that survives a restart.
type State struct {
	Capacity int
	TTL      time.Duration
	Entries  []tbcache.Entry[model.Page]
	Requests []ledger.Record
	Load     []time.Time
}

// State returns a copy of the cache configuration and contents, the request
// ledger and the load log.
func (m *Mediator) State() State {
	return State{
		Capacity: m.cache.Capacity(),
		TTL:      m.cache.TTL(),
		Entries:  m.cache.Entries(),
		Requests: m.requests.Snapshot(),
		Load:     m.load.Snapshot(),
	}
}

// LoadState replaces the state of the Mediator with st. A zero capacity or
// ttl keeps the current setting. Cache entries that expired while the state
// was stored are dropped.
func (m *Mediator) LoadState(st State) error {
	capacity := st.Capacity
	if capacity == 0 {
		capacity = m.cache.Capacity()
	}
	ttl := st.TTL
	if ttl == 0 {
		ttl = m.cache.TTL()
	}
	if err := m.cache.Reset(capacity, ttl, st.Entries); err != nil {
		return err
	}
	m.requests.Restore(st.Requests)
	m.load.Restore(st.Load)

	log.Infow("Loaded state", "cached", len(st.Entries), "keys", len(st.Requests), "requests", len(st.Load))
	return nil
}
