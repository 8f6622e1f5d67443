// Package statestore saves and restores mediator state in a datastore.
//
// All state lives under the /wikimediator key:
//
//	/wikimediator/cache/config       cache capacity, ttl and entry count
//	/wikimediator/cache/entries/<n>  one cached page per key
//	/wikimediator/ledger/<n>         one request key and its times per key
//	/wikimediator/load               times of all requests
//
// Values are JSON encoded. The sequence numbers <n> preserve the order of
// cache entries and of the request ledger.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"github.com/votqanh/go-wikimediator/ledger"
	"github.com/votqanh/go-wikimediator/mediator"
	"github.com/votqanh/go-wikimediator/model"
	"github.com/votqanh/go-wikimediator/tbcache"
)

var log = logging.Logger("statestore")

var (
	rootKey    = datastore.NewKey("/wikimediator")
	configKey  = rootKey.ChildString("cache").ChildString("config")
	entriesKey = rootKey.ChildString("cache").ChildString("entries")
	ledgerKey  = rootKey.ChildString("ledger")
	loadKey    = rootKey.ChildString("load")
)

type cacheConfig struct {
	Capacity int
	TTL      time.Duration
	Count    int
}

type cacheEntry struct {
	Seq         int
	Title       string
	Text        string
	InsertedAt  time.Time
	RefreshedAt time.Time
	Refreshed   bool
}

type ledgerRecord struct {
	Seq   int
	Key   string
	Times []time.Time
}

// Save replaces any previously saved state in ds with st. All writes are done
// in one batch.
func Save(ctx context.Context, ds datastore.Batching, st mediator.State) error {
	batch, err := ds.Batch(ctx)
	if err != nil {
		return fmt.Errorf("cannot create batch: %w", err)
	}

	// Remove keys left over from a larger previous state.
	results, err := ds.Query(ctx, query.Query{
		Prefix:   rootKey.String(),
		KeysOnly: true,
	})
	if err != nil {
		return fmt.Errorf("cannot query saved state: %w", err)
	}
	old, err := results.Rest()
	results.Close()
	if err != nil {
		return fmt.Errorf("cannot read saved state: %w", err)
	}
	for _, r := range old {
		if err = batch.Delete(ctx, datastore.NewKey(r.Key)); err != nil {
			return err
		}
	}

	var errs error
	put := func(key datastore.Key, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("cannot encode %s: %w", key, err))
			return
		}
		if err = batch.Put(ctx, key, data); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("cannot write %s: %w", key, err))
		}
	}

	put(configKey, cacheConfig{
		Capacity: st.Capacity,
		TTL:      st.TTL,
		Count:    len(st.Entries),
	})
	for i, e := range st.Entries {
		put(seqKey(entriesKey, i), cacheEntry{
			Seq:         i,
			Title:       e.Value.Title,
			Text:        e.Value.Text,
			InsertedAt:  e.InsertedAt,
			RefreshedAt: e.RefreshedAt,
			Refreshed:   e.Refreshed,
		})
	}
	for i, r := range st.Requests {
		put(seqKey(ledgerKey, i), ledgerRecord{
			Seq:   i,
			Key:   r.Key,
			Times: r.Times,
		})
	}
	put(loadKey, st.Load)

	if errs != nil {
		return errs
	}
	if err = batch.Commit(ctx); err != nil {
		return fmt.Errorf("cannot commit state: %w", err)
	}
	log.Infow("Saved state", "cached", len(st.Entries), "keys", len(st.Requests), "requests", len(st.Load))
	return nil
}

// Load reads the state saved by Save. It returns false if no state was saved.
// Entries that cannot be decoded are skipped and reported together in the
// returned error, along with the state that could be read.
func Load(ctx context.Context, ds datastore.Datastore) (mediator.State, bool, error) {
	var st mediator.State

	data, err := ds.Get(ctx, configKey)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return st, false, nil
		}
		return st, false, fmt.Errorf("cannot read cache config: %w", err)
	}
	var cfg cacheConfig
	if err = json.Unmarshal(data, &cfg); err != nil {
		return st, false, fmt.Errorf("cannot decode cache config: %w", err)
	}
	st.Capacity = cfg.Capacity
	st.TTL = cfg.TTL

	var errs error

	var entries []cacheEntry
	err = queryPrefix(ctx, ds, entriesKey, func(key string, value []byte) {
		var e cacheEntry
		if err := json.Unmarshal(value, &e); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("cannot decode %s: %w", key, err))
			return
		}
		entries = append(entries, e)
	})
	if err != nil {
		return st, false, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	if len(entries) != cfg.Count {
		log.Warnw("Cache entry count does not match saved count", "found", len(entries), "saved", cfg.Count)
	}
	st.Entries = make([]tbcache.Entry[model.Page], len(entries))
	for i, e := range entries {
		st.Entries[i] = tbcache.Entry[model.Page]{
			Value:       model.Page{Title: e.Title, Text: e.Text},
			InsertedAt:  e.InsertedAt,
			RefreshedAt: e.RefreshedAt,
			Refreshed:   e.Refreshed,
		}
	}

	var records []ledgerRecord
	err = queryPrefix(ctx, ds, ledgerKey, func(key string, value []byte) {
		var r ledgerRecord
		if err := json.Unmarshal(value, &r); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("cannot decode %s: %w", key, err))
			return
		}
		records = append(records, r)
	})
	if err != nil {
		return st, false, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	st.Requests = make([]ledger.Record, len(records))
	for i, r := range records {
		st.Requests[i] = ledger.Record{Key: r.Key, Times: r.Times}
	}

	data, err = ds.Get(ctx, loadKey)
	switch {
	case err == nil:
		if err = json.Unmarshal(data, &st.Load); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("cannot decode %s: %w", loadKey, err))
		}
	case !errors.Is(err, datastore.ErrNotFound):
		return st, false, fmt.Errorf("cannot read load log: %w", err)
	}

	return st, true, errs
}

func queryPrefix(ctx context.Context, ds datastore.Datastore, prefix datastore.Key, f func(key string, value []byte)) error {
	results, err := ds.Query(ctx, query.Query{Prefix: prefix.String()})
	if err != nil {
		return fmt.Errorf("cannot query %s: %w", prefix, err)
	}
	defer results.Close()

	for r := range results.Next() {
		if r.Error != nil {
			return fmt.Errorf("cannot read %s: %w", prefix, r.Error)
		}
		f(r.Key, r.Value)
	}
	return nil
}

func seqKey(parent datastore.Key, i int) datastore.Key {
	return parent.ChildString(fmt.Sprintf("%08d", i))
}
