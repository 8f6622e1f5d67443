// Package tbcache provides a cache that is bounded both by the number of
// entries it holds and by how long an entry may go without being refreshed.
//
// ## Refresh
//
// Every entry records when it was inserted and when it was last refreshed. A
// successful Get, Touch or Update refreshes an entry. An entry that has not
// been refreshed since insertion counts as refreshed at insertion for the
// purpose of expiry.
//
// ## Expiry
//
// An entry is stale once the time since its last refresh exceeds the cache
// time-to-live. Every operation first purges all stale entries, so no
// operation ever observes a stale entry.
//
// ## Eviction
//
// When a Put finds the cache full, the entry with the oldest refresh among
// entries that have been refreshed at least once after insertion is evicted.
// Entries that have never been refreshed are never evicted to make room; if
// every entry is unrefreshed the Put fails.
//
// ## Concurrency
//
// All operations are serialized by a single lock on the cache, so that an
// eviction decision always sees a consistent view of size and refresh times.
// No operation blocks on anything other than that lock.
package tbcache
