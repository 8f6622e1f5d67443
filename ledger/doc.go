// Package ledger keeps append-only, time-stamped logs of requests.
//
// RequestLedger keeps one occurrence log per request key and ranks keys by
// how often they were requested, over all time (Zeitgeist) or within a
// trailing window (Trending). LoadTracker keeps a single log of all requests
// and reports the largest number of requests that fell within any window of
// a given length.
//
// Both types only expose append and snapshot operations. Queries copy the
// log under the lock and then compute on the copy, so that a query never sees
// a partially appended record and never holds up writers while it sorts.
package ledger
