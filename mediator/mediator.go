// Package mediator sits between callers and a content source. It caches page
// texts, keeps request statistics, and searches for paths between pages.
//
// Every operation appends its start time to the load log before doing
// anything else, including checking its arguments. Analytics operations
// therefore count toward the load they report. Search and GetPage also log
// their query or title to the request ledger that Zeitgeist and Trending rank.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	"github.com/votqanh/go-wikimediator/apierror"
	"github.com/votqanh/go-wikimediator/ledger"
	"github.com/votqanh/go-wikimediator/metrics"
	"github.com/votqanh/go-wikimediator/model"
	"github.com/votqanh/go-wikimediator/pathfind"
	"github.com/votqanh/go-wikimediator/tbcache"
	"github.com/votqanh/go-wikimediator/wikisource"
	"golang.org/x/sync/singleflight"
)

var log = logging.Logger("mediator")

// ErrInvalidArgument is returned, wrapped in a 400 apierror, when an
// operation is called with a limit, window or timeout it does not accept.
var ErrInvalidArgument = tbcache.ErrInvalidArgument

// Operation names used in logs and metrics.
const (
	OpSearch           = "search"
	OpGetPage          = "getPage"
	OpZeitgeist        = "zeitgeist"
	OpTrending         = "trending"
	OpWindowedPeakLoad = "windowedPeakLoad"
	OpShortestPath     = "shortestPath"
)

// Mediator is safe for concurrent use.
type Mediator struct {
	cache        *tbcache.Cache[model.Page]
	clock        clock.Clock
	fetches      singleflight.Group
	fetchTimeout time.Duration
	finder       *pathfind.Finder
	load         *ledger.LoadTracker
	metrics      *metrics.Metrics
	requests     *ledger.RequestLedger
	src          wikisource.ContentSource
}

// New creates a Mediator for src.
func New(src wikisource.ContentSource, options ...Option) (*Mediator, error) {
	if src == nil {
		return nil, errors.New("nil content source")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	cache, err := tbcache.New[model.Page](
		tbcache.WithCapacity(opts.capacity),
		tbcache.WithTTL(opts.ttl),
		tbcache.WithClock(opts.clock))
	if err != nil {
		return nil, fmt.Errorf("cannot create page cache: %w", err)
	}

	finderOpts := append([]pathfind.Option{
		pathfind.WithReverse(wikisource.Reverse(src)),
		pathfind.WithClock(opts.clock),
	}, opts.finderOpts...)
	finder, err := pathfind.New(wikisource.Expand(src), finderOpts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create path finder: %w", err)
	}

	return &Mediator{
		cache:        cache,
		clock:        opts.clock,
		fetchTimeout: opts.fetchTimeout,
		finder:       finder,
		load:         ledger.NewLoadTracker(),
		metrics:      opts.metrics,
		requests:     ledger.NewRequestLedger(),
		src:          src,
	}, nil
}

// Search returns up to limit page titles matching query.
func (m *Mediator) Search(ctx context.Context, query string, limit int) (titles []string, err error) {
	now := m.begin()
	defer m.end(OpSearch, now, &err)

	m.requests.Record(query, now)
	if limit <= 0 {
		return nil, invalidArgument("limit must be positive, got %d", limit)
	}
	return m.src.Search(ctx, query, limit)
}

// GetPage returns the text of the page with the given title, or an empty
// string if there is no such page. Texts are served from the cache when
// present. Otherwise the text is fetched from the content source and cached
// if it is not empty. Concurrent lookups of the same missing title share one
// fetch.
func (m *Mediator) GetPage(ctx context.Context, title string) (text string, err error) {
	now := m.begin()
	defer m.end(OpGetPage, now, &err)

	m.requests.Record(title, now)
	page, err := m.cache.Get(title)
	if err == nil {
		m.metrics.RecordCache(true)
		return page.Text, nil
	}
	m.metrics.RecordCache(false)

	if err = ctx.Err(); err != nil {
		return "", fmt.Errorf("cannot get page %q: %w", title, err)
	}
	// The fetch is shared, so it runs under its own deadline and each caller
	// waits only as long as its own context allows.
	fetchCtx := context.WithoutCancel(ctx)
	resCh := m.fetches.DoChan(title, func() (any, error) {
		fctx, cancel := m.clock.WithTimeout(fetchCtx, m.fetchTimeout)
		defer cancel()
		text, err := m.src.Text(fctx, title)
		if err != nil {
			return "", err
		}
		if text != "" && !m.cache.Put(model.Page{Title: title, Text: text}) {
			log.Debugw("Page not cached", "title", title)
		}
		return text, nil
	})

	select {
	case res := <-resCh:
		if res.Err != nil {
			return "", fmt.Errorf("cannot get page %q: %w", title, res.Err)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("cannot get page %q: %w", title, ctx.Err())
	}
}

// Zeitgeist returns up to limit of the most requested queries and titles of
// all time, most requested first.
func (m *Mediator) Zeitgeist(limit int) (keys []string, err error) {
	now := m.begin()
	defer m.end(OpZeitgeist, now, &err)

	if limit <= 0 {
		return nil, invalidArgument("limit must be positive, got %d", limit)
	}
	return m.requests.Zeitgeist(limit), nil
}

// Trending returns up to maxItems of the most requested queries and titles
// within the last window, most requested first.
func (m *Mediator) Trending(window time.Duration, maxItems int) (keys []string, err error) {
	now := m.begin()
	defer m.end(OpTrending, now, &err)

	if window < 0 {
		return nil, invalidArgument("window cannot be negative, got %s", window)
	}
	if maxItems <= 0 {
		return nil, invalidArgument("max items must be positive, got %d", maxItems)
	}
	return m.requests.Trending(now, window, maxItems), nil
}

// WindowedPeakLoad returns the largest number of operations started within
// any interval of length window.
func (m *Mediator) WindowedPeakLoad(window time.Duration) (peak int, err error) {
	now := m.begin()
	defer m.end(OpWindowedPeakLoad, now, &err)

	if window <= 0 {
		return 0, invalidArgument("window must be positive, got %s", window)
	}
	return m.load.WindowedPeakLoad(window), nil
}

// PeakLoad is WindowedPeakLoad with the default window.
func (m *Mediator) PeakLoad() int {
	now := m.begin()
	defer m.end(OpWindowedPeakLoad, now, nil)

	return m.load.WindowedPeakLoad(ledger.DefaultWindow)
}

// ShortestPath returns the shortest path of links from page a to page b. If
// no path is found within timeout, an error wrapping pathfind.ErrTimeout is
// returned. This is also the result when b cannot be reached at all.
func (m *Mediator) ShortestPath(ctx context.Context, a, b string, timeout time.Duration) (path []string, err error) {
	now := m.begin()
	defer m.end(OpShortestPath, now, &err)

	if timeout <= 0 {
		return nil, invalidArgument("timeout must be positive, got %s", timeout)
	}

	path, err = m.finder.FindPath(ctx, a, b, timeout)
	switch {
	case err == nil:
		m.metrics.RecordPathSearch("found", m.clock.Since(now))
	case errors.Is(err, pathfind.ErrTimeout):
		m.metrics.RecordPathSearch("timeout", m.clock.Since(now))
		return nil, apierror.Timeout(err)
	default:
		m.metrics.RecordPathSearch("error", m.clock.Since(now))
		return nil, err
	}
	return path, nil
}

// begin records the start of an operation in the load log.
func (m *Mediator) begin() time.Time {
	now := m.clock.Now()
	m.load.Record(now)
	return now
}

func (m *Mediator) end(op string, start time.Time, errp *error) {
	status := "success"
	if errp != nil && *errp != nil {
		status = "failed"
		log.Debugw("Operation failed", "op", op, "err", *errp)
	}
	m.metrics.RecordRequest(op, status, m.clock.Since(start))
}

func invalidArgument(format string, args ...any) error {
	return apierror.BadRequest(fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...))
}
