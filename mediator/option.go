package mediator

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/votqanh/go-wikimediator/metrics"
	"github.com/votqanh/go-wikimediator/pathfind"
	"github.com/votqanh/go-wikimediator/tbcache"
)

// DefaultFetchTimeout is how long a page fetch may take.
const DefaultFetchTimeout = 30 * time.Second

type config struct {
	capacity     int
	clock        clock.Clock
	fetchTimeout time.Duration
	finderOpts   []pathfind.Option
	metrics      *metrics.Metrics
	ttl          time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		capacity:     tbcache.DefaultCapacity,
		clock:        clock.New(),
		fetchTimeout: DefaultFetchTimeout,
		ttl:          tbcache.DefaultTTL,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %w", i, err)
		}
	}
	return cfg, nil
}

// WithCapacity sets the maximum number of pages kept in the page cache.
func WithCapacity(capacity int) Option {
	return func(c *config) error {
		c.capacity = capacity
		return nil
	}
}

// WithTTL sets how long a cached page lives after it was last used.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) error {
		c.ttl = ttl
		return nil
	}
}

// WithClock sets the time source used for the cache, the request logs and
// path search timeouts.
func WithClock(clk clock.Clock) Option {
	return func(c *config) error {
		if clk != nil {
			c.clock = clk
		}
		return nil
	}
}

// WithFetchTimeout sets how long a page fetch from the content source may
// take. Callers waiting on the same title share one fetch, and a caller whose
// context ends stops waiting without canceling it.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: fetch timeout must be positive, got %s", tbcache.ErrInvalidArgument, timeout)
		}
		c.fetchTimeout = timeout
		return nil
	}
}

// WithMetrics sets the metrics that operations are recorded to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) error {
		c.metrics = m
		return nil
	}
}

// WithFinderOptions sets additional options for the path finder. They are
// applied after the defaults, so WithReverse(nil) turns off the inbound link
// shortcut.
func WithFinderOptions(opts ...pathfind.Option) Option {
	return func(c *config) error {
		c.finderOpts = append(c.finderOpts, opts...)
		return nil
	}
}
