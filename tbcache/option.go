package tbcache

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultCapacity is the number of entries a cache holds by default.
	DefaultCapacity = 32
	// DefaultTTL is the default time an entry may go without a refresh.
	DefaultTTL = time.Hour
)

type config struct {
	capacity int
	clock    clock.Clock
	ttl      time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		capacity: DefaultCapacity,
		clock:    clock.New(),
		ttl:      DefaultTTL,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %w", i, err)
		}
	}
	return cfg, nil
}

// WithCapacity sets the maximum number of entries in the cache.
//
// Default is 32.
func WithCapacity(capacity int) Option {
	return func(cfg *config) error {
		if capacity <= 0 {
			return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, capacity)
		}
		cfg.capacity = capacity
		return nil
	}
}

// WithTTL sets the time an entry may remain in the cache without being
// refreshed.
//
// Default is 1 hour.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidArgument, ttl)
		}
		cfg.ttl = ttl
		return nil
	}
}

// WithClock sets the time source used for insertion and refresh times.
func WithClock(clk clock.Clock) Option {
	return func(cfg *config) error {
		if clk != nil {
			cfg.clock = clk
		}
		return nil
	}
}
