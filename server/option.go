package server

import (
	"fmt"
	"time"

	"github.com/ipfs/go-datastore"
)

const (
	// DefaultMaxClients is the default number of connections served at once.
	DefaultMaxClients = 32
	// DefaultIdleTimeout is how long a connection may wait between requests.
	DefaultIdleTimeout = 5 * time.Minute
)

type config struct {
	ds          datastore.Batching
	idleTimeout time.Duration
	maxClients  int
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		idleTimeout: DefaultIdleTimeout,
		maxClients:  DefaultMaxClients,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %w", i, err)
		}
	}
	return cfg, nil
}

// WithMaxClients sets the number of connections served at once. Requests on
// connections beyond this number fail with "Client overflow".
func WithMaxClients(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return fmt.Errorf("max clients must be positive: %d", n)
		}
		c.maxClients = n
		return nil
	}
}

// WithDatastore sets the datastore that mediator state is loaded from when
// the server starts and saved to when a stop request is received.
func WithDatastore(ds datastore.Batching) Option {
	return func(c *config) error {
		c.ds = ds
		return nil
	}
}

// WithIdleTimeout sets how long a connection may wait for its next request
// before it is closed. A value of 0 means no limit.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return fmt.Errorf("idle timeout cannot be negative: %s", d)
		}
		c.idleTimeout = d
		return nil
	}
}
