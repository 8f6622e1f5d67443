package pathfind

import (
	"fmt"

	"github.com/benbjohnson/clock"
)

// DefaultMemoSize is the default number of expanded nodes remembered during a
// single search.
const DefaultMemoSize = 4096

type config struct {
	clock       clock.Clock
	maxBranches int
	maxDepth    int
	memoSize    int
	reverse     ExpandFunc
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		clock:    clock.New(),
		memoSize: DefaultMemoSize,
	}

	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %w", i, err)
		}
	}
	return cfg, nil
}

// WithReverse sets a function that lists the nodes linking to a node. When
// set, a path of length two is looked for among the inbound links of the
// target before a full search is started.
func WithReverse(reverse ExpandFunc) Option {
	return func(c *config) error {
		c.reverse = reverse
		return nil
	}
}

// WithMaxBranches limits the number of first-level branches searched in
// parallel. A value of 0 means no limit.
func WithMaxBranches(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("max branches cannot be negative: %d", n)
		}
		c.maxBranches = n
		return nil
	}
}

// WithMaxDepth limits the number of links in a path. A value of 0 means no
// limit.
func WithMaxDepth(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("max depth cannot be negative: %d", n)
		}
		c.maxDepth = n
		return nil
	}
}

// WithMemoSize sets the number of expanded nodes remembered during a search,
// so that branches reaching the same node do not expand it again.
func WithMemoSize(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return fmt.Errorf("memo size must be positive: %d", n)
		}
		c.memoSize = n
		return nil
	}
}

// WithClock sets the clock used to measure the search timeout.
func WithClock(clk clock.Clock) Option {
	return func(c *config) error {
		if clk != nil {
			c.clock = clk
		}
		return nil
	}
}
