package wikisource

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultAPIURL is the Action API endpoint of the English Wikipedia.
	DefaultAPIURL = "https://en.wikipedia.org/w/api.php"

	defaultRetryMax     = 3
	defaultRetryWaitMin = time.Second
	defaultRetryWaitMax = 30 * time.Second
	defaultUserAgent    = "go-wikimediator/0.1"
)

type config struct {
	httpClient   *http.Client
	linkLimit    int
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	userAgent    string
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		httpClient:   http.DefaultClient,
		retryMax:     defaultRetryMax,
		retryWaitMin: defaultRetryWaitMin,
		retryWaitMax: defaultRetryWaitMax,
		userAgent:    defaultUserAgent,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %w", i, err)
		}
	}
	return cfg, nil
}

// WithClient sets the http client that requests are retried over.
func WithClient(c *http.Client) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.httpClient = c
		}
		return nil
	}
}

// WithRetry configures how failed requests are retried. A retryMax of 0
// disables retries.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(cfg *config) error {
		if retryMax < 0 {
			return fmt.Errorf("retry max cannot be negative: %d", retryMax)
		}
		if waitMin > waitMax {
			return fmt.Errorf("retry wait min %s is greater than max %s", waitMin, waitMax)
		}
		cfg.retryMax = retryMax
		cfg.retryWaitMin = waitMin
		cfg.retryWaitMax = waitMax
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(cfg *config) error {
		if ua != "" {
			cfg.userAgent = ua
		}
		return nil
	}
}

// WithLinkLimit sets the maximum number of links returned for one page. A
// value of 0 means no limit.
func WithLinkLimit(n int) Option {
	return func(cfg *config) error {
		if n < 0 {
			return fmt.Errorf("link limit cannot be negative: %d", n)
		}
		cfg.linkLimit = n
		return nil
	}
}
