package provider

import (
	"net/http"
	"time"

	"github.com/okian/pitwall/pkg/logger"
)

// Option applies a configuration option to the Ergast client.
type Option func(*Ergast)

// WithBaseURL sets the API root, e.g. https://api.jolpi.ca/ergast/f1.
func WithBaseURL(u string) Option {
	return func(c *Ergast) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Ergast) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Ergast) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps request rate; burst is the number of requests allowed at once.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Ergast) {
		if perSecond > 0 {
			c.ratePerSec = perSecond
		}
		if burst > 0 {
			c.burst = burst
		}
	}
}

// WithCache enables the response cache with entries valid for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Ergast) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithBreakerThreshold sets how many consecutive failures open the circuit.
func WithBreakerThreshold(n uint32) Option {
	return func(c *Ergast) {
		if n > 0 {
			c.breakerThreshold = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Ergast) {
		if l != nil {
			c.logger = l
		}
	}
}
