package amee

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WithServer points the client at a different AMEE server, e.g. the live
// endpoint rather than the staging default.
func WithServer(server string) Option {
	return func(c *Client) {
		c.server = strings.TrimSuffix(server, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithCache enables caching of read responses with the default in-memory
// backend.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewInMemoryCache()
		c.cacheTTL = ttl
	}
}

// WithCustomCache sets a custom cache backend, e.g. a MemcacheCache shared
// across processes.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithCacheTTL overrides the default TTL for cached responses.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithCacheKeyFunc sets a custom cache key function.
func WithCacheKeyFunc(fn func(*Request) string) Option {
	return func(c *Client) {
		c.cacheKeyFunc = fn
	}
}

// WithCacheCondition sets a custom cacheable-request predicate.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithSimpleLogger enables debug logging to stderr.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom request ID generator for debug
// tracing.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateCredentials()...)
	problems = append(problems, c.validateServer()...)
	problems = append(problems, c.validateCacheConfig()...)
	problems = append(problems, c.validateDebugConfig()...)
	problems = append(problems, c.validateHTTPClientConfig()...)

	if len(problems) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}

	return nil
}

func (c *Client) validateCredentials() []string {
	var problems []string

	if c.username == "" {
		problems = append(problems, "username must not be empty")
	}
	if c.password == "" {
		problems = append(problems, "password must not be empty")
	}

	return problems
}

func (c *Client) validateServer() []string {
	var problems []string

	if !isAbsoluteURL(c.server) {
		problems = append(problems, "server must be an absolute http(s) URL")
	}

	return problems
}

func (c *Client) validateCacheConfig() []string {
	var problems []string

	if c.cache != nil && c.cacheTTL <= 0 {
		problems = append(problems, "cacheTTL must be positive when cache is enabled")
	}
	if c.cache != nil && c.cacheKeyFunc == nil {
		problems = append(problems, "cacheKeyFunc must be set when cache is enabled")
	}
	if c.cache != nil && c.cacheCondition == nil {
		problems = append(problems, "cacheCondition must be set when cache is enabled")
	}

	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}

	return problems
}

func (c *Client) validateHTTPClientConfig() []string {
	var problems []string

	if c.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}

	return problems
}
