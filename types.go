package amee

import (
	"net/http"
	"net/url"
	"time"
)

// Request describes a single API call: everything needed to build the wire
// request and, for cacheable calls, to derive a stable cache key.
type Request struct {
	// Method is the HTTP method. Defaults to GET if empty.
	Method string

	// Path is either an absolute http(s) URL or a path starting with "/"
	// that is resolved against the client's server URL.
	Path string

	// Query parameters appended to the URL.
	Query url.Values

	// Form parameters sent urlencoded in the request body. Ignored when
	// Body is set.
	Form url.Values

	// Body is a raw request body for callers that need full control, such
	// as the JSON batch endpoint. ContentType must be set alongside it.
	Body        []byte
	ContentType string

	// Header holds extra request headers merged over the defaults.
	Header http.Header
}

// Response is the decoded result of an API call.
type Response struct {
	StatusCode int
	Header     http.Header

	// Document is the JSON response body decoded into a generic mapping.
	// Nil when the body was empty.
	Document Document
}

// Location returns the Location header, set by the API on 201 Created.
func (r *Response) Location() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Location")
}

// CacheEntry is a cached response. The body is kept as raw JSON bytes and
// decoded on read, so entries survive serialization into external backends
// and a hit can never observe a partially decoded value.
type CacheEntry struct {
	StatusCode int         `json:"statusCode"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body"`
	ExpiresAt  time.Time   `json:"expiresAt"`
}

// Cache is the pluggable backend for response caching. Implementations may
// be in-process or external; a stale hit is acceptable for this domain and
// backends are free to evict at will.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

// CacheCondition determines whether a request's response may be cached.
type CacheCondition func(req *Request) bool

// Choices are drilldown selections, e.g. {"country": "United Kingdom"}.
type Choices map[string]string

// Values are profile item values, e.g. {"energyPerTime": "1000"}.
type Values map[string]string

// Option configures a Client.
type Option func(*Client)

// Logger receives debug output from the client. Any structured logger can be
// adapted; see NewSimpleLogger and NewHCLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DebugConfig selects which pipeline stages emit debug logs.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogCache     bool
	LogAuth      bool
	RequestIDGen func() string
}
