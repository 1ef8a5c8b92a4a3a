package amee

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tomdyson/amee/internal/singleflight"
)

// DefaultServer is the AMEE endpoint used unless WithServer overrides it.
// An encrypted transport by default.
const DefaultServer = "https://stage.co2.dgen.net"

// errorBodyLimit bounds how much of an error response body is attached to a
// ClientError for diagnostics.
const errorBodyLimit = 2048

// Client is the AMEE API client. It owns the credentials and the session
// token, builds and issues HTTP requests, decodes JSON responses and
// optionally caches read requests. It is safe for concurrent use: token
// fetches are coalesced so concurrent first requests authenticate once.
type Client struct {
	httpClient *http.Client
	server     string
	username   string
	password   string

	mu         sync.RWMutex
	authToken  string
	authFlight *singleflight.Group

	cache          Cache
	cacheTTL       time.Duration
	cacheKeyFunc   func(*Request) string
	cacheCondition CacheCondition

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// New constructs a Client for the given credentials using the provided
// functional options. A best effort validation is performed; call
// IsValid / ValidationError for errors.
func New(username, password string, options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		server:         DefaultServer,
		username:       username,
		password:       password,
		authFlight:     singleflight.New(),
		cache:          nil,
		cacheTTL:       DefaultCacheTTL,
		cacheKeyFunc:   DefaultCacheKeyFunc,
		cacheCondition: DefaultCacheCondition,
		metrics:        nil,
		debug:          DefaultDebugConfig(),
		logger:         nil,
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get performs a GET request against path with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request with urlencoded form parameters.
func (c *Client) Post(ctx context.Context, path string, form url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Form: form})
}

// Delete performs a DELETE request against path. Never cached.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// Do executes a Request through the full pipeline: cache lookup for
// cacheable requests, authentication, the HTTP round trip with a single
// refresh-and-replay on an expired token, JSON decoding, and cache
// population. This is the escape hatch for endpoints not covered by the
// facades.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	endpoint := endpointLabel(req.Path)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", method, "path", req.Path, "endpoint", endpoint)
	}

	if c.metrics != nil {
		c.metrics.RecordRequestStart(method, endpoint)
	}

	cacheEnabled := c.cache != nil && c.cacheCondition(req)

	if cacheEnabled {
		cacheKey := c.cacheKeyFunc(req)
		if entry, found := c.cache.Get(cacheKey); found {
			if resp, err := responseFromEntry(entry); err == nil {
				if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
					c.logger.Debug("Cache hit", "requestID", requestID, "cacheKey", cacheKey)
				}
				if c.metrics != nil {
					c.metrics.RecordCacheHit(method, endpoint)
					c.metrics.RecordRequestEnd(method, endpoint)
					c.metrics.RecordRequest(method, endpoint, entry.StatusCode, time.Since(start))
				}
				return resp, nil
			}
			// Undecodable entry: drop it and fall through to the network.
			c.cache.Delete(cacheKey)
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(method, endpoint)
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Cache miss", "requestID", requestID, "cacheKey", cacheKey)
		}
	}

	resp, raw, err := c.roundTrip(ctx, req, method, requestID, start)

	if c.metrics != nil {
		c.metrics.RecordRequestEnd(method, endpoint)
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		c.metrics.RecordRequest(method, endpoint, statusCode, time.Since(start))
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordError(errorTypeOf(err), method, endpoint)
		}
		return nil, err
	}

	if cacheEnabled && resp.StatusCode < 400 {
		cacheKey := c.cacheKeyFunc(req)
		entry := &CacheEntry{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       raw,
		}
		c.cache.Set(cacheKey, entry, c.cacheTTL)
		if c.metrics != nil {
			if inMemoryCache, ok := c.cache.(*InMemoryCache); ok {
				c.metrics.RecordCacheSize("default", inMemoryCache.Len())
			}
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Response cached", "requestID", requestID, "cacheKey", cacheKey, "ttl", c.cacheTTL)
		}
	}

	return resp, nil
}

// roundTrip issues the HTTP call with the session token attached, refreshing
// the token and replaying once on 401. It returns the decoded response along
// with the raw body for cache population.
func (c *Client) roundTrip(ctx context.Context, req *Request, method, requestID string, start time.Time) (*Response, []byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, nil, err
	}

	status, header, body, err := c.send(ctx, req, method, token)
	if err != nil {
		return nil, nil, c.clientError(ErrorTypeNetwork, "network request failed", err, requestID, method, req.Path, 0, "", start)
	}

	if status == http.StatusUnauthorized {
		// The token must have expired: fetch a fresh one and replay once.
		if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
			c.logger.Info("Authentication token expired", "requestID", requestID)
		}
		if c.metrics != nil {
			c.metrics.RecordTokenRefresh()
		}
		token, err = c.refreshToken(ctx, token)
		if err != nil {
			return nil, nil, err
		}
		status, header, body, err = c.send(ctx, req, method, token)
		if err != nil {
			return nil, nil, c.clientError(ErrorTypeNetwork, "network request failed", err, requestID, method, req.Path, 0, "", start)
		}
		if status == http.StatusUnauthorized {
			return nil, nil, c.clientError(ErrorTypeAuth, "AMEE rejected fresh authentication token", ErrAuthFailed, requestID, method, req.Path, status, clip(body), start)
		}
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return nil, nil, c.clientError(ErrorTypeAPI, "unexpected status from AMEE", nil, requestID, method, req.Path, status, clip(body), start)
	}

	resp := &Response{
		StatusCode: status,
		Header:     header,
	}
	if len(body) > 0 {
		var doc Document
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, nil, c.clientError(ErrorTypeDecode, "response body is not valid JSON", err, requestID, method, req.Path, status, clip(body), start)
		}
		resp.Document = doc
	}

	return resp, body, nil
}

// send performs one bare HTTP exchange and drains the body.
func (c *Client) send(ctx context.Context, req *Request, method, token string) (int, http.Header, []byte, error) {
	httpReq, err := c.buildHTTPRequest(ctx, req, method, token)
	if err != nil {
		return 0, nil, nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, nil, nil, err
	}

	return httpResp.StatusCode, httpResp.Header, body, nil
}

func (c *Client) buildHTTPRequest(ctx context.Context, req *Request, method, token string) (*http.Request, error) {
	uri := req.Path
	if !isAbsoluteURL(uri) {
		uri = c.server + uri
	}
	if len(req.Query) > 0 {
		if strings.Contains(uri, "?") {
			uri += "&" + req.Query.Encode()
		} else {
			uri += "?" + req.Query.Encode()
		}
	}

	var bodyReader io.Reader
	contentType := ""
	switch {
	case req.Body != nil:
		bodyReader = bytes.NewReader(req.Body)
		contentType = req.ContentType
	case len(req.Form) > 0:
		bodyReader = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, uri, bodyReader)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Cache-Control", "max-age=0")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("authToken", token)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Set(key, value)
		}
	}

	return httpReq, nil
}

func (c *Client) clientError(errorType, message string, cause error, requestID, method, path string, status int, body string, start time.Time) *ClientError {
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     method,
		Path:       path,
		StatusCode: status,
		Body:       body,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// Server returns the base URL the client talks to.
func (c *Client) Server() string {
	return c.server
}

func responseFromEntry(entry *CacheEntry) (*Response, error) {
	resp := &Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Header,
	}
	if len(entry.Body) > 0 {
		var doc Document
		if err := json.Unmarshal(entry.Body, &doc); err != nil {
			return nil, err
		}
		resp.Document = doc
	}
	return resp, nil
}

func validatePath(path string) error {
	if isAbsoluteURL(path) {
		return nil
	}
	if !strings.HasPrefix(path, "/") {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "path '" + path + "' does not start with /",
		}
	}
	return nil
}

func isAbsoluteURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

func clip(body []byte) string {
	if len(body) > errorBodyLimit {
		return string(body[:errorBodyLimit])
	}
	return string(body)
}

func errorTypeOf(err error) string {
	if clientErr, ok := err.(*ClientError); ok {
		return clientErr.Type
	}
	return ErrorTypeNetwork
}

// endpointLabel reduces a request path to a metrics label: host+path for
// absolute URLs, the path itself otherwise, query stripped.
func endpointLabel(path string) string {
	if path == "" {
		return "/"
	}
	if isAbsoluteURL(path) {
		if u, err := url.Parse(path); err == nil {
			label := u.Host
			if u.Path != "" && u.Path != "/" {
				label += u.Path
			} else {
				label += "/"
			}
			return label
		}
	}
	if idx := strings.Index(path, "?"); idx != -1 {
		return path[:idx]
	}
	return path
}
