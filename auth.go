package amee

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// authPath is the credential-exchange endpoint. AMEE returns the session
// token in the authToken response header.
const authPath = "/auth"

// Authenticate exchanges the credentials for a fresh session token,
// replacing any token currently held. Most callers never need this: the
// pipeline authenticates lazily on the first request and refreshes on 401.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.fetchToken(ctx)
	return err
}

// AuthToken returns the session token currently held, or "" before the
// first authenticated call.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// token returns the held session token, authenticating first if none is
// held yet. Concurrent callers share a single credential exchange.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.authToken
	c.mu.RUnlock()
	if token != "" {
		return token, nil
	}
	return c.fetchToken(ctx)
}

// refreshToken replaces an expired token. The stale value is compared under
// the lock so that callers racing on the same expired token trigger one
// refresh between them.
func (c *Client) refreshToken(ctx context.Context, stale string) (string, error) {
	c.mu.RLock()
	current := c.authToken
	c.mu.RUnlock()
	if current != "" && current != stale {
		// Another caller already refreshed.
		return current, nil
	}
	return c.fetchToken(ctx)
}

// fetchToken performs the credential exchange. Coalesced through
// singleflight so that N concurrent first requests issue one auth call.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	token, err := c.authFlight.Do("auth", func() (string, error) {
		return c.exchangeCredentials(ctx)
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()

	return token, nil
}

func (c *Client) exchangeCredentials(ctx context.Context) (string, error) {
	start := time.Now()

	// Drop the held token first: saves a wasted request later if the
	// exchange below times out.
	c.mu.Lock()
	c.authToken = ""
	c.mu.Unlock()

	if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
		c.logger.Debug("Authenticating with AMEE", "username", c.username)
	}

	form := url.Values{
		"username": {c.username},
		"password": {c.password},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+authPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", c.authError("building auth request failed", err, 0, "", start)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordAuth("error")
		}
		return "", c.authError("auth request failed", err, 0, "", start)
	}
	defer httpResp.Body.Close()
	body, _ := io.ReadAll(httpResp.Body)

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		if c.metrics != nil {
			c.metrics.RecordAuth("rejected")
		}
		return "", c.authError("AMEE rejected credentials", ErrAuthFailed, httpResp.StatusCode, clip(body), start)
	}

	token := httpResp.Header.Get("authToken")
	if token == "" {
		if c.metrics != nil {
			c.metrics.RecordAuth("rejected")
		}
		return "", c.authError("failed to authenticate with AMEE: no token in response", ErrAuthFailed, httpResp.StatusCode, clip(body), start)
	}

	if c.metrics != nil {
		c.metrics.RecordAuth("ok")
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
		c.logger.Debug("Authenticated with AMEE", "duration", time.Since(start))
	}

	return token, nil
}

func (c *Client) authError(message string, cause error, status int, body string, start time.Time) *ClientError {
	return &ClientError{
		Type:       ErrorTypeAuth,
		Message:    message,
		Cause:      cause,
		Method:     http.MethodPost,
		Path:       authPath,
		StatusCode: status,
		Body:       body,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
	}
}
