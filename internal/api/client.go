package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"trifle/internal/kv"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "TRIFLE_HTTP_TIMEOUT"
	tokenEnvKey        = "TRIFLE_TOKEN"

	// maxValueBytes bounds how much of a GET body the client will buffer.
	maxValueBytes = 64 << 20
)

// Client speaks the remote KV protocol.
type Client struct {
	baseURL   string
	http      *http.Client
	authToken string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token. An empty token sends no Authorization header.
func WithToken(token string) Option {
	return func(c *Client) { c.authToken = strings.TrimSpace(token) }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a new API client. The token defaults to TRIFLE_TOKEN.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken: strings.TrimSpace(os.Getenv(tokenEnvKey)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	httpResp, err := c.send(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return resp, decodeError(httpResp)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("%w: decode health: %v", ErrTransport, err)
	}
	return resp, nil
}

// WhoAmI returns the email the client's token authenticates as. Missing or
// rejected credentials match ErrUnauthorized.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/whoami", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}
	var who WhoAmIResponse
	if err := json.NewDecoder(resp.Body).Decode(&who); err != nil {
		return "", fmt.Errorf("%w: decode whoami: %v", ErrTransport, err)
	}
	return who.Email, nil
}

// Get fetches the value at key. A 404 is reported as ok == false.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := c.send(ctx, http.MethodGet, kvPath(key), nil, nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxValueBytes+1))
		if err != nil {
			return nil, false, fmt.Errorf("%w: read %s: %v", ErrTransport, key, err)
		}
		if len(data) > maxValueBytes {
			return nil, false, fmt.Errorf("%w: value at %s exceeds %d bytes", ErrTransport, key, maxValueBytes)
		}
		return data, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, decodeError(resp)
	}
}

// Put upserts the value at key.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	resp, err := c.send(ctx, http.MethodPut, kvPath(key), nil, bytes.NewReader(value))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Delete removes key, or the subtree below it. A 404 wraps kv.ErrNotFound.
func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.send(ctx, http.MethodDelete, kvPath(key), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", kv.ErrNotFound, key)
	default:
		return decodeError(resp)
	}
}

// Exists issues a HEAD for key.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := c.send(ctx, http.MethodHead, kvPath(key), nil, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
}

// List returns the leaf keys below prefix.
func (c *Client) List(ctx context.Context, prefix string, opts kv.ListOptions) ([]string, error) {
	query := url.Values{}
	if opts.Recursive {
		query.Set("recursive", "true")
	} else if opts.Depth > 0 {
		query.Set("depth", strconv.Itoa(opts.Depth))
	}

	resp, err := c.send(ctx, http.MethodGet, "/kvlist/"+escapeKey(prefix), query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out []string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode list: %v", ErrTransport, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	return resp, nil
}

func kvPath(key string) string {
	return "/kv/" + escapeKey(key)
}

// escapeKey escapes each segment and keeps the slashes.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
