// Package api is the HTTP collaborator for the koperasi REST API.
//
// The client is deliberately thin: it builds requests, attaches the session
// token, decodes JSON and turns failed responses into *Error. List endpoints
// go through the pagination normalizer so callers only ever see a
// pagination.Page.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	applog "koperasi/internal/log"
)

// Authenticator supplies the bearer token and is told when the server
// rejects it.
type Authenticator interface {
	Token() string
	Invalidate(ctx context.Context)
}

// Client talks to the koperasi API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	auth    Authenticator
	logger  *applog.Logger
	calls   *applog.StructuredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default pooled HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAuthenticator attaches the session.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) { c.auth = a }
}

// WithLogger sets the logger.
func WithLogger(l *applog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL, e.g. "https://koperasi.example/api".
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q: must be http or https", u.Scheme)
	}
	c := &Client{
		baseURL: u,
		http:    newHTTPClientWithPooling(timeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentAPI)
	}
	c.calls = applog.NewStructuredLogger(c.logger)
	return c, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling,
// proper timeouts, and keep-alive settings
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	accept      string
}

// do sends the request and returns the response for 2xx statuses. Other
// statuses are returned as *Error; a 401 also invalidates the session.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	u := c.baseURL.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", r.method, r.path, err)
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if c.auth != nil {
		if tok := c.auth.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.calls.LogAPICall(ctx, r.method, r.path, u.RawQuery, requestID, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", r.method, r.path, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, r.method, r.path, err)
	}
	c.calls.LogAPICall(ctx, r.method, r.path, u.RawQuery, requestID, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	apiErr := readError(resp)
	if resp.StatusCode == http.StatusUnauthorized && c.auth != nil {
		c.auth.Invalidate(ctx)
	}
	return nil, apiErr
}

// raw performs the request and returns the whole body.
func (c *Client) raw(ctx context.Context, r request) ([]byte, http.Header, error) {
	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read %s %s: %w", ErrTransport, r.method, r.path, err)
	}
	return body, resp.Header, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, _, err := c.raw(ctx, request{method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	r := request{method: method, path: path}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		r.body = bytes.NewReader(payload)
		r.contentType = "application/json"
	}
	body, _, err := c.raw(ctx, r)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(path, body, out)
}

func decode(path string, body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsUnauthenticated reports whether err means the user must sign in again.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
