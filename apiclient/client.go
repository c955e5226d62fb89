// Package apiclient is the authenticated HTTP client for the fleet API.
//
// Every logical request runs through a fixed pipeline:
//
//	auth-inject -> send -> retry-on-transient -> refresh-on-401 -> replay once
//
// Refresh is single-flight per Client: concurrent requests that hit 401 share
// one refresh call and its result. Losing the session (no refresh token, failed
// refresh, or a 401 on the replay) clears stored tokens and fires the
// session-expired signal; callers subscribe with OnSessionExpired.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/avl-fleet/fleetctl/tokenstore"
)

// Requester is what Domain Services depend on.
type Requester interface {
	Do(ctx context.Context, req Request) (*Response[json.RawMessage], error)
	Upload(ctx context.Context, path string, file FileUpload, opts ...UploadOption) (*Response[json.RawMessage], error)
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	policy  RetryPolicy
	http    *http.Client
	refresh *retry.Client
	store   tokenstore.TokenStore
	logger  *slog.Logger
	metrics *metrics
	reg     prometheus.Registerer
	hooks   Hooks
	session sessionSignal

	// refreshes holds the one in-flight refresh; refreshMu orders joining it
	// against the flight's store update.
	refreshes singleflight.Group
	refreshMu sync.Mutex

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

var _ Requester = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport. Its Timeout should be zero; per-attempt
// timeouts come from Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenStore sets the credential store. Defaults to an in-memory store.
func WithTokenStore(s tokenstore.TokenStore) Option {
	return func(c *Client) {
		if s != nil {
			c.store = s
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics registers the client's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.reg = reg
	}
}

func WithHooks(h Hooks) Option {
	return func(c *Client) {
		c.hooks = h
	}
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		policy: RetryPolicy{MaxRetries: cfg.RetryAttempts, Backoff: cfg.RetryDelay},
		logger: slog.New(slog.DiscardHandler),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	if c.store == nil {
		c.store = tokenstore.NewMemory()
	}
	c.metrics = newMetrics(c.reg)

	// The refresh call bypasses the pipeline, so it can never recurse into
	// another refresh. Only network errors and 5xx are retried here.
	refreshClient, err := retry.NewClient(
		retry.WithHTTPClient(c.http),
		retry.WithMaxRetries(cfg.RefreshRetries),
		retry.WithInitialRetryDelay(cfg.RetryBaseDelay),
		retry.WithRetryableChecker(func(err error, resp *http.Response) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh client: %w", err)
	}
	c.refresh = refreshClient

	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// OnSessionExpired subscribes fn to authentication-loss events and returns an
// unsubscribe function.
func (c *Client) OnSessionExpired(fn func(SessionEvent)) func() {
	return c.session.subscribe(fn)
}

// SetTokens stores a credential obtained outside the refresh flow, e.g. login.
func (c *Client) SetTokens(cred tokenstore.Credential) error {
	return c.store.Set(cred)
}

func (c *Client) ClearTokens() error {
	return c.store.Clear()
}

// Token returns the current access token, or "" when unauthenticated.
func (c *Client) Token() string {
	if cred := c.store.Get(); cred != nil {
		return cred.AccessToken
	}
	return ""
}

func (c *Client) IsAuthenticated() bool {
	return c.store.IsAuthenticated()
}

// Request is one logical API call.
type Request struct {
	Method string
	// Path is relative to BaseURL, or an absolute http(s) URL.
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON-encoded unless it is []byte or io.Reader.
	Body any
	// Retryable allows 429/5xx retries for a non-idempotent method.
	Retryable bool
}

// RequestOption adjusts a Request built by the verb helpers.
type RequestOption func(*Request)

func WithQuery(q url.Values) RequestOption {
	return func(r *Request) {
		if len(q) == 0 {
			return
		}
		if r.Query == nil {
			r.Query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				r.Query.Add(k, v)
			}
		}
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = http.Header{}
		}
		r.Header.Set(key, value)
	}
}

// WithBody sets a body on verbs that do not take one, such as DELETE.
func WithBody(body any) RequestOption {
	return func(r *Request) {
		r.Body = body
	}
}

// WithRetryable marks the request safe to retry on 429/5xx.
func WithRetryable() RequestOption {
	return func(r *Request) {
		r.Retryable = true
	}
}

func NewRequest(method, path string, body any, opts ...RequestOption) Request {
	r := Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Do runs req through the pipeline and normalizes the response.
func (c *Client) Do(ctx context.Context, req Request) (*Response[json.RawMessage], error) {
	d, err := c.describe(req)
	if err != nil {
		c.metrics.observe(req.Method, err)
		return nil, err
	}
	return c.run(ctx, d)
}

func (c *Client) run(ctx context.Context, d *descriptor) (*Response[json.RawMessage], error) {
	raw, err := c.execute(ctx, d)
	c.metrics.observe(d.method, err)
	if err != nil {
		return nil, err
	}

	resp, err := Normalize(raw.body)
	if err != nil {
		return nil, err
	}
	resp.StatusCode = raw.status
	resp.RequestID = d.requestID
	return resp, nil
}

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response[json.RawMessage], error) {
	return c.Do(ctx, NewRequest(http.MethodGet, path, nil, opts...))
}

func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response[json.RawMessage], error) {
	return c.Do(ctx, NewRequest(http.MethodPost, path, body, opts...))
}

func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response[json.RawMessage], error) {
	return c.Do(ctx, NewRequest(http.MethodPut, path, body, opts...))
}

func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response[json.RawMessage], error) {
	return c.Do(ctx, NewRequest(http.MethodPatch, path, body, opts...))
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response[json.RawMessage], error) {
	return c.Do(ctx, NewRequest(http.MethodDelete, path, nil, opts...))
}

// describe turns a Request into the pipeline's RequestDescriptor, rejecting
// malformed input before anything touches the network.
func (c *Client) describe(req Request) (*descriptor, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		return nil, &ValidationError{Field: "method", Message: "is required"}
	}
	if strings.TrimSpace(req.Path) == "" {
		return nil, &ValidationError{Field: "path", Message: "is required"}
	}

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for k, vs := range req.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}
	header.Set("User-Agent", c.cfg.UserAgent)

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	if body != nil && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}

	requestID := header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
		header.Set("X-Request-Id", requestID)
	}

	return &descriptor{
		method:    method,
		url:       target,
		header:    header,
		body:      body,
		retryable: req.Retryable,
		requestID: requestID,
	}, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	var raw string
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		raw = path
	} else {
		raw = c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &ValidationError{Field: "path", Message: err.Error()}
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, &ValidationError{Field: "body", Message: "read failed: " + err.Error()}
		}
		return data, nil
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, &ValidationError{Field: "body", Message: "not JSON-encodable: " + err.Error()}
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	}
}
