// Package backend is the JSON-over-HTTP client for the school transport API.
// Every call is paced, counted as in flight while it runs, and fails with a
// fault.TransportError when the network or the backend says no.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"minibus.schoolride.org/internal/events"
	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/logging"
	"minibus.schoolride.org/internal/metrics"
)

const maxBodySize = 5 * 1024 * 1024

// Authorizer supplies the Authorization header for each request.
type Authorizer interface {
	AuthHeader() string
}

type Config struct {
	BaseURL string
	// Timeout bounds a single request.
	Timeout time.Duration
	// RequestsPerSecond paces outgoing calls; zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	// CacheTTL is how long routes, vehicles and locations are reused.
	CacheTTL time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithAuthorizer(a Authorizer) Option {
	return func(cl *Client) { cl.auth = a }
}

func WithHub(h *events.Hub) Option {
	return func(cl *Client) { cl.hub = h }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	auth    Authorizer
	limiter *rate.Limiter
	cache   *cache.Cache
	hub     *events.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight int
}

// newHTTPClient clones the default transport to keep proxy, dialer and
// HTTP/2 defaults while bounding idle connections and request time.
func newHTTPClient(timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 20
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	return &http.Client{Timeout: timeout, Transport: transport}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	c := &Client{
		baseURL: base,
		cache:   cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  slog.Default(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = newHTTPClient(cfg.Timeout)
	}
	c.logger = c.logger.With(slog.String("component", "backend_client"))
	return c, nil
}

// InFlight is the number of calls that have started and not settled.
func (c *Client) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// FlushCache drops all cached reference data.
func (c *Client) FlushCache() {
	c.cache.Flush()
}

func (c *Client) track(delta int) {
	c.mu.Lock()
	c.inFlight += delta
	n := c.inFlight
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.BackendInFlight.Set(float64(n))
	}
	c.hub.PublishLoading(events.LoadingChanged{InFlight: n})
}

// request describes one call. Query and Body are optional.
type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
}

// do performs req and decodes a 2xx response into out (when non-nil).
func (c *Client) do(ctx context.Context, req request, out any) (err error) {
	start := time.Now()
	c.track(1)
	defer func() {
		c.track(-1)
		c.metrics.ObserveBackend(req.op, outcomeOf(err), time.Since(start))
		if err != nil {
			logging.LogError(c.logger, "backend call failed", err,
				slog.String("op", req.op), slog.String("path", req.path))
			c.hub.PublishFailure(events.Failure{Op: req.op, Err: err, Retryable: fault.IsRetryable(err)})
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fault.TransportError{Op: req.op, Err: err}
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fault.TransportError{Op: req.op, Err: err}
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "http_response_body")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return fault.TransportError{Op: req.op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxBodySize {
		return fault.TransportError{Op: req.op, Status: resp.StatusCode, Message: "response exceeds size limit"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fault.TransportError{Op: req.op, Status: resp.StatusCode, Message: errorMessage(resp, body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fault.TransportError{Op: req.op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req request) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return nil, fault.InputError{Field: "body", Reason: "cannot encode request", Err: err}
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fault.TransportError{Op: req.op, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if h := c.auth.AuthHeader(); h != "" {
			httpReq.Header.Set("Authorization", h)
		}
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// errorMessage extracts {"error": ...} or {"message": ...} from an error
// body, falling back to the raw text and then the status line.
func errorMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func outcomeOf(err error) string {
	var te fault.TransportError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &te) && te.Status != 0:
		return fmt.Sprintf("status_%d", te.Status)
	case fault.IsTransport(err):
		return "transport_error"
	default:
		return "error"
	}
}

// cacheKey builds a cache key from a prefix and parameters.
func cacheKey(prefix string, params ...any) string {
	key := prefix
	for _, p := range params {
		key += ":" + fmt.Sprintf("%v", p)
	}
	return key
}

// cached returns the value under key, loading and storing it on a miss.
func cached[T any](c *Client, key string, load func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.cache.Set(key, v, cache.DefaultExpiration)
	return v, nil
}
