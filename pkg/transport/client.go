package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/agenthands/slp/pkg/core"
	"go.uber.org/zap"
)

const (
	maxRedirects = 10
	maxPrealloc  = 64 << 20
)

// Result is the outcome of one exchange that produced a response.
type Result struct {
	Status int
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r Result) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Client performs single GET and PUT exchanges. It never retries.
type Client interface {
	Get(ctx context.Context, url string) (Result, error)
	Put(ctx context.Context, url string, body []byte, contentType string) (Result, error)
	Close() error
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithGetTimeout bounds every GET, including reading the response body.
func WithGetTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.getTimeout = d }
}

// WithPutTimeout bounds every PUT, including streaming the request body.
func WithPutTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.putTimeout = d }
}

// WithLogger sets the logger used for per-request debug output.
func WithLogger(lg *zap.Logger) Option {
	return func(c *HTTPClient) { c.lg = lg }
}

// WithHTTPTransport replaces the underlying round tripper.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(c *HTTPClient) { c.http.Transport = rt }
}

// HTTPClient is a Client backed by one net/http session. Connections may be
// reused between calls; headers and deadlines are built fresh for each call.
type HTTPClient struct {
	http       *http.Client
	getTimeout time.Duration
	putTimeout time.Duration
	lg         *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// New returns an HTTPClient. It must be closed to release pooled connections.
func New(opts ...Option) *HTTPClient {
	c := &HTTPClient{
		http: &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		getTimeout: core.DefaultGetTimeout,
		putTimeout: core.DefaultPutTimeout,
		lg:         zap.NewNop(),
	}
	c.http.CheckRedirect = checkRedirect
	for _, o := range opts {
		o(c)
	}
	if c.lg == nil {
		c.lg = zap.NewNop()
	}
	return c
}

// NewFromConfig builds an HTTPClient from the transport section of Config.
func NewFromConfig(cfg core.TransportConfig, lg *zap.Logger) *HTTPClient {
	opts := []Option{WithLogger(lg)}
	if cfg.GetTimeout > 0 {
		opts = append(opts, WithGetTimeout(cfg.GetTimeout))
	}
	if cfg.PutTimeout > 0 {
		opts = append(opts, WithPutTimeout(cfg.PutTimeout))
	}
	return New(opts...)
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

func (c *HTTPClient) Get(ctx context.Context, url string) (Result, error) {
	return c.do(ctx, http.MethodGet, url, nil, "", c.getTimeout)
}

func (c *HTTPClient) Put(ctx context.Context, url string, body []byte, contentType string) (Result, error) {
	return c.do(ctx, http.MethodPut, url, body, contentType, c.putTimeout)
}

// Close releases idle connections. Calls after Close fail with ErrClosed;
// calls already in flight are not waited for and run to completion.
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: already closed", core.ErrClosed)
	}
	c.closed = true
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body []byte, contentType string, timeout time.Duration) (Result, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return Result{}, &Error{Op: method, URL: url, Err: core.ErrClosed}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return Result{}, &Error{Op: method, URL: url, Err: err}
	}

	if method == http.MethodPut {
		req.Body, req.GetBody = outboundBody(body)
		req.ContentLength = int64(len(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.lg.Debug("http exchange failed",
			zap.String("method", method), zap.String("url", url), zap.Error(err))
		return Result{}, &Error{Op: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	// The advertised length only sizes the first allocation; the body may
	// still turn out shorter.
	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(min(resp.ContentLength, maxPrealloc)))
	}
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return Result{}, &Error{Op: method, URL: url, Err: fmt.Errorf("reading response body: %w", err)}
	}

	c.lg.Debug("http exchange",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("sent", len(body)),
		zap.Int("received", buf.Len()),
		zap.Duration("elapsed", time.Since(start)))

	return Result{Status: resp.StatusCode, Body: buf.Bytes()}, nil
}

// outboundBody returns the request body and its rewind function. net/http
// treats a non-nil body with zero ContentLength as unknown length, so an
// empty payload is sent as http.NoBody.
func outboundBody(data []byte) (io.ReadCloser, func() (io.ReadCloser, error)) {
	if len(data) == 0 {
		return http.NoBody, func() (io.ReadCloser, error) { return http.NoBody, nil }
	}
	return newBodyCursor(data), func() (io.ReadCloser, error) {
		return newBodyCursor(data), nil
	}
}
