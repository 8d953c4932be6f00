package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/manifest"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/itchyny/gojq"
	"go.uber.org/zap"
)

// rawExcerptLen bounds how much of an unparsable response is kept.
const rawExcerptLen = 500

var (
	ErrNoContent = errors.New("inference: no recognized content field")
	ErrStatus    = errors.New("inference: unexpected status")
)

// contentQuery picks the generated text out of the response. Servers differ
// in the field name; the first non-empty string wins.
const contentQuery = `
if type == "object" then
  [.content, .response, .completion, .text]
  | map(select(type == "string" and . != ""))
  | first // empty
else empty end`

// Result is one completion.
type Result struct {
	Content string
	Elapsed time.Duration
	Raw     []byte
}

// Client calls a llama.cpp style /completion endpoint.
type Client struct {
	endpoint string
	http     *retryablehttp.Client
	query    *gojq.Code
	lg       *zap.Logger
}

// New returns a Client for the server at cfg.URL.
func New(cfg core.InferenceConfig, lg *zap.Logger) (*Client, error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = core.DefaultInferenceTimeout
	}

	parsed, err := gojq.Parse(contentQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content query: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compile content query: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = NewLeveledLogger(lg)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/completion",
		http:     rc,
		query:    code,
		lg:       lg,
	}, nil
}

// RequestBody renders the /completion request for prompt.
func RequestBody(prompt string, nPredict int) []byte {
	var b strings.Builder
	b.WriteString("{\n")
	b.WriteString(`  "prompt": "` + manifest.EscapeString(prompt) + "\",\n")
	b.WriteString(`  "n_predict": ` + strconv.Itoa(nPredict) + ",\n")
	b.WriteString(`  "stream": false` + "\n")
	b.WriteString("}")
	return []byte(b.String())
}

// Complete asks the server to continue prompt with at most nPredict tokens.
// Elapsed covers the whole exchange, retries included.
func (c *Client) Complete(ctx context.Context, prompt string, nPredict int) (Result, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, RequestBody(prompt, nPredict))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Elapsed: time.Since(start)}, fmt.Errorf("%w: POST %s: %v", core.ErrTransport, c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	res := Result{Elapsed: time.Since(start), Raw: body}
	if err != nil {
		return res, fmt.Errorf("%w: reading response: %v", core.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("%w: HTTP %d: %s", ErrStatus, resp.StatusCode, excerpt(body))
	}

	content, ok := c.extract(body)
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrNoContent, excerpt(body))
	}
	res.Content = content

	c.lg.Debug("completion",
		zap.Int("prompt_len", len(prompt)),
		zap.Int("n_predict", nPredict),
		zap.Int("content_len", len(content)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (c *Client) extract(body []byte) (string, bool) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", false
	}

	iter := c.query.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func excerpt(b []byte) string {
	if len(b) > rawExcerptLen {
		b = b[:rawExcerptLen]
	}
	return string(b)
}
