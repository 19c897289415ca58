package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BaSui01/drama/internal/tlsutil"
	"github.com/BaSui01/drama/llm/tokenizer"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientConfig configures the HTTP inference client.
type ClientConfig struct {
	BaseURL   string            `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	Path      string            `yaml:"path" json:"path" env:"PATH"`
	APIKey    string            `yaml:"api_key" json:"api_key" env:"API_KEY"`
	Timeout   time.Duration     `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	RateLimit float64           `yaml:"rate_limit" json:"rate_limit" env:"RATE_LIMIT"` // requests per second, 0 = unlimited
	Burst     int               `yaml:"burst" json:"burst" env:"BURST"`
	TLS       tlsutil.Config    `yaml:"tls" json:"tls" env:"TLS"`
	Retry     RetryPolicy       `yaml:"retry" json:"retry" env:"RETRY"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
}

// DefaultClientConfig returns a config for a local OpenAI-compatible server.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://localhost:8000",
		Path:    "/v1/completions",
		Timeout: 120 * time.Second,
		Burst:   1,
		Retry:   DefaultRetryPolicy(),
	}
}

// Client submits jobs over HTTP and understands both JSON and
// text/event-stream responses.
type Client struct {
	cfg     ClientConfig
	url     string
	http    *http.Client
	limiter *rate.Limiter
	counter tokenizer.Counter
	logger  *zap.Logger

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

var _ Backend = (*Client)(nil)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTokenCounter estimates usage when the backend does not report it.
func WithTokenCounter(counter tokenizer.Counter) ClientOption {
	return func(c *Client) { c.counter = counter }
}

// NewClient creates an inference client.
func NewClient(cfg ClientConfig, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: base url is required")
	}
	hc, err := tlsutil.HTTPClient(cfg.TLS, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Path, "/"),
		http:   hc,
		logger: logger.With(zap.String("component", "llm_client")),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit sends job and returns the reassembled response.
func (c *Client) Submit(ctx context.Context, job *Job) (*Response, error) {
	if job.Prompt == "" && len(job.Messages) == 0 {
		return nil, &InferenceError{Reason: ReasonMissingInput, Job: job}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &InferenceError{Reason: ReasonRequestFailed, Job: job, Err: err}
		}
	}

	body, err := json.Marshal(newPayload(job))
	if err != nil {
		return nil, &InferenceError{Reason: ReasonRequestFailed, Job: job, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &InferenceError{Reason: ReasonRequestFailed, Job: job, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &InferenceError{Reason: ReasonRequestFailed, Job: job, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &InferenceError{
			Reason: ReasonRequestFailed,
			Job:    job,
			Err:    MapHTTPError(resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}

	var result *Response
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		result, err = collectStream(StreamSSE(ctx, resp.Body, c.logger))
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			return nil, &InferenceError{Reason: ReasonIncompleteStream, Job: job, Err: err}
		}
	} else {
		defer resp.Body.Close()
		var wire wireResponse
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return nil, &InferenceError{Reason: ReasonInvalidResponse, Job: job, Err: err}
		}
		result = wire.toResponse(wire.text())
	}

	if result.ID == "" {
		return nil, &InferenceError{Reason: ReasonMissingID, Job: job, Response: result}
	}

	c.estimateUsage(job, result)
	result.Duration = time.Since(start)
	c.inputTokens.Add(int64(result.InputTokens))
	c.outputTokens.Add(int64(result.OutputTokens))

	c.logger.Debug("job completed",
		zap.String("job_id", job.ID),
		zap.String("response_id", result.ID),
		zap.String("model", job.ModelConfig.Model),
		zap.Int("input_tokens", result.InputTokens),
		zap.Int("output_tokens", result.OutputTokens),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (c *Client) estimateUsage(job *Job, result *Response) {
	if c.counter == nil {
		return
	}
	if result.InputTokens == 0 {
		if job.Prompt != "" {
			result.InputTokens = c.counter.Count(job.Prompt)
		} else {
			for _, m := range job.Messages {
				result.InputTokens += c.counter.Count(m.Content) + 4
			}
		}
	}
	if result.OutputTokens == 0 {
		result.OutputTokens = c.counter.Count(result.Text)
	}
}

// Usage returns the tokens exchanged since the client was created.
func (c *Client) Usage() (input, output int64) {
	return c.inputTokens.Load(), c.outputTokens.Load()
}
