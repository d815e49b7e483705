package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/infra/logging"
	"github.com/Bezhuang/my-little-app/internal/version"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"

	completionsPath = "/chat/completions"
	maxResponseBody = 8 << 20

	DefaultTimeout = 180 * time.Second
)

// KeySource returns the credential to attach to the next call.
type KeySource func(ctx context.Context) string

// Options configures a Client. BaseURL and models are fixed for the
// lifetime of the client; the API key is looked up on every call.
type Options struct {
	Name          string
	BaseURL       string
	Model         string
	ReasonerModel string
	Keys          KeySource
	// ThinkingFlag marks providers that need enable_thinking in reasoning mode.
	ThinkingFlag bool
	// Timeout bounds a single attempt, response body included.
	Timeout time.Duration
	// Retry defaults to DefaultRetryPolicy when left zero.
	Retry      RetryPolicy
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to one OpenAI-compatible chat-completion endpoint.
type Client struct {
	name          string
	baseURL       string
	model         string
	reasonerModel string
	keys          KeySource
	thinkingFlag  bool
	retry         RetryPolicy
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	retry := opts.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = DefaultRetryPolicy()
	}
	if retry.Sleep == nil {
		retry.Sleep = sleepContext
	}
	reasoner := opts.ReasonerModel
	if reasoner == "" {
		reasoner = opts.Model
	}
	keys := opts.Keys
	if keys == nil {
		keys = func(context.Context) string { return "" }
	}
	return &Client{
		name:          opts.Name,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		model:         opts.Model,
		reasonerModel: reasoner,
		keys:          keys,
		thinkingFlag:  opts.ThinkingFlag,
		retry:         retry,
		httpClient:    hc,
		logger:        logging.OrNop(opts.Logger).With(zap.String("provider", opts.Name)),
	}
}

func (c *Client) Name() string { return c.name }

// Model returns the reasoning-capable model when reasoning is set.
func (c *Client) Model(reasoning bool) string {
	if reasoning {
		return c.reasonerModel
	}
	return c.model
}

func (c *Client) ThinkingFlag() bool { return c.thinkingFlag }

// ChatCompletion sends req and decodes the response.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}

	raw, err := c.Complete(ctx, body)
	if err != nil {
		return nil, err
	}

	var resp ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return &resp, nil
}

// Complete posts a raw request body and returns the raw response body.
// Connection-class failures are retried with exponential backoff; HTTP
// error statuses come back immediately as *ProviderError.
func (c *Client) Complete(ctx context.Context, body []byte) ([]byte, error) {
	key := c.keys(ctx)
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKey, c.name)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			d := c.retry.delay(attempt - 1)
			c.logger.Warn("retrying provider call",
				zap.Int("attempt", attempt+1), zap.Duration("backoff", d), zap.Error(lastErr))
			if err := c.retry.Sleep(ctx, d); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
		}

		raw, err := c.post(ctx, key, body)
		if err == nil {
			return raw, nil
		}
		var perr *ProviderError
		if errors.As(err, &perr) || ctx.Err() != nil || !IsConnectionError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrProviderUnavailable, c.retry.MaxRetries+1, lastErr)
}

func (c *Client) post(ctx context.Context, key string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set(headerContentType, mimeJSON)
	req.Header.Set("Accept", mimeJSON)
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		c.logger.Warn("provider returned error status", zap.Int("status", resp.StatusCode))
		return nil, &ProviderError{Provider: c.name, StatusCode: resp.StatusCode, Body: truncateBody(bytes.TrimSpace(snippet))}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("provider call finished", zap.Duration("elapsed", time.Since(start)), zap.Int("bytes", len(raw)))
	return raw, nil
}
