// Package search is the outbound web-search adapter (Bocha web-search API).
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Bezhuang/my-little-app/internal/version"
)

const (
	DefaultEndpoint = "https://api.bochaai.com/v1/web-search"
	DefaultCount    = 5

	mimeJSON          = "application/json"
	headerContentType = "Content-Type"
)

var (
	ErrNotConfigured = errors.New("search: provider not configured")
	ErrUpstream      = errors.New("search: upstream error")
)

// Page is one ranked web result.
type Page struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	Summary         string `json:"summary"`
	SiteName        string `json:"siteName"`
	DateLastCrawled string `json:"dateLastCrawled"`
}

// Credentials yields the current API key and whether search is switched on.
// It is consulted on every call so key rotation needs no restart.
type Credentials func(ctx context.Context) (apiKey string, enabled bool)

// BochaClient calls the Bocha web-search endpoint.
type BochaClient struct {
	endpoint    string
	credentials Credentials
	httpClient  *http.Client
}

// NewBochaClient returns a client with a 30s timeout. An empty endpoint uses DefaultEndpoint.
func NewBochaClient(endpoint string, credentials Credentials) *BochaClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &BochaClient{
		endpoint:    endpoint,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// ─── wire types ─────────────────────────────────────────────────────────────

type bochaRequest struct {
	Query     string `json:"query"`
	Freshness string `json:"freshness"`
	Summary   bool   `json:"summary"`
	Count     int    `json:"count"`
}

type bochaResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		WebPages struct {
			Value []Page `json:"value"`
		} `json:"webPages"`
	} `json:"data"`
}

// ─── API ────────────────────────────────────────────────────────────────────

// Configured reports whether a usable key is present and search is enabled.
func (c *BochaClient) Configured(ctx context.Context) bool {
	key, enabled := c.credentials(ctx)
	return enabled && key != ""
}

// Search returns up to count ranked pages for query.
func (c *BochaClient) Search(ctx context.Context, query string, count int) ([]Page, error) {
	key, enabled := c.credentials(ctx)
	if !enabled || key == "" {
		return nil, ErrNotConfigured
	}
	if count <= 0 {
		count = DefaultCount
	}

	body, err := json.Marshal(bochaRequest{Query: query, Freshness: "noLimit", Summary: true, Count: count})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set(headerContentType, mimeJSON)
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out bochaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	if out.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: code %d: %s", ErrUpstream, out.Code, out.Msg)
	}

	pages := out.Data.WebPages.Value
	if len(pages) > count {
		pages = pages[:count]
	}
	return pages, nil
}
