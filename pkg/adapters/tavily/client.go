// Package tavily implements ports.Searcher on the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// DefaultBaseURL is the public Tavily endpoint.
const DefaultBaseURL = "https://api.tavily.com"

// Client calls POST /search.
type Client struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	includeDomains []string
	searchDepth    string
}

type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithIncludeDomains restricts results to the given domains.
func WithIncludeDomains(domains ...string) Option {
	return func(c *Client) {
		c.includeDomains = domains
	}
}

// WithSearchDepth selects "basic" or "advanced" search.
func WithSearchDepth(depth string) Option {
	return func(c *Client) {
		c.searchDepth = depth
	}
}

// New creates a client for apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		searchDepth: "basic",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results,omitempty"`
	SearchDepth    string   `json:"search_depth,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements ports.Searcher. Results are returned as the API ranks
// them; filtering by score is left to the caller.
func (c *Client) Search(ctx context.Context, req ports.SearchRequest) ([]domain.SearchResult, error) {
	if c.apiKey == "" {
		return nil, errors.New("tavily: api key is not configured")
	}

	body, err := json.Marshal(searchRequest{
		Query:          req.Query,
		MaxResults:     req.MaxResults,
		SearchDepth:    c.searchDepth,
		IncludeDomains: c.includeDomains,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, domain.SearchResult{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	return results, nil
}
