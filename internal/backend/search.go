package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/codex-k8s/command-router/internal/constants"
)

const defaultMaxResults = 5

// SearchResult is one hit returned by a search capability.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchOptions configures Search.
type SearchOptions struct {
	// URL is the search endpoint, e.g. https://searx.example/search.
	URL string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// MaxResults caps the results; zero means 5.
	MaxResults int
	// Timeout bounds a request; zero means 15s.
	Timeout time.Duration
}

// Search queries a SearXNG-compatible JSON endpoint.
type Search struct {
	url        string
	maxResults int
	client     *resty.Client
}

// NewSearch returns a search backend.
func NewSearch(opts SearchOptions) (*Search, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("search url is required")
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	return &Search{url: opts.URL, maxResults: opts.MaxResults, client: client}, nil
}

type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Execute implements registry.Executor. It reads "query" and an optional integer "limit".
func (s *Search) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{Backend: constants.BackendSearch, Detail: "query is empty"}
	}
	limit := s.maxResults
	if v, ok := args["limit"].(int64); ok && v > 0 && int(v) < limit {
		limit = int(v)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"q": query, "format": "json"}).
		Get(s.url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fail(constants.BackendSearch, err, "query %q", query)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &Error{Backend: constants.BackendSearch, Detail: fmt.Sprintf("search returned %d", resp.StatusCode())}
	}

	var body searxResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fail(constants.BackendSearch, err, "decode response")
	}
	results := make([]SearchResult, 0, limit)
	for _, r := range body.Results {
		if len(results) == limit {
			break
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: strings.TrimSpace(r.Content)})
	}
	return results, nil
}
