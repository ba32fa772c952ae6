// Package jina searches recent web coverage of an entity through Jina AI
// Search (s.jina.ai).
package jina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/resilience"
)

const defaultSearchBaseURL = "https://s.jina.ai"

// Client searches the web.
type Client interface {
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// SearchResponse is the decoded search payload.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is one hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
	Date        string `json:"date"`
	// PublishedTime is set for news-like pages.
	PublishedTime string `json:"publishedTime"`
}

// Source returns the host of the result URL without a leading "www.".
func (r SearchResult) Source() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// StatusError is returned for a response that is neither 200 nor 422.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jina: search status %d: %s", e.Code, e.Body)
}

// SearchOption narrows a search.
type SearchOption func(url.Values)

// WithSites restricts results to the given domains. Empty domains are
// ignored.
func WithSites(domains ...string) SearchOption {
	return func(q url.Values) {
		for _, d := range domains {
			if d = strings.TrimSpace(d); d != "" {
				q.Add("site", d)
			}
		}
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithSearchBaseURL overrides the search host. Empty keeps the default.
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry replaces the retry policy for rate limits and server faults.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultSearchBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("jina", "search")
	}
	return c
}

// Search runs query. A 422 means Jina found nothing and yields an empty
// response; rate limits and server faults are retried.
func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	q := url.Values{}
	for _, o := range opts {
		o(q)
	}
	reqURL := c.baseURL + "/" + url.QueryEscape(query)
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, reqURL)
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}
	if body == nil {
		return &SearchResponse{Code: http.StatusUnprocessableEntity}, nil
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}
	return &out, nil
}

// get returns the body of a 200, nil for a 422, and a StatusError otherwise.
func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusUnprocessableEntity:
		return nil, nil
	default:
		se := &StatusError{Code: resp.StatusCode, Body: string(body)}
		return nil, resilience.MarkTransient(se, se.Code, resilience.IsTransientHTTPStatus(se.Code))
	}
}
