// Package wikipedia fetches encyclopedia pages and search results about
// organizations from Wikipedia.
package wikipedia

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://en.wikipedia.org/wiki/"
	defaultAPIURL    = "https://en.wikipedia.org/w/api.php"
	defaultUserAgent = "HealthMap/1.0 (Research Project)"
	defaultLimit     = 5
)

// ErrNotFound is returned when the requested page does not exist.
var ErrNotFound = eris.New("wikipedia: page not found")

// Client defines the Wikipedia operations used for entity enrichment.
type Client interface {
	// Scrape fetches the article for title and extracts its summary,
	// infobox, and section text.
	Scrape(ctx context.Context, title string) (*Page, error)
	// Search runs a full-text search and returns hits in ranked order.
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// Page is the extracted content of one article.
type Page struct {
	Title    string
	URL      string
	Summary  string
	Infobox  map[string]string
	Sections map[string]string
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Title   string
	Snippet string
	PageID  int64
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the article base URL; the page title is appended to it.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithAPIURL sets the MediaWiki API endpoint used for search.
func WithAPIURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.apiURL = u
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. Zero or negative disables limiting.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithSearchLimit sets how many search hits are requested.
func WithSearchLimit(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

type httpClient struct {
	baseURL     string
	apiURL      string
	userAgent   string
	searchLimit int
	http        *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a Wikipedia client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:     defaultBaseURL,
		apiURL:      defaultAPIURL,
		userAgent:   defaultUserAgent,
		searchLimit: defaultLimit,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// pageURL returns the article URL for a title.
func (c *httpClient) pageURL(title string) string {
	return c.baseURL + url.PathEscape(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}

func (c *httpClient) Scrape(ctx context.Context, title string) (*Page, error) {
	pageURL := c.pageURL(title)

	body, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: scrape %q", title)
	}
	defer body.Close() //nolint:errcheck

	page, err := parsePage(body)
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: parse %q", title)
	}
	page.Title = title
	page.URL = pageURL
	return page, nil
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			PageID  int64  `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

func (c *httpClient) Search(ctx context.Context, query string) ([]SearchHit, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.Itoa(c.searchLimit))

	body, err := c.get(ctx, c.apiURL+"?"+params.Encode())
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: search %q", query)
	}
	defer body.Close() //nolint:errcheck

	var resp searchResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, eris.Wrap(err, "wikipedia: decode search response")
	}

	hits := make([]SearchHit, 0, len(resp.Query.Search))
	for _, r := range resp.Query.Search {
		hits = append(hits, SearchHit{
			Title:   r.Title,
			Snippet: stripTags(r.Snippet),
			PageID:  r.PageID,
		})
	}
	return hits, nil
}

// get performs a rate-limited GET and returns a UTF-8 body reader.
func (c *httpClient) get(ctx context.Context, target string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "send request")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet))
	}

	return decodeCharset(resp), nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// decodeCharset wraps the body in a decoder when the response declares a
// non-UTF-8 charset.
func decodeCharset(resp *http.Response) io.ReadCloser {
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return resp.Body
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return resp.Body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return resp.Body
	}
	return readCloser{Reader: enc.NewDecoder().Reader(resp.Body), Closer: resp.Body}
}
