package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/model"
	"github.com/sells-group/healthmap/pkg/jina"
	"github.com/sells-group/healthmap/pkg/wikipedia"
)

// WikipediaScraper adapts a wikipedia.Client to Scraper.
type WikipediaScraper struct {
	client wikipedia.Client
}

// NewWikipediaScraper wraps client.
func NewWikipediaScraper(client wikipedia.Client) *WikipediaScraper {
	return &WikipediaScraper{client: client}
}

func (s *WikipediaScraper) Scrape(ctx context.Context, name string) (*model.ScrapedFacts, error) {
	page, err := s.client.Scrape(ctx, name)
	if err != nil {
		return nil, err
	}
	return &model.ScrapedFacts{
		EntityName: name,
		Title:      page.Title,
		Summary:    page.Summary,
		Infobox:    page.Infobox,
		Sections:   page.Sections,
	}, nil
}

func (s *WikipediaScraper) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	hits, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]model.SearchResult, len(hits))
	for i, h := range hits {
		out[i] = model.SearchResult{Title: h.Title, Snippet: h.Snippet, PageID: h.PageID}
	}
	return out, nil
}

// DefaultMaxArticles caps how many news results are attached to the prompt.
const DefaultMaxArticles = 5

const maxSummaryLen = 500

// JinaNews adapts jina search to NewsFetcher.
type JinaNews struct {
	client      jina.Client
	maxArticles int
	sites       []string
}

// NewJinaNews wraps client. maxArticles <= 0 uses DefaultMaxArticles; sites,
// when given, restrict the search to those domains.
func NewJinaNews(client jina.Client, maxArticles int, sites ...string) *JinaNews {
	if maxArticles <= 0 {
		maxArticles = DefaultMaxArticles
	}
	return &JinaNews{client: client, maxArticles: maxArticles, sites: sites}
}

func (n *JinaNews) FetchNews(ctx context.Context, name string) ([]model.NewsArticle, error) {
	var opts []jina.SearchOption
	if len(n.sites) > 0 {
		opts = append(opts, jina.WithSites(n.sites...))
	}
	resp, err := n.client.Search(ctx, name+" healthcare news", opts...)
	if err != nil {
		return nil, eris.Wrap(err, "news: search")
	}
	if resp == nil {
		return nil, nil
	}

	var out []model.NewsArticle
	for _, r := range resp.Data {
		if len(out) == n.maxArticles {
			break
		}
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		date := r.PublishedTime
		if date == "" {
			date = r.Date
		}
		summary := r.Description
		if summary == "" {
			summary = r.Content
		}
		out = append(out, model.NewsArticle{
			Title:   strings.TrimSpace(r.Title),
			Source:  r.Source(),
			Date:    date,
			URL:     r.URL,
			Summary: clip(strings.TrimSpace(summary), maxSummaryLen),
		})
	}
	return out, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
