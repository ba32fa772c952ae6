package model

// ScrapedFacts is the public information gathered about an entity before
// enrichment.
type ScrapedFacts struct {
	EntityName string            `json:"entity_name"`
	Title      string            `json:"title,omitempty"`
	Summary    string            `json:"summary"`
	Infobox    map[string]string `json:"infobox"`
	Sections   map[string]string `json:"sections"`
	News       []NewsArticle     `json:"news,omitempty"`
}

// SearchResult is one ranked candidate page returned by an encyclopedia search.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	PageID  int64  `json:"pageid"`
}

// NewsArticle is a recent news item mentioning an entity.
type NewsArticle struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	Date    string `json:"date"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}
