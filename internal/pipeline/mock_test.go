package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/healthmap/internal/model"
	"github.com/sells-group/healthmap/pkg/jina"
	"github.com/sells-group/healthmap/pkg/wikipedia"
)

// --- Scraper Mock ---

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Scrape(ctx context.Context, name string) (*model.ScrapedFacts, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScrapedFacts), args.Error(1)
}

func (m *mockScraper) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SearchResult), args.Error(1)
}

// --- NewsFetcher Mock ---

type mockNews struct {
	mock.Mock
}

func (m *mockNews) FetchNews(ctx context.Context, name string) ([]model.NewsArticle, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.NewsArticle), args.Error(1)
}

// --- Enricher Mock ---

type mockEnricher struct {
	mock.Mock
}

// Enrich accepts either a model.Enrichment or a bare model.EntityRecord as
// the first return value.
func (m *mockEnricher) Enrich(ctx context.Context, name string, facts model.ScrapedFacts) (model.Enrichment, error) {
	args := m.Called(ctx, name, facts)
	if rec, ok := args.Get(0).(model.EntityRecord); ok {
		return model.Enrichment{Record: rec}, args.Error(1)
	}
	return args.Get(0).(model.Enrichment), args.Error(1)
}

func (m *mockEnricher) InferAll(ctx context.Context, records []model.EntityRecord) ([]model.EntityRecord, error) {
	args := m.Called(ctx, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.EntityRecord), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context, key string) (*model.EntityRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EntityRecord), args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, key string, rec model.EntityRecord) error {
	args := m.Called(ctx, key, rec)
	return args.Error(0)
}

func (m *mockStore) LoadAll(ctx context.Context) ([]model.EntityRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.EntityRecord), args.Error(1)
}

func (m *mockStore) Keys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) SaveRun(ctx context.Context, run model.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Wikipedia Client Mock ---

type mockWikipedia struct {
	mock.Mock
}

func (m *mockWikipedia) Scrape(ctx context.Context, title string) (*wikipedia.Page, error) {
	args := m.Called(ctx, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wikipedia.Page), args.Error(1)
}

func (m *mockWikipedia) Search(ctx context.Context, query string) ([]wikipedia.SearchHit, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wikipedia.SearchHit), args.Error(1)
}

// --- Jina Client Mock ---

type mockJina struct {
	mock.Mock
}

func (m *mockJina) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}
