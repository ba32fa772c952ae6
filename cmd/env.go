package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/config"
	"github.com/sells-group/healthmap/internal/enrich"
	"github.com/sells-group/healthmap/internal/pipeline"
	"github.com/sells-group/healthmap/internal/resilience"
	"github.com/sells-group/healthmap/internal/store"
	anthropicpkg "github.com/sells-group/healthmap/pkg/anthropic"
	"github.com/sells-group/healthmap/pkg/jina"
	"github.com/sells-group/healthmap/pkg/perplexity"
	"github.com/sells-group/healthmap/pkg/wikipedia"
)

// pipelineEnv holds the store and the orchestrators built on it.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Inferrer *pipeline.Inferrer
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initPipeline validates enrichment config, opens the store and wires the
// collaborators. Callers should defer env.Close().
func initPipeline(ctx context.Context, updateExisting bool) (*pipelineEnv, error) {
	return initPipelineMode(ctx, config.ModeEnrichment, updateExisting)
}

func initPipelineMode(ctx context.Context, mode string, updateExisting bool) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	enricher, err := newEnricher(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := pipeline.New(newScraper(cfg), newNewsFetcher(cfg), enricher, st, pipeline.Options{
		UpdateExisting: updateExisting,
		CallTimeout:    cfg.Pipeline.CallTimeout(),
	})

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Inferrer: pipeline.NewInferrer(enricher, st, cfg.Pipeline.CallTimeout()),
	}, nil
}

// newEnricher builds the Enricher for the configured provider.
func newEnricher(c *config.Config) (*enrich.Enricher, error) {
	retry := resilience.FromSettings(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)

	switch enrich.Provider(c.LLM.Provider) {
	case enrich.ProviderAnthropic:
		client := anthropicpkg.NewClient(c.Anthropic.Key)
		return enrich.New(enrich.Config{
			Provider:       enrich.ProviderAnthropic,
			Model:          c.Anthropic.Model,
			APIKey:         c.Anthropic.Key,
			Temperature:    c.Anthropic.Temperature,
			MaxTokens:      c.Anthropic.MaxTokens,
			InferMaxTokens: c.Anthropic.InferMaxTokens,
			Retry:          retry,
		}, enrich.NewAnthropicCompleter(client, c.Anthropic.Model)), nil
	case enrich.ProviderPerplexity:
		opts := []perplexity.Option{perplexity.WithModel(c.Perplexity.Model)}
		if c.Perplexity.BaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(c.Perplexity.BaseURL))
		}
		client := perplexity.NewClient(c.Perplexity.Key, opts...)
		return enrich.New(enrich.Config{
			Provider:       enrich.ProviderPerplexity,
			Model:          c.Perplexity.Model,
			APIKey:         c.Perplexity.Key,
			Temperature:    c.Perplexity.Temperature,
			MaxTokens:      c.Perplexity.MaxTokens,
			InferMaxTokens: c.Perplexity.InferMaxTokens,
			Retry:          retry,
		}, enrich.NewPerplexityCompleter(client, c.Perplexity.Model)), nil
	default:
		return nil, eris.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}
}

func newScraper(c *config.Config) *pipeline.WikipediaScraper {
	opts := []wikipedia.Option{}
	if c.Wikipedia.BaseURL != "" {
		opts = append(opts, wikipedia.WithBaseURL(c.Wikipedia.BaseURL))
	}
	if c.Wikipedia.APIURL != "" {
		opts = append(opts, wikipedia.WithAPIURL(c.Wikipedia.APIURL))
	}
	if c.Wikipedia.UserAgent != "" {
		opts = append(opts, wikipedia.WithUserAgent(c.Wikipedia.UserAgent))
	}
	if c.Wikipedia.RatePerSec > 0 {
		opts = append(opts, wikipedia.WithRateLimit(c.Wikipedia.RatePerSec))
	}
	return pipeline.NewWikipediaScraper(wikipedia.NewClient(opts...))
}

// newNewsFetcher returns nil when news augmentation is off, which the
// pipeline treats as "no articles".
func newNewsFetcher(c *config.Config) pipeline.NewsFetcher {
	if !c.News.Enabled {
		return nil
	}
	if c.Jina.Key == "" {
		zap.L().Debug("HEALTHMAP_JINA_KEY not set, news augmentation disabled")
		return nil
	}
	retry := resilience.FromSettings(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)
	client := jina.NewClient(c.Jina.Key, jina.WithSearchBaseURL(c.Jina.SearchBaseURL), jina.WithRetry(retry))
	return pipeline.NewJinaNews(client, c.News.MaxArticles, c.News.Sites...)
}
