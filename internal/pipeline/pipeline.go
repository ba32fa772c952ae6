// Package pipeline drives one entity from name to persisted record, and
// re-infers relationships across every stored entity.
package pipeline

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/merge"
	"github.com/sells-group/healthmap/internal/model"
	"github.com/sells-group/healthmap/internal/store"
	"github.com/sells-group/healthmap/internal/validate"
)

// State is a pipeline stage; the visited sequence is recorded in
// model.Outcome.Trace.
type State = model.Stage

// Scraper fetches public facts about an entity and searches for candidate
// pages when the name does not resolve directly.
type Scraper interface {
	Scrape(ctx context.Context, name string) (*model.ScrapedFacts, error)
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// NewsFetcher returns recent articles about an entity.
type NewsFetcher interface {
	FetchNews(ctx context.Context, name string) ([]model.NewsArticle, error)
}

// Enricher turns facts into records and infers relationships across records.
// Enrich reports structural problems in the model output as Issues.
type Enricher interface {
	Enrich(ctx context.Context, name string, facts model.ScrapedFacts) (model.Enrichment, error)
	InferAll(ctx context.Context, records []model.EntityRecord) ([]model.EntityRecord, error)
}

// Options tunes a Pipeline.
type Options struct {
	// UpdateExisting merges into the stored record instead of replacing it.
	UpdateExisting bool
	// CallTimeout bounds every collaborator call. Zero disables the bound.
	CallTimeout time.Duration
}

// Pipeline orchestrates scrape, search fallback, news, enrichment, merge,
// validation and persistence for a single entity.
type Pipeline struct {
	scraper  Scraper
	news     NewsFetcher
	enricher Enricher
	store    store.Store
	opts     Options
}

// New creates a Pipeline. news may be nil, in which case no articles are
// attached.
func New(scraper Scraper, news NewsFetcher, enricher Enricher, st store.Store, opts Options) *Pipeline {
	return &Pipeline{
		scraper:  scraper,
		news:     news,
		enricher: enricher,
		store:    st,
		opts:     opts,
	}
}

// run tracks one execution.
type run struct {
	out   *model.Outcome
	log   *zap.Logger
	start time.Time
	last  time.Time
}

func (r *run) enter(s State) {
	now := time.Now()
	if prev := r.out.Stage(); prev != "" {
		r.log.Debug("pipeline: stage complete",
			zap.String("stage", string(prev)),
			zap.Int64("duration_ms", now.Sub(r.last).Milliseconds()),
		)
	}
	r.out.Trace = append(r.out.Trace, s)
	r.last = now
}

func (r *run) abort(err error) (*model.Outcome, error) {
	r.enter(model.StageAborted)
	r.out.Err = err
	r.log.Error("pipeline: aborted",
		zap.Strings("trace", traceStrings(r.out.Trace)),
		zap.Duration("elapsed", time.Since(r.start)),
		zap.Error(err),
	)
	return r.out, err
}

// Run processes one entity. The returned error is non-nil exactly when the
// run ended in StageAborted; the Outcome is always returned and carries the
// same error.
func (p *Pipeline) Run(ctx context.Context, name string) (*model.Outcome, error) {
	name = strings.TrimSpace(name)
	out := &model.Outcome{Name: name, Key: model.StorageKey(name)}
	r := &run{
		out:   out,
		log:   zap.L().With(zap.String("entity", name)),
		start: time.Now(),
	}
	r.log.Info("pipeline: starting enrichment")

	if name == "" {
		return r.abort(eris.New("pipeline: empty entity name"))
	}

	facts, err := p.resolve(ctx, r, name)
	if err != nil {
		return r.abort(err)
	}
	facts.EntityName = name

	r.enter(model.StageNewsAugmenting)
	facts.News = p.fetchNews(ctx, r, name)

	r.enter(model.StageEnriching)
	enriched, err := call(ctx, p.opts.CallTimeout, func(ctx context.Context) (model.Enrichment, error) {
		return p.enricher.Enrich(ctx, name, *facts)
	})
	if err != nil {
		r.enter(model.StageEnrichFailed)
		return r.abort(err)
	}
	rec := enriched.Record

	r.enter(model.StageMerging)
	if p.opts.UpdateExisting {
		existing, err := call(ctx, p.opts.CallTimeout, func(ctx context.Context) (*model.EntityRecord, error) {
			return p.store.Load(ctx, out.Key)
		})
		if err != nil {
			return r.abort(&CollaboratorError{Stage: model.StageMerging, Err: err})
		}
		if existing != nil {
			r.log.Debug("pipeline: merging into existing record")
		}
		rec = merge.Merge(existing, rec)
	}

	r.enter(model.StageValidating)
	out.Warnings = appendMissing(out.Warnings, enriched.Issues...)
	out.Warnings = appendMissing(out.Warnings, validate.Record(rec).Errors...)
	if len(out.Warnings) > 0 {
		r.log.Warn("pipeline: record has validation errors", zap.Strings("errors", out.Warnings))
	}

	r.enter(model.StagePersisting)
	if _, err := call(ctx, p.opts.CallTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.store.Save(ctx, out.Key, rec)
	}); err != nil {
		return r.abort(&CollaboratorError{Stage: model.StagePersisting, Err: err})
	}

	out.Record = &rec
	r.enter(model.StageDone)
	r.log.Info("pipeline: enrichment complete",
		zap.String("key", out.Key),
		zap.Int("relationships", len(rec.Relationships)),
		zap.Int("warnings", len(out.Warnings)),
		zap.Duration("elapsed", time.Since(r.start)),
	)
	return out, nil
}

// resolve scrapes name directly and falls back to the top-ranked search
// candidate when that fails.
func (p *Pipeline) resolve(ctx context.Context, r *run, name string) (*model.ScrapedFacts, error) {
	r.enter(model.StageScraping)
	facts, err := p.scrape(ctx, name)
	if err == nil {
		return facts, nil
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "pipeline: scrape")
	}
	r.enter(model.StageScrapeFailed)
	r.log.Warn("pipeline: direct scrape failed, searching", zap.Error(err))

	r.enter(model.StageSearching)
	hits, err := call(ctx, p.opts.CallTimeout, func(ctx context.Context) ([]model.SearchResult, error) {
		return p.scraper.Search(ctx, name)
	})
	if err != nil || len(hits) == 0 {
		r.enter(model.StageSearchFailed)
		var cause error
		if err != nil {
			cause = &CollaboratorError{Stage: model.StageSearching, Err: err}
		}
		return nil, &UnresolvableError{Name: name, Cause: cause}
	}

	r.enter(model.StageRescraping)
	title := hits[0].Title
	r.log.Info("pipeline: retrying with search candidate", zap.String("title", title))
	facts, err = p.scrape(ctx, title)
	if err != nil {
		return nil, &UnresolvableError{Name: name, Cause: &CollaboratorError{Stage: model.StageRescraping, Err: err}}
	}
	return facts, nil
}

func (p *Pipeline) scrape(ctx context.Context, title string) (*model.ScrapedFacts, error) {
	facts, err := call(ctx, p.opts.CallTimeout, func(ctx context.Context) (*model.ScrapedFacts, error) {
		return p.scraper.Scrape(ctx, title)
	})
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = &model.ScrapedFacts{}
	}
	return facts, nil
}

// fetchNews is best-effort: failures are logged and yield no articles.
func (p *Pipeline) fetchNews(ctx context.Context, r *run, name string) []model.NewsArticle {
	if p.news == nil {
		return nil
	}
	articles, err := call(ctx, p.opts.CallTimeout, func(ctx context.Context) ([]model.NewsArticle, error) {
		return p.news.FetchNews(ctx, name)
	})
	if err != nil {
		r.log.Warn("pipeline: news unavailable",
			zap.Error(&CollaboratorError{Stage: model.StageNewsAugmenting, Err: err}))
		return nil
	}
	return articles
}

// call runs fn under the per-call deadline.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func traceStrings(trace []model.Stage) []string {
	out := make([]string, len(trace))
	for i, s := range trace {
		out[i] = string(s)
	}
	return out
}

// appendMissing appends each message not already in dst.
func appendMissing(dst []string, msgs ...string) []string {
	for _, m := range msgs {
		if !slices.Contains(dst, m) {
			dst = append(dst, m)
		}
	}
	return dst
}
