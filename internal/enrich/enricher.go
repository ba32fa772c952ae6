// Package enrich turns scraped facts into structured entity records by
// prompting an LLM and recovering the JSON payload from its answer.
package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/extract"
	"github.com/sells-group/healthmap/internal/model"
	"github.com/sells-group/healthmap/internal/resilience"
	"github.com/sells-group/healthmap/internal/validate"
)

// Config is the explicit provider configuration an Enricher is built with.
type Config struct {
	Provider       Provider
	Model          string
	APIKey         string
	Temperature    float64
	MaxTokens      int
	InferMaxTokens int
	Retry          resilience.RetryConfig
}

// Enricher performs single-entity enrichment and whole-set inference.
type Enricher struct {
	cfg       Config
	completer Completer
}

// New creates an Enricher. The completer is only invoked when cfg carries an
// API key.
func New(cfg Config, completer Completer) *Enricher {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.InferMaxTokens <= 0 {
		cfg.InferMaxTokens = 4000
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger(string(cfg.Provider), "complete")
	}
	return &Enricher{cfg: cfg, completer: completer}
}

// Enrich asks the model for a structured record about name given facts.
// Missing subsidiaries and relationships default to empty, and a missing name
// defaults to the requested one. Structural problems in the model's JSON are
// returned as Issues rather than failing the call.
func (e *Enricher) Enrich(ctx context.Context, name string, facts model.ScrapedFacts) (model.Enrichment, error) {
	log := zap.L().With(zap.String("entity", name), zap.String("provider", string(e.cfg.Provider)))

	text, err := e.complete(ctx, name, Request{
		System:      enrichSystem,
		Prompt:      enrichPrompt(name, facts),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Phase:       "enrich",
	})
	if err != nil {
		return model.Enrichment{}, err
	}

	raw, err := extract.Extract(text, extract.Object)
	if err != nil {
		log.Error("enrich: no json in model output", zap.Error(err), zap.String("response", truncate(text, 500)))
		return model.Enrichment{}, classifyParse(name, err)
	}

	report := validate.Raw(raw)
	if !report.OK {
		log.Warn("enrich: model output has structural issues", zap.Strings("errors", report.Errors))
	}

	rec, err := model.DecodeEntity(raw)
	if err != nil {
		return model.Enrichment{}, classifyParse(name, err)
	}
	issues := report.Errors
	if rec.Name == "" {
		rec.Name = name
		issues = without(issues, "Missing required field: name")
	}

	log.Info("enrich: entity enriched",
		zap.String("type", rec.Type),
		zap.Int("subsidiaries", len(rec.Subsidiaries)),
		zap.Int("relationships", len(rec.Relationships)),
	)
	return model.Enrichment{Record: rec, Issues: issues}, nil
}

// InferAll sends the whole entity set in one call and returns the model's
// full replacement set. Array items that are not objects are dropped.
func (e *Enricher) InferAll(ctx context.Context, records []model.EntityRecord) ([]model.EntityRecord, error) {
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, &Error{Kind: KindOther, Err: eris.Wrap(err, "marshal entities")}
	}

	text, err := e.complete(ctx, "", Request{
		System:      inferSystem,
		Prompt:      inferPrompt(string(payload)),
		MaxTokens:   e.cfg.InferMaxTokens,
		Temperature: e.cfg.Temperature,
		Phase:       "infer",
	})
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := extract.Into(text, extract.Array, &items); err != nil {
		zap.L().Error("enrich: no json array in model output", zap.Error(err), zap.String("response", truncate(text, 500)))
		return nil, classifyParse("", err)
	}

	out := make([]model.EntityRecord, 0, len(items))
	for i, item := range items {
		rec, err := model.DecodeEntity(item)
		if err != nil {
			zap.L().Warn("enrich: skipping inferred item", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}

	zap.L().Info("enrich: relationships inferred",
		zap.Int("sent", len(records)),
		zap.Int("received", len(out)),
	)
	return out, nil
}

func (e *Enricher) complete(ctx context.Context, entity string, req Request) (string, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return "", &Error{Kind: KindConfigMissing, Entity: entity, Err: ErrConfigMissing}
	}
	if e.completer == nil {
		return "", &Error{Kind: KindConfigMissing, Entity: entity, Err: eris.New("no completer configured")}
	}

	text, err := resilience.DoVal(ctx, e.cfg.Retry, func(ctx context.Context) (string, error) {
		return e.completer.Complete(ctx, req)
	})
	if err != nil {
		return "", providerError(entity, err)
	}
	return text, nil
}

func without(msgs []string, drop string) []string {
	var out []string
	for _, m := range msgs {
		if m != drop {
			out = append(out, m)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
