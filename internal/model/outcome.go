package model

// Stage names a step of the single-entity pipeline.
type Stage string

const (
	StageScraping       Stage = "scraping"
	StageScrapeFailed   Stage = "scrape_failed"
	StageSearching      Stage = "searching"
	StageSearchFailed   Stage = "search_failed"
	StageRescraping     Stage = "rescraping"
	StageNewsAugmenting Stage = "news_augmenting"
	StageEnriching      Stage = "enriching"
	StageEnrichFailed   Stage = "enrich_failed"
	StageMerging        Stage = "merging"
	StageValidating     Stage = "validating"
	StagePersisting     Stage = "persisting"
	StageDone           Stage = "done"
	StageAborted        Stage = "aborted"

	// Inference stages.
	StageLoading   Stage = "loading"
	StageInferring Stage = "inferring"
)

// Terminal reports whether the stage ends a pipeline run.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageAborted
}

// Outcome is the result of one pipeline run for one entity. Err is set
// exactly when the run ended in StageAborted.
type Outcome struct {
	Name     string        `json:"name"`
	Key      string        `json:"key"`
	Record   *EntityRecord `json:"record,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Trace    []Stage       `json:"trace"`
	Err      error         `json:"-"`
}

// Stage returns the last stage the run reached.
func (o *Outcome) Stage() Stage {
	if len(o.Trace) == 0 {
		return ""
	}
	return o.Trace[len(o.Trace)-1]
}

// ErrMessage returns the failure message, or "" for a successful run.
func (o *Outcome) ErrMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Enrichment is a record produced by the model together with the structural
// problems found in the model's raw JSON. Decoding drops malformed members,
// so Issues is the only place those problems survive.
type Enrichment struct {
	Record EntityRecord
	Issues []string
}
