package enrich

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/extract"
)

// Kind classifies where an enrichment failure originated.
type Kind string

const (
	// KindConfigMissing means the provider is not configured (no API key).
	KindConfigMissing Kind = "config_missing"
	// KindProvider means the provider call itself failed.
	KindProvider Kind = "provider"
	// KindExtraction means the provider answered but no usable JSON was found.
	KindExtraction Kind = "extraction"
	// KindOther covers everything else.
	KindOther Kind = "other"
)

// Sentinels matched by Error.Is so callers can use errors.Is on the kind.
var (
	ErrConfigMissing = eris.New("enrich: api key not configured")
	ErrProvider      = eris.New("enrich: provider error")
	ErrExtraction    = eris.New("enrich: extraction error")
)

// Error is returned by every Enricher operation.
type Error struct {
	Kind   Kind
	Entity string
	Err    error
}

func (e *Error) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("enrich: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("enrich: %s for %q: %v", e.Kind, e.Entity, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfigMissing:
		return e.Kind == KindConfigMissing
	case ErrProvider:
		return e.Kind == KindProvider
	case ErrExtraction:
		return e.Kind == KindExtraction
	}
	return false
}

// KindOf returns the Kind of an enrichment error, or "" if err is not one.
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

func providerError(entity string, err error) error {
	return &Error{Kind: KindProvider, Entity: entity, Err: err}
}

// classifyParse maps decode failures to KindExtraction.
func classifyParse(entity string, err error) error {
	var xe *extract.ExtractionError
	if errors.As(err, &xe) {
		return &Error{Kind: KindExtraction, Entity: entity, Err: err}
	}
	return &Error{Kind: KindExtraction, Entity: entity, Err: eris.Wrap(err, "decode entity")}
}
