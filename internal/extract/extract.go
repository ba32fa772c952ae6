// Package extract recovers a single JSON value from free-form model output.
//
// Model text is treated as a tolerant mini-grammar over three encodings tried
// in strict priority order: a fence tagged as json, any fence, and a raw
// delimiter scan. The first strategy that yields a candidate wins; the
// candidate is then parsed as JSON.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Shape is the structural kind of JSON value expected.
type Shape int

const (
	// Object expects a JSON object delimited by braces.
	Object Shape = iota
	// Array expects a JSON array delimited by brackets.
	Array
)

func (s Shape) String() string {
	if s == Array {
		return "array"
	}
	return "object"
}

func (s Shape) delims() (open, close byte) {
	if s == Array {
		return '[', ']'
	}
	return '{', '}'
}

const fence = "```"

// ExtractionError reports that no parseable JSON value could be recovered.
type ExtractionError struct {
	Shape     Shape
	Strategy  string
	Candidate string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: no valid json %s in model output (strategy %s): %v", e.Shape, e.Strategy, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// strategy returns a candidate span and whether it applies to the text.
type strategy struct {
	name string
	find func(text string, shape Shape) (string, bool)
}

// chain is evaluated in order. When nothing applies the whole trimmed text
// is the candidate.
var chain = []strategy{
	{"tagged_fence", taggedFence},
	{"bare_fence", bareFence},
	{"delimiter_scan", delimiterScan},
}

// Candidate returns the text selected for parsing and the strategy name that
// selected it, without parsing.
func Candidate(text string, shape Shape) (string, string) {
	for _, s := range chain {
		if c, ok := s.find(text, shape); ok {
			return c, s.name
		}
	}
	return strings.TrimSpace(text), "whole_text"
}

// Extract returns the first JSON value of the given shape found in text.
func Extract(text string, shape Shape) (json.RawMessage, error) {
	candidate, name := Candidate(text, shape)
	if !json.Valid([]byte(candidate)) {
		var v any
		err := json.Unmarshal([]byte(candidate), &v)
		if err == nil {
			err = eris.New("invalid json")
		}
		return nil, &ExtractionError{Shape: shape, Strategy: name, Candidate: candidate, Err: err}
	}
	return json.RawMessage(candidate), nil
}

// Into extracts a value of the given shape from text and decodes it into dst.
func Into(text string, shape Shape, dst any) error {
	raw, err := Extract(text, shape)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ExtractionError{Shape: shape, Strategy: "decode", Candidate: string(raw), Err: err}
	}
	return nil
}

// taggedFence takes the content after the first ```json up to the next fence.
func taggedFence(text string, _ Shape) (string, bool) {
	const open = fence + "json"
	i := strings.Index(text, open)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(open):]
	if j := strings.Index(rest, fence); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), true
}

// bareFence takes the content between the first pair of fences. An info
// string on the opening fence line (e.g. ```JSON) is skipped.
func bareFence(text string, _ Shape) (string, bool) {
	i := strings.Index(text, fence)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(fence):]
	if j := strings.Index(rest, fence); j >= 0 {
		rest = rest[:j]
	}
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && isInfoString(rest[:nl]) {
		rest = rest[nl+1:]
	}
	return strings.TrimSpace(rest), true
}

// isInfoString reports whether a fence's first line is a language tag rather
// than JSON content.
func isInfoString(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	return !strings.ContainsAny(line, "{}[]\":,")
}

// delimiterScan finds the first opening delimiter and counts depth until it
// returns to zero. Counting is naive: delimiters inside string literals are
// counted too. It does not apply when no balanced span exists.
func delimiterScan(text string, shape Shape) (string, bool) {
	open, close := shape.delims()
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1]), true
			}
		}
	}
	return "", false
}
