// Package validate checks entity documents for structural conformance.
// Validation is advisory: it never fails, it only reports.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/sells-group/healthmap/internal/model"
)

// Report is the outcome of validating one entity.
type Report struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

func (r *Report) add(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

var requiredFields = []string{"name", "type"}

// Document validates a generic decoded JSON value (as produced by
// json.Unmarshal into an any).
func Document(doc any) Report {
	var r Report
	obj, ok := doc.(map[string]any)
	if !ok {
		r.add("Entity must be an object")
		return r
	}

	for _, field := range requiredFields {
		if _, ok := obj[field]; !ok {
			r.add("Missing required field: %s", field)
		}
	}

	rels, hasRels := obj["relationships"]
	relList, relIsList := rels.([]any)
	if hasRels && !relIsList {
		r.add("Field 'relationships' must be a list")
	}
	if subs, ok := obj["subsidiaries"]; ok {
		if _, isList := subs.([]any); !isList {
			r.add("Field 'subsidiaries' must be a list")
		}
	}

	for i, item := range relList {
		rel, ok := item.(map[string]any)
		if !ok {
			r.add("Relationship at index %d must be an object", i)
			continue
		}
		if _, ok := rel["target"]; !ok {
			r.add("Relationship at index %d missing required field: target", i)
		}
		typ, ok := rel["type"]
		if !ok {
			r.add("Relationship at index %d missing required field: type", i)
			continue
		}
		s, _ := typ.(string)
		if !model.RelationshipType(s).Valid() {
			r.add("Relationship at index %d has invalid type: %v", i, typ)
		}
	}

	r.OK = len(r.Errors) == 0
	return r
}

// Raw validates an encoded JSON document.
func Raw(data []byte) Report {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Report{Errors: []string{"Entity is not valid JSON: " + err.Error()}}
	}
	return Document(doc)
}

// Record validates a typed record through its JSON form. Empty name or type
// count as missing.
func Record(rec model.EntityRecord) Report {
	data, err := json.Marshal(rec)
	if err != nil {
		return Report{Errors: []string{"Entity could not be encoded: " + err.Error()}}
	}
	return Raw(data)
}
