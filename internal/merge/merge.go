// Package merge folds a freshly enriched entity record into the record
// persisted by an earlier run.
package merge

import (
	"bytes"
	"encoding/json"

	"github.com/sells-group/healthmap/internal/model"
)

// Merge combines existing with incoming and returns a new record; neither
// input is modified. With no existing record the incoming one is returned.
//
// Scalars are overwritten only by non-empty incoming values. Subsidiaries are
// an order-preserving union with existing entries first. Relationships are a
// union keyed by (target, type) in which an existing entry always wins, and
// incoming entries lacking a target or type are dropped. Extra fields from
// incoming fill keys that are absent or null in existing.
func Merge(existing *model.EntityRecord, incoming model.EntityRecord) model.EntityRecord {
	if existing == nil {
		return incoming.Clone()
	}

	out := existing.Clone()
	overwrite(&out.Name, incoming.Name)
	overwrite(&out.Type, incoming.Type)
	overwrite(&out.Parent, incoming.Parent)
	overwrite(&out.Revenue, incoming.Revenue)

	out.Subsidiaries = unionStrings(out.Subsidiaries, incoming.Subsidiaries)
	out.Relationships = unionRelationships(out.Relationships, incoming.Relationships)
	out.Extra = mergeExtra(out.Extra, incoming.Extra)
	return out
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func unionStrings(base, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	for _, s := range add {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		base = append(base, s)
	}
	return base
}

func unionRelationships(base, add []model.Relationship) []model.Relationship {
	seen := make(map[model.RelationshipKey]struct{}, len(base)+len(add))
	for _, r := range base {
		seen[r.Key()] = struct{}{}
	}
	for _, r := range add {
		if r.Target == "" || r.Type == "" {
			continue
		}
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		seen[r.Key()] = struct{}{}
		r.Attrs = cloneAttrs(r.Attrs)
		base = append(base, r)
	}
	return base
}

func mergeExtra(base, add map[string]json.RawMessage) map[string]json.RawMessage {
	for k, v := range add {
		if cur, ok := base[k]; ok && !isNull(cur) {
			continue
		}
		if base == nil {
			base = make(map[string]json.RawMessage, len(add))
		}
		base[k] = append(json.RawMessage(nil), v...)
	}
	return base
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func cloneAttrs(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
