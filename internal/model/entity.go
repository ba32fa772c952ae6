package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// RelationshipType is the kind of edge between two entities. It is a string
// type so values outside the known set survive decoding and can be reported
// by validation instead of being rejected.
type RelationshipType string

const (
	RelOwnedBy    RelationshipType = "owned_by"
	RelOwns       RelationshipType = "owns"
	RelPartner    RelationshipType = "partner"
	RelCompetitor RelationshipType = "competitor"
	RelCustomer   RelationshipType = "customer"
	RelVendor     RelationshipType = "vendor"
)

// RelationshipTypes lists the accepted relationship types in prompt order.
var RelationshipTypes = []RelationshipType{
	RelOwnedBy, RelOwns, RelPartner, RelCompetitor, RelCustomer, RelVendor,
}

// Valid reports whether t is one of the known relationship types.
func (t RelationshipType) Valid() bool {
	for _, known := range RelationshipTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Relationship links an entity to another entity by name.
type Relationship struct {
	Target string           `json:"target"`
	Type   RelationshipType `json:"type"`
	// Attrs holds any additional attributes the model attached to the edge.
	Attrs map[string]json.RawMessage `json:"-"`
}

// Key returns the (target, type) identity used for de-duplication.
func (r Relationship) Key() RelationshipKey {
	return RelationshipKey{Target: r.Target, Type: r.Type}
}

// RelationshipKey is the uniqueness key of a relationship.
type RelationshipKey struct {
	Target string
	Type   RelationshipType
}

// MarshalJSON writes target and type first, followed by Attrs in key order.
// Empty target or type is omitted so validation reports it as missing.
func (r Relationship) MarshalJSON() ([]byte, error) {
	type plain struct {
		Target string           `json:"target,omitempty"`
		Type   RelationshipType `json:"type,omitempty"`
	}
	b, err := json.Marshal(plain{Target: r.Target, Type: r.Type})
	if err != nil {
		return nil, err
	}
	return appendExtras(b, r.Attrs, "target", "type")
}

// UnmarshalJSON accepts any object; scalar target/type values are coerced to
// text and every other key lands in Attrs.
func (r *Relationship) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return eris.Wrap(err, "model: relationship must be an object")
	}
	*r = Relationship{}
	for k, v := range fields {
		switch k {
		case "target":
			r.Target, _ = scalarString(v)
		case "type":
			s, _ := scalarString(v)
			r.Type = RelationshipType(s)
		default:
			if r.Attrs == nil {
				r.Attrs = make(map[string]json.RawMessage)
			}
			r.Attrs[k] = v
		}
	}
	return nil
}

// EntityRecord is one healthcare organization as persisted between runs.
type EntityRecord struct {
	Name          string
	Type          string
	Parent        string
	Revenue       string
	Subsidiaries  []string
	Relationships []Relationship
	// Extra preserves top-level fields this version does not model.
	Extra map[string]json.RawMessage
}

// NewEntityRecord returns a record with empty (non-nil) collections.
func NewEntityRecord(name, entityType string) EntityRecord {
	return EntityRecord{
		Name:          name,
		Type:          entityType,
		Subsidiaries:  []string{},
		Relationships: []Relationship{},
	}
}

// DecodeEntity decodes a JSON object into a record. Decoding is tolerant:
// mis-shaped collections and non-object relationships are dropped rather than
// failing, so structural problems surface through validation instead.
func DecodeEntity(data []byte) (EntityRecord, error) {
	var rec EntityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return EntityRecord{}, err
	}
	return rec, nil
}

// Key returns the storage key derived from the record name.
func (e EntityRecord) Key() string {
	return StorageKey(e.Name)
}

// Clone returns a deep copy of the record.
func (e EntityRecord) Clone() EntityRecord {
	out := e
	out.Subsidiaries = append([]string{}, e.Subsidiaries...)
	out.Relationships = make([]Relationship, len(e.Relationships))
	for i, rel := range e.Relationships {
		out.Relationships[i] = rel
		out.Relationships[i].Attrs = cloneRaw(rel.Attrs)
	}
	out.Extra = cloneRaw(e.Extra)
	return out
}

type entityJSON struct {
	Name          string         `json:"name,omitempty"`
	Type          string         `json:"type,omitempty"`
	Parent        string         `json:"parent,omitempty"`
	Revenue       string         `json:"revenue,omitempty"`
	Subsidiaries  []string       `json:"subsidiaries"`
	Relationships []Relationship `json:"relationships"`
}

var entityKeys = []string{"name", "type", "parent", "revenue", "subsidiaries", "relationships"}

// MarshalJSON always writes subsidiaries and relationships as arrays.
func (e EntityRecord) MarshalJSON() ([]byte, error) {
	out := entityJSON{
		Name:          e.Name,
		Type:          e.Type,
		Parent:        e.Parent,
		Revenue:       e.Revenue,
		Subsidiaries:  e.Subsidiaries,
		Relationships: e.Relationships,
	}
	if out.Subsidiaries == nil {
		out.Subsidiaries = []string{}
	}
	if out.Relationships == nil {
		out.Relationships = []Relationship{}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return appendExtras(b, e.Extra, entityKeys...)
}

// UnmarshalJSON decodes tolerantly; missing collections default to empty.
func (e *EntityRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return eris.Wrap(err, "model: entity must be an object")
	}

	*e = NewEntityRecord("", "")
	for k, v := range fields {
		switch k {
		case "name":
			e.Name, _ = scalarString(v)
		case "type":
			e.Type, _ = scalarString(v)
		case "parent":
			e.Parent, _ = scalarString(v)
		case "revenue":
			e.Revenue, _ = scalarString(v)
		case "subsidiaries":
			var items []json.RawMessage
			if json.Unmarshal(v, &items) != nil {
				continue
			}
			for _, item := range items {
				if s, ok := scalarString(item); ok && s != "" {
					e.Subsidiaries = append(e.Subsidiaries, s)
				}
			}
		case "relationships":
			var items []json.RawMessage
			if json.Unmarshal(v, &items) != nil {
				continue
			}
			for _, item := range items {
				var rel Relationship
				if json.Unmarshal(item, &rel) != nil {
					continue
				}
				e.Relationships = append(e.Relationships, rel)
			}
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]json.RawMessage)
			}
			e.Extra[k] = v
		}
	}
	return nil
}

// StorageKey derives the persisted-record key for an entity name: lower-case,
// with every space and '/' replaced by '_'. Every lookup and write must go
// through this function.
func StorageKey(name string) string {
	return keyReplacer.Replace(strings.ToLower(name))
}

var keyReplacer = strings.NewReplacer(" ", "_", "/", "_")

// scalarString renders a JSON scalar as text. null yields "" and ok=true;
// arrays and objects yield ok=false.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	case 'n':
		return "", true
	case '{', '[':
		return "", false
	default:
		return string(raw), true
	}
}

// appendExtras splices extra key/value pairs into a marshaled object,
// skipping keys that are already modeled.
func appendExtras(obj []byte, extras map[string]json.RawMessage, reserved ...string) ([]byte, error) {
	if len(extras) == 0 {
		return obj, nil
	}
	skip := make(map[string]bool, len(reserved))
	for _, k := range reserved {
		skip[k] = true
	}
	keys := make([]string, 0, len(extras))
	for k := range extras {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return obj, nil
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(obj[:len(obj)-1])
	needComma := len(obj) > 2
	for _, k := range keys {
		v := extras[k]
		if !json.Valid(v) {
			return nil, eris.Errorf("model: extra field %q is not valid JSON", k)
		}
		if needComma {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(v)
		needComma = true
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func cloneRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
