package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadJSONNames decodes a JSON array of names. Elements may be strings or
// objects with a "name" field, so a dump of stored records also works as
// input. Other elements are skipped.
func ReadJSONNames(ctx context.Context, r io.Reader) ([]string, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "json: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, eris.Errorf("json: expected '[', got %v", tok)
	}

	var names []string
	for decoder.More() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "json: context cancelled")
		}
		var item json.RawMessage
		if err := decoder.Decode(&item); err != nil {
			return nil, eris.Wrap(err, "json: decode element")
		}
		if name := nameOf(item); name != "" {
			names = append(names, name)
		}
	}

	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "json: read closing token")
	}
	return names, nil
}

func nameOf(item json.RawMessage) string {
	var s string
	if json.Unmarshal(item, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(item, &obj) == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}
