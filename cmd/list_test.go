package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/healthmap/internal/model"
)

func sampleRecords() []model.EntityRecord {
	aetna := model.NewEntityRecord("Aetna", "Payer")
	aetna.Parent = "CVS Health"
	aetna.Revenue = "70B"
	aetna.Relationships = []model.Relationship{{Target: "CVS Health", Type: model.RelOwnedBy}}

	kaiser := model.NewEntityRecord("Kaiser Permanente", "")
	kaiser.Subsidiaries = []string{"Kaiser Foundation Hospitals", "Kaiser Foundation Health Plan"}
	return []model.EntityRecord{aetna, kaiser}
}

func TestFormatEntityTable(t *testing.T) {
	var buf bytes.Buffer
	formatEntityTable(&buf, sampleRecords())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Contains(t, string(lines[0]), "NAME")
	assert.Contains(t, string(lines[0]), "RELATIONSHIPS")
	assert.Regexp(t, `^Aetna\s+Payer\s+70B\s+0\s+1$`, string(lines[2]))
	assert.Regexp(t, `^Kaiser Permanente\s+-\s+-\s+2\s+0$`, string(lines[3]))
}

func TestWriteEntities_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEntities(&buf, sampleRecords(), formatJSON))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Aetna", got[0]["name"])
	assert.Equal(t, "CVS Health", got[0]["parent"])
}

func TestWriteEntities_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEntities(&buf, sampleRecords(), formatYAML))

	out := buf.String()
	assert.Contains(t, out, "- name: Aetna\n")
	assert.Contains(t, out, "  revenue: 70B\n")
	assert.Contains(t, out, "    - target: CVS Health\n")
	assert.Contains(t, out, "      type: owned_by\n")
	assert.Contains(t, out, "  subsidiaries: []\n")
	assert.NotContains(t, out, `"`)
}

func TestWriteEntities_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := writeEntities(&buf, sampleRecords(), "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "xml"`)
}

func TestWriteYAML_Record(t *testing.T) {
	rec := sampleRecords()[1]

	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, &rec))

	out := buf.String()
	assert.Contains(t, out, "name: Kaiser Permanente\n")
	assert.Contains(t, out, "subsidiaries:\n  - Kaiser Foundation Hospitals\n")
	assert.Contains(t, out, "relationships: []\n")
}
