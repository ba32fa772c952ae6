package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/healthmap/internal/model"
)

func TestPrintOutcome(t *testing.T) {
	rec := model.NewEntityRecord("Humana", "Payer")
	out := &model.Outcome{Name: "Humana", Record: &rec, Warnings: []string{"missing field: revenue"}}

	var stdout, stderr bytes.Buffer
	require.NoError(t, printOutcome(&stdout, &stderr, out))

	var got map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "Humana", got["name"])
	assert.Equal(t, "warning: missing field: revenue\n", stderr.String())
}

func TestPrintOutcome_NoRecord(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, printOutcome(&stdout, &stderr, &model.Outcome{Name: "Humana"}))
	assert.Empty(t, stdout.String())
	assert.Empty(t, stderr.String())
}
