package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"entities.csv", FormatCSV},
		{"entities.XLSX", FormatXLSX},
		{"entities.json", FormatJSON},
		{"entities.txt", FormatCSV},
		{"entities", FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.path))
		})
	}
}

func TestIsHeader(t *testing.T) {
	assert.True(t, IsHeader("Name"))
	assert.True(t, IsHeader(" entity name "))
	assert.True(t, IsHeader("ENTITY"))
	assert.False(t, IsHeader("Aetna"))
	assert.False(t, IsHeader(""))
}

func TestReadNames_CSVWithHeader(t *testing.T) {
	path := writeFile(t, "entities.csv", "Entity,Notes\nAetna,payer\n\n,blank\nHumana,payer\n")
	names, err := ReadNames(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aetna", "Humana"}, names)
}

func TestReadNames_CSVWithoutHeader(t *testing.T) {
	path := writeFile(t, "entities.txt", "Kaiser Permanente\nAetna\nAetna\n")
	names, err := ReadNames(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Kaiser Permanente", "Aetna", "Aetna"}, names)
}

func TestReadNames_HeaderOnlyOnFirstRow(t *testing.T) {
	path := writeFile(t, "entities.csv", "Aetna\nName\n")
	names, err := ReadNames(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aetna", "Name"}, names)
}

func TestReadNames_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Name"},
			{"UnitedHealth Group"},
			{""},
			{"Cigna"},
		},
	})
	names, err := ReadNames(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"UnitedHealth Group", "Cigna"}, names)
}

func TestReadNames_JSON(t *testing.T) {
	path := writeFile(t, "entities.json", `["Aetna", {"name": "Humana"}]`)
	names, err := ReadNames(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aetna", "Humana"}, names)
}

func TestReadNames_MissingFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "a.json", "a.xlsx"} {
		_, err := ReadNames(context.Background(), filepath.Join(dir, name))
		assert.Error(t, err, name)
	}
}
