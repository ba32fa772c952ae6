// Package fetcher reads entity-name lists from CSV, XLSX and JSON files and
// writes batch results back out as CSV.
package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is an input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// DetectFormat picks a format from the file extension. Unknown extensions
// are read as CSV, one name per line.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// headerWords are first-cell values recognized as a header row.
var headerWords = map[string]bool{
	"name":         true,
	"names":        true,
	"entity":       true,
	"entities":     true,
	"entity name":  true,
	"entity_name":  true,
	"organization": true,
	"company":      true,
}

// IsHeader reports whether a first-column cell looks like a column title
// rather than an entity name.
func IsHeader(cell string) bool {
	return headerWords[strings.ToLower(strings.TrimSpace(cell))]
}

// ReadNames returns the entity names listed in path, in file order. For
// tabular formats the first column is used and a leading header row is
// skipped. Blank cells are dropped; duplicates are kept for the caller.
func ReadNames(ctx context.Context, path string) ([]string, error) {
	switch DetectFormat(path) {
	case FormatXLSX:
		rows, err := ReadXLSX(path, XLSXOptions{})
		if err != nil {
			return nil, err
		}
		return firstColumn(rows), nil
	case FormatJSON:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "json: open file")
		}
		defer f.Close()
		return ReadJSONNames(ctx, f)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "csv: open file")
		}
		defer f.Close()

		rowCh, errCh := StreamCSV(ctx, f, CSVOptions{Comment: '#'})
		var rows [][]string
		for row := range rowCh {
			rows = append(rows, row)
		}
		if err := <-errCh; err != nil {
			return nil, err
		}
		return firstColumn(rows), nil
	}
}

func firstColumn(rows [][]string) []string {
	var names []string
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if i == 0 && IsHeader(cell) {
			continue
		}
		if cell != "" {
			names = append(names, cell)
		}
	}
	return names
}
