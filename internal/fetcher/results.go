package fetcher

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/batch"
)

// Result statuses written to the results file.
const (
	StatusSuccess = "Success"
	StatusFailure = "Failure"
)

var resultsHeader = []string{"Entity", "Status", "Error"}

// WriteResults writes one row per processed entity, in input order.
func WriteResults(w io.Writer, res *batch.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultsHeader); err != nil {
		return eris.Wrap(err, "results: write header")
	}
	for _, name := range res.Names {
		row := []string{name, StatusSuccess, ""}
		if err := res.FailureFor(name); err != nil {
			row = []string{name, StatusFailure, err.Error()}
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "results: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "results: flush")
}

// WriteResultsFile writes results to path, creating parent directories.
func WriteResultsFile(path string, res *batch.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "results: create directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "results: create file")
	}
	if err := WriteResults(f, res); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(f.Close(), "results: close file")
}
