package fetcher

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/healthmap/internal/batch"
)

func sampleResult() *batch.Result {
	return &batch.Result{
		Names:     []string{"Aetna", "Humana", "Cigna"},
		Succeeded: 2,
		Failed:    1,
		Failures: []batch.Failure{
			{Name: "Humana", Err: eris.New("entity unresolvable")},
		},
	}
}

func TestWriteResults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, sampleResult()))

	want := "Entity,Status,Error\n" +
		"Aetna,Success,\n" +
		"Humana,Failure,entity unresolvable\n" +
		"Cigna,Success,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, &batch.Result{}))
	assert.Equal(t, "Entity,Status,Error\n", buf.String())
}

func TestWriteResultsFile_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	require.NoError(t, WriteResultsFile(path, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Humana,Failure,entity unresolvable")
}
