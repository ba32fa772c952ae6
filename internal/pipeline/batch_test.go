package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/healthmap/internal/batch"
	"github.com/sells-group/healthmap/internal/model"
	"github.com/sells-group/healthmap/internal/store"
)

func TestBatch_UnresolvableEntityIsIsolated(t *testing.T) {
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "entities"))
	require.NoError(t, err)

	names := []string{"Aetna", "Humana", "Nowhere Health", "Cigna", "Centene"}
	scraper := &mockScraper{}
	enricher := &mockEnricher{}
	for i, n := range names {
		if i == 2 {
			scraper.On("Scrape", mock.Anything, n).Return(nil, errors.New("page not found"))
			scraper.On("Search", mock.Anything, n).Return(nil, nil)
			continue
		}
		scraper.On("Scrape", mock.Anything, n).Return(&model.ScrapedFacts{Title: n, Summary: n + " is a health insurer."}, nil)
		enricher.On("Enrich", mock.Anything, n, mock.Anything).Return(model.NewEntityRecord(n, "Payer"), nil)
	}

	p := New(scraper, nil, enricher, st, Options{UpdateExisting: true})
	res := batch.Runner{Workers: 2}.Run(context.Background(), names, func(ctx context.Context, name string) error {
		_, err := p.Run(ctx, name)
		return err
	})

	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "Nowhere Health", res.Failures[0].Name)
	assert.ErrorIs(t, res.Failures[0].Err, ErrUnresolvable)
	assert.ErrorIs(t, res.Err(), batch.ErrFailures)

	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aetna", "centene", "cigna", "humana"}, keys)
	enricher.AssertNotCalled(t, "Enrich", mock.Anything, "Nowhere Health", mock.Anything)
}
