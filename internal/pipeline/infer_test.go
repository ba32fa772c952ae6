package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/healthmap/internal/enrich"
	"github.com/sells-group/healthmap/internal/model"
	"github.com/sells-group/healthmap/internal/store"
)

func newInferStore(t *testing.T, records ...model.EntityRecord) *store.FileStore {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "entities"))
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, st.Save(context.Background(), rec.Key(), rec))
	}
	return st
}

func TestInferrer_EmptyStore(t *testing.T) {
	enricher := &mockEnricher{}
	n, err := NewInferrer(enricher, newInferStore(t), 0).Run(context.Background())
	require.ErrorIs(t, err, ErrNoEntities)
	assert.Zero(t, n)
	enricher.AssertNotCalled(t, "InferAll", mock.Anything, mock.Anything)
}

func TestInferrer_SavesVerbatim(t *testing.T) {
	aetna := model.NewEntityRecord("Aetna", "Payer")
	aetna.Subsidiaries = []string{"Aetna Better Health"}
	cvs := model.NewEntityRecord("CVS Health", "Integrated")
	st := newInferStore(t, aetna, cvs)

	inferredAetna := model.NewEntityRecord("Aetna", "Payer")
	inferredAetna.Relationships = []model.Relationship{{Target: "CVS Health", Type: model.RelOwnedBy}}
	inferredCVS := model.NewEntityRecord("CVS Health", "Integrated")
	inferredCVS.Relationships = []model.Relationship{{Target: "Aetna", Type: model.RelOwns}}
	nameless := model.NewEntityRecord("", "Vendor")

	enricher := &mockEnricher{}
	enricher.On("InferAll", mock.Anything, mock.MatchedBy(func(recs []model.EntityRecord) bool {
		return len(recs) == 2 && recs[0].Name == "Aetna" && recs[1].Name == "CVS Health"
	})).Return([]model.EntityRecord{inferredAetna, nameless, inferredCVS}, nil)

	n, err := NewInferrer(enricher, st, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.Load(context.Background(), "aetna")
	require.NoError(t, err)
	// Not merged: the subsidiary the model dropped is gone.
	assert.Equal(t, inferredAetna, *got)

	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aetna", "cvs_health"}, keys)
	enricher.AssertExpectations(t)
}

func TestInferrer_NewNameIsWrittenUnderItsOwnKey(t *testing.T) {
	st := newInferStore(t, model.NewEntityRecord("Aetna", "Payer"))

	enricher := &mockEnricher{}
	enricher.On("InferAll", mock.Anything, mock.Anything).Return([]model.EntityRecord{
		model.NewEntityRecord("Aetna Inc.", "Payer"),
	}, nil)

	n, err := NewInferrer(enricher, st, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aetna", "aetna_inc."}, keys)
}

func TestInferrer_InferError(t *testing.T) {
	st := newInferStore(t, model.NewEntityRecord("Aetna", "Payer"))
	inferErr := &enrich.Error{Kind: enrich.KindExtraction, Err: errors.New("no array")}

	enricher := &mockEnricher{}
	enricher.On("InferAll", mock.Anything, mock.Anything).Return(nil, inferErr)

	n, err := NewInferrer(enricher, st, 0).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, enrich.ErrExtraction))
	assert.Zero(t, n)

	got, err := st.Load(context.Background(), "aetna")
	require.NoError(t, err)
	assert.Equal(t, model.NewEntityRecord("Aetna", "Payer"), *got)
}

func TestInferrer_LoadAllError(t *testing.T) {
	st := &mockStore{}
	st.On("LoadAll", mock.Anything).Return(nil, errors.New("permission denied"))

	_, err := NewInferrer(&mockEnricher{}, st, 0).Run(context.Background())
	var ce *CollaboratorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, model.StageLoading, ce.Stage)
}

func TestInferrer_SaveErrorStopsAndReportsCount(t *testing.T) {
	records := []model.EntityRecord{
		model.NewEntityRecord("Aetna", "Payer"),
		model.NewEntityRecord("Cigna", "Payer"),
	}
	st := &mockStore{}
	st.On("LoadAll", mock.Anything).Return(records, nil)
	st.On("Save", mock.Anything, "aetna", records[0]).Return(nil)
	st.On("Save", mock.Anything, "cigna", records[1]).Return(errors.New("disk full"))

	enricher := &mockEnricher{}
	enricher.On("InferAll", mock.Anything, records).Return(records, nil)

	n, err := NewInferrer(enricher, st, 0).Run(context.Background())
	var ce *CollaboratorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, model.StagePersisting, ce.Stage)
	assert.Equal(t, 1, n)
	st.AssertExpectations(t)
}
