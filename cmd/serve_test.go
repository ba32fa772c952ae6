package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/healthmap/internal/model"
	"github.com/sells-group/healthmap/internal/pipeline"
	"github.com/sells-group/healthmap/internal/store"
)

type fakeRunner struct {
	out *model.Outcome
	err error
	got string
}

func (f *fakeRunner) Run(_ context.Context, name string) (*model.Outcome, error) {
	f.got = name
	return f.out, f.err
}

type fakeInferrer struct {
	n   int
	err error
}

func (f *fakeInferrer) Run(context.Context) (int, error) {
	return f.n, f.err
}

func newTestServer(t *testing.T, runner entityRunner, inferrer inferRunner) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "entities"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	return newRouter(&server{store: st, pipeline: runner, inferrer: inferrer}), st
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t, &fakeRunner{}, &fakeInferrer{})

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestListEntities(t *testing.T) {
	h, st := newTestServer(t, &fakeRunner{}, &fakeInferrer{})

	rr := do(t, h, http.MethodGet, "/entities", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rec := model.NewEntityRecord("Aetna", "Payer")
	require.NoError(t, st.Save(context.Background(), model.StorageKey(rec.Name), rec))

	rr = do(t, h, http.MethodGet, "/entities", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var recs []model.EntityRecord
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "Aetna", recs[0].Name)
}

func TestGetEntity(t *testing.T) {
	h, st := newTestServer(t, &fakeRunner{}, &fakeInferrer{})

	rec := model.NewEntityRecord("Kaiser Permanente", "Integrated")
	rec.Subsidiaries = []string{"Kaiser Foundation Hospitals"}
	require.NoError(t, st.Save(context.Background(), model.StorageKey(rec.Name), rec))

	rr := do(t, h, http.MethodGet, "/entities/Kaiser%20Permanente", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.EntityRecord
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "Integrated", got.Type)
	assert.Equal(t, []string{"Kaiser Foundation Hospitals"}, got.Subsidiaries)
}

func TestGetEntity_NotFound(t *testing.T) {
	h, _ := newTestServer(t, &fakeRunner{}, &fakeInferrer{})

	rr := do(t, h, http.MethodGet, "/entities/Humana", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "entity not found")
}

func TestProcessEntity(t *testing.T) {
	rec := model.NewEntityRecord("Cigna", "Payer")
	runner := &fakeRunner{out: &model.Outcome{
		Name:     "Cigna",
		Key:      "cigna",
		Record:   &rec,
		Warnings: []string{"revenue missing"},
		Trace:    []model.Stage{model.StageScraping, model.StageDone},
	}}
	h, _ := newTestServer(t, runner, &fakeInferrer{})

	rr := do(t, h, http.MethodPost, "/entities", []byte(`{"name":"Cigna"}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Cigna", runner.got)

	var resp outcomeResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "cigna", resp.Key)
	assert.Equal(t, model.StageDone, resp.Stage)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "Payer", resp.Record.Type)
	assert.Equal(t, []string{"revenue missing"}, resp.Warnings)
	assert.Empty(t, resp.Error)
}

func TestProcessEntity_Unresolvable(t *testing.T) {
	err := &pipeline.UnresolvableError{Name: "Nowhere Health", Cause: eris.New("no candidates")}
	runner := &fakeRunner{
		out: &model.Outcome{Name: "Nowhere Health", Key: "nowhere_health", Trace: []model.Stage{model.StageAborted}, Err: err},
		err: err,
	}
	h, _ := newTestServer(t, runner, &fakeInferrer{})

	rr := do(t, h, http.MethodPost, "/entities", []byte(`{"name":"Nowhere Health"}`))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var resp outcomeResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, model.StageAborted, resp.Stage)
	assert.NotEmpty(t, resp.Error)
}

func TestProcessEntity_CollaboratorFailure(t *testing.T) {
	err := &pipeline.CollaboratorError{Stage: model.StagePersisting, Err: eris.New("disk full")}
	runner := &fakeRunner{
		out: &model.Outcome{Name: "Aetna", Key: "aetna", Trace: []model.Stage{model.StageAborted}, Err: err},
		err: err,
	}
	h, _ := newTestServer(t, runner, &fakeInferrer{})

	rr := do(t, h, http.MethodPost, "/entities", []byte(`{"name":"Aetna"}`))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "disk full")
}

func TestProcessEntity_BadRequest(t *testing.T) {
	h, _ := newTestServer(t, &fakeRunner{}, &fakeInferrer{})

	rr := do(t, h, http.MethodPost, "/entities", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/entities", []byte(`{"name":""}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "name is required")
}

func TestInfer(t *testing.T) {
	h, _ := newTestServer(t, &fakeRunner{}, &fakeInferrer{n: 3})

	rr := do(t, h, http.MethodPost, "/infer", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"updated":3}`, rr.Body.String())
}

func TestInfer_NoEntities(t *testing.T) {
	h, _ := newTestServer(t, &fakeRunner{}, &fakeInferrer{err: pipeline.ErrNoEntities})

	rr := do(t, h, http.MethodPost, "/infer", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestInfer_Failure(t *testing.T) {
	h, _ := newTestServer(t, &fakeRunner{}, &fakeInferrer{err: eris.New("provider down")})

	rr := do(t, h, http.MethodPost, "/infer", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "provider down")
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t, &fakeRunner{}, &fakeInferrer{})

	req := httptest.NewRequest(http.MethodOptions, "/entities", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestServer(t, &fakeRunner{}, &fakeInferrer{})

	rr := do(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
