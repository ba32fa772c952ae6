package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/healthmap/internal/model"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	st, err := NewFileStore(filepath.Join(t.TempDir(), "entities"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// backends runs fn against every store that needs no external service.
func backends(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Run("json", func(t *testing.T) { fn(t, newTestFileStore(t)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
}

func unitedHealth() model.EntityRecord {
	rec := model.NewEntityRecord("UnitedHealth Group", "Payer")
	rec.Revenue = "400B"
	rec.Subsidiaries = []string{"Optum", "UnitedHealthcare"}
	rec.Relationships = []model.Relationship{
		{Target: "Change Healthcare", Type: model.RelOwns, Attrs: map[string]json.RawMessage{"since": json.RawMessage(`2022`)}},
	}
	rec.Extra = map[string]json.RawMessage{"headquarters": json.RawMessage(`"Minnetonka, MN"`)}
	return rec
}

func TestStore_LoadMissing(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		rec, err := st.Load(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestStore_SaveAndLoad(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		rec := unitedHealth()
		key := model.StorageKey(rec.Name)
		require.NoError(t, st.Save(ctx, key, rec))

		got, err := st.Load(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rec, *got)
	})
}

func TestStore_SaveOverwrites(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		require.NoError(t, st.Save(ctx, "acme", model.NewEntityRecord("Acme", "Vendor")))
		require.NoError(t, st.Save(ctx, "acme", model.NewEntityRecord("Acme", "Provider")))

		got, err := st.Load(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Provider", got.Type)
	})
}

func TestStore_KeysAndLoadAll(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		keys, err := st.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)

		for _, name := range []string{"Kaiser Permanente", "Aetna", "CVS/Aetna"} {
			require.NoError(t, st.Save(ctx, model.StorageKey(name), model.NewEntityRecord(name, "Payer")))
		}

		keys, err = st.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"aetna", "cvs_aetna", "kaiser_permanente"}, keys)

		all, err := st.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "Aetna", all[0].Name)
		assert.Equal(t, "CVS/Aetna", all[1].Name)
	})
}

func TestFileStore_LoadAllSkipsUnreadableFiles(t *testing.T) {
	st := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, "aetna", model.NewEntityRecord("Aetna", "Payer")))
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), "broken.json"), []byte(`{"name": "Broken`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), "list.json"), []byte(`["not", "an", "entity"]`), 0o644))

	all, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Aetna", all[0].Name)

	_, err = st.Load(ctx, "broken")
	assert.Error(t, err, "a direct load still reports the bad file")
}

func TestSQLiteStore_LoadAllSkipsUndecodableRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, "humana", model.NewEntityRecord("Humana", "Payer")))
	_, err := st.db.ExecContext(ctx, `INSERT INTO entities (key, name, data) VALUES ('broken', 'Broken', '[1,2]')`)
	require.NoError(t, err)

	all, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Humana", all[0].Name)
}

func TestStore_Runs(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		for i, id := range []string{"run-a", "run-b", "run-c"} {
			run := model.Run{
				ID:         id,
				Kind:       model.RunKindBatch,
				StartedAt:  base.Add(time.Duration(i) * time.Hour),
				FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
				Succeeded:  4,
				Failed:     1,
				Failures:   []model.RunFailure{{Name: "Acme", Error: "unresolvable"}},
			}
			require.NoError(t, st.SaveRun(ctx, run))
		}

		runs, err := st.ListRuns(ctx, 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-c", runs[0].ID)
		assert.Equal(t, "run-b", runs[1].ID)
		assert.Equal(t, model.RunKindBatch, runs[0].Kind)
		assert.Equal(t, 4, runs[0].Succeeded)
		assert.Equal(t, []model.RunFailure{{Name: "Acme", Error: "unresolvable"}}, runs[0].Failures)
		assert.Equal(t, time.Minute, runs[0].Duration())
	})
}

func TestFileStore_PrettyPrintedLayout(t *testing.T) {
	st := newTestFileStore(t)
	require.NoError(t, st.Save(context.Background(), "acme", model.NewEntityRecord("Acme", "Vendor")))

	data, err := os.ReadFile(filepath.Join(st.Dir(), "acme.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"name\": \"Acme\"")
}

func TestFileStore_InvalidKey(t *testing.T) {
	st := newTestFileStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "..", "a/b", ".runs"} {
		assert.Error(t, st.Save(ctx, key, model.NewEntityRecord("x", "y")), key)
		_, err := st.Load(ctx, key)
		assert.Error(t, err, key)
	}
}

func TestFileStore_IgnoresNonRecordFiles(t *testing.T) {
	st := newTestFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, st.Save(context.Background(), "acme", model.NewEntityRecord("Acme", "Vendor")))

	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, keys)
}

func TestFileStore_MissingDirectory(t *testing.T) {
	st, err := NewFileStore(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)

	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFileStore_CorruptRecord(t *testing.T) {
	st := newTestFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), "broken.json"), []byte("{not json"), 0o644))

	_, err := st.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode broken")
}

func TestNewFileStore_DefaultDir(t *testing.T) {
	st, err := NewFileStore("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDir, st.Dir())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := Open(ctx, Config{Driver: DriverJSON, Dir: filepath.Join(dir, "entities")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)
	require.NoError(t, st.Close())

	st, err = Open(ctx, Config{Driver: DriverSQLite, SQLitePath: filepath.Join(dir, "nested", "h.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, Config{Driver: DriverPostgres})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")

	_, err = Open(ctx, Config{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestRunLimit(t *testing.T) {
	assert.Equal(t, defaultRunLimit, runLimit(0))
	assert.Equal(t, defaultRunLimit, runLimit(-3))
	assert.Equal(t, 7, runLimit(7))
}
