package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/model"
)

// DefaultDir is where the json driver keeps one file per entity.
const DefaultDir = "data/entities"

const runsDir = ".runs"

// FileStore implements Store as a directory of pretty-printed JSON files,
// one per key.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir (DefaultDir when empty).
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory records are written to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Migrate(_ context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.dir, runsDir), 0o755); err != nil {
		return eris.Wrap(err, "file: create directory")
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || filepath.Base(key) != key || strings.HasPrefix(key, ".") {
		return "", eris.Errorf("file: invalid key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *FileStore) Load(_ context.Context, key string) (*model.EntityRecord, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file: read %s", key)
	}
	rec, err := model.DecodeEntity(data)
	if err != nil {
		return nil, eris.Wrapf(err, "file: decode %s", key)
	}
	return &rec, nil
}

func (s *FileStore) Save(_ context.Context, key string, rec model.EntityRecord) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "file: encode %s", key)
	}
	return eris.Wrapf(writeAtomic(p, data), "file: write %s", key)
}

func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "file: list directory")
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) LoadAll(ctx context.Context) ([]model.EntityRecord, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.EntityRecord, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "file: load all")
		}
		rec, err := s.Load(ctx, key)
		if err != nil {
			skipRecord("file", key, err)
			continue
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *FileStore) SaveRun(_ context.Context, run model.Run) error {
	if run.ID == "" || filepath.Base(run.ID) != run.ID {
		return eris.Errorf("file: invalid run id %q", run.ID)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return eris.Wrap(err, "file: encode run")
	}
	p := filepath.Join(s.dir, runsDir, run.ID+".json")
	return eris.Wrapf(writeAtomic(p, data), "file: write run %s", run.ID)
}

func (s *FileStore) ListRuns(_ context.Context, limit int) ([]model.Run, error) {
	dir := filepath.Join(s.dir, runsDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "file: list runs")
	}
	var runs []model.Run
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "file: read run %s", e.Name())
		}
		var r model.Run
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrapf(err, "file: decode run %s", e.Name())
		}
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if n := runLimit(limit); len(runs) > n {
		runs = runs[:n]
	}
	return runs, nil
}

// writeAtomic writes via a temp file and rename so readers never observe a
// partially written record.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
