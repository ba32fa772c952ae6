package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/healthmap/internal/model"
)

// DefaultSQLitePath is used when no sqlite_path is configured.
const DefaultSQLitePath = "data/healthmap.db"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create directory")
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	failures    TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (*model.EntityRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM entities WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load %s", key)
	}
	rec, err := model.DecodeEntity([]byte(data))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode %s", key)
	}
	return &rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, rec model.EntityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrapf(err, "sqlite: encode %s", key)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (key, name, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET name = excluded.name, data = excluded.data, updated_at = excluded.updated_at`,
		key, rec.Name, string(data), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save %s", key)
	}
	return checkRowsAffected(res, "entity", key)
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM entities ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "sqlite: list keys iterate")
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]model.EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, data FROM entities ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load all")
	}
	defer rows.Close()

	var out []model.EntityRecord
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		rec, err := model.DecodeEntity([]byte(data))
		if err != nil {
			skipRecord("sqlite", key, err)
			continue
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load all iterate")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.Run) error {
	failures, err := json.Marshal(run.Failures)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal failures")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at, finished_at, succeeded, failed, failures) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Succeeded, run.Failed, string(failures),
	)
	return eris.Wrap(err, "sqlite: save run")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, started_at, finished_at, succeeded, failed, failures FROM runs ORDER BY started_at DESC LIMIT ?`,
		runLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not written: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var kind string
	var failures sql.NullString

	if err := row.Scan(&r.ID, &kind, &r.StartedAt, &r.FinishedAt, &r.Succeeded, &r.Failed, &failures); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Kind = model.RunKind(kind)
	if failures.Valid && failures.String != "" {
		if err := json.Unmarshal([]byte(failures.String), &r.Failures); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal failures")
		}
	}
	return &r, nil
}
