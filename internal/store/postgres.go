package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore, so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	loadEntitySQL = `SELECT data FROM entities WHERE key = $1`
	saveEntitySQL = `INSERT INTO entities (key, name, data, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	failures    JSONB
);

CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) (*model.EntityRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, loadEntitySQL, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load %s", key)
	}
	rec, err := model.DecodeEntity(data)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: decode %s", key)
	}
	return &rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, rec model.EntityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrapf(err, "postgres: encode %s", key)
	}
	tag, err := s.pool.Exec(ctx, saveEntitySQL, key, rec.Name, data, time.Now().UTC())
	if err != nil {
		return eris.Wrapf(err, "postgres: save %s", key)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: entity not written: %s", key)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM entities ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "postgres: scan key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "postgres: list keys iterate")
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]model.EntityRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, data FROM entities ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load all")
	}
	defer rows.Close()

	var out []model.EntityRecord
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		rec, err := model.DecodeEntity(data)
		if err != nil {
			skipRecord("postgres", key, err)
			continue
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: load all iterate")
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.Run) error {
	failures, err := json.Marshal(run.Failures)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal failures")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, started_at, finished_at, succeeded, failed, failures) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, string(run.Kind), run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Succeeded, run.Failed, failures,
	)
	return eris.Wrap(err, "postgres: save run")
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, started_at, finished_at, succeeded, failed, failures FROM runs ORDER BY started_at DESC LIMIT $1`,
		runLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var kind string
		var failures []byte
		if err := rows.Scan(&r.ID, &kind, &r.StartedAt, &r.FinishedAt, &r.Succeeded, &r.Failed, &failures); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Kind = model.RunKind(kind)
		if len(failures) > 0 {
			if err := json.Unmarshal(failures, &r.Failures); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal failures")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
