// Package store persists entity records keyed by their normalized name.
package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/model"
)

// Store defines the persistence interface for entity records and run history.
// Keys are always produced by model.StorageKey.
type Store interface {
	// Entities
	Load(ctx context.Context, key string) (*model.EntityRecord, error)
	Save(ctx context.Context, key string, rec model.EntityRecord) error
	// LoadAll skips records that cannot be decoded and logs a warning.
	LoadAll(ctx context.Context) ([]model.EntityRecord, error)
	Keys(ctx context.Context) ([]string, error)

	// Runs
	SaveRun(ctx context.Context, run model.Run) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	Dir         string      `yaml:"dir" mapstructure:"dir"`
	SQLitePath  string      `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

const defaultRunLimit = 20

// Open constructs the configured backend and runs its migration.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case DriverJSON, "":
		st, err = NewFileStore(cfg.Dir)
	case DriverSQLite:
		st, err = NewSQLite(cfg.SQLitePath)
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver requires database_url")
		}
		st, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func runLimit(limit int) int {
	if limit <= 0 {
		return defaultRunLimit
	}
	return limit
}

func skipRecord(driver, key string, err error) {
	zap.L().Warn("store: skipping unreadable record",
		zap.String("driver", driver),
		zap.String("key", key),
		zap.Error(err),
	)
}
