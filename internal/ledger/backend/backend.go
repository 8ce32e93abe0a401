package backend

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/tokligence/tokligence-iosched/internal/config"
	"github.com/tokligence/tokligence-iosched/internal/ledger"
	"github.com/tokligence/tokligence-iosched/internal/ledger/async"
	"github.com/tokligence/tokligence-iosched/internal/ledger/postgres"
	"github.com/tokligence/tokligence-iosched/internal/ledger/sqlite"
)

// Opened is a snapshot store plus the handle behind it for health checks.
type Opened struct {
	Store ledger.Store
	DB    *sql.DB
}

// Open picks the backend from cfg.SnapshotStore: postgres:// DSNs use
// Postgres, anything else is a SQLite file path. With buffered set, writes go
// through the async batch writer.
func Open(cfg config.IoschedConfig, buffered bool, logger *log.Logger) (*Opened, error) {
	var (
		store ledger.Store
		db    *sql.DB
	)
	if config.IsPostgresDSN(cfg.SnapshotStore) {
		pg, err := postgres.New(cfg.SnapshotStore, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns,
			cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return nil, fmt.Errorf("open postgres snapshot store: %w", err)
		}
		store, db = pg, pg.DB()
		log.Printf("[INFO] Ledger: using postgres snapshot store")
	} else {
		lite, err := sqlite.New(cfg.SnapshotStore)
		if err != nil {
			return nil, fmt.Errorf("open sqlite snapshot store %s: %w", cfg.SnapshotStore, err)
		}
		store, db = lite, lite.DB()
		log.Printf("[INFO] Ledger: using sqlite snapshot store %s", cfg.SnapshotStore)
	}

	if buffered {
		store = async.New(store, async.Config{
			BatchSize:     cfg.SnapshotBatchSize,
			FlushInterval: cfg.SnapshotFlushInterval,
			Logger:        logger,
		})
	}
	return &Opened{Store: store, DB: db}, nil
}
