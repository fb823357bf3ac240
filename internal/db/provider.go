package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/drover/drover/internal/common/config"
	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/db/dialect"
)

// Open creates the connection pool used by the task store, selecting the
// driver from configuration. The returned cleanup function closes all
// connections and must be called on shutdown.
func Open(cfg *config.DatabaseConfig, log *logger.Logger) (*Pool, func() error, error) {
	switch cfg.Driver {
	case dialect.SQLite3:
		writer, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		reader, err := OpenSQLiteReader(cfg.Path)
		if err != nil {
			_ = writer.Close()
			return nil, nil, fmt.Errorf("failed to open sqlite reader: %w", err)
		}
		pool := NewPool(sqlx.NewDb(writer, dialect.SQLite3), sqlx.NewDb(reader, dialect.SQLite3))
		if log != nil {
			log.Info("Database initialized",
				zap.String("db_driver", cfg.Driver),
				zap.String("db_path", cfg.Path))
		}
		cleanup := func() error {
			// PRAGMA optimize updates query planner statistics. SQLite
			// recommends running it before close.
			_, _ = writer.Exec("PRAGMA optimize")
			return pool.Close()
		}
		return pool, cleanup, nil

	case dialect.PGX:
		conn, err := OpenPostgres(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		// pgx pools internally, so a single *sqlx.DB serves both roles.
		dbx := sqlx.NewDb(conn, dialect.PGX)
		pool := NewPool(dbx, dbx)
		if log != nil {
			log.Info("Database initialized",
				zap.String("db_driver", cfg.Driver),
				zap.String("db_host", cfg.Host),
				zap.String("db_name", cfg.DBName))
		}
		return pool, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
