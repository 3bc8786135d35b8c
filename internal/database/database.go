package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/hxnx/tempo/config"
)

var (
	db   *sql.DB
	once sync.Once
)

func connectionString(cfg *config.DBConfig) string {
	if cfg.Driver == "sqlite3" {
		return cfg.Path
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Name, cfg.SSLMode,
	)
	if cfg.Password != "" {
		connStr += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return connStr
}

// Open connects to the configured driver, verifies the connection and applies
// migrations.
func Open(cfg *config.DBConfig) (*sql.DB, error) {
	conn, err := sql.Open(cfg.Driver, connectionString(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if cfg.Driver == "sqlite3" {
		// sqlite allows a single writer.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := runMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return conn, nil
}

// Initialize opens the shared connection once.
func Initialize(cfg *config.DBConfig) error {
	var initErr error

	once.Do(func() {
		db, initErr = Open(cfg)
		if initErr == nil {
			log.Info().Str("driver", cfg.Driver).Msg("Database connection established")
		}
	})

	return initErr
}

var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id TEXT PRIMARY KEY,
		prefix TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`,
}

func runMigrations(ctx context.Context, conn *sql.DB) error {
	for _, m := range migrations {
		if _, err := conn.ExecContext(ctx, m); err != nil {
			return errors.Wrapf(err, "failed to execute migration\nQuery: %s", m)
		}
	}
	log.Debug().Int("count", len(migrations)).Msg("Database migrations completed")
	return nil
}

func GetDB() *sql.DB {
	return db
}

func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}
