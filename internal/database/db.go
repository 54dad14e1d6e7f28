package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

// ErrGatheringNotFound is returned by every gathering store for unknown ids
var ErrGatheringNotFound = errors.New("gathering not found")

type DB struct {
	*sql.DB
}

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the lib/pq key/value connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Validate reports the first missing connection field
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("database host is required")
	case c.Port == "":
		return fmt.Errorf("database port is required")
	case c.User == "":
		return fmt.Errorf("database user is required")
	case c.DBName == "":
		return fmt.Errorf("database name is required")
	}
	return nil
}

// NewConnection opens an otelsql-instrumented Postgres pool and pings it
func NewConnection(ctx context.Context, config Config) (*DB, error) {
	ctx = telemetry.EnsureCorrelationID(ctx)
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"host":      config.Host,
		"port":      config.Port,
		"database":  config.DBName,
		"ssl_mode":  config.SSLMode,
		"operation": "database_connection",
		"service":   "database",
	})

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Establishing database connection")

	db, err := telemetry.InstrumentDatabase("postgres", config.DSN(), config.DBName)
	if err != nil {
		logger.WithError(err).Error("Failed to open database connection")
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		logger.WithError(err).Error("Failed to ping database")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established successfully")
	return &DB{db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS gatherings (
	id         TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS gatherings_updated_at_idx ON gatherings (updated_at);
`

// Migrate creates the tables the gathering repository needs
func (db *DB) Migrate(ctx context.Context) error {
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Health pings the database
func (db *DB) Health(ctx context.Context) error {
	err := db.PingContext(ctx)
	if err != nil {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"operation": "database_health_check",
			"service":   "database",
		}).WithError(err).Error("Database health check failed")
	}
	return err
}

// WithTransaction runs fn inside a transaction, rolling back on error or panic
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation": "database_transaction",
		"service":   "database",
	})

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to begin transaction")
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			logger.WithField("panic", p).Error("Transaction panicked, rolling back")
			tx.Rollback()
			panic(p)
		} else if err != nil {
			logger.WithError(err).Warn("Transaction failed, rolling back")
			tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				logger.WithError(err).Error("Failed to commit transaction")
			}
		}
	}()

	return fn(tx)
}
