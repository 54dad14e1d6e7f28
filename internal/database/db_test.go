package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:   "Valid config",
			config: Config{Host: "localhost", Port: "5432", User: "postgres", DBName: "gathermap"},
		},
		{
			name:     "Missing host",
			config:   Config{Port: "5432", User: "postgres", DBName: "gathermap"},
			errorMsg: "database host is required",
		},
		{
			name:     "Missing port",
			config:   Config{Host: "localhost", User: "postgres", DBName: "gathermap"},
			errorMsg: "database port is required",
		},
		{
			name:     "Missing user",
			config:   Config{Host: "localhost", Port: "5432", DBName: "gathermap"},
			errorMsg: "database user is required",
		},
		{
			name:     "Missing database name",
			config:   Config{Host: "localhost", Port: "5432", User: "postgres"},
			errorMsg: "database name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.errorMsg, err.Error())
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	config := Config{
		Host:     "db.internal",
		Port:     "5433",
		User:     "gather",
		Password: "secret",
		DBName:   "gathermap",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=gather password=secret dbname=gathermap sslmode=require",
		config.DSN())
}

func TestNewConnection_InvalidConfig(t *testing.T) {
	_, err := NewConnection(context.Background(), Config{Port: "5432"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
}

func TestNewConnection_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping network test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := NewConnection(ctx, Config{
		Host:    "127.0.0.1",
		Port:    "1",
		User:    "postgres",
		DBName:  "gathermap",
		SSLMode: "disable",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func startPostgres(ctx context.Context, t *testing.T) Config {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "gathermap",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return Config{
		Host:     host,
		Port:     port.Port(),
		User:     "postgres",
		Password: "postgres",
		DBName:   "gathermap",
		SSLMode:  "disable",
	}
}

func TestGatheringRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pgConfig := startPostgres(ctx, t)
	db, err := NewConnection(ctx, pgConfig)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "schema must be idempotent")
	require.NoError(t, db.Health(ctx))

	repo := NewGatheringRepository(db, time.Hour)

	t.Run("missing gathering", func(t *testing.T) {
		_, err := repo.Get(ctx, "absent")
		assert.ErrorIs(t, err, ErrGatheringNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		g := sampleGathering()
		g.UpdatedAt = time.Now().UTC()
		require.NoError(t, repo.Save(ctx, g))

		loaded, err := repo.Get(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.Friends, loaded.Friends)
		assert.Equal(t, g.Generation, loaded.Generation)
	})

	t.Run("upsert replaces state", func(t *testing.T) {
		g := sampleGathering()
		g.UpdatedAt = time.Now().UTC()
		g.Friends = g.Friends[:1]
		g.Generation = 9
		require.NoError(t, repo.Save(ctx, g))

		loaded, err := repo.Get(ctx, g.ID)
		require.NoError(t, err)
		assert.Len(t, loaded.Friends, 1)
		assert.Equal(t, int64(9), loaded.Generation)
	})

	t.Run("expired rows are hidden and purged", func(t *testing.T) {
		g := sampleGathering()
		g.ID = fmt.Sprintf("old-%d", time.Now().UnixNano())
		g.UpdatedAt = time.Now().Add(-2 * time.Hour)
		require.NoError(t, repo.Save(ctx, g))

		_, err := repo.Get(ctx, g.ID)
		assert.ErrorIs(t, err, ErrGatheringNotFound)

		n, err := repo.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "g-1"))
		_, err := repo.Get(ctx, "g-1")
		assert.ErrorIs(t, err, ErrGatheringNotFound)
	})

	t.Run("transaction rollback", func(t *testing.T) {
		err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO gatherings (id, state) VALUES ('tx', '{}')`)
			require.NoError(t, err)
			return fmt.Errorf("abort")
		})
		require.Error(t, err)
		_, err = repo.Get(ctx, "tx")
		assert.ErrorIs(t, err, ErrGatheringNotFound)
	})

	t.Run("advisory lock blocks a second holder", func(t *testing.T) {
		unlock, err := repo.Lock(ctx, "g-lock")
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		_, err = repo.Lock(waitCtx, "g-lock")
		require.Error(t, err)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeDatabase))

		unlock()
		unlock2, err := repo.Lock(ctx, "g-lock")
		require.NoError(t, err)
		unlock2()
	})

	t.Run("failures surface as database errors", func(t *testing.T) {
		closed, err := NewConnection(ctx, pgConfig)
		require.NoError(t, err)
		require.NoError(t, closed.Close())

		_, err = NewGatheringRepository(closed, time.Hour).Get(ctx, "g-1")
		require.Error(t, err)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeDatabase))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeDatabase))
	})
}
