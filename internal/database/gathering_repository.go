package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

// GatheringRepository persists gatherings as JSONB rows
type GatheringRepository struct {
	db  *DB
	ttl time.Duration
}

// NewGatheringRepository creates a repository; rows untouched for longer than ttl
// are treated as missing and removed by PurgeExpired. A zero ttl disables expiry.
func NewGatheringRepository(db *DB, ttl time.Duration) *GatheringRepository {
	return &GatheringRepository{db: db, ttl: ttl}
}

func (r *GatheringRepository) Get(ctx context.Context, id string) (*Gathering, error) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"gathering_id": id,
		"operation":    "get_gathering",
		"service":      "database",
	})

	var g Gathering
	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT state, updated_at FROM gatherings WHERE id = $1`, id,
	).Scan(&g, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGatheringNotFound
		}
		logger.WithError(err).Error("Failed to load gathering")
		return nil, apperrors.NewDatabaseError("load_gathering", err)
	}

	if r.ttl > 0 && time.Since(updatedAt) > r.ttl {
		logger.Debug("Gathering expired")
		return nil, ErrGatheringNotFound
	}

	return &g, nil
}

func (r *GatheringRepository) Save(ctx context.Context, g *Gathering) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gatherings (id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, g.ID, *g, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"gathering_id": g.ID,
			"operation":    "save_gathering",
			"service":      "database",
		}).WithError(err).Error("Failed to save gathering")
		return apperrors.NewDatabaseError("save_gathering", err)
	}
	return nil
}

func (r *GatheringRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM gatherings WHERE id = $1`, id); err != nil {
		return apperrors.NewDatabaseError("delete_gathering", err)
	}
	return nil
}

// PurgeExpired deletes rows older than the repository ttl and returns how many were removed
func (r *GatheringRepository) PurgeExpired(ctx context.Context) (int64, error) {
	if r.ttl <= 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM gatherings WHERE updated_at < $1`, time.Now().Add(-r.ttl))
	if err != nil {
		return 0, apperrors.NewDatabaseError("purge_expired", err)
	}
	return res.RowsAffected()
}

// Lock takes a session-level advisory lock on id so that replicas sharing the
// database serialize their read-modify-write cycles on the same gathering.
// The returned func releases the lock and hands the connection back to the pool.
func (r *GatheringRepository) Lock(ctx context.Context, id string) (func(), error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("lock_gathering", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, id); err != nil {
		conn.Close()
		return nil, apperrors.NewDatabaseError("lock_gathering", err)
	}

	return func() {
		// the caller's ctx may already be cancelled; the unlock must still run
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, id); err != nil {
			telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
				"gathering_id": id,
				"operation":    "unlock_gathering",
				"service":      "database",
			}).WithError(err).Warn("Failed to release advisory lock")
		}
		conn.Close()
	}, nil
}
