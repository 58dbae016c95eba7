package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists period lock rows. The database is the single source of
// truth for lock state; no application-level caching is permitted since
// multiple service instances must observe the same state.
type Repository interface {
	IsLocked(ctx context.Context, date time.Time) (bool, error)
	Get(ctx context.Context, firstOfMonth time.Time) (PeriodLock, bool, error)
	Upsert(ctx context.Context, firstOfMonth time.Time, locked bool, note string) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the postgres-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// IsLocked reports whether the month containing date is locked.
func (r *repository) IsLocked(ctx context.Context, date time.Time) (bool, error) {
	var locked bool
	err := r.db.QueryRow(ctx, `SELECT is_locked FROM gl_period_locks WHERE period_month=$1`, FirstOfMonth(date)).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return locked, nil
}

func (r *repository) Get(ctx context.Context, firstOfMonth time.Time) (PeriodLock, bool, error) {
	var lock PeriodLock
	var note *string
	err := r.db.QueryRow(ctx, `SELECT period_month, is_locked, note, updated_at FROM gl_period_locks WHERE period_month=$1`, firstOfMonth).
		Scan(&lock.PeriodMonth, &lock.IsLocked, &note, &lock.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PeriodLock{}, false, nil
		}
		return PeriodLock{}, false, err
	}
	if note != nil {
		lock.Note = *note
	}
	return lock, true, nil
}

// Upsert sets the lock flag for a month. An empty note preserves the
// existing note.
func (r *repository) Upsert(ctx context.Context, firstOfMonth time.Time, locked bool, note string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO gl_period_locks (period_month, is_locked, note)
VALUES ($1, $2, NULLIF($3, ''))
ON CONFLICT (period_month)
DO UPDATE SET is_locked = EXCLUDED.is_locked,
              note      = COALESCE(EXCLUDED.note, gl_period_locks.note),
              updated_at = NOW()`, firstOfMonth, locked, note)
	return err
}
