package closing

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appshared "github.com/parishbooks/parishbooks/internal/shared"
)

// MonthKey derives the advisory lock key for a calendar month.
func MonthKey(year, month int) int64 {
	return int64(year)*100 + int64(month)
}

// MonthLocker serializes close/reclose runs per month. TryAcquire never
// blocks: false means another run holds the key right now.
type MonthLocker interface {
	TryAcquire(ctx context.Context, key int64) (bool, error)
	Release(ctx context.Context, key int64) error
}

// AdvisoryLocker implements MonthLocker on postgres advisory locks.
// Advisory locks are session scoped, so each held key pins a dedicated pool
// connection until Release.
type AdvisoryLocker struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	held map[int64]*pgxpool.Conn
}

// NewAdvisoryLocker constructs AdvisoryLocker.
func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, held: make(map[int64]*pgxpool.Conn)}
}

func (l *AdvisoryLocker) TryAcquire(ctx context.Context, key int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var got bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
		conn.Release()
		return false, err
	}
	if !got {
		conn.Release()
		return false, nil
	}
	l.held[key] = conn
	return true, nil
}

func (l *AdvisoryLocker) Release(ctx context.Context, key int64) error {
	l.mu.Lock()
	conn, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)
	conn.Release()
	return err
}

// RedisLocker implements MonthLocker on SET NX with a TTL safety net, for
// deployments where closings run from multiple processes without a shared
// postgres session.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker constructs RedisLocker. ttl bounds how long a crashed run
// can leave a month locked.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key int64) (bool, error) {
	return l.client.SetNX(ctx, appshared.MonthLockKey(key), "1", l.ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key int64) error {
	return l.client.Del(ctx, appshared.MonthLockKey(key)).Err()
}

// LocalLocker implements MonthLocker in process, for single-instance
// deployments and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[int64]bool
}

// NewLocalLocker constructs LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[int64]bool)}
}

func (l *LocalLocker) TryAcquire(ctx context.Context, key int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *LocalLocker) Release(ctx context.Context, key int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
