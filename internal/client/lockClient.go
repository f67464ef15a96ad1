package client

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
	logger "github.com/sirupsen/logrus"
)

// PgAdvisoryLocker elects a single sweeper across replicas with a Postgres
// session advisory lock. The lock lives on one pooled connection that is
// held until release.
type PgAdvisoryLocker struct {
	pool *pgxpool.Pool
	key  int64
}

func NewPgAdvisoryLocker(ctx context.Context, databaseURL, name string) (*PgAdvisoryLocker, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect lock database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping lock database: %w", err)
	}

	return &PgAdvisoryLocker{pool: pool, key: lockKey(name)}, nil
}

// TryLock returns ok=false without waiting when another session holds the
// lock. release must be called when ok is true.
func (l *PgAdvisoryLocker) TryLock(ctx context.Context) (release func(), ok bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}

	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release = func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", l.key); err != nil {
			logger.WithError(err).Warn("release advisory lock")
		}
		conn.Release()
	}
	return release, true, nil
}

func (l *PgAdvisoryLocker) Close() {
	l.pool.Close()
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
