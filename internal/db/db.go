// Package db owns the Postgres connection pool and the meddler wiring
// shared by every repository package.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/russross/meddler"
)

func init() {
	meddler.Default = meddler.PostgreSQL
}

// PoolConfig bounds the shared connection pool (spec §5: "a single database
// connection pool is shared").
type PoolConfig struct {
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
}

// DefaultPoolConfig returns production-sized pool settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConnections: 10,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    30 * time.Minute,
		ConnMaxIdleTime:    5 * time.Minute,
	}
}

// Open creates the shared *sql.DB pool over the pgx stdlib driver and
// verifies connectivity with a ping.
func Open(ctx context.Context, databaseURL string, cfg PoolConfig) (*sql.DB, error) {
	pool, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	pool.SetMaxOpenConns(cfg.MaxOpenConnections)
	pool.SetMaxIdleConns(cfg.MaxIdleConnections)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return pool, nil
}

// NewDedicatedConn opens a single, unpooled connection over the pgx stdlib
// driver. The Lock Manager uses this to hold one physical connection for the
// advisory lock's entire lifetime (spec §4.1).
func NewDedicatedConn(ctx context.Context, databaseURL string) (*sql.Conn, func() error, error) {
	single, openErr := sql.Open("pgx", databaseURL)
	if openErr != nil {
		return nil, nil, fmt.Errorf("opening dedicated postgres connection: %w", openErr)
	}
	single.SetMaxOpenConns(1)
	single.SetMaxIdleConns(1)

	conn, connErr := single.Conn(ctx)
	if connErr != nil {
		single.Close()
		return nil, nil, fmt.Errorf("acquiring dedicated postgres connection: %w", connErr)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		single.Close()
		return nil, nil, fmt.Errorf("pinging dedicated postgres connection: %w", err)
	}

	closeFn := func() error {
		connErr := conn.Close()
		dbErr := single.Close()
		if connErr != nil {
			return connErr
		}
		return dbErr
	}

	return conn, closeFn, nil
}
