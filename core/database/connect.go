// Package database opens the SQL pool and applies the embedded schema for
// the two supported drivers, PostgreSQL and SQLite.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/meterdesk/core/logger"
)

const (
	// startupWait bounds how long Connect waits for a PostgreSQL server that
	// is still starting, e.g. next to the bot in docker compose.
	startupWait  = 30 * time.Second
	pingTimeout  = 2 * time.Second
	pingInterval = 2 * time.Second
	connMaxIdle  = 5 * time.Minute
)

// Connect opens the pool for cfg and returns once the database answers.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	db, err := sqlx.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	db.SetConnMaxIdleTime(connMaxIdle)

	wait := time.Duration(0)
	if cfg.Driver == DriverPostgres {
		wait = startupWait
	}
	start := time.Now()
	attempts, err := pingUntil(ctx, db, wait)
	attrs := []any{
		slog.String("event", "db.connect"),
		slog.String("driver", cfg.Driver),
		slog.String("db", cfg.target()),
		slog.Int("attempts", attempts),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		_ = db.Close()
		logger.DB.Error("db connect", append(attrs, slog.String("status", "fail"), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect %s: %w", cfg.target(), err)
	}
	logger.DB.Info("db connect", append(attrs, slog.String("status", "ok"))...)
	return db, nil
}

// pingUntil pings db until it answers, ctx ends or wait has passed. A zero
// wait allows a single attempt.
func pingUntil(ctx context.Context, db *sqlx.DB, wait time.Duration) (int, error) {
	deadline := time.Now().Add(wait)
	for attempt := 1; ; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := db.PingContext(pctx)
		cancel()
		if err == nil {
			return attempt, nil
		}
		if time.Now().Add(pingInterval).After(deadline) {
			return attempt, err
		}
		logger.DB.Debug("db ping", slog.String("event", "db.wait"),
			slog.Int("attempt", attempt), slog.String("err", err.Error()))
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(pingInterval):
		}
	}
}
