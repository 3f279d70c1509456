// Package bootstrap brings up the infrastructure every command needs:
// logger, database pool, schema and seed data, in that order.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/meterdesk/core/config"
	coredatabase "github.com/m3rciful/meterdesk/core/database"
	"github.com/m3rciful/meterdesk/core/logger"
)

// Options control the bootstrap pipeline shared by every command.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	// Migrations holds the *.sql files for Database.Driver. Nil skips migrations.
	Migrations fs.FS
	Seeders    []Seeder

	// The hooks below default to the real implementations; tests replace them.
	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config, fs.FS) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

func (o *Options) defaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
}

// Run executes the pipeline. On failure after the pool is open the pool is
// closed again, so the caller owns Result.DB only on success.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	opts.defaults()

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}

	start := time.Now()
	db, err := opts.Connect(ctx, opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database: %w", err)
	}

	if err := prepare(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.DB.Info("bootstrap",
		slog.String("event", "bootstrap.done"),
		slog.Bool("migrated", opts.Migrations != nil),
		slog.Int("seeders", len(opts.Seeders)),
		slog.Duration("duration", logger.Took(start)),
	)
	return &Result{DB: db}, nil
}

func prepare(ctx context.Context, db *sqlx.DB, opts Options) error {
	if opts.Migrations != nil {
		if err := opts.Migrate(opts.Database, opts.Migrations); err != nil {
			return fmt.Errorf("bootstrap: migrations: %w", err)
		}
	}
	for i, s := range opts.Seeders {
		if s == nil {
			continue
		}
		if err := s.Seed(ctx, db); err != nil {
			return fmt.Errorf("bootstrap: seeder %d: %w", i+1, err)
		}
	}
	return nil
}
