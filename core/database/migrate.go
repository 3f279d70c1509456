package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/meterdesk/core/logger"
)

// MigrationReport describes one migration run.
type MigrationReport struct {
	From, To uint
	// Applied lists the up files run, oldest first.
	Applied  []string
	Duration time.Duration
}

// migrateLog forwards golang-migrate's own progress lines at debug level.
type migrateLog struct{}

func (migrateLog) Printf(format string, v ...any) {
	logger.MIG.Debug("migrate", slog.String("event", "progress"),
		slog.String("msg", strings.TrimSpace(fmt.Sprintf(format, v...))))
}

func (migrateLog) Verbose() bool { return false }

// Migrate brings the schema to the newest version in source. It opens its own
// connection from cfg and refuses to touch a dirty schema.
func Migrate(cfg Config, source fs.FS) (MigrationReport, error) {
	var rep MigrationReport
	if err := cfg.Normalize(); err != nil {
		return rep, err
	}
	if source == nil {
		return rep, errors.New("migrate: nil source")
	}
	ups, err := upFiles(source)
	if err != nil {
		return rep, fmt.Errorf("migrate: list files: %w", err)
	}

	src, err := iofs.New(source, ".")
	if err != nil {
		return rep, fmt.Errorf("migrate: open source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.MigrateURL())
	if err != nil {
		return rep, fmt.Errorf("migrate: init %s: %w", cfg.Driver, err)
	}
	m.Log = migrateLog{}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.MIG.Warn("migrate close", slog.String("event", "close"),
				slog.String("err", errors.Join(srcErr, dbErr).Error()))
		}
	}()

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return rep, fmt.Errorf("migrate: read version: %w", err)
	case dirty:
		return rep, fmt.Errorf("migrate: schema is dirty at version %d; fix it by hand and force the version", from)
	}
	rep.From, rep.To = from, from

	start := time.Now()
	err = m.Up()
	rep.Duration = time.Since(start)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migrate", slog.String("event", "apply"), slog.String("status", "fail"),
			slog.Uint64("from_ver", uint64(from)), slog.Duration("duration", rep.Duration),
			slog.String("err", err.Error()))
		return rep, fmt.Errorf("migrate: up: %w", err)
	}
	if to, _, verr := m.Version(); verr == nil {
		rep.To = to
	}
	rep.Applied = between(ups, rep.From, rep.To)

	attrs := []any{
		slog.String("event", "summary"),
		slog.String("driver", cfg.Driver),
		slog.Uint64("from_ver", uint64(rep.From)),
		slog.Uint64("to_ver", uint64(rep.To)),
		slog.Int("applied", len(rep.Applied)),
		slog.Duration("duration", rep.Duration),
	}
	if preview, cut := logger.SummarizeStrings(rep.Applied, 6); preview != "" {
		attrs = append(attrs, slog.String("files", preview), slog.Bool("files_truncated", cut))
	}
	logger.MIG.Info("migrate", attrs...)
	return rep, nil
}

// RunMigrations is Migrate for callers that only need the error.
func RunMigrations(cfg Config, source fs.FS) error {
	_, err := Migrate(cfg, source)
	return err
}

// upFiles returns the *.up.sql names at the root of source in version order.
func upFiles(source fs.FS) ([]string, error) {
	names, err := fs.Glob(source, "*.up.sql")
	if err != nil {
		return nil, err
	}
	slices.SortFunc(names, func(a, b string) int { return int(fileVersion(a)) - int(fileVersion(b)) })
	return names, nil
}

// fileVersion parses the numeric prefix of "000003_seal_requests.up.sql".
func fileVersion(name string) uint {
	prefix, _, _ := strings.Cut(path.Base(name), "_")
	v, _ := strconv.ParseUint(prefix, 10, 32)
	return uint(v)
}

func between(files []string, from, to uint) []string {
	var out []string
	for _, f := range files {
		if v := fileVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
