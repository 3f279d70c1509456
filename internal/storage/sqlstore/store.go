// Package sqlstore implements the domain stores on PostgreSQL or SQLite via sqlx.
//
// Queries are written with '?' placeholders and rebound per driver. Timestamps
// are written as fixed-width UTC text so they order correctly on SQLite and are
// parsed natively by PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	coredatabase "github.com/m3rciful/meterdesk/core/database"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func init() {
	sqlx.BindDriver(coredatabase.DriverSQLite, sqlx.QUESTION)
}

// Store is the SQL-backed implementation of every domain store.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New wraps an open connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, driver: db.DriverName()}
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) rebind(q string) string { return s.db.Rebind(q) }

func (s *Store) postgres() bool { return s.driver == coredatabase.DriverPostgres }

// inTx runs fn in a transaction and commits when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func stamp(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullStamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return stamp(*t)
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// dbTime scans timestamps stored natively or as text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Scan implements sql.Scanner.
func (d *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = dbTime{}
		return nil
	case time.Time:
		*d = dbTime{Time: v, Valid: true}
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	}
	return fmt.Errorf("unsupported time value %T", src)
}

func (d *dbTime) parse(s string) error {
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			*d = dbTime{Time: t, Valid: true}
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

// Value implements driver.Valuer so row structs can be written back as-is.
func (d dbTime) Value() (driver.Value, error) {
	if !d.Valid {
		return nil, nil
	}
	return stamp(d.Time), nil
}

func (d dbTime) ptr() *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

// uniqueViolation reports whether err is a unique-constraint failure and
// returns the violated constraint or column list.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "23505" {
			return pqErr.Constraint, true
		}
		return "", false
	}
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return err.Error(), true
	}
	return "", false
}

func notFound(err error) bool { return errors.Is(err, sql.ErrNoRows) }
