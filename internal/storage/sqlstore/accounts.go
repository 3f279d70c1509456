package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/m3rciful/meterdesk/internal/domain"
	"github.com/m3rciful/meterdesk/internal/fieldauth"
)

type subscriberRow struct {
	ID            int64  `db:"id"`
	AccountNumber string `db:"account_number"`
	DisplayName   string `db:"display_name"`
	CreatedAt     dbTime `db:"created_at"`
	LastSeenAt    dbTime `db:"last_seen_at"`
}

func (r subscriberRow) domain() domain.Subscriber {
	return domain.Subscriber{
		ID:            r.ID,
		AccountNumber: r.AccountNumber,
		DisplayName:   r.DisplayName,
		CreatedAt:     r.CreatedAt.Time,
		LastSeenAt:    r.LastSeenAt.Time,
	}
}

// MeterExists implements accounts.Store.
func (s *Store) MeterExists(ctx context.Context, account string) (bool, error) {
	var ok bool
	err := s.db.GetContext(ctx, &ok, s.rebind(
		`SELECT EXISTS (SELECT 1 FROM meters WHERE account_number = ?)`), account)
	if err != nil {
		return false, fmt.Errorf("meter exists: %w", err)
	}
	return ok, nil
}

// UpsertSubscriber implements accounts.Store.
func (s *Store) UpsertSubscriber(ctx context.Context, account string, seenAt time.Time) (domain.Subscriber, error) {
	var row subscriberRow
	ts := stamp(seenAt)
	err := s.db.GetContext(ctx, &row, s.rebind(`
		INSERT INTO subscribers (account_number, display_name, created_at, last_seen_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT (account_number) DO UPDATE SET last_seen_at = excluded.last_seen_at
		RETURNING id, account_number, display_name, created_at, last_seen_at`),
		account, ts, ts)
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("upsert subscriber: %w", err)
	}
	return row.domain(), nil
}

// AreaAccounts implements accounts.Store.
func (s *Store) AreaAccounts(ctx context.Context, areaID int64) ([]domain.AreaAccount, error) {
	var rows []struct {
		AccountNumber string `db:"account_number"`
		Street        string `db:"street"`
		Building      string `db:"building"`
		Apartment     string `db:"apartment"`
	}
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT account_number, street, building, apartment
		FROM area_accounts WHERE area_id = ? ORDER BY account_number`), areaID)
	if err != nil {
		return nil, fmt.Errorf("area accounts: %w", err)
	}
	out := make([]domain.AreaAccount, len(rows))
	for i, r := range rows {
		out[i] = domain.AreaAccount{
			AccountNumber: r.AccountNumber,
			Street:        r.Street,
			Building:      r.Building,
			Apartment:     r.Apartment,
		}
	}
	return out, nil
}

// ControllerByUsername implements fieldauth.Store.
func (s *Store) ControllerByUsername(ctx context.Context, username string) (domain.Controller, error) {
	var row struct {
		ID           int64  `db:"id"`
		Username     string `db:"username"`
		PasswordHash string `db:"password_hash"`
		AreaID       int64  `db:"area_id"`
		Active       bool   `db:"active"`
	}
	err := s.db.GetContext(ctx, &row, s.rebind(`
		SELECT id, username, password_hash, area_id, active
		FROM controllers WHERE lower(username) = lower(?)`), username)
	switch {
	case notFound(err):
		return domain.Controller{}, fieldauth.ErrNoController
	case err != nil:
		return domain.Controller{}, fmt.Errorf("controller by username: %w", err)
	}
	return domain.Controller{
		ID:           row.ID,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		AreaID:       row.AreaID,
		Active:       row.Active,
	}, nil
}
