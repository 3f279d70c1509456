package sqlstore

import (
	"context"
	"fmt"
	"time"
)

// UpsertArea creates or renames an area and returns its id.
func (s *Store) UpsertArea(ctx context.Context, code, name string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.rebind(`
		INSERT INTO areas (code, name) VALUES (?, ?)
		ON CONFLICT (code) DO UPDATE SET name = excluded.name
		RETURNING id`), code, name)
	if err != nil {
		return 0, fmt.Errorf("upsert area %s: %w", code, err)
	}
	return id, nil
}

// UpsertMeter registers an account in the billing registry.
func (s *Store) UpsertMeter(ctx context.Context, account, serial, address string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO meters (account_number, meter_serial, address) VALUES (?, ?, ?)
		ON CONFLICT (account_number, meter_serial) DO UPDATE SET address = excluded.address`),
		account, serial, address)
	if err != nil {
		return fmt.Errorf("upsert meter %s: %w", account, err)
	}
	return nil
}

// UpsertAreaAccount assigns an account and its address to an area.
func (s *Store) UpsertAreaAccount(ctx context.Context, areaID int64, account, street, building, apartment string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO area_accounts (area_id, account_number, street, building, apartment)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (area_id, account_number) DO UPDATE SET
			street = excluded.street, building = excluded.building, apartment = excluded.apartment`),
		areaID, account, street, building, apartment)
	if err != nil {
		return fmt.Errorf("upsert area account %s: %w", account, err)
	}
	return nil
}

// UpsertController creates or updates a controller login and returns its id.
func (s *Store) UpsertController(ctx context.Context, username, passwordHash string, areaID int64, active bool, now time.Time) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.rebind(`
		INSERT INTO controllers (username, password_hash, area_id, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET
			password_hash = excluded.password_hash, area_id = excluded.area_id, active = excluded.active
		RETURNING id`),
		username, passwordHash, areaID, active, stamp(now))
	if err != nil {
		return 0, fmt.Errorf("upsert controller %s: %w", username, err)
	}
	return id, nil
}
