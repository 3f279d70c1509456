package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/meterdesk/internal/domain"
	"github.com/m3rciful/meterdesk/internal/readings"
)

const readingColumns = `id, subscriber_id, period, cold, hot, written_at, cold_written_at,
	hot_written_at, tariff_code, meter_id, disabled, restricted, source, operator_id`

type readingRow struct {
	ID            int64           `db:"id"`
	SubscriberID  int64           `db:"subscriber_id"`
	Period        string          `db:"period"`
	Cold          decimal.Decimal `db:"cold"`
	Hot           decimal.Decimal `db:"hot"`
	WrittenAt     dbTime          `db:"written_at"`
	ColdWrittenAt dbTime          `db:"cold_written_at"`
	HotWrittenAt  dbTime          `db:"hot_written_at"`
	TariffCode    string          `db:"tariff_code"`
	MeterID       int64           `db:"meter_id"`
	Disabled      bool            `db:"disabled"`
	Restricted    bool            `db:"restricted"`
	Source        string          `db:"source"`
	OperatorID    sql.NullInt64   `db:"operator_id"`
}

func (r readingRow) domain() *domain.ReadingPeriod {
	return &domain.ReadingPeriod{
		ID:            r.ID,
		SubscriberID:  r.SubscriberID,
		Period:        r.Period,
		Cold:          r.Cold,
		Hot:           r.Hot,
		WrittenAt:     r.WrittenAt.Time,
		ColdWrittenAt: r.ColdWrittenAt.ptr(),
		HotWrittenAt:  r.HotWrittenAt.ptr(),
		TariffCode:    r.TariffCode,
		MeterID:       r.MeterID,
		Disabled:      r.Disabled,
		Restricted:    r.Restricted,
		Source:        r.Source,
		OperatorID:    r.OperatorID.Int64,
	}
}

// LastRecord implements readings.Store.
func (s *Store) LastRecord(ctx context.Context, subscriberID int64) (*domain.ReadingPeriod, error) {
	return s.lastRecord(ctx, s.db, subscriberID)
}

func (s *Store) lastRecord(ctx context.Context, q sqlx.QueryerContext, subscriberID int64) (*domain.ReadingPeriod, error) {
	var row readingRow
	err := sqlx.GetContext(ctx, q, &row, s.rebind(`SELECT `+readingColumns+`
		FROM reading_periods WHERE subscriber_id = ?
		ORDER BY written_at DESC, id DESC LIMIT 1`), subscriberID)
	switch {
	case notFound(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("last reading: %w", err)
	}
	return row.domain(), nil
}

// Apply implements readings.Store. On PostgreSQL the subscriber row is locked
// for the duration; SQLite runs on a single connection, so transactions are
// already serialized.
func (s *Store) Apply(ctx context.Context, subscriberID int64, period string, merge readings.MergeFunc) (domain.ReadingPeriod, error) {
	var out domain.ReadingPeriod
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if s.postgres() {
			if _, err := tx.ExecContext(ctx, `SELECT id FROM subscribers WHERE id = $1 FOR UPDATE`, subscriberID); err != nil {
				return fmt.Errorf("lock subscriber: %w", err)
			}
		}
		last, err := s.lastRecord(ctx, tx, subscriberID)
		if err != nil {
			return err
		}
		var current *domain.ReadingPeriod
		var row readingRow
		err = tx.GetContext(ctx, &row, s.rebind(`SELECT `+readingColumns+`
			FROM reading_periods WHERE subscriber_id = ? AND period = ?`), subscriberID, period)
		switch {
		case notFound(err):
		case err != nil:
			return fmt.Errorf("load period: %w", err)
		default:
			current = row.domain()
		}

		next, err := merge(last, current)
		if err != nil {
			return err
		}
		next.SubscriberID = subscriberID
		next.Period = period

		if current == nil {
			err = tx.GetContext(ctx, &next.ID, s.rebind(`
				INSERT INTO reading_periods (subscriber_id, period, cold, hot, written_at,
					cold_written_at, hot_written_at, tariff_code, meter_id, disabled,
					restricted, source, operator_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING id`),
				subscriberID, period,
				next.Cold.StringFixed(readings.Scale), next.Hot.StringFixed(readings.Scale),
				stamp(next.WrittenAt), nullStamp(next.ColdWrittenAt), nullStamp(next.HotWrittenAt),
				next.TariffCode, next.MeterID, next.Disabled, next.Restricted,
				next.Source, nullID(next.OperatorID))
			if err != nil {
				return fmt.Errorf("insert period: %w", err)
			}
		} else {
			_, err = tx.ExecContext(ctx, s.rebind(`
				UPDATE reading_periods SET cold = ?, hot = ?, written_at = ?,
					cold_written_at = ?, hot_written_at = ?, source = ?, operator_id = ?
				WHERE id = ?`),
				next.Cold.StringFixed(readings.Scale), next.Hot.StringFixed(readings.Scale),
				stamp(next.WrittenAt), nullStamp(next.ColdWrittenAt), nullStamp(next.HotWrittenAt),
				next.Source, nullID(next.OperatorID), next.ID)
			if err != nil {
				return fmt.Errorf("update period: %w", err)
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.ReadingPeriod{}, err
	}
	return out, nil
}
