package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/meterdesk/internal/domain"
)

const (
	slotIndex = "seal_requests_slot_new_uq"
	dayIndex  = "seal_requests_subscriber_day_new_uq"
)

// IsDateTaken implements appointments.Store.
func (s *Store) IsDateTaken(ctx context.Context, subscriberID int64, date domain.Date) (bool, error) {
	return s.dateTaken(ctx, s.db, subscriberID, date)
}

// IsSlotTaken implements appointments.Store.
func (s *Store) IsSlotTaken(ctx context.Context, date domain.Date, slot domain.Timeslot) (bool, error) {
	return s.slotTaken(ctx, s.db, date, slot)
}

func (s *Store) dateTaken(ctx context.Context, q sqlx.QueryerContext, subscriberID int64, date domain.Date) (bool, error) {
	var ok bool
	err := sqlx.GetContext(ctx, q, &ok, s.rebind(`
		SELECT EXISTS (SELECT 1 FROM seal_requests
			WHERE subscriber_id = ? AND scheduled_date = ? AND status = ?)`),
		subscriberID, date.String(), domain.StatusNew)
	if err != nil {
		return false, fmt.Errorf("date taken: %w", err)
	}
	return ok, nil
}

func (s *Store) slotTaken(ctx context.Context, q sqlx.QueryerContext, date domain.Date, slot domain.Timeslot) (bool, error) {
	var ok bool
	err := sqlx.GetContext(ctx, q, &ok, s.rebind(`
		SELECT EXISTS (SELECT 1 FROM seal_requests
			WHERE scheduled_date = ? AND timeslot = ? AND status = ?)`),
		date.String(), string(slot), domain.StatusNew)
	if err != nil {
		return false, fmt.Errorf("slot taken: %w", err)
	}
	return ok, nil
}

// CreateExclusive implements appointments.Store. The checks give a precise
// reason in the common case; the partial unique indexes settle real races.
func (s *Store) CreateExclusive(ctx context.Context, req domain.SealRequest) (domain.SealRequest, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		taken, err := s.dateTaken(ctx, tx, req.SubscriberID, req.ScheduledDate)
		if err != nil {
			return err
		}
		if taken {
			return domain.Conflict(domain.ReasonDateTaken, nil)
		}
		if taken, err = s.slotTaken(ctx, tx, req.ScheduledDate, req.Timeslot); err != nil {
			return err
		}
		if taken {
			return domain.Conflict(domain.ReasonSlotTaken, nil)
		}
		err = tx.GetContext(ctx, &req.ID, s.rebind(`
			INSERT INTO seal_requests (subscriber_id, reason, is_hot, is_cold, scheduled_date,
				timeslot, status, channel, operator_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			req.SubscriberID, req.Reason, req.IsHot, req.IsCold, req.ScheduledDate.String(),
			string(req.Timeslot), req.Status, req.Channel, nullID(req.OperatorID), stamp(req.CreatedAt))
		if err != nil {
			return classifyBookingError(err)
		}
		return nil
	})
	if err != nil {
		return domain.SealRequest{}, err
	}
	return req, nil
}

func classifyBookingError(err error) error {
	what, ok := uniqueViolation(err)
	if !ok {
		return fmt.Errorf("insert seal request: %w", err)
	}
	// SQLite names the columns, PostgreSQL the index.
	if what == slotIndex || strings.Contains(what, "timeslot") {
		return domain.Conflict(domain.ReasonSlotTaken, err)
	}
	if what == dayIndex || strings.Contains(what, "subscriber_id") {
		return domain.Conflict(domain.ReasonDateTaken, err)
	}
	return domain.Conflict(domain.ReasonSlotTaken, err)
}
