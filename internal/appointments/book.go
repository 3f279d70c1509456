// Package appointments books technician visits for meter sealing.
package appointments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/internal/domain"
)

const component = "service.appointments"

// DefaultHorizonDays is how many days ahead, starting today, can be booked.
const DefaultHorizonDays = 14

// Store is the persistence required by Book.
type Store interface {
	// IsDateTaken reports whether the subscriber already has an open request on date.
	IsDateTaken(ctx context.Context, subscriberID int64, date domain.Date) (bool, error)
	// IsSlotTaken reports whether any open request holds date+slot.
	IsSlotTaken(ctx context.Context, date domain.Date, slot domain.Timeslot) (bool, error)
	// CreateExclusive re-checks both conflicts and inserts atomically. It
	// returns a Conflict error with ReasonDateTaken or ReasonSlotTaken.
	CreateExclusive(ctx context.Context, req domain.SealRequest) (domain.SealRequest, error)
}

// Request is what a conversation collects before booking.
type Request struct {
	SubscriberID int64
	Reason       string
	Date         domain.Date
	Slot         domain.Timeslot
	WaterKind    domain.WaterKind
	Channel      string
	OperatorID   int64
}

// Book validates dates and creates seal requests.
type Book struct {
	store       Store
	clock       domain.Clock
	horizonDays int
}

// NewBook wires a Book; horizonDays <= 0 uses DefaultHorizonDays.
func NewBook(store Store, clock domain.Clock, horizonDays int) *Book {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Book{store: store, clock: clock, horizonDays: horizonDays}
}

// Horizon lists the bookable days, today first.
func (b *Book) Horizon() []domain.Date {
	today := domain.Today(b.clock)
	out := make([]domain.Date, b.horizonDays)
	for i := range out {
		out[i] = today.AddDays(i)
	}
	return out
}

// CheckDate rejects days before today and days past the horizon.
func (b *Book) CheckDate(d domain.Date) error {
	today := domain.Today(b.clock)
	if d.Before(today) {
		return domain.Invalid(domain.ReasonDatePast, map[string]string{"date": d.String()})
	}
	if last := today.AddDays(b.horizonDays - 1); d.After(last) {
		return domain.Invalid(domain.ReasonDateOutOfRange, map[string]string{
			"date": d.String(),
			"last": last.String(),
		})
	}
	return nil
}

// IsDateTaken reports whether the subscriber already booked d.
func (b *Book) IsDateTaken(ctx context.Context, subscriberID int64, d domain.Date) (bool, error) {
	return b.store.IsDateTaken(ctx, subscriberID, d)
}

// IsSlotTaken reports whether slot on d is held by any open request.
func (b *Book) IsSlotTaken(ctx context.Context, d domain.Date, slot domain.Timeslot) (bool, error) {
	return b.store.IsSlotTaken(ctx, d, slot)
}

// FreeSlots returns the slots of d nobody holds, in display order.
func (b *Book) FreeSlots(ctx context.Context, d domain.Date) ([]domain.Timeslot, error) {
	free := make([]domain.Timeslot, 0, len(domain.Timeslots))
	for _, s := range domain.Timeslots {
		taken, err := b.store.IsSlotTaken(ctx, d, s)
		if err != nil {
			return nil, err
		}
		if !taken {
			free = append(free, s)
		}
	}
	return free, nil
}

// Create books the visit. The date is re-validated and both conflicts are
// re-checked by the store in the same transaction as the insert.
func (b *Book) Create(ctx context.Context, r Request) (domain.SealRequest, error) {
	if r.SubscriberID == 0 {
		return domain.SealRequest{}, fmt.Errorf("appointments: subscriber id is required")
	}
	if !r.Slot.Valid() {
		return domain.SealRequest{}, domain.Invalid(domain.ReasonInvalidChoice, map[string]string{"input": string(r.Slot)})
	}
	if err := b.CheckDate(r.Date); err != nil {
		return domain.SealRequest{}, err
	}
	kind := r.WaterKind
	if kind == "" {
		kind = domain.WaterUnspecified
	}
	hot, cold := kind.Flags()
	req := domain.SealRequest{
		SubscriberID:  r.SubscriberID,
		Reason:        strings.TrimSpace(r.Reason),
		IsHot:         hot,
		IsCold:        cold,
		ScheduledDate: r.Date,
		Timeslot:      r.Slot,
		Status:        domain.StatusNew,
		Channel:       r.Channel,
		OperatorID:    r.OperatorID,
		CreatedAt:     b.clock.Now(),
	}

	start := time.Now()
	saved, err := b.store.CreateExclusive(ctx, req)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int64("subscriber_id", r.SubscriberID),
		slog.String("date", r.Date.String()),
		slog.String("slot", string(r.Slot)),
		slog.String("channel", r.Channel),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		if de, ok := domain.AsError(err); ok {
			attrs = append(attrs, slog.String("err_code", de.Code()))
			logger.Info(ctx, component, "create", attrs...)
		} else {
			logger.Error(ctx, component, "create", attrs...)
		}
		return domain.SealRequest{}, err
	}
	logger.Info(ctx, component, "create", append(attrs, slog.Int64("request_id", saved.ID))...)
	return saved, nil
}
