// Package readings keeps one meter-reading row per subscriber and month.
package readings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/internal/domain"
)

const component = "service.readings"

// MergeFunc computes the row to store from the last record and the current period row.
type MergeFunc func(last, current *domain.ReadingPeriod) (domain.ReadingPeriod, error)

// Store is the persistence required by Ledger.
type Store interface {
	LastRecord(ctx context.Context, subscriberID int64) (*domain.ReadingPeriod, error)
	// Apply loads the last record and the period row, calls merge and saves the
	// result as one unit, with concurrent writers for the same subscriber excluded.
	Apply(ctx context.Context, subscriberID int64, period string, merge MergeFunc) (domain.ReadingPeriod, error)
}

// Submission is one channel value typed by a user.
type Submission struct {
	SubscriberID int64
	// Period defaults to the month of ObservedAt.
	Period     string
	Channel    domain.WaterChannel
	Value      decimal.Decimal
	ObservedAt time.Time
	Source     string
	OperatorID int64
}

// Ledger validates and records readings.
type Ledger struct {
	store Store
	rules Rules
}

// NewLedger wires a Ledger; zero rules fall back to the defaults.
func NewLedger(store Store, rules Rules) (*Ledger, error) {
	if err := rules.Normalize(); err != nil {
		return nil, err
	}
	return &Ledger{store: store, rules: rules}, nil
}

// Rules returns the active validation rules.
func (l *Ledger) Rules() Rules { return l.rules }

// LastRecord returns the subscriber's most recently written row, or nil.
func (l *Ledger) LastRecord(ctx context.Context, subscriberID int64) (*domain.ReadingPeriod, error) {
	return l.store.LastRecord(ctx, subscriberID)
}

// Submit validates s and upserts the period row, touching only the submitted channel.
func (l *Ledger) Submit(ctx context.Context, s Submission) (domain.ReadingPeriod, error) {
	if !s.Channel.Valid() {
		return domain.ReadingPeriod{}, fmt.Errorf("readings: unknown channel %q", s.Channel)
	}
	if s.SubscriberID == 0 {
		return domain.ReadingPeriod{}, fmt.Errorf("readings: subscriber id is required")
	}
	if err := checkScale(s.Value); err != nil {
		return domain.ReadingPeriod{}, err
	}
	if s.Period == "" {
		s.Period = domain.PeriodOf(s.ObservedAt)
	}

	start := time.Now()
	row, err := l.store.Apply(ctx, s.SubscriberID, s.Period, func(last, current *domain.ReadingPeriod) (domain.ReadingPeriod, error) {
		return Merge(l.rules, s, last, current)
	})
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int64("subscriber_id", s.SubscriberID),
		slog.String("period", s.Period),
		slog.String("kind", string(s.Channel)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		if de, ok := domain.AsError(err); ok {
			attrs = append(attrs, slog.String("err_code", de.Code()))
			logger.Info(ctx, component, "submit", attrs...)
		} else {
			logger.Error(ctx, component, "submit", attrs...)
		}
		return domain.ReadingPeriod{}, err
	}
	logger.Info(ctx, component, "submit", attrs...)
	return row, nil
}
