// Package accounts resolves personal account numbers to subscribers.
package accounts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/internal/domain"
)

const component = "service.accounts"

// Store is the persistence required by Directory.
type Store interface {
	// MeterExists checks the billing registry. It must not create anything.
	MeterExists(ctx context.Context, account string) (bool, error)
	// UpsertSubscriber inserts the subscriber if absent, refreshes its last-seen
	// time and returns the stored row.
	UpsertSubscriber(ctx context.Context, account string, seenAt time.Time) (domain.Subscriber, error)
	AreaAccounts(ctx context.Context, areaID int64) ([]domain.AreaAccount, error)
}

// Directory answers "does this account exist" and "which subscriber is it".
type Directory struct {
	store Store
	clock domain.Clock
}

// NewDirectory wires a Directory.
func NewDirectory(store Store, clock domain.Clock) *Directory {
	return &Directory{store: store, clock: clock}
}

// Normalize strips whitespace users tend to type inside account numbers.
func Normalize(account string) string {
	return strings.Join(strings.Fields(account), "")
}

// Exists reports whether the account is known to the billing registry.
func (d *Directory) Exists(ctx context.Context, account string) (bool, error) {
	account = Normalize(account)
	if account == "" {
		return false, nil
	}
	start := time.Now()
	ok, err := d.store.MeterExists(ctx, account)
	logger.Debug(ctx, component, "exists",
		slog.String("status", logger.Status(err)),
		slog.String("account", account),
		slog.Bool("found", ok),
		slog.Duration("duration", logger.Took(start)),
	)
	return ok, err
}

// Resolve returns the subscriber for account, creating a shadow record on first contact.
func (d *Directory) Resolve(ctx context.Context, account string) (domain.Subscriber, error) {
	account = Normalize(account)
	if account == "" {
		return domain.Subscriber{}, domain.NotFound(domain.ReasonUnknownAccount, nil)
	}
	start := time.Now()
	sub, err := d.store.UpsertSubscriber(ctx, account, d.clock.Now())
	if err != nil {
		logger.Error(ctx, component, "resolve",
			slog.String("status", "fail"),
			slog.String("account", account),
			slog.String("err", err.Error()),
		)
		return domain.Subscriber{}, err
	}
	logger.Debug(ctx, component, "resolve",
		slog.String("status", "ok"),
		slog.String("account", account),
		slog.Int64("subscriber_id", sub.ID),
		slog.Duration("duration", logger.Took(start)),
	)
	return sub, nil
}

// AreaAccounts lists the accounts of a controller's area.
func (d *Directory) AreaAccounts(ctx context.Context, areaID int64) ([]domain.AreaAccount, error) {
	list, err := d.store.AreaAccounts(ctx, areaID)
	if err != nil {
		logger.Error(ctx, component, "area_accounts",
			slog.String("status", "fail"),
			slog.Int64("area_id", areaID),
			slog.String("err", err.Error()),
		)
		return nil, err
	}
	return list, nil
}
