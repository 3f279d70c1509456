package readings_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/meterdesk/internal/domain"
	"github.com/m3rciful/meterdesk/internal/readings"
	"github.com/m3rciful/meterdesk/internal/storage/memory"
)

func newLedger(t *testing.T) (*readings.Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	l, err := readings.NewLedger(store, readings.Rules{})
	require.NoError(t, err)
	return l, store
}

func sub(ch domain.WaterChannel, v string, at time.Time) readings.Submission {
	return readings.Submission{
		SubscriberID: 1,
		Channel:      ch,
		Value:        decimal.RequireFromString(v),
		ObservedAt:   at,
		Source:       "test",
	}
}

func TestLedgerScenario(t *testing.T) {
	l, store := newLedger(t)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	row, err := l.Submit(ctx, sub(domain.ChannelCold, "12.500", t0))
	require.NoError(t, err)
	require.Equal(t, "12.500", readings.Format(row.Cold))
	require.True(t, row.Hot.IsZero())

	row, err = l.Submit(ctx, sub(domain.ChannelHot, "5.000", t0.Add(time.Hour)))
	require.NoError(t, err)
	require.Equal(t, "12.500", readings.Format(row.Cold))
	require.Equal(t, "5.000", readings.Format(row.Hot))

	_, err = l.Submit(ctx, sub(domain.ChannelCold, "10.000", t0.Add(2*time.Hour)))
	require.True(t, domain.IsValidation(err))
	require.True(t, domain.HasReason(err, domain.ReasonRegression))

	rows := store.Readings(1)
	require.Len(t, rows, 1, "one row per subscriber and period")
	require.Equal(t, "202610", rows[0].Period)
}

func TestLedgerEditWindowAcrossChannels(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	_, err := l.Submit(ctx, sub(domain.ChannelCold, "1", t0))
	require.NoError(t, err)

	_, err = l.Submit(ctx, sub(domain.ChannelHot, "2", t0.Add(25*time.Hour)))
	require.True(t, domain.HasReason(err, domain.ReasonEditWindow))

	last, err := l.LastRecord(ctx, 1)
	require.NoError(t, err)
	require.True(t, last.WrittenAt.Equal(t0), "rejected submissions do not touch the row")
}

func TestLedgerRegressionAcrossPeriods(t *testing.T) {
	l, store := newLedger(t)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 31, 20, 0, 0, 0, time.UTC)

	_, err := l.Submit(ctx, sub(domain.ChannelCold, "50", t0))
	require.NoError(t, err)

	_, err = l.Submit(ctx, sub(domain.ChannelCold, "49.999", t0.Add(5*time.Hour)))
	require.True(t, domain.HasReason(err, domain.ReasonRegression))

	row, err := l.Submit(ctx, sub(domain.ChannelHot, "3", t0.Add(5*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, "202611", row.Period)
	require.Equal(t, "50.000", readings.Format(row.Cold), "new period is seeded from the last record")
	require.Len(t, store.Readings(1), 2)
}

func TestLedgerRejectsBadInput(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	at := time.Now()

	_, err := l.Submit(ctx, readings.Submission{SubscriberID: 1, Channel: "warm", ObservedAt: at})
	require.Error(t, err)

	_, err = l.Submit(ctx, sub(domain.ChannelCold, "1.0001", at))
	require.True(t, domain.HasReason(err, domain.ReasonInvalidNumber))

	_, err = l.Submit(ctx, sub(domain.ChannelCold, "-1", at))
	require.True(t, domain.HasReason(err, domain.ReasonInvalidNumber))
}
