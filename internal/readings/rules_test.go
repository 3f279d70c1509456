package readings

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/meterdesk/internal/domain"
)

func TestParseValue(t *testing.T) {
	for in, want := range map[string]string{
		"12.5":          "12.500",
		"12,5":          "12.500",
		" 007 ":         "7.000",
		"0.001":         "0.001",
		"123,456":       "123.456",
		"999999999,999": "999999999.999",
		"0001234567.5":  "1234567.500",
	} {
		v, err := ParseValue(in)
		require.NoError(t, err, in)
		require.Equal(t, want, Format(v), in)
	}
	for _, in := range []string{"", "-1", "1.2345", "abc", "1.2.3", "1e3", ",5", "1000000000", "12345678901234,5"} {
		_, err := ParseValue(in)
		require.True(t, domain.HasReason(err, domain.ReasonInvalidNumber), in)
	}
}

func TestRulesNormalize(t *testing.T) {
	r := Rules{}
	require.NoError(t, r.Normalize())
	require.Equal(t, DefaultRules(), r)

	r = Rules{Policy: "weekly"}
	require.Error(t, r.Normalize())
}

func TestMergeSeedsNewPeriodFromLastRecord(t *testing.T) {
	at := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	coldAt := at.Add(-2 * time.Hour)
	last := &domain.ReadingPeriod{
		ID: 4, SubscriberID: 1, Period: "202610",
		Cold: decimal.RequireFromString("10"), Hot: decimal.RequireFromString("3"),
		WrittenAt: at.Add(-time.Hour), ColdWrittenAt: &coldAt,
		TariffCode: "T1", MeterID: 77, Restricted: true,
	}
	row, err := Merge(DefaultRules(), Submission{
		SubscriberID: 1, Period: "202611", Channel: domain.ChannelHot,
		Value: decimal.RequireFromString("4.25"), ObservedAt: at, Source: "client",
	}, last, nil)
	require.NoError(t, err)
	require.Zero(t, row.ID)
	require.Equal(t, "202611", row.Period)
	require.True(t, row.Cold.Equal(last.Cold))
	require.Equal(t, "4.250", Format(row.Hot))
	require.Equal(t, "T1", row.TariffCode)
	require.EqualValues(t, 77, row.MeterID)
	require.True(t, row.Restricted)
	require.Nil(t, row.ColdWrittenAt)
	require.NotNil(t, row.HotWrittenAt)
	require.True(t, row.WrittenAt.Equal(at))
}

func TestMergeRegressionComparesSameChannel(t *testing.T) {
	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	last := &domain.ReadingPeriod{
		Cold: decimal.RequireFromString("12.5"), Hot: decimal.RequireFromString("1"),
		WrittenAt: at,
	}
	_, err := Merge(DefaultRules(), Submission{
		Channel: domain.ChannelCold, Value: decimal.RequireFromString("12.499"), ObservedAt: at,
	}, last, last)
	de, ok := domain.AsError(err)
	require.True(t, ok)
	require.Equal(t, domain.ReasonRegression, de.Reason)
	require.Equal(t, "12.500", de.Vars["previous"])
	require.Equal(t, "12.499", de.Vars["value"])

	// Equal values are not a regression.
	_, err = Merge(DefaultRules(), Submission{
		Channel: domain.ChannelHot, Value: decimal.RequireFromString("1.000"), ObservedAt: at,
	}, last, last)
	require.NoError(t, err)
}

func TestMergeEditWindowPolicies(t *testing.T) {
	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	hotAt := at.Add(-30 * time.Hour)
	last := &domain.ReadingPeriod{
		Cold: decimal.RequireFromString("1"), Hot: decimal.RequireFromString("1"),
		WrittenAt: at.Add(-25 * time.Hour), HotWrittenAt: &hotAt,
	}
	cold := Submission{Channel: domain.ChannelCold, Value: decimal.RequireFromString("2"), ObservedAt: at}

	_, err := Merge(DefaultRules(), cold, last, nil)
	require.True(t, domain.HasReason(err, domain.ReasonEditWindow))

	perChannel := Rules{EditWindow: 24 * time.Hour, Policy: WindowPerChannel}
	_, err = Merge(perChannel, cold, last, nil)
	require.NoError(t, err, "cold was never written on the last record")

	hot := cold
	hot.Channel = domain.ChannelHot
	_, err = Merge(perChannel, hot, last, nil)
	require.True(t, domain.HasReason(err, domain.ReasonEditWindow))

	// Exactly at the boundary is still allowed.
	last.WrittenAt = at.Add(-24 * time.Hour)
	_, err = Merge(DefaultRules(), cold, last, nil)
	require.NoError(t, err)
}
