package readings

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/meterdesk/internal/domain"
)

// WindowPolicy decides which write time the edit window is measured from.
type WindowPolicy string

const (
	// WindowLastRecord measures from the subscriber's last write on any channel.
	WindowLastRecord WindowPolicy = "last_record"
	// WindowPerChannel measures from the last write of the submitted channel only.
	WindowPerChannel WindowPolicy = "per_channel"
)

// DefaultEditWindow is how long a submission stays correctable.
const DefaultEditWindow = 24 * time.Hour

// Scale is the number of fractional digits a reading carries.
const Scale = 3

// IntDigits bounds the integer part; the columns are NUMERIC(12,3).
const IntDigits = 9

var maxValue = decimal.New(1, IntDigits)

var valuePattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Rules configures the ledger's validation.
type Rules struct {
	EditWindow time.Duration
	Policy     WindowPolicy
}

// DefaultRules returns a 24h window measured from the last record.
func DefaultRules() Rules {
	return Rules{EditWindow: DefaultEditWindow, Policy: WindowLastRecord}
}

// Normalize fills zero values and rejects unknown policies.
func (r *Rules) Normalize() error {
	if r.EditWindow <= 0 {
		r.EditWindow = DefaultEditWindow
	}
	switch r.Policy {
	case "":
		r.Policy = WindowLastRecord
	case WindowLastRecord, WindowPerChannel:
	default:
		return fmt.Errorf("invalid edit window policy %q; allowed: last_record, per_channel", r.Policy)
	}
	return nil
}

// ParseValue reads a user-typed meter value. Both '.' and ',' work as the
// decimal separator; negatives, more than three fractional digits and more
// than nine integer digits are rejected.
func ParseValue(text string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	if !valuePattern.MatchString(s) {
		return decimal.Decimal{}, domain.Invalid(domain.ReasonInvalidNumber, map[string]string{"input": text})
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, domain.Invalid(domain.ReasonInvalidNumber, map[string]string{"input": text})
	}
	if err := checkScale(v); err != nil {
		return decimal.Decimal{}, err
	}
	return v, nil
}

// Format renders a reading with the ledger's fixed scale.
func Format(v decimal.Decimal) string {
	return v.StringFixed(Scale)
}

func checkScale(v decimal.Decimal) error {
	if v.IsNegative() || !v.Equal(v.Truncate(Scale)) || v.GreaterThanOrEqual(maxValue) {
		return domain.Invalid(domain.ReasonInvalidNumber, map[string]string{"input": v.String()})
	}
	return nil
}

// Merge validates s against the subscriber's last record and returns the row to
// persist for s.Period. current is the existing row for that period, if any.
// Only the submitted channel changes on an existing row; a new row copies the
// other channel and the carry-over metadata from last.
func Merge(rules Rules, s Submission, last, current *domain.ReadingPeriod) (domain.ReadingPeriod, error) {
	if last != nil {
		prev := last.Value(s.Channel)
		if prev.GreaterThan(s.Value) {
			return domain.ReadingPeriod{}, domain.Invalid(domain.ReasonRegression, map[string]string{
				"previous": Format(prev),
				"value":    Format(s.Value),
			})
		}
		if ref, ok := windowStart(rules, last, s.Channel); ok && s.ObservedAt.Sub(ref) > rules.EditWindow {
			return domain.ReadingPeriod{}, domain.Invalid(domain.ReasonEditWindow, map[string]string{
				"hours": fmt.Sprintf("%.0f", rules.EditWindow.Hours()),
			})
		}
	}

	var row domain.ReadingPeriod
	switch {
	case current != nil:
		row = *current
	default:
		row = domain.ReadingPeriod{SubscriberID: s.SubscriberID, Period: s.Period}
		if last != nil {
			row.Cold = last.Cold
			row.Hot = last.Hot
			row.TariffCode = last.TariffCode
			row.MeterID = last.MeterID
			row.Disabled = last.Disabled
			row.Restricted = last.Restricted
		}
	}
	row.Set(s.Channel, s.Value, s.ObservedAt)
	row.Source = s.Source
	if s.OperatorID != 0 {
		row.OperatorID = s.OperatorID
	}
	return row, nil
}

func windowStart(rules Rules, last *domain.ReadingPeriod, ch domain.WaterChannel) (time.Time, bool) {
	if rules.Policy == WindowPerChannel {
		if at := last.ChannelWrittenAt(ch); at != nil {
			return *at, true
		}
		return time.Time{}, false
	}
	return last.WrittenAt, true
}
