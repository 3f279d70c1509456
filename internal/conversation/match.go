package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/meterdesk/internal/domain"
)

const displayDateLayout = "02.01.2006"

// match resolves an answer against the options of the last prompt: by value,
// then by label ignoring case, then by 1-based position.
func (t *turn) match(in string) (Option, bool) {
	in = strings.TrimSpace(in)
	if in == "" {
		return Option{}, false
	}
	opts := t.sess.Prompt
	for _, o := range opts {
		if o.Value == in {
			return o, true
		}
	}
	if t.ev.Kind == EventOption {
		return Option{}, false
	}
	for _, o := range opts {
		if strings.EqualFold(strings.TrimSpace(o.Label), in) {
			return o, true
		}
	}
	if n, err := strconv.Atoi(in); err == nil && n >= 1 && n <= len(opts) {
		return opts[n-1], true
	}
	return Option{}, false
}

// parseUserDate reads a typed date: ISO, dd.mm.yyyy or dd.mm. A bare day and
// month already behind today means next year, so late-December bookings work.
func parseUserDate(in string, today domain.Date) (domain.Date, error) {
	in = strings.TrimSpace(in)
	if d, err := domain.ParseDate(in); err == nil && len(in) == len("2006-01-02") {
		return d, nil
	}
	if t, err := time.Parse(displayDateLayout, in); err == nil {
		return domain.DateOf(t), nil
	}
	if t, err := time.Parse(dayLabelLayout, in); err == nil {
		d := domain.NewDate(today.Year(), t.Month(), t.Day())
		if d.Before(today) {
			d = domain.NewDate(today.Year()+1, t.Month(), t.Day())
		}
		return d, nil
	}
	return domain.Date{}, fmt.Errorf("unrecognized date %q", in)
}

// commandAliases maps typed shortcuts onto engine commands.
var commandAliases = map[string]string{"menu": CommandCancel}

// ParseCommand extracts the command from text such as "/cancel@meterbot now"
// and resolves aliases, so "/menu" reads as "cancel".
func ParseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", false
	}
	name := strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(name, " \t\n"); i >= 0 {
		name = name[:i]
	}
	name, _, _ = strings.Cut(name, "@")
	name = strings.ToLower(name)
	if alias, ok := commandAliases[name]; ok {
		name = alias
	}
	return name, name != ""
}
