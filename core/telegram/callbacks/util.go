package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData returns the unique key and payload of cb. Unique is taken
// from cb.Unique when telebot already split it, otherwise from Telebot's
// \f<unique>|<payload> encoding in Data.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	raw = strings.TrimPrefix(raw, "\\f")
	if cb.Unique != "" {
		// telebot strips the unique prefix from Data when it fills Unique.
		if rest, ok := strings.CutPrefix(raw, cb.Unique+"|"); ok {
			return cb.Unique, rest
		}
		return cb.Unique, raw
	}
	unique, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// CallbackKey returns the unique key of the current callback.
func CallbackKey(c tele.Context) string {
	k, _ := ParseCallbackData(c.Callback())
	return k
}

// CallbackPayload returns the payload of the current callback.
func CallbackPayload(c tele.Context) string {
	_, p := ParseCallbackData(c.Callback())
	return p
}
