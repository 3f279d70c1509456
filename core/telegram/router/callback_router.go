package router

import (
	"log/slog"

	tg "github.com/m3rciful/meterdesk/core/telegram"
	"github.com/m3rciful/meterdesk/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute answers every inline-button press at once, clearing the
// client's spinner, and dispatches it by its unique key.
func CallbackRoute(reg *tg.Registry) tg.Route {
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler: func(c tele.Context) error {
			if c.Callback() == nil {
				return nil
			}
			_ = c.Respond()
			key := callbacks.CallbackKey(c)
			name := handlerName("callback", key)
			if h, ok := reg.GetCallback(key); ok {
				return handled(c, name, h, slog.String("cb_key", key))
			}
			return handled(c, name, reg.CallbackNotFound(),
				slog.String("cb_key", key),
				slog.String("reason", "not_found"),
			)
		},
	}
}
