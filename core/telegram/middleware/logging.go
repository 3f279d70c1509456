// Package middleware holds the global telebot middlewares every bot runs:
// panic recovery, per-user rate limiting, receipt logging and reply counters.
package middleware

import (
	"log/slog"
	"time"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/meterdesk/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerOptions configures Logger.
type LoggerOptions struct {
	// RedactText logs the length of message text instead of the text itself.
	RedactText bool
}

// Logger assigns the update's rid, caches its context and logs a sampled
// receipt line. The controller bot sets RedactText since inspectors type
// passwords into it.
func Logger(opts LoggerOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			m := tghelpers.UpdateMeta(c)
			c.Set("rid", m.RID)
			c.Set("update_start", time.Now())
			ctx := logger.WithLogger(logger.WithMeta(logger.Background(), m), logger.TG)
			tghelpers.StoreContext(c, ctx)

			if logger.ShouldSampleDebug() {
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receiptAttrs(c, opts)...)
			}
			return next(c)
		}
	}
}

func receiptAttrs(c tele.Context, opts LoggerOptions) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if u := c.Sender(); u != nil && u.LanguageCode != "" {
		attrs = append(attrs, slog.String("lang", u.LanguageCode))
	}

	upd := c.Update()
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 64)),
			slog.String("payload", logger.SanitizeLimit(payload, 128)),
		)
	case upd.Message != nil:
		text := c.Text()
		switch {
		case text == "":
			attrs = append(attrs, slog.Bool("media", true))
		case opts.RedactText:
			attrs = append(attrs, slog.Int("payload_len", len(text)))
		default:
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(text, 256)))
		}
	}
	return attrs
}
