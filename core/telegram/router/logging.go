// Package router turns a Registry into telebot routes and logs one summary
// line per handled update.
package router

import (
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/meterdesk/core/logger"
	tghelpers "github.com/m3rciful/meterdesk/core/telegram/helpers"
	"github.com/m3rciful/meterdesk/core/telegram/middleware"
	tgsender "github.com/m3rciful/meterdesk/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// handled runs fn as handler name and logs the outcome with the replies it queued.
func handled(c tele.Context, name string, fn tele.HandlerFunc, extras ...slog.Attr) error {
	ctx := tghelpers.WithHandler(c, name)
	start, ok := c.Get("update_start").(time.Time)
	if !ok {
		start = time.Now()
	}

	err := fn(c)

	replies, kb := middleware.GetCounters(c)
	attrs := append([]slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int("replies", replies),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.Took(start)),
	}, extras...)
	lvl := slog.LevelInfo
	if err != nil {
		lvl = slog.LevelWarn
		attrs = append(attrs,
			slog.String("cause", tgsender.Classify(err)),
			slog.String("err", logger.SanitizeLimit(tgsender.SanitizeError(err), 256)),
		)
	}
	logger.LogEvent(ctx, logger.TG, lvl, "handler.done", attrs...)
	return err
}

// handlerName maps "/Start" to "start" and "opt" to "callback.opt".
func handlerName(prefix, key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		key = "unknown"
	}
	if prefix != "" {
		key = prefix + "." + key
	}
	return key
}
