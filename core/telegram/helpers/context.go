// Package helpers carries per-update state between telebot middlewares,
// routers and the outbound dispatcher.
package helpers

import (
	"context"
	"strconv"

	"github.com/m3rciful/meterdesk/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	ctxKey  = "tg_ctx"
	botKey  = "tg_bot"
	ridKey  = "rid"
	tgGroup = "tg"
)

// StoreContext caches ctx on the update for downstream helpers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(ctxKey, ctx)
}

// ContextFrom returns the context cached by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok
}

// UpdateMeta describes the update behind c for log correlation.
func UpdateMeta(c tele.Context) logger.Meta {
	m := logger.Meta{UpdateID: c.Update().ID}
	m.Bot, _ = c.Get(botKey).(string)

	var userID int64
	if u := c.Sender(); u != nil {
		userID = u.ID
		m.UserID = strconv.FormatInt(u.ID, 10)
	}
	if ch := c.Chat(); ch != nil {
		m.ChatID = ch.ID
	}
	m.RID, _ = c.Get(ridKey).(string)
	if m.RID == "" {
		m.RID = logger.BuildRID(m.UpdateID, m.ChatID, userID)
	}
	return m
}

// BuildContext returns the update's context, creating and caching it on first use.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}
	m := UpdateMeta(c)
	ctx := logger.WithMeta(logger.Background(), m)
	ctx = logger.WithLogger(ctx, logger.Component(tgGroup))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the cached context with the route serving the update.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(BuildContext(c), handler)
	StoreContext(c, ctx)
	return ctx
}
