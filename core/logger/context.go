package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

type ctxKey int

const (
	ctxMeta ctxKey = iota
	ctxLogger
)

// Meta correlates every log line produced while handling one inbound message.
// Telegram fills ChatID; WhatsApp leaves it zero and puts the masked phone in UserID.
type Meta struct {
	RID      string
	Bot      string
	UpdateID int
	UserID   string
	ChatID   int64
	Handler  string
}

// WithMeta replaces the correlation data carried by ctx.
func WithMeta(ctx context.Context, m Meta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMeta, m)
}

// MetaFrom returns the correlation data of ctx, zero when absent.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(ctxMeta).(Meta)
	return m
}

// WithRID sets the correlation id and keeps the rest of Meta.
func WithRID(ctx context.Context, rid string) context.Context {
	m := MetaFrom(ctx)
	m.RID = rid
	return WithMeta(ctx, m)
}

// WithHandler records the route name serving the message.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	m := MetaFrom(ctx)
	m.Handler = handler
	return WithMeta(ctx, m)
}

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// fields reports the non-empty parts of m under their log keys.
func (m Meta) fields(set func(key string, val any)) {
	if m.RID != "" {
		set("rid", m.RID)
	}
	if m.Bot != "" {
		set("bot", m.Bot)
	}
	if m.UpdateID != 0 {
		set("update_id", m.UpdateID)
	}
	if m.UserID != "" {
		set("user_id", m.UserID)
	}
	if m.ChatID != 0 {
		set("chat_id", m.ChatID)
	}
	if m.Handler != "" {
		set("handler", m.Handler)
	}
}

// BuildRID returns a correlation identifier in the format updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID shortens a numeric updateID:chatID:userID RID into base36 segments.
// Other formats, such as the UUIDs of webhook requests, come back unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}

// MaskPhone keeps the last four digits of a phone number: "+77011234567" -> "***4567".
func MaskPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 4 {
		return phone
	}
	var tail []rune
	for i := len(phone) - 1; i >= 0 && len(tail) < 4; i-- {
		if c := phone[i]; c >= '0' && c <= '9' {
			tail = append([]rune{rune(c)}, tail...)
		}
	}
	return "***" + string(tail)
}
