package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/meterdesk/core/logger"
	tghelpers "github.com/m3rciful/meterdesk/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// idleAfter is how long an unused per-user limiter is kept.
const idleAfter = 10 * time.Minute

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	// Interval is the minimum spacing between updates of one user.
	Interval time.Duration
	// Exclude holds update kinds that bypass the limit: callback, message, inline_query.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

type limiterSet struct {
	every rate.Limit

	mu        sync.Mutex
	users     map[int64]*userLimiter
	lastPrune time.Time
}

func (s *limiterSet) allow(user int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastPrune) > idleAfter {
		for id, u := range s.users {
			if now.Sub(u.seen) > idleAfter {
				delete(s.users, id)
			}
		}
		s.lastPrune = now
	}
	u, ok := s.users[user]
	if !ok {
		u = &userLimiter{lim: rate.NewLimiter(s.every, 1)}
		s.users[user] = u
	}
	u.seen = now
	return u.lim.AllowN(now, 1)
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimit drops updates that arrive faster than opts.Interval per user.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	set := &limiterSet{every: rate.Every(opts.Interval), users: make(map[int64]*userLimiter)}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if set.allow(user.ID, time.Now()) {
				return next(c)
			}

			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "rate_limit",
				slog.String("status", "skip"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
