package telegram

import (
	"time"

	coreconfig "github.com/m3rciful/meterdesk/core/config"
	"github.com/m3rciful/meterdesk/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareOptions tunes DefaultMiddlewares for one bot.
type MiddlewareOptions struct {
	RateLimit coreconfig.RateLimitConfig
	OnLimited tele.HandlerFunc
	// RedactText keeps message bodies out of receipt logs, e.g. where users type passwords.
	RedactText bool
}

// DefaultMiddlewares builds the chain every bot runs: recovery, receipt
// logging, then rate limiting when an interval is configured.
func DefaultMiddlewares(opts MiddlewareOptions) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.Recover},
		{Name: "logger", Use: middleware.Logger(middleware.LoggerOptions{RedactText: opts.RedactText})},
	}
	if opts.RateLimit.IntervalMS > 0 {
		exclude := make(map[string]struct{}, len(opts.RateLimit.ExcludeUpdates))
		for _, kind := range opts.RateLimit.ExcludeUpdates {
			exclude[kind] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimit(middleware.RateLimitOptions{
				Interval:  time.Duration(opts.RateLimit.IntervalMS) * time.Millisecond,
				Exclude:   exclude,
				OnLimited: opts.OnLimited,
			}),
		})
	}
	return mws
}
