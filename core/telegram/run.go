package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/meterdesk/core/config"
	"github.com/m3rciful/meterdesk/core/logger"
	tghelpers "github.com/m3rciful/meterdesk/core/telegram/helpers"
	tgsender "github.com/m3rciful/meterdesk/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const defaultPollTimeout = 10 * time.Second

// Middleware is a named global middleware registered via bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint (a command string, a
// tele.OnText constant or a callback).
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	// Name tags every log line of this bot; several bots may run in one process.
	Name     string
	Bot      coreconfig.BotConfig
	Registry *Registry

	// Dispatcher is created from DispatcherOptions when nil and closed on return
	// either way.
	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// KeepWebhook leaves a registered webhook in place when long polling.
	KeepWebhook bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Name       string
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// pollerFor picks the update source for cfg, which config.Normalize has
// already validated.
func pollerFor(cfg coreconfig.BotConfig) (tele.Poller, time.Duration) {
	if cfg.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}, 0
	}
	timeout := defaultPollTimeout
	if cfg.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}, timeout
}

// RunTelegram builds the bot, serves updates until ctx is done and then
// drains the dispatcher.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if !opts.Bot.Enabled() {
		return fmt.Errorf("telegram %s: empty token", opts.Name)
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	ctx = logger.WithMeta(ctx, logger.Meta{Bot: opts.Name})
	log := logger.TG.With("bot", opts.Name)

	poller, pollTimeout := pollerFor(opts.Bot)
	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  opts.Bot.Token,
		Poller: poller,
		Client: NewHTTPClient(pollTimeout),
		OnError: func(err error, c tele.Context) {
			ectx := ctx
			if c != nil {
				ectx = tghelpers.BuildContext(c)
			}
			logger.LogEvent(ectx, log, slog.LevelError, "handler.error",
				slog.String("status", "fail"),
				slog.String("cause", tgsender.Classify(err)),
				slog.String("err", tgsender.SanitizeError(err)),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("telegram %s: %s", opts.Name, tgsender.SanitizeError(err))
	}

	modeAttrs := []slog.Attr{
		slog.String("mode", opts.Bot.RunMode),
		slog.String("username", bot.Me.Username),
		slog.Duration("duration", logger.Took(start)),
	}
	if wh, ok := poller.(*tele.Webhook); ok {
		modeAttrs = append(modeAttrs, slog.String("listen", wh.Listen), slog.String("public_url", wh.Endpoint.PublicURL))
	} else {
		modeAttrs = append(modeAttrs, slog.Duration("poll_timeout", pollTimeout))
		if !opts.KeepWebhook {
			// A webhook left over from an earlier deployment blocks getUpdates.
			if err := bot.RemoveWebhook(false); err != nil {
				logger.LogEvent(ctx, log, slog.LevelWarn, "webhook.delete",
					slog.String("status", "fail"),
					slog.String("err", tgsender.SanitizeError(err)),
				)
			}
		}
	}
	logger.LogEvent(ctx, log, slog.LevelInfo, "bot.ready", modeAttrs...)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	defer dispatcher.Close()

	rt := Runtime{Name: opts.Name, Bot: bot, Dispatcher: dispatcher, Registry: reg}

	// Runs first so every later middleware and handler sees the bot name and
	// can enqueue replies.
	bot.Use(tghelpers.BotMiddleware(opts.Name, dispatcher))
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	InitBotCommands(ctx, bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
	case <-done:
	}
	logger.LogEvent(ctx, log, slog.LevelInfo, "bot.stopped",
		slog.Uint64("send_failures", dispatcher.ErrorCount()),
	)

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
