// Package app wires the services, the session stores and the enabled channels
// into one runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/meterdesk/core/logger"
	coretelegram "github.com/m3rciful/meterdesk/core/telegram"
	"github.com/m3rciful/meterdesk/internal/accounts"
	"github.com/m3rciful/meterdesk/internal/appointments"
	tgchannel "github.com/m3rciful/meterdesk/internal/channels/telegram"
	"github.com/m3rciful/meterdesk/internal/channels/whatsapp"
	"github.com/m3rciful/meterdesk/internal/config"
	"github.com/m3rciful/meterdesk/internal/conversation"
	"github.com/m3rciful/meterdesk/internal/domain"
	"github.com/m3rciful/meterdesk/internal/fieldauth"
	"github.com/m3rciful/meterdesk/internal/readings"
	"github.com/m3rciful/meterdesk/internal/storage/memory"
	"github.com/m3rciful/meterdesk/internal/storage/sqlstore"
	"github.com/m3rciful/meterdesk/internal/texts"
)

// ErrNoChannels is returned by Run when the configuration enables nothing.
var ErrNoChannels = errors.New("app: no channel enabled; set a bot token or whatsapp.enabled")

// App owns the conversation engine and the channel runners.
type App struct {
	cfg    *config.Config
	store  *sqlstore.Store
	Engine *conversation.Engine

	// runTelegram is swapped in tests.
	runTelegram func(ctx context.Context, opts coretelegram.RunOptions) error
	serveHTTP   func(ctx context.Context, addr string, h http.Handler) error
}

// New builds the services on top of db.
func New(cfg *config.Config, db *sqlx.DB) (*App, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("app: config and database are required")
	}
	cat, err := texts.Default()
	if err != nil {
		return nil, err
	}
	if cfg.Locale.DefaultLang != "" {
		if cat, err = cat.WithDefault(cfg.Locale.DefaultLang); err != nil {
			return nil, fmt.Errorf("locale.default_lang: %w", err)
		}
	}

	clock := domain.SystemClock{Location: cfg.Locale.Location()}
	store := sqlstore.New(db)
	ledger, err := readings.NewLedger(store, cfg.ReadingRules())
	if err != nil {
		return nil, err
	}

	engine, err := conversation.New(conversation.Options{
		Directory:    accounts.NewDirectory(store, clock),
		Ledger:       ledger,
		Book:         appointments.NewBook(store, clock, cfg.Rules.BookingHorizonDays),
		Auth:         fieldauth.NewAuthenticator(store),
		Sessions:     sessionStores(cfg, store),
		Texts:        cat,
		Clock:        clock,
		IdleTimeout:  cfg.Session.IdleTimeout,
		SupportPhone: cfg.Support.Phone,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:         cfg,
		store:       store,
		Engine:      engine,
		runTelegram: coretelegram.RunTelegram,
		serveHTTP: func(ctx context.Context, addr string, h http.Handler) error {
			return whatsapp.Serve(ctx, addr, h, nil)
		},
	}, nil
}

// WhatsApp sessions must survive restarts and scale-out, so they always live in
// the database; Telegram follows session.store.
func sessionStores(cfg *config.Config, store *sqlstore.Store) conversation.ChannelStores {
	durable := store.Sessions()
	var tg conversation.SessionStore = durable
	if cfg.Session.Store == config.SessionStoreMemory {
		tg = memory.NewSessions()
	}
	return conversation.ChannelStores{
		Default: tg,
		ByChannel: map[conversation.Channel]conversation.SessionStore{
			conversation.ChannelWhatsApp: durable,
		},
	}
}

// Run starts every enabled channel and blocks until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	channels := a.cfg.Channels()
	if len(channels) == 0 {
		return ErrNoChannels
	}
	logger.L.With("component", "app").Info("starting channels",
		slog.String("event", "start"),
		slog.Any("channels", channels),
	)

	var bots []coretelegram.RunOptions
	if a.cfg.ClientBot.Enabled() {
		opts, err := a.botOptions("client", conversation.ChannelClient, false)
		if err != nil {
			return err
		}
		bots = append(bots, opts)
	}
	if a.cfg.ControllerBot.Enabled() {
		// Controllers type their password into this bot.
		opts, err := a.botOptions("controller", conversation.ChannelController, true)
		if err != nil {
			return err
		}
		bots = append(bots, opts)
	}
	var wa *whatsapp.Handler
	if a.cfg.WhatsApp.Enabled {
		h, err := a.whatsAppHandler()
		if err != nil {
			return err
		}
		wa = h
	}

	// Everything that can fail synchronously is built before the first goroutine starts.
	g, ctx := errgroup.WithContext(ctx)
	for _, opts := range bots {
		g.Go(func() error { return a.runTelegram(ctx, opts) })
	}
	if wa != nil {
		g.Go(func() error { return a.serveHTTP(ctx, a.cfg.WhatsApp.Listen, wa.Routes()) })
	}
	return g.Wait()
}

func (a *App) botOptions(name string, ch conversation.Channel, redact bool) (coretelegram.RunOptions, error) {
	bot := a.cfg.ClientBot
	if ch == conversation.ChannelController {
		bot = a.cfg.ControllerBot
	}
	bridge := tgchannel.NewBridge(ch, a.Engine)
	reg, err := bridge.Registry()
	if err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("%s bot: %w", name, err)
	}
	return coretelegram.RunOptions{
		Name:     name,
		Bot:      bot,
		Registry: reg,
		Middlewares: coretelegram.DefaultMiddlewares(coretelegram.MiddlewareOptions{
			RateLimit:  a.cfg.RateLimit,
			RedactText: redact,
		}),
		Routes: bridge.Routes(reg),
	}, nil
}

func (a *App) whatsAppHandler() (*whatsapp.Handler, error) {
	wa := a.cfg.WhatsApp
	return whatsapp.NewHandler(whatsapp.Options{
		Engine:            a.Engine,
		Health:            a.store,
		Path:              wa.Path,
		PublicURL:         wa.PublicURL,
		AuthToken:         wa.AuthToken,
		ValidateSignature: wa.ValidateSignature,
	})
}
