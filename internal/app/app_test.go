package app

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/meterdesk/core/bootstrap"
	coreconfig "github.com/m3rciful/meterdesk/core/config"
	coredatabase "github.com/m3rciful/meterdesk/core/database"
	coretelegram "github.com/m3rciful/meterdesk/core/telegram"
	"github.com/m3rciful/meterdesk/internal/config"
	"github.com/m3rciful/meterdesk/internal/conversation"
	"github.com/m3rciful/meterdesk/internal/storage/sqlstore"
	"github.com/m3rciful/meterdesk/migrations"
)

func newApp(t *testing.T, mutate func(*config.Config)) (*App, *sqlx.DB) {
	t.Helper()
	cfg := &config.Config{
		Database: coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "app.db")},
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Normalize())

	src, err := migrations.For(cfg.Database.Driver)
	require.NoError(t, err)
	res, err := bootstrap.Run(context.Background(), bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Migrations: src,
		LoggerInit: func(*coreconfig.Config) error { return nil },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.DB.Close() })

	a, err := New(cfg, res.DB)
	require.NoError(t, err)
	return a, res.DB
}

func TestRunWithoutChannels(t *testing.T) {
	a, _ := newApp(t, nil)
	require.ErrorIs(t, a.Run(context.Background()), ErrNoChannels)
}

func TestRunStartsEveryEnabledChannel(t *testing.T) {
	a, _ := newApp(t, func(c *config.Config) {
		c.ClientBot.Token = "1:client"
		c.ControllerBot.Token = "2:controller"
		c.WhatsApp.Enabled = true
	})

	var (
		mu     sync.Mutex
		names  []string
		routes []int
		addr   string
	)
	a.runTelegram = func(ctx context.Context, opts coretelegram.RunOptions) error {
		mu.Lock()
		names = append(names, opts.Name)
		routes = append(routes, len(opts.Routes))
		mu.Unlock()
		<-ctx.Done()
		return nil
	}
	boom := errors.New("listen failed")
	a.serveHTTP = func(_ context.Context, listen string, _ http.Handler) error {
		mu.Lock()
		addr = listen
		mu.Unlock()
		return boom
	}

	// A failing channel stops the others.
	require.ErrorIs(t, a.Run(context.Background()), boom)
	sort.Strings(names)
	require.Equal(t, []string{"client", "controller"}, names)
	for _, n := range routes {
		require.NotZero(t, n)
	}
	require.Equal(t, ":8080", addr)
}

func TestBotOptionsPickTheirToken(t *testing.T) {
	a, _ := newApp(t, func(c *config.Config) {
		c.ClientBot.Token = "1:client"
		c.ControllerBot.Token = "2:controller"
	})
	client, err := a.botOptions("client", conversation.ChannelClient, false)
	require.NoError(t, err)
	require.Equal(t, "1:client", client.Bot.Token)
	opts, err := a.botOptions("controller", conversation.ChannelController, true)
	require.NoError(t, err)
	require.Equal(t, "2:controller", opts.Bot.Token)
	_, _, ok := opts.Registry.LookupCommand("/start")
	require.True(t, ok)
}

func TestWhatsAppSessionsAreDurable(t *testing.T) {
	ctx := context.Background()
	a, db := newApp(t, nil)
	store := sqlstore.New(db)

	wa := conversation.Key{Channel: conversation.ChannelWhatsApp, UserID: "+77010000001"}
	_, err := a.Engine.Handle(ctx, conversation.Event{Key: wa, Kind: conversation.EventText, Payload: "hi"})
	require.NoError(t, err)
	_, ok, err := store.Sessions().Load(ctx, wa)
	require.NoError(t, err)
	require.True(t, ok)

	// Telegram sessions default to process memory.
	tg := conversation.Key{Channel: conversation.ChannelClient, UserID: "42"}
	_, err = a.Engine.Handle(ctx, conversation.Event{Key: tg, Kind: conversation.EventText, Payload: "hi"})
	require.NoError(t, err)
	_, ok, err = store.Sessions().Load(ctx, tg)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLSessionStoreForTelegram(t *testing.T) {
	ctx := context.Background()
	a, db := newApp(t, func(c *config.Config) { c.Session.Store = config.SessionStoreSQL })
	store := sqlstore.New(db)

	tg := conversation.Key{Channel: conversation.ChannelController, UserID: "7"}
	_, err := a.Engine.Handle(ctx, conversation.Event{Key: tg, Kind: conversation.EventText, Payload: "hi"})
	require.NoError(t, err)
	_, ok, err := store.Sessions().Load(ctx, tg)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewDefaultLanguage(t *testing.T) {
	a, db := newApp(t, func(c *config.Config) { c.Locale.DefaultLang = "kz" })

	cfg := *a.cfg
	cfg.Locale.DefaultLang = "fr"
	_, err := New(&cfg, db)
	require.Error(t, err)

	_, err = New(a.cfg, nil)
	require.Error(t, err)
}
