package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/meterdesk/core/config"
	"github.com/m3rciful/meterdesk/core/telegram/commands"
)

func noop(tele.Context) error { return nil }

func TestRegisterCommandValidates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start"}))
	require.NoError(t, reg.RegisterCommand("/debug", commands.Command{Handler: noop, Hidden: true}))

	require.Error(t, reg.RegisterCommand("start", commands.Command{Handler: noop, Description: "x"}))
	require.Error(t, reg.RegisterCommand("/", commands.Command{Handler: noop, Description: "x"}))
	require.Error(t, reg.RegisterCommand("/x", commands.Command{Description: "x"}))
	require.Error(t, reg.RegisterCommand("/x", commands.Command{Handler: noop}))
	require.Error(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "again"}))

	require.Equal(t, []tele.Command{{Text: "/start", Description: "Start"}}, reg.menu())
	require.Len(t, reg.Commands(), 2)
}

func TestLookupCommandResolvesAliases(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCommand("/cancel", commands.Command{Handler: noop, Description: "Cancel", Aliases: []string{"menu", "/stop"}}))

	for _, in := range []string{"/cancel", "cancel", "/menu", "menu", "/stop"} {
		key, _, ok := reg.LookupCommand(in)
		require.True(t, ok, in)
		require.Equal(t, "/cancel", key)
	}
	_, _, ok := reg.LookupCommand("/help")
	require.False(t, ok)
}

func TestCallbacks(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCallback("opt", noop))
	require.Error(t, reg.RegisterCallback("opt", noop))
	require.Error(t, reg.RegisterCallback("", noop))
	require.Equal(t, 1, reg.CallbackCount())

	_, ok := reg.GetCallback("opt")
	require.True(t, ok)
	_, ok = reg.GetCallback("nope")
	require.False(t, ok)

	require.NotNil(t, reg.CallbackNotFound())
	called := false
	reg.SetCallbackNotFound(func(tele.Context) error { called = true; return nil })
	reg.SetCallbackNotFound(nil)
	require.NoError(t, reg.CallbackNotFound()(nil))
	require.True(t, called)
}

func TestPollerFor(t *testing.T) {
	p, timeout := pollerFor(coreconfig.BotConfig{RunMode: coreconfig.RunModeLongpoll, LongPollTimeoutSeconds: 25})
	require.IsType(t, &tele.LongPoller{}, p)
	require.Equal(t, 25*time.Second, timeout)

	_, timeout = pollerFor(coreconfig.BotConfig{RunMode: coreconfig.RunModeLongpoll})
	require.Equal(t, defaultPollTimeout, timeout)

	p, _ = pollerFor(coreconfig.BotConfig{RunMode: coreconfig.RunModeWebhook, Webhook: coreconfig.WebhookConfig{
		Listen: "0.0.0.0", Port: 8443, URL: "https://bots.example.org/client",
	}})
	wh, ok := p.(*tele.Webhook)
	require.True(t, ok)
	require.Equal(t, "0.0.0.0:8443", wh.Listen)
	require.Equal(t, "https://bots.example.org/client", wh.Endpoint.PublicURL)
}

func TestHTTPClientOutlivesLongPoll(t *testing.T) {
	require.Equal(t, clientTimeout, NewHTTPClient(0).Timeout)
	require.Equal(t, 60*time.Second, NewHTTPClient(50*time.Second).Timeout)
	_, ok := NewHTTPClient(0).Transport.(*redialTransport)
	require.True(t, ok)
}
