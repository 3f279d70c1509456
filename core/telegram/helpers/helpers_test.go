package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/core/telegram/sender"
)

func update() tele.Context {
	return tele.NewContext(nil, tele.Update{ID: 11, Message: &tele.Message{
		Text: "hi", Sender: &tele.User{ID: 5}, Chat: &tele.Chat{ID: -100},
	}})
}

func TestBuildContextCarriesMeta(t *testing.T) {
	var ctxMeta logger.Meta
	h := BotMiddleware("controller", nil)(func(c tele.Context) error {
		ctx := WithHandler(c, "dialog")
		ctxMeta = logger.MetaFrom(ctx)
		// Cached: later calls see the handler too.
		require.Equal(t, "dialog", logger.MetaFrom(BuildContext(c)).Handler)
		return nil
	})
	require.NoError(t, h(update()))
	require.Equal(t, logger.Meta{
		RID: "11:-100:5", Bot: "controller", UpdateID: 11, UserID: "5", ChatID: -100, Handler: "dialog",
	}, ctxMeta)
}

func TestSendAsyncInlineWithoutDispatcher(t *testing.T) {
	ran := false
	require.NoError(t, SendAsync(update(), "send.test", func() error { ran = true; return nil }))
	require.True(t, ran)
}

func TestSendAsyncFallsBackWhenClosed(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := sender.NewDispatcher(sender.Options{Workers: 1})
	d.Close()

	ran := false
	h := BotMiddleware("client", d)(func(c tele.Context) error {
		return SendAsync(c, "send.test", func() error { ran = true; return nil })
	})
	require.NoError(t, h(update()))
	require.True(t, ran)
}

func TestRecipient(t *testing.T) {
	require.Equal(t, int64(-100), recipient(update()))
	cb := tele.NewContext(nil, tele.Update{Callback: &tele.Callback{Sender: &tele.User{ID: 8}}})
	require.Equal(t, int64(8), recipient(cb))
}
