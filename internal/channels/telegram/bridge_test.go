package telegram

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/meterdesk/core/telegram/helpers"
	"github.com/m3rciful/meterdesk/core/telegram/sender"
	"github.com/m3rciful/meterdesk/internal/conversation"
)

type fakeEngine struct {
	events []conversation.Event
	resp   conversation.Response
	err    error
}

func (f *fakeEngine) Handle(_ context.Context, ev conversation.Event) (conversation.Response, error) {
	f.events = append(f.events, ev)
	return f.resp, f.err
}

type sentMessage struct {
	text   string
	markup *tele.ReplyMarkup
}

// recorder captures Send calls instead of talking to the Bot API.
type recorder struct {
	tele.Context
	sent []sentMessage
	// fails sends of message number failAt fail with a dial error.
	failAt int
	fails  int
}

func (r *recorder) Send(what interface{}, opts ...interface{}) error {
	if r.fails > 0 && len(r.sent) == r.failAt {
		r.fails--
		return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	m := sentMessage{text: what.(string)}
	for _, o := range opts {
		if rm, ok := o.(*tele.ReplyMarkup); ok {
			m.markup = rm
		}
	}
	r.sent = append(r.sent, m)
	return nil
}

func (r *recorder) texts() []string {
	out := make([]string, len(r.sent))
	for i, m := range r.sent {
		out[i] = m.text
	}
	return out
}

func textUpdate(userID int64, text string) *recorder {
	upd := tele.Update{ID: 7, Message: &tele.Message{
		Text:   text,
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
	}}
	return &recorder{Context: tele.NewContext(nil, upd)}
}

func callbackUpdate(userID int64, data string) *recorder {
	upd := tele.Update{ID: 8, Callback: &tele.Callback{
		Data:   data,
		Sender: &tele.User{ID: userID},
	}}
	return &recorder{Context: tele.NewContext(nil, upd)}
}

func TestHandleTextBuildsEvents(t *testing.T) {
	eng := &fakeEngine{resp: conversation.Response{Messages: []conversation.Message{{Text: "ok"}}}}
	b := NewBridge(conversation.ChannelClient, eng)

	c := textUpdate(42, "  12345 ")
	require.NoError(t, b.HandleText(c))
	c = textUpdate(42, "/foo@meterbot bar")
	require.NoError(t, b.HandleText(c))

	require.Len(t, eng.events, 2)
	require.Equal(t, conversation.Key{Channel: conversation.ChannelClient, UserID: "42"}, eng.events[0].Key)
	require.Equal(t, conversation.EventText, eng.events[0].Kind)
	require.Equal(t, "12345", eng.events[0].Payload)
	require.Equal(t, conversation.EventCommand, eng.events[1].Kind)
	require.Equal(t, "foo", eng.events[1].Payload)
	require.Len(t, c.sent, 1)
}

func TestHandleOptionUsesPayload(t *testing.T) {
	eng := &fakeEngine{}
	b := NewBridge(conversation.ChannelController, eng)

	require.NoError(t, b.HandleOption(callbackUpdate(5, "\fopt|2026-10-20")))
	require.Len(t, eng.events, 1)
	require.Equal(t, conversation.EventOption, eng.events[0].Kind)
	require.Equal(t, "2026-10-20", eng.events[0].Payload)
	require.Equal(t, conversation.ChannelController, eng.events[0].Key.Channel)
}

func TestCommandHandlersAndMedia(t *testing.T) {
	eng := &fakeEngine{}
	b := NewBridge(conversation.ChannelClient, eng)
	reg, err := b.Registry()
	require.NoError(t, err)

	_, cancel, ok := reg.LookupCommand("/menu")
	require.True(t, ok)
	require.NoError(t, cancel.Handler(textUpdate(1, "/menu")))
	require.NoError(t, b.HandleMedia(textUpdate(1, "")))

	require.Equal(t, conversation.CommandCancel, eng.events[0].Payload)
	require.Equal(t, conversation.EventCommand, eng.events[1].Kind)
	require.Equal(t, mediaCommand, eng.events[1].Payload)

	_, ok = reg.GetCallback(OptionUnique)
	require.True(t, ok)
}

func TestDispatchRendersAndReturnsEngineError(t *testing.T) {
	boom := errors.New("db down")
	eng := &fakeEngine{
		resp: conversation.Response{Messages: []conversation.Message{
			{Text: "failed"},
			{Text: "menu", Keyboard: &conversation.Keyboard{Columns: 2, Options: []conversation.Option{
				{Label: "A", Value: "a"}, {Label: "B", Value: "b"}, {Label: "C", Value: "c"},
			}}},
		}},
		err: boom,
	}
	b := NewBridge(conversation.ChannelClient, eng)
	c := textUpdate(3, "hi")

	require.ErrorIs(t, b.HandleText(c), boom)
	require.Len(t, c.sent, 2)
	require.Equal(t, "failed", c.sent[0].text)
	require.Nil(t, c.sent[0].markup)
	require.NotNil(t, c.sent[1].markup)
	require.Len(t, c.sent[1].markup.ReplyKeyboard, 2)
}

func TestSendFailsInlineWithoutDispatcher(t *testing.T) {
	b := NewBridge(conversation.ChannelClient, &fakeEngine{})
	c := textUpdate(3, "hi")
	c.failAt, c.fails = 0, 1

	require.Error(t, b.send(c, conversation.Response{Messages: []conversation.Message{{Text: "one"}}}))
	require.Empty(t, c.sent)
}

func TestSendRetryResumesAfterDeliveredMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := sender.NewDispatcher(sender.Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	b := NewBridge(conversation.ChannelClient, &fakeEngine{})
	c := textUpdate(3, "hi")
	c.failAt, c.fails = 1, 1
	resp := conversation.Response{Messages: []conversation.Message{{Text: "one"}, {Text: "two"}, {Text: "three"}}}

	send := tghelpers.BotMiddleware("client", d)(func(c tele.Context) error { return b.send(c, resp) })
	require.NoError(t, send(c))
	d.Close()

	require.Equal(t, []string{"one", "two", "three"}, c.texts())
	require.Zero(t, d.ErrorCount())
}

func TestMarkup(t *testing.T) {
	require.Nil(t, Markup(conversation.Message{Text: "x"}))

	rm := Markup(conversation.Message{RemoveKeyboard: true})
	require.NotNil(t, rm)
	require.True(t, rm.RemoveKeyboard)

	inline := Markup(conversation.Message{Keyboard: &conversation.Keyboard{
		Inline:  true,
		Columns: 4,
		Options: []conversation.Option{
			{Label: "18.10", Value: "2026-10-18"},
			{Label: "19.10", Value: "2026-10-19"},
			{Label: "20.10", Value: "2026-10-20"},
			{Label: "21.10", Value: "2026-10-21"},
			{Label: "22.10", Value: "2026-10-22"},
		},
	}})
	require.Len(t, inline.InlineKeyboard, 2)
	require.Len(t, inline.InlineKeyboard[0], 4)
	require.Equal(t, "18.10", inline.InlineKeyboard[0][0].Text)
	require.Equal(t, OptionUnique, inline.InlineKeyboard[0][0].Unique)
	require.Equal(t, "2026-10-22", inline.InlineKeyboard[1][0].Data)
}
