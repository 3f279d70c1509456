// Package telegram connects the client and controller bots to the conversation engine.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/meterdesk/core/logger"
	coretelegram "github.com/m3rciful/meterdesk/core/telegram"
	"github.com/m3rciful/meterdesk/core/telegram/callbacks"
	"github.com/m3rciful/meterdesk/core/telegram/commands"
	tghelpers "github.com/m3rciful/meterdesk/core/telegram/helpers"
	"github.com/m3rciful/meterdesk/core/telegram/middleware"
	"github.com/m3rciful/meterdesk/core/telegram/router"
	"github.com/m3rciful/meterdesk/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

// OptionUnique is the callback key of every inline option button.
const OptionUnique = "opt"

// mediaCommand sends non-text messages through the engine's unsupported-command
// path, which repeats the pending question.
const mediaCommand = "media"

// Engine is the part of conversation.Engine the bots use.
type Engine interface {
	Handle(ctx context.Context, ev conversation.Event) (conversation.Response, error)
}

// Bridge turns telebot updates into conversation events and renders the replies.
type Bridge struct {
	channel conversation.Channel
	engine  Engine
}

// NewBridge builds a bridge for one bot.
func NewBridge(channel conversation.Channel, engine Engine) *Bridge {
	return &Bridge{channel: channel, engine: engine}
}

// Registry declares the bot commands and the option callback.
func (b *Bridge) Registry() (*coretelegram.Registry, error) {
	reg := coretelegram.NewRegistry()
	err := errors.Join(
		reg.RegisterCommand("/"+conversation.CommandStart, commands.Command{
			Handler:     b.command(conversation.CommandStart),
			Description: "Start over",
		}),
		reg.RegisterCommand("/"+conversation.CommandCancel, commands.Command{
			Handler:     b.command(conversation.CommandCancel),
			Description: "Back to the main menu",
			Aliases:     []string{"menu"},
		}),
		reg.RegisterCallback(OptionUnique, b.HandleOption),
	)
	// Buttons from older deployments or foreign keys re-ask the current question.
	reg.SetCallbackNotFound(func(c tele.Context) error {
		return b.dispatch(c, conversation.EventCommand, mediaCommand)
	})
	return reg, err
}

// Routes wires commands, callbacks, text and media to the bridge.
func (b *Bridge) Routes(reg *coretelegram.Registry) []coretelegram.Route {
	routes := router.CommandRoutes(reg)
	routes = append(routes, router.CallbackRoute(reg))
	routes = append(routes, router.TextRoutes(b, reg, router.TextOptions{UnknownMedia: b.HandleMedia})...)
	return routes
}

// HandleText feeds free text, including unknown /commands, to the engine.
func (b *Bridge) HandleText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if name, ok := conversation.ParseCommand(text); ok {
		return b.dispatch(c, conversation.EventCommand, name)
	}
	return b.dispatch(c, conversation.EventText, text)
}

// HandleOption feeds a pressed inline button to the engine.
func (b *Bridge) HandleOption(c tele.Context) error {
	return b.dispatch(c, conversation.EventOption, callbacks.CallbackPayload(c))
}

// HandleMedia answers photos, files and the like.
func (b *Bridge) HandleMedia(c tele.Context) error {
	return b.dispatch(c, conversation.EventCommand, mediaCommand)
}

func (b *Bridge) command(name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.dispatch(c, conversation.EventCommand, name)
	}
}

func (b *Bridge) dispatch(c tele.Context, kind conversation.EventKind, payload string) error {
	ev, ok := b.event(c, kind, payload)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	resp, err := b.engine.Handle(ctx, ev)
	if err != nil {
		// The response already carries the generic failure text.
		logger.Error(ctx, "tg", "dialog.fail",
			slog.String("channel", string(b.channel)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
	if sendErr := b.send(c, resp); sendErr != nil {
		return sendErr
	}
	return err
}

func (b *Bridge) event(c tele.Context, kind conversation.EventKind, payload string) (conversation.Event, bool) {
	user := c.Sender()
	if user == nil {
		return conversation.Event{}, false
	}
	return conversation.Event{
		Key: conversation.Key{
			Channel: b.channel,
			UserID:  strconv.FormatInt(user.ID, 10),
		},
		Kind:    kind,
		Payload: payload,
	}, true
}

// send enqueues the whole response as one job so its messages keep their order.
// A retried job resumes after the last delivered message.
func (b *Bridge) send(c tele.Context, resp conversation.Response) error {
	if len(resp.Messages) == 0 {
		return nil
	}
	msgs := resp.Messages
	kb := false
	for _, m := range msgs {
		kb = kb || m.Keyboard != nil
	}
	middleware.CountReplies(c, len(msgs), kb)
	sent := 0
	return tghelpers.SendAsync(c, "send.response", func() error {
		for sent < len(msgs) {
			m := msgs[sent]
			var err error
			if markup := Markup(m); markup != nil {
				err = c.Send(m.Text, markup)
			} else {
				err = c.Send(m.Text)
			}
			if err != nil {
				return err
			}
			sent++
		}
		return nil
	})
}
