package helpers

import (
	"errors"
	"log/slog"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const dispatcherKey = "tg_dispatcher"

// BotMiddleware tags every update with the bot's name and exposes its
// outbound dispatcher. d may be nil, in which case sends run inline.
func BotMiddleware(name string, d *sender.Dispatcher) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if name != "" {
				c.Set(botKey, name)
			}
			if d != nil {
				c.Set(dispatcherKey, d)
			}
			return next(c)
		}
	}
}

func dispatcherFrom(c tele.Context) *sender.Dispatcher {
	if c == nil {
		return nil
	}
	d, _ := c.Get(dispatcherKey).(*sender.Dispatcher)
	return d
}

// recipient is the chat replies of c go to.
func recipient(c tele.Context) int64 {
	if ch := c.Chat(); ch != nil {
		return ch.ID
	}
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// SendAsync queues run on the bot's dispatcher behind earlier replies to the
// same chat. Without a dispatcher, or when it refuses the job, run executes inline.
func SendAsync(c tele.Context, action string, run func() error) error {
	disp := dispatcherFrom(c)
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	err := disp.Enqueue(sender.Job{Ctx: ctx, Chat: recipient(c), Action: action, Run: run})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run()
	default:
		return err
	}
}
