package router

import (
	"strings"

	tg "github.com/m3rciful/meterdesk/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// Dialog owns every free-text message that is not a registered command.
type Dialog interface {
	HandleText(c tele.Context) error
}

// TextOptions controls handling of non-text messages.
type TextOptions struct {
	// UnknownMedia handles photos, files, stickers and the like; nil ignores them.
	UnknownMedia tele.HandlerFunc
}

// TextRoutes sends text to dialog after resolving command aliases such as
// "/menu", which telebot does not route by itself.
func TextRoutes(dialog Dialog, reg *tg.Registry, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		if reg != nil && strings.HasPrefix(c.Text(), "/") {
			word, _, _ := strings.Cut(c.Text(), " ")
			word, _, _ = strings.Cut(word, "@")
			if key, cmd, ok := reg.LookupCommand(word); ok {
				return handled(c, handlerName("", key), cmd.Handler)
			}
		}
		return handled(c, "dialog", dialog.HandleText)
	}

	routes := []tg.Route{{Endpoint: tele.OnText, Handler: text}}
	if opts.UnknownMedia != nil {
		routes = append(routes, tg.Route{
			Endpoint: tele.OnMedia,
			Handler: func(c tele.Context) error {
				return handled(c, "media", opts.UnknownMedia)
			},
		})
	}
	return routes
}
