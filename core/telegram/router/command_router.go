package router

import (
	"log/slog"

	"github.com/m3rciful/meterdesk/core/logger"
	tg "github.com/m3rciful/meterdesk/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes binds every registered command to its own endpoint.
// Aliases are not endpoints; TextRoutes resolves them.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for name, cmd := range cmds {
		hname := handlerName("", name)
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler: func(c tele.Context) error {
				return handled(c, hname, cmd.Handler)
			},
		})
	}
	logger.TG.Debug("routes",
		slog.String("event", "routes.commands"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", reg.CallbackCount()),
	)
	return routes
}
