package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/core/telegram/commands"
	tgsender "github.com/m3rciful/meterdesk/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Registry holds a bot's slash commands and inline-button callbacks.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
}

// NewRegistry returns an empty registry that ignores unknown callbacks.
func NewRegistry() *Registry {
	return &Registry{
		commands:         make(map[string]commands.Command),
		callbacks:        make(map[string]tele.HandlerFunc),
		callbackNotFound: func(tele.Context) error { return nil },
	}
}

// RegisterCommand adds name, which must start with a slash, e.g. "/start".
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return fmt.Errorf("register command %q: name must start with /", name)
	case cmd.Handler == nil:
		return fmt.Errorf("register command %s: nil handler", name)
	case cmd.Description == "" && !cmd.Hidden:
		return fmt.Errorf("register command %s: visible commands need a description", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup {
		return fmt.Errorf("register command %s: already registered", name)
	}
	r.commands[name] = cmd
	return nil
}

// Commands returns a copy of the registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]commands.Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// LookupCommand resolves a command or one of its aliases, with or without
// the leading slash, and returns the canonical name.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = "/" + strings.TrimPrefix(name, "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if "/"+strings.TrimPrefix(alias, "/") == name {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// menu lists the visible commands sorted by name.
func (r *Registry) menu() []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, cmd := range r.commands {
		if !cmd.Hidden {
			list = append(list, tele.Command{Text: name, Description: cmd.Description})
		}
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// RegisterCallback binds handler to the unique key of inline buttons.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return fmt.Errorf("register callback %q: empty key or nil handler", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("register callback %s: already registered", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler bound to key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// CallbackCount reports how many callback keys are bound.
func (r *Registry) CallbackCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callbacks)
}

// SetCallbackNotFound replaces the handler for unknown callback keys.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// InitBotCommands publishes the visible commands as the bot's menu.
// Failure is logged only: the bot works without a menu.
func InitBotCommands(ctx context.Context, bot *tele.Bot, reg *Registry) {
	menu := reg.menu()
	if err := bot.SetCommands(menu); err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "commands.publish",
			slog.String("status", "fail"),
			slog.String("err", tgsender.SanitizeError(err)),
		)
		return
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "commands.publish",
		slog.String("status", "ok"),
		slog.Int("commands", len(menu)),
	)
}
