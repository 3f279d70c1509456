package telegram

import (
	"github.com/m3rciful/meterdesk/core/telegram/keyboard"
	"github.com/m3rciful/meterdesk/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

// Markup renders the keyboard of m. Reply keyboards send the label back as
// text, inline buttons send the option value as an "opt" callback.
func Markup(m conversation.Message) *tele.ReplyMarkup {
	kb := m.Keyboard
	if kb == nil || len(kb.Options) == 0 {
		if m.RemoveKeyboard {
			return keyboard.Remove()
		}
		return nil
	}
	if kb.Inline {
		btns := make([]keyboard.Button, len(kb.Options))
		for i, o := range kb.Options {
			btns[i] = keyboard.Button{Text: o.Label, Unique: OptionUnique, Data: o.Value}
		}
		return keyboard.Inline(btns, kb.Columns)
	}
	labels := make([]string, len(kb.Options))
	for i, o := range kb.Options {
		labels[i] = o.Label
	}
	return keyboard.Reply(labels, kb.Columns)
}
