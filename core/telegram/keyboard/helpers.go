// Package keyboard lays out telebot reply and inline keyboards in a grid.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is one inline button; pressing it sends Unique and Data as a callback.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Remove hides a reply keyboard shown earlier.
func Remove() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// Reply shows labels as a resized reply keyboard with up to cols buttons per row.
func Reply(labels []string, cols int) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	rows := make([]tele.Row, 0, len(labels)/max(cols, 1)+1)
	for _, chunk := range grid(labels, cols) {
		row := make(tele.Row, len(chunk))
		for i, label := range chunk {
			row[i] = markup.Text(label)
		}
		rows = append(rows, row)
	}
	markup.Reply(rows...)
	return markup
}

// Inline shows buttons as an inline keyboard with up to cols buttons per row.
func Inline(buttons []Button, cols int) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for _, chunk := range grid(buttons, cols) {
		row := make([]tele.InlineButton, len(chunk))
		for i, b := range chunk {
			row[i] = *markup.Data(b.Text, b.Unique, b.Data).Inline()
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, row)
	}
	return markup
}

// grid splits items into rows of cols; cols below 1 means one per row.
func grid[T any](items []T, cols int) [][]T {
	cols = max(cols, 1)
	rows := make([][]T, 0, (len(items)+cols-1)/cols)
	for len(items) > cols {
		rows = append(rows, items[:cols])
		items = items[cols:]
	}
	if len(items) > 0 {
		rows = append(rows, items)
	}
	return rows
}
