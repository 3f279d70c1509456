package middleware

import (
	tele "gopkg.in/telebot.v4"
)

const (
	repliesKey  = "replies"
	keyboardKey = "kb"
)

// CountReplies records n replies queued for the update; kb marks that at
// least one of them carried a keyboard. Counting happens at enqueue time
// because delivery finishes after the handler returns.
func CountReplies(c tele.Context, n int, kb bool) {
	if c == nil || n <= 0 {
		return
	}
	prev, _ := c.Get(repliesKey).(int)
	c.Set(repliesKey, prev+n)
	if kb {
		c.Set(keyboardKey, true)
	}
}

// GetCounters returns what CountReplies recorded for the update.
func GetCounters(c tele.Context) (replies int, kb bool) {
	replies, _ = c.Get(repliesKey).(int)
	kb, _ = c.Get(keyboardKey).(bool)
	return replies, kb
}
