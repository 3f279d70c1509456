// Package conversation drives the reading and booking dialogues for every channel
// from one declarative state table.
package conversation

import (
	"fmt"
	"time"
)

// Channel names an inbound transport.
type Channel string

const (
	ChannelClient     Channel = "client"
	ChannelController Channel = "controller"
	ChannelWhatsApp   Channel = "whatsapp"
)

// Key identifies one session: a user on a channel.
type Key struct {
	Channel Channel
	UserID  string
}

func (k Key) String() string { return fmt.Sprintf("%s:%s", k.Channel, k.UserID) }

// EventKind tells free text from a pressed button or a command.
type EventKind string

const (
	EventText    EventKind = "text"
	EventOption  EventKind = "option"
	EventCommand EventKind = "command"
)

// Commands understood by the engine.
const (
	CommandStart  = "start"
	CommandCancel = "cancel"
)

// Event is a normalized inbound message.
type Event struct {
	Key  Key
	Kind EventKind
	// Payload is the text, the option value or the command name without slash.
	Payload string
	At      time.Time
}

// Option is one selectable answer. Value is what comes back in an option event.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Keyboard describes the options attached to a prompt.
type Keyboard struct {
	// Inline asks for buttons attached to the message instead of a reply keyboard.
	Inline  bool
	Columns int
	Options []Option
}

// Message is one outbound message.
type Message struct {
	Text     string
	Keyboard *Keyboard
	// RemoveKeyboard hides a previously shown reply keyboard.
	RemoveKeyboard bool
}

// Response is everything to send back for one event, in order.
type Response struct {
	Messages []Message
}

// Texts joins the message texts, mostly for tests and logs.
func (r Response) Texts() []string {
	out := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = m.Text
	}
	return out
}

// Last returns the final message, which carries the current prompt.
func (r Response) Last() Message {
	if len(r.Messages) == 0 {
		return Message{}
	}
	return r.Messages[len(r.Messages)-1]
}
