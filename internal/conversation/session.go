package conversation

import (
	"context"
	"errors"
	"time"
)

// State is a dialogue step.
type State string

const (
	StateChooseLanguage State = "choose_language"
	StateMainMenu       State = "main_menu"
	StateAwaitAccount   State = "await_account"
	StateAwaitCold      State = "await_cold"
	StateAwaitHot       State = "await_hot"
	StateAwaitReason    State = "await_reason"
	StateAwaitWaterKind State = "await_water_kind"
	StateAwaitDate      State = "await_date"
	StateAwaitSlot      State = "await_slot"
	StateAwaitLogin     State = "await_login"
	StateAwaitPassword  State = "await_password"
)

// Workflow is the dialogue a session is walking through.
type Workflow string

const (
	WorkflowNone    Workflow = ""
	WorkflowReading Workflow = "reading"
	WorkflowBooking Workflow = "booking"
)

// Scratch holds the answers collected by the running workflow.
type Scratch struct {
	Account      string `json:"account,omitempty"`
	SubscriberID int64  `json:"subscriber_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
	WaterKind    string `json:"water_kind,omitempty"`
	Date         string `json:"date,omitempty"`
	Login        string `json:"login,omitempty"`
}

// Session is the persisted dialogue state of one Key.
type Session struct {
	Key      Key
	State    State
	Workflow Workflow
	Lang     string

	Authorized   bool
	ControllerID int64
	AreaID       int64

	Scratch Scratch
	// Prompt is the option list last shown, used to resolve numbered and labelled answers.
	Prompt []Option

	// Version is managed by the store; zero means not stored yet.
	Version   int64
	UpdatedAt time.Time
}

// ErrSessionConflict means the session changed since it was loaded.
var ErrSessionConflict = errors.New("session was modified concurrently")

// SessionStore persists sessions.
type SessionStore interface {
	Load(ctx context.Context, key Key) (Session, bool, error)
	// Save inserts a session with Version 0 or updates the stored one when the
	// versions match, then bumps s.Version. A mismatch yields ErrSessionConflict.
	Save(ctx context.Context, s *Session) error
}

// ChannelStores routes sessions to a store per channel, e.g. SQL for WhatsApp
// and memory for Telegram.
type ChannelStores struct {
	Default   SessionStore
	ByChannel map[Channel]SessionStore
}

func (c ChannelStores) pick(ch Channel) SessionStore {
	if s, ok := c.ByChannel[ch]; ok && s != nil {
		return s
	}
	return c.Default
}

// Load implements SessionStore.
func (c ChannelStores) Load(ctx context.Context, key Key) (Session, bool, error) {
	return c.pick(key.Channel).Load(ctx, key)
}

// Save implements SessionStore.
func (c ChannelStores) Save(ctx context.Context, s *Session) error {
	return c.pick(s.Key.Channel).Save(ctx, s)
}
