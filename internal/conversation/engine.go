package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moby/locker"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/internal/appointments"
	"github.com/m3rciful/meterdesk/internal/domain"
	"github.com/m3rciful/meterdesk/internal/readings"
	"github.com/m3rciful/meterdesk/internal/texts"
)

const component = "fsm"

// Directory is the account lookup used by the account steps.
type Directory interface {
	Exists(ctx context.Context, account string) (bool, error)
	Resolve(ctx context.Context, account string) (domain.Subscriber, error)
	AreaAccounts(ctx context.Context, areaID int64) ([]domain.AreaAccount, error)
}

// Ledger records readings.
type Ledger interface {
	Submit(ctx context.Context, s readings.Submission) (domain.ReadingPeriod, error)
}

// Book books seal visits.
type Book interface {
	Horizon() []domain.Date
	CheckDate(d domain.Date) error
	IsDateTaken(ctx context.Context, subscriberID int64, d domain.Date) (bool, error)
	IsSlotTaken(ctx context.Context, d domain.Date, slot domain.Timeslot) (bool, error)
	FreeSlots(ctx context.Context, d domain.Date) ([]domain.Timeslot, error)
	Create(ctx context.Context, r appointments.Request) (domain.SealRequest, error)
}

// Authenticator checks controller credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (domain.Controller, error)
}

// Options wires an Engine. Auth may be nil when the controller channel is off.
type Options struct {
	Directory Directory
	Ledger    Ledger
	Book      Book
	Auth      Authenticator
	Sessions  SessionStore
	Texts     *texts.Catalog
	Clock     domain.Clock
	// IdleTimeout aborts a workflow left unanswered this long; 0 disables it.
	IdleTimeout  time.Duration
	SupportPhone string
}

// Engine interprets the dialogue table for every channel.
type Engine struct {
	opts Options
	// locks serializes turns per session key; different keys run in parallel.
	locks *locker.Locker
}

// New validates opts and builds an Engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Directory == nil:
		return nil, errors.New("conversation: directory is required")
	case opts.Ledger == nil:
		return nil, errors.New("conversation: ledger is required")
	case opts.Book == nil:
		return nil, errors.New("conversation: book is required")
	case opts.Sessions == nil:
		return nil, errors.New("conversation: session store is required")
	case opts.Texts == nil:
		return nil, errors.New("conversation: text catalog is required")
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	return &Engine{opts: opts, locks: locker.New()}, nil
}

// turn is the working state of one Handle call.
type turn struct {
	ctx  context.Context
	e    *Engine
	ev   Event
	now  time.Time
	sess *Session
	out  []Message
}

func (t *turn) text(key string, vars map[string]string) string {
	return t.e.opts.Texts.Text(t.sess.Lang, key, vars)
}

// note queues an informational message before the next prompt.
func (t *turn) note(key string, vars map[string]string) {
	t.out = append(t.out, Message{Text: t.text(key, vars)})
}

// ask queues the prompt and remembers its options for the next answer.
func (t *turn) ask(text string, kb *Keyboard) {
	m := Message{Text: text, Keyboard: kb}
	t.sess.Prompt = nil
	if kb != nil {
		t.sess.Prompt = append([]Option(nil), kb.Options...)
	} else {
		m.RemoveKeyboard = true
	}
	t.out = append(t.out, m)
}

// Handle processes one event for its session and returns what to send back.
// Business errors are rendered into the response; infrastructure errors are
// rendered as a generic failure and also returned.
func (e *Engine) Handle(ctx context.Context, ev Event) (Response, error) {
	name := ev.Key.String()
	e.locks.Lock(name)
	defer func() { _ = e.locks.Unlock(name) }()

	start := time.Now()
	sess, found, err := e.opts.Sessions.Load(ctx, ev.Key)
	if err != nil {
		logger.Error(ctx, component, "session.load",
			slog.String("status", "fail"),
			slog.String("channel", string(ev.Key.Channel)),
			slog.String("err", err.Error()),
		)
		return Response{Messages: []Message{{Text: e.opts.Texts.Text(e.opts.Texts.DefaultLanguage(), "error.internal", nil)}}},
			fmt.Errorf("load session %s: %w", ev.Key, err)
	}
	if !found {
		sess = Session{Key: ev.Key, Lang: e.opts.Texts.DefaultLanguage()}
	}
	if !e.opts.Texts.Has(sess.Lang) {
		sess.Lang = e.opts.Texts.DefaultLanguage()
	}

	now := ev.At
	if now.IsZero() {
		now = e.opts.Clock.Now()
	}
	t := &turn{ctx: ctx, e: e, ev: ev, now: now, sess: &sess}
	from := sess.State

	stepErr := e.dispatch(t, found)

	sess.UpdatedAt = now
	if err := e.opts.Sessions.Save(ctx, &sess); err != nil {
		stepErr = errors.Join(stepErr, fmt.Errorf("save session %s: %w", ev.Key, err))
	}

	attrs := []slog.Attr{
		slog.String("status", logger.Status(stepErr)),
		slog.String("channel", string(ev.Key.Channel)),
		slog.String("kind", string(ev.Kind)),
		slog.String("state", string(from)),
		slog.String("next_state", string(sess.State)),
		slog.String("workflow", string(sess.Workflow)),
		slog.Duration("duration", logger.Took(start)),
	}
	if stepErr != nil {
		logger.Error(ctx, component, "transition", append(attrs, slog.String("err", stepErr.Error()))...)
	} else {
		logger.Debug(ctx, component, "transition", attrs...)
	}
	return Response{Messages: t.out}, stepErr
}

func (e *Engine) dispatch(t *turn, found bool) error {
	s := t.sess
	switch {
	case !found || (t.ev.Kind == EventCommand && t.ev.Payload == CommandStart):
		return e.reset(t)
	case t.ev.Kind == EventCommand && t.ev.Payload == CommandCancel:
		t.note("session.cancelled", nil)
		return e.enter(t, StateMainMenu)
	case t.ev.Kind == EventCommand:
		t.note("error.unsupported", nil)
		if _, ok := lookupStep(s.Workflow, s.State); !ok {
			return e.reset(t)
		}
		return e.enter(t, s.State)
	}

	if e.gated(s) && s.State != StateAwaitLogin && s.State != StateAwaitPassword {
		return e.enter(t, StateAwaitLogin)
	}
	if e.opts.IdleTimeout > 0 && s.Workflow != WorkflowNone && !s.UpdatedAt.IsZero() &&
		t.now.Sub(s.UpdatedAt) > e.opts.IdleTimeout {
		t.note("session.expired", nil)
		return e.enter(t, StateMainMenu)
	}

	st, ok := lookupStep(s.Workflow, s.State)
	if !ok {
		return e.reset(t)
	}
	next, err := st.accept(t, t.ev.Payload)
	if err == nil {
		if next == "" {
			next = st.next
		}
		return e.enter(t, next)
	}

	if de, ok := domain.AsError(err); ok {
		t.note("error."+string(de.Reason), de.Vars)
		next, ok := st.onError[de.Reason]
		if !ok {
			next = StateMainMenu
		}
		return e.enter(t, next)
	}

	t.note("error.internal", nil)
	if enterErr := e.enter(t, StateMainMenu); enterErr != nil {
		return errors.Join(err, enterErr)
	}
	return err
}

// reset discards everything but the language and starts over.
func (e *Engine) reset(t *turn) error {
	s := t.sess
	s.Workflow = WorkflowNone
	s.Scratch = Scratch{}
	if s.Key.Channel == ChannelController {
		s.Authorized = false
		s.ControllerID = 0
		s.AreaID = 0
		return e.enter(t, StateAwaitLogin)
	}
	return e.enter(t, StateChooseLanguage)
}

func (e *Engine) gated(s *Session) bool {
	return s.Key.Channel == ChannelController && !s.Authorized
}

// enter moves the session to st and asks its question.
func (e *Engine) enter(t *turn, st State) error {
	s := t.sess
	if e.gated(s) && st != StateAwaitLogin && st != StateAwaitPassword {
		st = StateAwaitLogin
	}
	switch st {
	case StateMainMenu, StateChooseLanguage, StateAwaitLogin:
		s.Workflow = WorkflowNone
		s.Scratch = Scratch{}
	}
	s.State = st

	next, ok := lookupStep(s.Workflow, st)
	if !ok {
		return fmt.Errorf("no step for %s/%s", s.Workflow, st)
	}
	if err := next.prompt(t); err != nil {
		// The question could not be built; fall back to the menu, which needs no I/O.
		t.note("error.internal", nil)
		s.Workflow = WorkflowNone
		s.Scratch = Scratch{}
		s.State = StateMainMenu
		if e.gated(s) {
			s.State = StateAwaitLogin
		}
		menu, _ := lookupStep(WorkflowNone, s.State)
		if perr := menu.prompt(t); perr != nil {
			return errors.Join(err, perr)
		}
		return err
	}
	return nil
}
