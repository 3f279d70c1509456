package conversation

import (
	"errors"
	"strings"

	"github.com/m3rciful/meterdesk/internal/accounts"
	"github.com/m3rciful/meterdesk/internal/appointments"
	"github.com/m3rciful/meterdesk/internal/domain"
	"github.com/m3rciful/meterdesk/internal/readings"
)

// step is one row of the dialogue table: the question, how an answer is
// validated and applied, and where to go afterwards.
type step struct {
	prompt func(t *turn) error
	// accept returns "" to continue with next, or an explicit state.
	accept func(t *turn, in string) (State, error)
	next   State
	// onError overrides the MainMenu fallback for specific business errors.
	onError map[domain.Reason]State
}

type stepKey struct {
	workflow Workflow
	state    State
}

// Main menu choices.
const (
	menuBooking  = "booking"
	menuReading  = "reading"
	menuSupport  = "support"
	menuLanguage = "language"
	menuArea     = "area"
	menuLogout   = "logout"
)

const dayLabelLayout = "02.01"

var steps map[stepKey]step

func init() {
	steps = map[stepKey]step{
		{WorkflowNone, StateChooseLanguage}: {
			prompt:  promptLanguage,
			accept:  acceptLanguage,
			next:    StateMainMenu,
			onError: map[domain.Reason]State{domain.ReasonUnknownLanguage: StateChooseLanguage},
		},
		{WorkflowNone, StateMainMenu}: {
			prompt: promptMenu,
			accept: acceptMenu,
			next:   StateMainMenu,
		},
		{WorkflowNone, StateAwaitLogin}: {
			prompt:  promptText("auth.login"),
			accept:  acceptLogin,
			next:    StateAwaitPassword,
			onError: map[domain.Reason]State{domain.ReasonInvalidChoice: StateAwaitLogin},
		},
		{WorkflowNone, StateAwaitPassword}: {
			prompt:  promptText("auth.password"),
			accept:  acceptPassword,
			next:    StateChooseLanguage,
			onError: map[domain.Reason]State{domain.ReasonBadCredentials: StateAwaitLogin},
		},

		{WorkflowReading, StateAwaitAccount}: {
			prompt: promptAccount("reading.account"),
			accept: acceptAccount,
			next:   StateAwaitCold,
		},
		{WorkflowReading, StateAwaitCold}: {
			prompt: promptText("reading.cold"),
			accept: acceptReading(domain.ChannelCold),
			next:   StateAwaitHot,
		},
		{WorkflowReading, StateAwaitHot}: {
			prompt: promptText("reading.hot"),
			accept: acceptReading(domain.ChannelHot),
			next:   StateMainMenu,
		},

		{WorkflowBooking, StateAwaitAccount}: {
			prompt: promptAccount("booking.account"),
			accept: acceptAccount,
			next:   StateAwaitReason,
		},
		{WorkflowBooking, StateAwaitReason}: {
			prompt: promptText("booking.reason"),
			accept: acceptReason,
			next:   StateAwaitWaterKind,
		},
		{WorkflowBooking, StateAwaitWaterKind}: {
			prompt: promptWaterKind,
			accept: acceptWaterKind,
			next:   StateAwaitDate,
		},
		{WorkflowBooking, StateAwaitDate}: {
			prompt: promptDate,
			accept: acceptDate,
			next:   StateAwaitSlot,
			onError: map[domain.Reason]State{
				domain.ReasonDateFull: StateAwaitDate,
			},
		},
		{WorkflowBooking, StateAwaitSlot}: {
			prompt: promptSlot,
			accept: acceptSlot,
			next:   StateMainMenu,
			onError: map[domain.Reason]State{
				domain.ReasonSlotTaken: StateAwaitSlot,
				domain.ReasonDateTaken: StateAwaitDate,
				domain.ReasonDateFull:  StateAwaitDate,
			},
		},
	}
}

func lookupStep(w Workflow, st State) (step, bool) {
	if s, ok := steps[stepKey{w, st}]; ok {
		return s, true
	}
	s, ok := steps[stepKey{WorkflowNone, st}]
	return s, ok
}

func invalidChoice(in string) error {
	return domain.Invalid(domain.ReasonInvalidChoice, map[string]string{"input": in})
}

// prompts

func promptText(key string) func(t *turn) error {
	return func(t *turn) error {
		t.ask(t.text(key, nil), nil)
		return nil
	}
}

func promptLanguage(t *turn) error {
	langs := t.e.opts.Texts.Languages()
	opts := make([]Option, len(langs))
	for i, l := range langs {
		opts[i] = Option{Label: l.Name, Value: l.Code}
	}
	t.ask(t.text("lang.prompt", nil), &Keyboard{Columns: 2, Options: opts})
	return nil
}

func promptMenu(t *turn) error {
	values := []string{menuBooking, menuReading, menuSupport, menuLanguage}
	if t.sess.Key.Channel == ChannelController {
		values = append(values, menuArea, menuLogout)
	}
	opts := make([]Option, len(values))
	for i, v := range values {
		opts[i] = Option{Label: t.text("menu."+v, nil), Value: v}
	}
	t.ask(t.text("menu.prompt", nil), &Keyboard{Columns: 2, Options: opts})
	return nil
}

// promptAccount offers the controller's area accounts as shortcuts.
func promptAccount(key string) func(t *turn) error {
	return func(t *turn) error {
		s := t.sess
		if s.Key.Channel != ChannelController || s.AreaID == 0 {
			t.ask(t.text(key, nil), nil)
			return nil
		}
		list, err := t.e.opts.Directory.AreaAccounts(t.ctx, s.AreaID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			t.ask(t.text(key, nil), nil)
			return nil
		}
		opts := make([]Option, len(list))
		for i, a := range list {
			opts[i] = Option{Label: a.AccountNumber, Value: a.AccountNumber}
		}
		t.ask(t.text(key, nil), &Keyboard{Columns: 3, Options: opts})
		return nil
	}
}

func promptWaterKind(t *turn) error {
	t.ask(t.text("booking.water_kind", nil), &Keyboard{Inline: true, Columns: 2, Options: []Option{
		{Label: t.text("water.cold", nil), Value: string(domain.WaterCold)},
		{Label: t.text("water.hot", nil), Value: string(domain.WaterHot)},
	}})
	return nil
}

func promptDate(t *turn) error {
	days := t.e.opts.Book.Horizon()
	opts := make([]Option, len(days))
	for i, d := range days {
		opts[i] = Option{Label: d.Format(dayLabelLayout), Value: d.String()}
	}
	t.ask(t.text("booking.date", nil), &Keyboard{Inline: true, Columns: 4, Options: opts})
	return nil
}

func promptSlot(t *turn) error {
	d, err := domain.ParseDate(t.sess.Scratch.Date)
	if err != nil {
		return err
	}
	free, err := t.e.opts.Book.FreeSlots(t.ctx, d)
	if err != nil {
		return err
	}
	opts := make([]Option, len(free))
	for i, s := range free {
		opts[i] = Option{Label: t.text("slot."+string(s), nil), Value: string(s)}
	}
	t.ask(t.text("booking.slot", map[string]string{"date": d.Format(displayDateLayout)}),
		&Keyboard{Inline: true, Columns: 2, Options: opts})
	return nil
}

// answers

func acceptLanguage(t *turn, in string) (State, error) {
	opt, ok := t.match(in)
	if !ok || !t.e.opts.Texts.Has(opt.Value) {
		return "", domain.Invalid(domain.ReasonUnknownLanguage, nil)
	}
	t.sess.Lang = opt.Value
	t.note("welcome", nil)
	return "", nil
}

func acceptMenu(t *turn, in string) (State, error) {
	opt, ok := t.match(in)
	if !ok {
		return "", invalidChoice(in)
	}
	s := t.sess
	switch opt.Value {
	case menuReading:
		s.Scratch = Scratch{}
		s.Workflow = WorkflowReading
		return StateAwaitAccount, nil
	case menuBooking:
		s.Scratch = Scratch{}
		s.Workflow = WorkflowBooking
		return StateAwaitAccount, nil
	case menuSupport:
		t.note("support.text", map[string]string{"phone": t.e.opts.SupportPhone})
		return StateMainMenu, nil
	case menuLanguage:
		return StateChooseLanguage, nil
	case menuArea:
		list, err := t.e.opts.Directory.AreaAccounts(t.ctx, s.AreaID)
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			t.note("area.empty", nil)
			return StateMainMenu, nil
		}
		lines := make([]string, len(list))
		for i, a := range list {
			lines[i] = a.AccountNumber
			if addr := a.Address(); addr != "" {
				lines[i] += " — " + addr
			}
		}
		t.note("area.title", map[string]string{"accounts": strings.Join(lines, "\n")})
		return StateMainMenu, nil
	case menuLogout:
		s.Authorized = false
		s.ControllerID = 0
		s.AreaID = 0
		t.note("auth.logged_out", nil)
		return StateAwaitLogin, nil
	}
	return "", invalidChoice(in)
}

func acceptLogin(t *turn, in string) (State, error) {
	login := strings.TrimSpace(in)
	if login == "" {
		return "", invalidChoice(in)
	}
	t.sess.Scratch.Login = login
	return "", nil
}

func acceptPassword(t *turn, in string) (State, error) {
	if t.e.opts.Auth == nil {
		return "", errors.New("controller authentication is not configured")
	}
	c, err := t.e.opts.Auth.Authenticate(t.ctx, t.sess.Scratch.Login, in)
	if err != nil {
		return "", err
	}
	s := t.sess
	s.Authorized = true
	s.ControllerID = c.ID
	s.AreaID = c.AreaID
	t.note("auth.welcome", map[string]string{"username": c.Username})
	return "", nil
}

func acceptAccount(t *turn, in string) (State, error) {
	raw := in
	if opt, ok := t.match(in); ok {
		raw = opt.Value
	}
	account := accounts.Normalize(raw)
	ok, err := t.e.opts.Directory.Exists(t.ctx, account)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.NotFound(domain.ReasonUnknownAccount, map[string]string{"account": account})
	}
	sub, err := t.e.opts.Directory.Resolve(t.ctx, account)
	if err != nil {
		return "", err
	}
	t.sess.Scratch.Account = sub.AccountNumber
	t.sess.Scratch.SubscriberID = sub.ID
	return "", nil
}

func acceptReading(ch domain.WaterChannel) func(t *turn, in string) (State, error) {
	return func(t *turn, in string) (State, error) {
		v, err := readings.ParseValue(in)
		if err != nil {
			return "", err
		}
		s := t.sess
		row, err := t.e.opts.Ledger.Submit(t.ctx, readings.Submission{
			SubscriberID: s.Scratch.SubscriberID,
			Channel:      ch,
			Value:        v,
			ObservedAt:   t.now,
			Source:       string(s.Key.Channel),
			OperatorID:   s.ControllerID,
		})
		if err != nil {
			return "", err
		}
		if ch == domain.ChannelCold {
			return "", nil
		}
		t.note("reading.saved", map[string]string{
			"account": s.Scratch.Account,
			"cold":    readings.Format(row.Cold),
			"hot":     readings.Format(row.Hot),
		})
		return "", nil
	}
}

func acceptReason(t *turn, in string) (State, error) {
	t.sess.Scratch.Reason = strings.TrimSpace(in)
	return "", nil
}

func acceptWaterKind(t *turn, in string) (State, error) {
	opt, ok := t.match(in)
	if !ok || (opt.Value != string(domain.WaterCold) && opt.Value != string(domain.WaterHot)) {
		return "", invalidChoice(in)
	}
	t.sess.Scratch.WaterKind = opt.Value
	return "", nil
}

func acceptDate(t *turn, in string) (State, error) {
	var (
		d   domain.Date
		err error
	)
	if opt, ok := t.match(in); ok {
		d, err = domain.ParseDate(opt.Value)
	} else {
		d, err = parseUserDate(in, domain.DateOf(t.now))
	}
	if err != nil {
		return "", invalidChoice(in)
	}
	book := t.e.opts.Book
	if err := book.CheckDate(d); err != nil {
		return "", err
	}
	taken, err := book.IsDateTaken(t.ctx, t.sess.Scratch.SubscriberID, d)
	if err != nil {
		return "", err
	}
	if taken {
		return "", domain.Invalid(domain.ReasonDateTaken, map[string]string{"date": d.Format(displayDateLayout)})
	}
	if err := requireFreeSlot(t, d); err != nil {
		return "", err
	}
	t.sess.Scratch.Date = d.String()
	return "", nil
}

// requireFreeSlot fails with ReasonDateFull when every slot of d is held.
func requireFreeSlot(t *turn, d domain.Date) error {
	free, err := t.e.opts.Book.FreeSlots(t.ctx, d)
	if err != nil {
		return err
	}
	if len(free) == 0 {
		return &domain.Error{
			Kind:   domain.KindConflict,
			Reason: domain.ReasonDateFull,
			Vars:   map[string]string{"date": d.Format(displayDateLayout)},
		}
	}
	return nil
}

// matchSlot accepts the offered options and, since only free slots are
// offered, any slot typed by value or label so a taken one is reported as such.
func (t *turn) matchSlot(in string) (domain.Timeslot, bool) {
	if opt, ok := t.match(in); ok {
		slot := domain.Timeslot(opt.Value)
		return slot, slot.Valid()
	}
	in = strings.TrimSpace(in)
	for _, s := range domain.Timeslots {
		if strings.EqualFold(in, string(s)) || strings.EqualFold(in, t.text("slot."+string(s), nil)) {
			return s, true
		}
	}
	return "", false
}

func acceptSlot(t *turn, in string) (State, error) {
	slot, ok := t.matchSlot(in)
	if !ok {
		return "", invalidChoice(in)
	}
	s := t.sess
	d, err := domain.ParseDate(s.Scratch.Date)
	if err != nil {
		return "", err
	}
	book := t.e.opts.Book
	taken, err := book.IsSlotTaken(t.ctx, d, slot)
	if err != nil {
		return "", err
	}
	if taken {
		return "", slotTaken(t, d, nil)
	}
	req, err := book.Create(t.ctx, appointments.Request{
		SubscriberID: s.Scratch.SubscriberID,
		Reason:       s.Scratch.Reason,
		Date:         d,
		Slot:         slot,
		WaterKind:    domain.WaterKind(s.Scratch.WaterKind),
		Channel:      string(s.Key.Channel),
		OperatorID:   s.ControllerID,
	})
	if domain.HasReason(err, domain.ReasonSlotTaken) {
		return "", slotTaken(t, d, err)
	}
	if err != nil {
		return "", err
	}
	kind := string(domain.WaterUnspecified)
	if s.Scratch.WaterKind != "" {
		kind = t.text("water."+s.Scratch.WaterKind, nil)
	}
	t.note("booking.saved", map[string]string{
		"account": s.Scratch.Account,
		"reason":  req.Reason,
		"kind":    kind,
		"date":    req.ScheduledDate.Format(displayDateLayout),
		"slot":    t.text("slot."+string(req.Timeslot), nil),
	})
	return "", nil
}

// slotTaken re-offers the date's remaining slots, or sends the user back to
// the dates when none is left.
func slotTaken(t *turn, d domain.Date, cause error) error {
	if err := requireFreeSlot(t, d); err != nil {
		return err
	}
	if cause != nil {
		return cause
	}
	return domain.Conflict(domain.ReasonSlotTaken, nil)
}
