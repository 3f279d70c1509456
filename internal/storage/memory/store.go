// Package memory keeps the directory, ledger and book in process memory. It
// backs tests and single-process demos; every method is safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/meterdesk/internal/domain"
	"github.com/m3rciful/meterdesk/internal/fieldauth"
	"github.com/m3rciful/meterdesk/internal/readings"
)

type periodKey struct {
	subscriberID int64
	period       string
}

// Store implements the accounts, readings, appointments and fieldauth stores.
type Store struct {
	mu sync.Mutex

	meters      map[string]struct{}
	subscribers map[string]*domain.Subscriber
	areas       map[int64][]domain.AreaAccount
	controllers map[string]domain.Controller

	readings map[periodKey]*domain.ReadingPeriod
	requests []domain.SealRequest

	nextID int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		meters:      make(map[string]struct{}),
		subscribers: make(map[string]*domain.Subscriber),
		areas:       make(map[int64][]domain.AreaAccount),
		controllers: make(map[string]domain.Controller),
		readings:    make(map[periodKey]*domain.ReadingPeriod),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddMeter registers accounts in the billing registry.
func (s *Store) AddMeter(accounts ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.meters[a] = struct{}{}
	}
}

// AddAreaAccount assigns an account to an area.
func (s *Store) AddAreaAccount(areaID int64, a domain.AreaAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas[areaID] = append(s.areas[areaID], a)
}

// AddController registers a controller and returns it with its id set.
func (s *Store) AddController(c domain.Controller) domain.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	s.controllers[c.Username] = c
	return c
}

// MeterExists implements accounts.Store.
func (s *Store) MeterExists(_ context.Context, account string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.meters[account]
	return ok, nil
}

// UpsertSubscriber implements accounts.Store.
func (s *Store) UpsertSubscriber(_ context.Context, account string, seenAt time.Time) (domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[account]
	if !ok {
		sub = &domain.Subscriber{ID: s.id(), AccountNumber: account, CreatedAt: seenAt}
		s.subscribers[account] = sub
	}
	sub.LastSeenAt = seenAt
	return *sub, nil
}

// AreaAccounts implements accounts.Store.
func (s *Store) AreaAccounts(_ context.Context, areaID int64) ([]domain.AreaAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.AreaAccount(nil), s.areas[areaID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return out, nil
}

// ControllerByUsername implements fieldauth.Store.
func (s *Store) ControllerByUsername(_ context.Context, username string) (domain.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, c := range s.controllers {
		if strings.EqualFold(name, username) {
			return c, nil
		}
	}
	return domain.Controller{}, fieldauth.ErrNoController
}

// LastRecord implements readings.Store.
func (s *Store) LastRecord(_ context.Context, subscriberID int64) (*domain.ReadingPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRecord(subscriberID), nil
}

func (s *Store) lastRecord(subscriberID int64) *domain.ReadingPeriod {
	var last *domain.ReadingPeriod
	for k, r := range s.readings {
		if k.subscriberID != subscriberID {
			continue
		}
		if last == nil || r.WrittenAt.After(last.WrittenAt) ||
			(r.WrittenAt.Equal(last.WrittenAt) && r.ID > last.ID) {
			last = r
		}
	}
	if last == nil {
		return nil
	}
	cp := *last
	return &cp
}

// Apply implements readings.Store. The store lock covers the whole read-merge-write.
func (s *Store) Apply(_ context.Context, subscriberID int64, period string, merge readings.MergeFunc) (domain.ReadingPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := periodKey{subscriberID, period}
	var current *domain.ReadingPeriod
	if r, ok := s.readings[key]; ok {
		cp := *r
		current = &cp
	}
	row, err := merge(s.lastRecord(subscriberID), current)
	if err != nil {
		return domain.ReadingPeriod{}, err
	}
	if current == nil {
		row.ID = s.id()
	}
	row.SubscriberID = subscriberID
	row.Period = period
	s.readings[key] = &row
	return row, nil
}

// Readings returns every stored row of a subscriber ordered by period.
func (s *Store) Readings(subscriberID int64) []domain.ReadingPeriod {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ReadingPeriod
	for k, r := range s.readings {
		if k.subscriberID == subscriberID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// IsDateTaken implements appointments.Store.
func (s *Store) IsDateTaken(_ context.Context, subscriberID int64, date domain.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dateTaken(subscriberID, date), nil
}

// IsSlotTaken implements appointments.Store.
func (s *Store) IsSlotTaken(_ context.Context, date domain.Date, slot domain.Timeslot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slotTaken(date, slot), nil
}

func (s *Store) dateTaken(subscriberID int64, date domain.Date) bool {
	for _, r := range s.requests {
		if r.Status == domain.StatusNew && r.SubscriberID == subscriberID && r.ScheduledDate.Equal(date) {
			return true
		}
	}
	return false
}

func (s *Store) slotTaken(date domain.Date, slot domain.Timeslot) bool {
	for _, r := range s.requests {
		if r.Status == domain.StatusNew && r.ScheduledDate.Equal(date) && r.Timeslot == slot {
			return true
		}
	}
	return false
}

// CreateExclusive implements appointments.Store.
func (s *Store) CreateExclusive(_ context.Context, req domain.SealRequest) (domain.SealRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dateTaken(req.SubscriberID, req.ScheduledDate) {
		return domain.SealRequest{}, domain.Conflict(domain.ReasonDateTaken, nil)
	}
	if s.slotTaken(req.ScheduledDate, req.Timeslot) {
		return domain.SealRequest{}, domain.Conflict(domain.ReasonSlotTaken, nil)
	}
	req.ID = s.id()
	s.requests = append(s.requests, req)
	return req, nil
}

// Requests returns a copy of every stored seal request.
func (s *Store) Requests() []domain.SealRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SealRequest(nil), s.requests...)
}
