package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Subscriber is the bot-side shadow record of a billing account.
type Subscriber struct {
	ID            int64
	AccountNumber string
	DisplayName   string
	CreatedAt     time.Time
	LastSeenAt    time.Time
}

// AreaAccount is an account served by a controller's area, with its postal address.
type AreaAccount struct {
	AccountNumber string
	Street        string
	Building      string
	Apartment     string
}

// Address joins the non-empty address parts.
func (a AreaAccount) Address() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Street, a.Building, a.Apartment} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Controller is a field employee allowed to use the controller channel.
type Controller struct {
	ID           int64
	Username     string
	PasswordHash string
	AreaID       int64
	Active       bool
}

// WaterChannel selects one of the two values kept per reading period.
type WaterChannel string

const (
	ChannelCold WaterChannel = "cold"
	ChannelHot  WaterChannel = "hot"
)

// Valid reports whether c is cold or hot.
func (c WaterChannel) Valid() bool {
	return c == ChannelCold || c == ChannelHot
}

// ReadingPeriod holds one subscriber's meter values for one calendar month.
type ReadingPeriod struct {
	ID            int64
	SubscriberID  int64
	Period        string
	Cold          decimal.Decimal
	Hot           decimal.Decimal
	WrittenAt     time.Time
	ColdWrittenAt *time.Time
	HotWrittenAt  *time.Time

	// Carried over from the previous period.
	TariffCode string
	MeterID    int64
	Disabled   bool
	Restricted bool

	Source     string
	OperatorID int64
}

// Value returns the value recorded for ch.
func (r ReadingPeriod) Value(ch WaterChannel) decimal.Decimal {
	if ch == ChannelHot {
		return r.Hot
	}
	return r.Cold
}

// ChannelWrittenAt returns when ch was last written on this row, if ever.
func (r ReadingPeriod) ChannelWrittenAt(ch WaterChannel) *time.Time {
	if ch == ChannelHot {
		return r.HotWrittenAt
	}
	return r.ColdWrittenAt
}

// Set writes v into ch and stamps both the channel and the row write times.
func (r *ReadingPeriod) Set(ch WaterChannel, v decimal.Decimal, at time.Time) {
	stamp := at
	if ch == ChannelHot {
		r.Hot = v
		r.HotWrittenAt = &stamp
	} else {
		r.Cold = v
		r.ColdWrittenAt = &stamp
	}
	r.WrittenAt = at
}

// WaterKind is the water supply a seal request is about.
type WaterKind string

const (
	WaterHot         WaterKind = "hot"
	WaterCold        WaterKind = "cold"
	WaterUnspecified WaterKind = "unspecified"
)

// Flags maps the kind onto the request's non-exclusive hot/cold flags.
func (k WaterKind) Flags() (hot, cold bool) {
	switch k {
	case WaterHot:
		return true, false
	case WaterCold:
		return false, true
	}
	return false, false
}

// Timeslot is a half-day visit window.
type Timeslot string

const (
	SlotMorning   Timeslot = "morning"
	SlotAfternoon Timeslot = "afternoon"
)

// Timeslots lists the bookable slots in display order.
var Timeslots = []Timeslot{SlotMorning, SlotAfternoon}

// Valid reports whether s is a known slot.
func (s Timeslot) Valid() bool {
	return s == SlotMorning || s == SlotAfternoon
}

// StatusNew marks an open seal request; other statuses are set outside this service.
const StatusNew = "new"

// SealRequest asks for a technician visit on a given day and slot.
type SealRequest struct {
	ID            int64
	SubscriberID  int64
	Reason        string
	IsHot         bool
	IsCold        bool
	ScheduledDate Date
	Timeslot      Timeslot
	Status        string
	Channel       string
	OperatorID    int64
	CreatedAt     time.Time
}
