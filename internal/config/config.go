// Package config assembles the service configuration: the shared transport and
// logging settings, the database and the business rules.
package config

import (
	"fmt"
	"strings"
	"time"
	// Time zone names resolve even on hosts without a zoneinfo database.
	_ "time/tzdata"

	coreconfig "github.com/m3rciful/meterdesk/core/config"
	coredatabase "github.com/m3rciful/meterdesk/core/database"
	"github.com/m3rciful/meterdesk/internal/appointments"
	"github.com/m3rciful/meterdesk/internal/readings"
)

const (
	// SessionStoreMemory keeps Telegram sessions in process memory.
	SessionStoreMemory = "memory"
	// SessionStoreSQL keeps Telegram sessions in the database.
	SessionStoreSQL = "sql"

	defaultTimezone    = "Asia/Almaty"
	defaultIdleTimeout = 30 * time.Minute
)

// Config is the full service configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Rules    RulesConfig         `yaml:"rules"`
	Locale   LocaleConfig        `yaml:"locale"`
	Session  SessionConfig       `yaml:"session"`
	Support  SupportConfig       `yaml:"support"`
	Seed     SeedConfig          `yaml:"seed"`
}

// RulesConfig tunes the reading and booking rules.
type RulesConfig struct {
	EditWindow         time.Duration `yaml:"edit_window" split_words:"true"`
	EditWindowPolicy   string        `yaml:"edit_window_policy" split_words:"true"`
	BookingHorizonDays int           `yaml:"booking_horizon_days" split_words:"true"`
}

// LocaleConfig sets the business time zone and the fallback language.
type LocaleConfig struct {
	Timezone    string `yaml:"timezone"`
	DefaultLang string `yaml:"default_lang" split_words:"true"`

	location *time.Location
}

// Location returns the parsed time zone; valid after Normalize.
func (l LocaleConfig) Location() *time.Location {
	if l.location == nil {
		return time.UTC
	}
	return l.location
}

// SessionConfig controls dialogue sessions.
type SessionConfig struct {
	// IdleTimeout aborts a half-finished workflow; 0 disables it.
	IdleTimeout time.Duration `yaml:"idle_timeout" split_words:"true"`
	// Store picks where Telegram sessions live. WhatsApp sessions always use the database.
	Store string `yaml:"store"`
}

// SupportConfig holds contact details shown to users.
type SupportConfig struct {
	Phone string `yaml:"phone"`
}

// SeedConfig points at the reference data fixtures.
type SeedConfig struct {
	File string `yaml:"file"`
}

// CoreConfig exposes the embedded transport and logging configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// ReadingRules converts the rules section for the ledger.
func (c *Config) ReadingRules() readings.Rules {
	return readings.Rules{
		EditWindow: c.Rules.EditWindow,
		Policy:     readings.WindowPolicy(c.Rules.EditWindowPolicy),
	}
}

// Load reads the YAML file at path, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Session.IdleTimeout = defaultIdleTimeout
	if err := coreconfig.Decode(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}

	rules := c.ReadingRules()
	if err := rules.Normalize(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	c.Rules.EditWindow = rules.EditWindow
	c.Rules.EditWindowPolicy = string(rules.Policy)
	if c.Rules.BookingHorizonDays < 0 {
		return fmt.Errorf("rules.booking_horizon_days must be >= 0")
	}
	if c.Rules.BookingHorizonDays == 0 {
		c.Rules.BookingHorizonDays = appointments.DefaultHorizonDays
	}

	tz := strings.TrimSpace(c.Locale.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid locale.timezone %q: %w", tz, err)
	}
	c.Locale.Timezone = tz
	c.Locale.location = loc
	c.Locale.DefaultLang = strings.ToLower(strings.TrimSpace(c.Locale.DefaultLang))

	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session.idle_timeout must be >= 0")
	}
	switch store := strings.ToLower(strings.TrimSpace(c.Session.Store)); store {
	case "":
		c.Session.Store = SessionStoreMemory
	case SessionStoreMemory, SessionStoreSQL:
		c.Session.Store = store
	default:
		return fmt.Errorf("invalid session.store %q; allowed: memory, sql", c.Session.Store)
	}
	c.Support.Phone = strings.TrimSpace(c.Support.Phone)
	return nil
}
