package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/meterdesk/core/config"
	coredatabase "github.com/m3rciful/meterdesk/core/database"
	"github.com/m3rciful/meterdesk/internal/readings"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
client_bot:
  token: "123:abc"
database:
  driver: sqlite
  path: /tmp/meterdesk.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, coreconfig.RunModeLongpoll, cfg.ClientBot.RunMode)
	require.False(t, cfg.ControllerBot.Enabled())
	require.Equal(t, []string{"client"}, cfg.Channels())
	require.Equal(t, coredatabase.DriverSQLite, cfg.Database.Driver)
	require.Equal(t, 1, cfg.Database.MaxConnections)

	require.Equal(t, 24*time.Hour, cfg.Rules.EditWindow)
	require.Equal(t, string(readings.WindowLastRecord), cfg.Rules.EditWindowPolicy)
	require.Equal(t, 14, cfg.Rules.BookingHorizonDays)
	require.Equal(t, "Asia/Almaty", cfg.Locale.Location().String())
	require.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	require.Equal(t, SessionStoreMemory, cfg.Session.Store)
	require.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestLoadRulesAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
controller_bot:
  token: "456:def"
whatsapp:
  enabled: true
database:
  driver: postgres
  host: db
  name: meters
rules:
  edit_window: 12h
  edit_window_policy: per_channel
  booking_horizon_days: 7
locale:
  timezone: UTC
  default_lang: KZ
session:
  idle_timeout: 0s
  store: SQL
support:
  phone: " +7 701 123 45 67 "
`)
	t.Setenv("RULES_BOOKING_HORIZON_DAYS", "10")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"controller", "whatsapp"}, cfg.Channels())
	require.Equal(t, "/whatsapp/webhook", cfg.WhatsApp.Path)
	require.Equal(t, "db.internal", cfg.Database.Host)
	require.Equal(t, "5432", cfg.Database.Port)

	rules := cfg.ReadingRules()
	require.Equal(t, 12*time.Hour, rules.EditWindow)
	require.Equal(t, readings.WindowPerChannel, rules.Policy)
	require.Equal(t, 10, cfg.Rules.BookingHorizonDays)
	require.Equal(t, time.UTC, cfg.Locale.Location())
	require.Equal(t, "kz", cfg.Locale.DefaultLang)
	require.Zero(t, cfg.Session.IdleTimeout)
	require.Equal(t, SessionStoreSQL, cfg.Session.Store)
	require.Equal(t, "+7 701 123 45 67", cfg.Support.Phone)
}

func TestLoadRejectsInvalid(t *testing.T) {
	base := "database:\n  driver: sqlite\n  path: x.db\n"
	for name, extra := range map[string]string{
		"policy":   "rules:\n  edit_window_policy: forever\n",
		"horizon":  "rules:\n  booking_horizon_days: -1\n",
		"timezone": "locale:\n  timezone: Mars/Olympus\n",
		"store":    "session:\n  store: redis\n",
		"driver":   "database:\n  driver: mysql\n",
		"webhook":  "client_bot:\n  token: x\n  run_mode: webhook\n",
	} {
		t.Run(name, func(t *testing.T) {
			body := base + extra
			if name == "driver" {
				body = extra
			}
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
