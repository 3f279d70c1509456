package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// BotConfig holds the settings of one Telegram bot. A bot without a token is disabled.
type BotConfig struct {
	Token   string `yaml:"token" split_words:"true"`
	RunMode string `yaml:"run_mode" split_words:"true"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int           `yaml:"longpoll_timeout_seconds" split_words:"true"`
	Webhook                WebhookConfig `yaml:"webhook"`
}

// Enabled reports whether the bot should be started.
func (b BotConfig) Enabled() bool {
	return strings.TrimSpace(b.Token) != ""
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Listen string `yaml:"listen"`
	Port   int    `yaml:"port"`
}

// WhatsAppConfig configures the inbound WhatsApp webhook (Twilio-compatible).
type WhatsAppConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
	// PublicURL is the externally visible webhook URL used for signature checks.
	PublicURL         string `yaml:"public_url" split_words:"true"`
	AuthToken         string `yaml:"auth_token" split_words:"true"`
	ValidateSignature bool   `yaml:"validate_signature" split_words:"true"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order" split_words:"true"`
	DebugSample string `yaml:"debug_sample" split_words:"true"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

const (
	defaultWhatsAppListen = ":8080"
	defaultWhatsAppPath   = "/whatsapp/webhook"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the transport and logging configuration of every channel.
type Config struct {
	ClientBot     BotConfig       `yaml:"client_bot" envconfig:"CLIENT_BOT"`
	ControllerBot BotConfig       `yaml:"controller_bot" envconfig:"CONTROLLER_BOT"`
	WhatsApp      WhatsAppConfig  `yaml:"whatsapp"`
	Logging       LoggingConfig   `yaml:"logging"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// Decode fills target from the YAML file at path and then from the environment.
// Environment values win over the file.
func Decode(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", target); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if err := normalizeBot("client_bot", &cfg.ClientBot); err != nil {
		return err
	}
	if err := normalizeBot("controller_bot", &cfg.ControllerBot); err != nil {
		return err
	}
	if cfg.ClientBot.Enabled() && cfg.ControllerBot.Enabled() &&
		cfg.ClientBot.RunMode == RunModeWebhook && cfg.ControllerBot.RunMode == RunModeWebhook &&
		cfg.ClientBot.Webhook.Port == cfg.ControllerBot.Webhook.Port &&
		cfg.ClientBot.Webhook.Listen == cfg.ControllerBot.Webhook.Listen {
		return fmt.Errorf("client_bot and controller_bot webhooks must listen on different addresses")
	}

	if cfg.WhatsApp.Enabled {
		if strings.TrimSpace(cfg.WhatsApp.Listen) == "" {
			cfg.WhatsApp.Listen = defaultWhatsAppListen
		}
		path := strings.TrimSpace(cfg.WhatsApp.Path)
		if path == "" {
			path = defaultWhatsAppPath
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		cfg.WhatsApp.Path = path
		if cfg.WhatsApp.ValidateSignature {
			if strings.TrimSpace(cfg.WhatsApp.AuthToken) == "" {
				return fmt.Errorf("whatsapp.auth_token is required when whatsapp.validate_signature is set")
			}
			if strings.TrimSpace(cfg.WhatsApp.PublicURL) == "" {
				return fmt.Errorf("whatsapp.public_url is required when whatsapp.validate_signature is set")
			}
		}
	}

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

// Channels lists the names of enabled channels in start order.
func (c *Config) Channels() []string {
	if c == nil {
		return nil
	}
	var out []string
	if c.ClientBot.Enabled() {
		out = append(out, "client")
	}
	if c.ControllerBot.Enabled() {
		out = append(out, "controller")
	}
	if c.WhatsApp.Enabled {
		out = append(out, "whatsapp")
	}
	return out
}

func normalizeBot(name string, bot *BotConfig) error {
	if !bot.Enabled() {
		return nil
	}
	rm := strings.ToLower(strings.TrimSpace(bot.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(bot.Webhook.URL) == "" {
			return fmt.Errorf("%s.webhook.url is required when run_mode is 'webhook'", name)
		}
		if strings.TrimSpace(bot.Webhook.Listen) == "" {
			return fmt.Errorf("%s.webhook.listen is required when run_mode is 'webhook'", name)
		}
		if bot.Webhook.Port <= 0 {
			return fmt.Errorf("%s.webhook.port must be > 0 when run_mode is 'webhook'", name)
		}
	case RunModeLongpoll:
		if bot.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("%s.longpoll_timeout_seconds must be >= 0", name)
		}
	default:
		return fmt.Errorf("invalid %s.run_mode %q; allowed: webhook, longpoll", name, bot.RunMode)
	}
	bot.RunMode = rm
	return nil
}
