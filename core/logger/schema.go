package logger

import "strings"

// Level names as they appear in the "level" field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// statuses lists the values the "status" field may take; other values pass
// through unchanged so mistakes stay visible.
var statuses = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"skip":         {},
	"retry":        {},
	"rate_limited": {},
	"cancelled":    {},
	"rejected":     {},
}

func normalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "", "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if _, ok := statuses[s]; ok {
		return s
	}
	return status
}

// defaultKeyOrder puts correlation first, then the dialogue, then outcome
// details. Keys not listed follow in alphabetical order.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"bot",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"channel",
	"kind",
	"workflow",
	"state",
	"next_state",
	"account",
	"subscriber_id",
	"period",
	"date",
	"slot",
	"request_id",
	"username",
	"duration_ms",
	"messages",
	"payload",
	"payload_len",
	"lang",
	"mode",
	"listen",
	"public_url",
	"http_status",
	"driver",
	"host",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"pending_count",
}
