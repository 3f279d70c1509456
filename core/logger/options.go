package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	coreconfig "github.com/m3rciful/meterdesk/core/config"
)

const defaultDebugSample = "1/50"

// options is the logging section of the config resolved into concrete values.
type options struct {
	format   logFormat
	level    slog.Level
	keyOrder []string
	profile  string
	// sampleNum/sampleDen throttle high-volume debug events; 0/0 logs all.
	sampleNum, sampleDen int
}

func resolveOptions(cfg *coreconfig.Config) options {
	var lc coreconfig.LoggingConfig
	if cfg != nil {
		lc = cfg.Logging
	}
	o := options{
		level:    parseLevel(lc.Level),
		keyOrder: parseKeyOrder(lc.KeysOrder),
		profile:  strings.ToLower(strings.TrimSpace(lc.Profile)),
	}
	if o.profile == "" {
		o.profile = "prod"
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		o.format = formatKV
	case "json":
		o.format = formatJSON
	default:
		o.format = formatJSON
		if o.profile == "debug" || o.profile == "dev" {
			o.format = formatKV
		}
	}

	ratio := strings.TrimSpace(lc.DebugSample)
	if ratio == "" {
		ratio = defaultDebugSample
	}
	o.sampleNum, o.sampleDen = parseRatio(ratio)
	return o
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseKeyOrder reads a comma separated key list; empty or "default" keeps defaultKeyOrder.
func parseKeyOrder(raw string) []string {
	var order []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" && p != "default" {
			order = append(order, p)
		}
	}
	if len(order) == 0 {
		return append([]string(nil), defaultKeyOrder...)
	}
	return order
}

// openSinks returns stdout plus the optional log file. A file that cannot be
// opened is reported on the standard logger and skipped.
func openSinks(cfg *coreconfig.Config) ([]io.Writer, []io.Closer) {
	sinks := []io.Writer{os.Stdout}
	if cfg == nil {
		return sinks, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	file := strings.TrimSpace(cfg.Logging.File)
	if dir == "" || file == "" {
		return sinks, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: failed to create log dir %s: %v", dir, err)
		return sinks, nil
	}
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: failed to open log file %s: %v", path, err)
		return sinks, nil
	}
	return append(sinks, f), []io.Closer{f}
}

func traceFromEnv() bool {
	for _, name := range []string{"TRACE", "LOG_TRACE"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}
