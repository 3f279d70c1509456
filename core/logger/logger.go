// Package logger is the process-wide structured logger: slog with a
// key-ordered JSON/KV handler, per-component child loggers and request
// correlation carried in context.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/meterdesk/core/buildinfo"
	coreconfig "github.com/m3rciful/meterdesk/core/config"
)

var (
	initOnce sync.Once
	stopOnce sync.Once

	sink    *asyncWriter
	closers []io.Closer

	level        slog.LevelVar
	debugSampler sampler
	trace        bool

	// L is the base logger. Until InitLogger runs it discards everything,
	// so packages can log from tests without wiring sinks.
	L = slog.New(slog.DiscardHandler)

	// DB logs database connectivity events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// SEED logs fixture loading.
	SEED *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// WA logs WhatsApp webhook events.
	WA *slog.Logger
)

// components maps each package-level logger to its component name.
var components = []struct {
	dst  **slog.Logger
	name string
}{
	{&DB, "db"},
	{&MIG, "db.migrate"},
	{&SEED, "db.seed"},
	{&TG, "tg"},
	{&WA, "wa"},
}

func init() {
	debugSampler.Set(parseRatio(defaultDebugSample))
	bindComponents()
}

func bindComponents() {
	for _, c := range components {
		*c.dst = L.With("component", c.name)
	}
}

// InitLogger configures the global structured logger. Later calls are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		opts := resolveOptions(cfg)
		level.Set(opts.level)
		debugSampler.Set(opts.sampleNum, opts.sampleDen)
		trace = traceFromEnv()

		var sinks []io.Writer
		sinks, closers = openSinks(cfg)
		if len(sinks) == 0 {
			err = errors.New("logger: no output available")
			return
		}
		sink = newAsyncWriter(sinks, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &level,
			writer:   sink,
			format:   opts.format,
			keyOrder: opts.keyOrder,
		}))
		slog.SetDefault(L)
		bindComponents()

		attrs := []slog.Attr{
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", opts.profile),
		}
		if cfg != nil {
			attrs = append(attrs, slog.String("channels", strings.Join(cfg.Channels(), ",")))
		}
		L.LogAttrs(context.Background(), slog.LevelInfo, "startup", attrs...)
	})
	return err
}

// Shutdown flushes buffered output and closes the log file. Lines logged
// afterwards are written synchronously.
func Shutdown() error {
	var errs []error
	stopOnce.Do(func() {
		if sink != nil {
			errs = append(errs, sink.Flush(), sink.Close())
		}
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
	})
	return errors.Join(errs...)
}

// Background returns context.Background() for call sites without a request scope.
func Background() context.Context {
	return context.Background()
}

// LogEvent logs attrs under the given event name; a nil logg falls back to the context logger.
func LogEvent(ctx context.Context, logg *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, lvl, "", attrs...)
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs one event for component. The context logger is used when it
// exists so attributes bound upstream, such as the bot name, are kept.
func Event(ctx context.Context, component string, lvl slog.Level, event string, attrs ...slog.Attr) {
	logg := FromContext(ctx)
	if name := strings.TrimSpace(component); name != "" {
		logg = logg.With("component", name)
	}
	LogEvent(ctx, logg, lvl, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug event should be logged.
// Setting TRACE or LOG_TRACE lets all of them through.
func ShouldSampleDebug() bool {
	return trace || debugSampler.Allow()
}
