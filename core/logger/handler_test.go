package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// capture logs through a fresh handler and returns the written line.
func capture(t *testing.T, format logFormat, fn func(log *slog.Logger)) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	fn(slog.New(newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		writer: aw,
		format: format,
	})))
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func requireOrdered(t *testing.T, line string, parts ...string) {
	t.Helper()
	pos := -1
	for _, p := range parts {
		idx := strings.Index(line, p)
		if idx == -1 || idx < pos {
			t.Fatalf("%q not found in order within %s", p, line)
		}
		pos = idx
	}
}

func TestKVLineCarriesMeta(t *testing.T) {
	ctx := WithMeta(Background(), Meta{RID: "rid-123", Bot: "client", UpdateID: 42, UserID: "7", ChatID: 9})
	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", "fsm"), slog.LevelInfo, "transition",
			slog.String("status", "OK"),
			slog.String("state", "await_cold"),
			slog.Duration("duration", 1500*time.Microsecond),
		)
	})
	if !strings.HasPrefix(line, "ts=") {
		t.Fatalf("expected ts first: %s", line)
	}
	requireOrdered(t, line,
		"level=INFO", "component=fsm", "event=transition", "status=ok",
		"rid=rid-123", "bot=client", "update_id=42", "user_id=7", "chat_id=9",
		"state=await_cold", "duration_ms=2",
	)
}

func TestExplicitAttrsWinOverMeta(t *testing.T) {
	ctx := WithMeta(Background(), Meta{RID: "from-ctx", Handler: "text"})
	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "x", slog.String("rid", "explicit"))
	})
	if !strings.Contains(line, "rid=explicit") || !strings.Contains(line, "handler=text") {
		t.Fatalf("unexpected line %s", line)
	}
	if !strings.Contains(line, "component=app") {
		t.Fatalf("missing default component: %s", line)
	}
}

func TestJSONOrderAndCompactRID(t *testing.T) {
	ctx := WithRID(Background(), "12:34:56")
	line := capture(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", "service.readings"), slog.LevelError, "submit",
			slog.String("status", "fail"),
			slog.String("err", "boom"),
		)
	})
	requireOrdered(t, line,
		`{"ts":`, `"level":"ERROR"`, `"component":"service.readings"`, `"event":"submit"`,
		`"status":"fail"`, `"rid":"`+CompactRID("12:34:56")+`"`, `"rid_full":"12:34:56"`, `"ts_unix_nano"`,
	)
}

func TestKVOmitsRIDFullAndEmptyValues(t *testing.T) {
	ctx := WithRID(Background(), "123:456:789")
	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "x", slog.String("account", ""))
	})
	if !strings.Contains(line, "rid="+CompactRID("123:456:789")) {
		t.Fatalf("expected compact rid: %s", line)
	}
	if strings.Contains(line, "rid_full=") || strings.Contains(line, "account=") {
		t.Fatalf("unexpected keys: %s", line)
	}
}

func TestGroupsFlattenAndQuote(t *testing.T) {
	line := capture(t, formatKV, func(log *slog.Logger) {
		log.WithGroup("req").Info("http", slog.String("path", "/a b"), slog.Group("form", slog.Int("n", 2)))
	})
	if !strings.Contains(line, `req.path="/a b"`) || !strings.Contains(line, "req.form.n=2") {
		t.Fatalf("unexpected line %s", line)
	}
	if !strings.Contains(line, "event=http") {
		t.Fatalf("message should become the event: %s", line)
	}
}

func TestDisabledLevel(t *testing.T) {
	line := capture(t, formatKV, func(log *slog.Logger) {
		log.Debug("hidden")
	})
	if line != "" {
		t.Fatalf("debug should be filtered, got %s", line)
	}
}

func TestCompactRID(t *testing.T) {
	cases := map[string]string{
		"35:36:37":                             "z.10.11",
		"7f0d3f6e-2a7e-4a8e-9b7a-2f3c4d5e6f70": "7f0d3f6e-2a7e-4a8e-9b7a-2f3c4d5e6f70",
		"a:b:c":                                "a:b:c",
	}
	for in, want := range cases {
		if got := CompactRID(in); got != want {
			t.Fatalf("CompactRID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	cases := map[string]string{
		"+77011234567":  "***4567",
		"+7 701 123-45": "***2345",
		"1234":          "1234",
		"":              "",
	}
	for in, want := range cases {
		if got := MaskPhone(in); got != want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("a\x00b\u200bc\td", 10); got != "abc\td" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeLimit("привет", 3); got != "при" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestSampler(t *testing.T) {
	var s sampler
	s.Set(parseRatio("2/5"))
	allowed := 0
	for range 10 {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 4 {
		t.Fatalf("allowed %d of 10, want 4", allowed)
	}
	s.Set(parseRatio("off"))
	for range 3 {
		if !s.Allow() {
			t.Fatal("disabled sampler must allow everything")
		}
	}
	if n, d := parseRatio("10"); n != 1 || d != 10 {
		t.Fatalf("parseRatio(10) = %d/%d", n, d)
	}
}

func TestAsyncWriterAfterClose(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	if err := aw.Write([]byte("before\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := aw.Write([]byte("after\n")); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
	if got := buf.String(); got != "before\nafter\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestEventUsesContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	base := slog.New(newStructuredHandler(handlerConfig{level: slog.LevelInfo, writer: aw, format: formatKV}))
	ctx := WithLogger(context.Background(), base.With("bot", "controller"))

	Info(ctx, "service.fieldauth", "login", slog.String("status", "rejected"))
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "bot=controller") || !strings.Contains(line, "component=service.fieldauth") {
		t.Fatalf("unexpected line %s", line)
	}
}
