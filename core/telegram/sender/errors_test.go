package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

// floodReply wraps a FloodError without calling its Error method, which needs
// telebot's unexported inner error.
type floodReply struct{ flood tele.FloodError }

func (floodReply) Error() string   { return "telegram: retry after" }
func (f floodReply) Unwrap() error { return f.flood }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	post := func(err error) error {
		return &url.Error{Op: "Post", URL: "https://api.telegram.org/bot1:x/sendMessage", Err: err}
	}
	cases := map[string]error{
		"dns":       post(&net.DNSError{Err: "no such host", Name: "api.telegram.org"}),
		"dial":      post(errRefused),
		"timeout":   post(timeoutErr{}),
		"cancelled": fmt.Errorf("send: %w", context.Canceled),
		"flood":     floodReply{tele.FloodError{RetryAfter: 3}},
		"blocked":   &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"},
		"http_4xx":  &tele.Error{Code: 400, Description: "Bad Request"},
		"http_5xx":  &tele.Error{Code: 502, Description: "Bad Gateway"},
		"unknown":   errors.New("weird"),
	}
	for want, err := range cases {
		require.Equal(t, want, Classify(err), "%v", err)
	}
	require.Empty(t, Classify(nil))
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(errRefused))
	require.True(t, Retryable(timeoutErr{}))
	require.True(t, Retryable(floodReply{tele.FloodError{RetryAfter: 1}}))
	require.False(t, Retryable(&tele.Error{Code: 400}))
	require.False(t, Retryable(context.Canceled))
	require.False(t, Retryable(nil))

	// A reset after the request was written may have delivered it.
	require.False(t, Unsent(&net.OpError{Op: "read", Err: errors.New("connection reset by peer")}))
	require.True(t, Unsent(&net.DNSError{Err: "no such host"}))
}

func TestRetryAfter(t *testing.T) {
	wait, ok := RetryAfter(floodReply{tele.FloodError{RetryAfter: 7}})
	require.True(t, ok)
	require.Equal(t, 7*time.Second, wait)

	_, ok = RetryAfter(errRefused)
	require.False(t, ok)
}

func TestSanitizeErrorMasksToken(t *testing.T) {
	err := &url.Error{Op: "Post", URL: "https://api.telegram.org/bot123456:AA-bb_CC/getUpdates", Err: errors.New("EOF")}
	got := SanitizeError(err)
	require.NotContains(t, got, "123456:AA-bb_CC")
	require.Contains(t, got, "bot<redacted>/getUpdates")
	require.Empty(t, SanitizeError(nil))
}
