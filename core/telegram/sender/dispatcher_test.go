package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"
)

var errRefused = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

func TestRepliesToOneChatKeepOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 4, QueueSize: 100})

	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	for i := range 50 {
		for _, chat := range []int64{7, -1001, 12} {
			require.NoError(t, d.Enqueue(Job{Chat: chat, Action: "test", Run: func() error {
				mu.Lock()
				got[chat] = append(got[chat], i)
				mu.Unlock()
				return nil
			}}))
		}
	}
	d.Close()

	for _, chat := range []int64{7, -1001, 12} {
		require.Len(t, got[chat], 50)
		for i, v := range got[chat] {
			require.Equal(t, i, v, "chat %d", chat)
		}
	}
	require.Zero(t, d.ErrorCount())
}

func TestLaneHandlesNegativeChats(t *testing.T) {
	d := &Dispatcher{lanes: make([]chan Job, 4)}
	require.Equal(t, 3, d.lane(-5))
	require.Equal(t, 0, d.lane(-1000))
	require.Equal(t, 2, d.lane(6))
}

func TestTransientFailureIsRetried(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})

	runs := 0
	require.NoError(t, d.Enqueue(Job{Chat: 1, Run: func() error {
		runs++
		if runs == 1 {
			return errRefused
		}
		return nil
	}}))
	d.Close()
	require.Equal(t, 2, runs)
	require.Zero(t, d.ErrorCount())
}

func TestRejectionIsNotRetried(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})

	runs := 0
	require.NoError(t, d.Enqueue(Job{Chat: 1, Run: func() error {
		runs++
		return &tele.Error{Code: 400, Description: "Bad Request: chat not found"}
	}}))
	d.Close()
	require.Equal(t, 1, runs)
	require.Equal(t, uint64(1), d.ErrorCount())
}

func TestRetriesStopAtDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 10, RetryBackoff: time.Hour, MaxDuration: 20 * time.Millisecond})

	runs := 0
	require.NoError(t, d.Enqueue(Job{Chat: 1, Run: func() error {
		runs++
		return errRefused
	}}))
	d.Close()
	require.Equal(t, 1, runs)
	require.Equal(t, uint64(1), d.ErrorCount())
}

func TestCancelledJobContextStopsRetries(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 5, RetryBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Enqueue(Job{Ctx: ctx, Chat: 1, Run: func() error {
		cancel()
		return errRefused
	}}))
	d.Close()
	require.Equal(t, uint64(1), d.ErrorCount())
}

func TestQueueFullAndClosed(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})

	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, d.Enqueue(Job{Chat: 1, Run: func() error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	noop := func() error { return nil }
	require.NoError(t, d.Enqueue(Job{Chat: 1, Run: noop}))
	require.ErrorIs(t, d.Enqueue(Job{Chat: 1, Run: noop}), ErrQueueFull)
	require.Error(t, d.Enqueue(Job{Chat: 1}))

	close(release)
	d.Close()
	d.Close()
	require.ErrorIs(t, d.Enqueue(Job{Chat: 1, Run: noop}), ErrQueueClosed)
}
