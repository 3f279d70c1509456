// Package sender delivers outbound Bot API calls off the update goroutine,
// in order per chat, retrying transient failures.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/meterdesk/core/logger"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the chat's lane is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	// QueueSize is the capacity of each worker lane.
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

// Job is one unit of outbound work. Run may be called several times and must
// skip whatever an earlier attempt already delivered.
type Job struct {
	Ctx    context.Context
	Chat   int64
	Action string
	Run    func() error
}

// Dispatcher runs jobs on a fixed set of lanes. All jobs of one chat share a
// lane, so replies never overtake each other.
type Dispatcher struct {
	opts  Options
	lanes []chan Job

	mu     sync.RWMutex
	closed bool

	wg   sync.WaitGroup
	errs atomic.Uint64
}

// NewDispatcher starts a dispatcher with defaults for zero options.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	opts.MaxRetries = max(opts.MaxRetries, 0)
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}

	d := &Dispatcher{opts: opts, lanes: make([]chan Job, opts.Workers)}
	d.wg.Add(opts.Workers)
	for i := range d.lanes {
		d.lanes[i] = make(chan Job, opts.QueueSize)
		go d.work(d.lanes[i])
	}
	return d
}

// Enqueue hands j to its chat's lane without blocking.
func (d *Dispatcher) Enqueue(j Job) error {
	if j.Run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if j.Ctx == nil {
		j.Ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.lanes[d.lane(j.Chat)] <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) lane(chat int64) int {
	n := int64(len(d.lanes))
	return int(((chat % n) + n) % n)
}

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close rejects new jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, l := range d.lanes {
			close(l)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work(lane chan Job) {
	defer d.wg.Done()
	for j := range lane {
		if err := d.run(j); err != nil {
			d.errs.Add(1)
		}
	}
}

// run executes j with linear backoff. A flood-control reply replaces the
// backoff with the wait Telegram asked for.
func (d *Dispatcher) run(j Job) error {
	ctx, cancel := context.WithTimeout(j.Ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.Run(); err == nil {
			lvl := slog.LevelDebug
			if attempt > 1 {
				lvl = slog.LevelInfo
			}
			logger.Event(j.Ctx, component, lvl, "send.ok",
				slog.String("status", "ok"),
				slog.String("action", j.Action),
				slog.Int("attempts", attempt),
				slog.Duration("duration", logger.Took(start)),
			)
			return nil
		}
		if !Retryable(err) || attempt == attempts {
			break
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		if wait, ok := RetryAfter(err); ok {
			delay = wait
		}
		logger.Debug(j.Ctx, component, "send.retry",
			slog.String("status", "retry"),
			slog.String("action", j.Action),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
			slog.String("cause", Classify(err)),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			err = errors.Join(err, ctx.Err())
			attempt = attempts
		case <-timer.C:
		}
	}

	logger.Error(j.Ctx, component, "send.fail",
		slog.String("status", "fail"),
		slog.String("action", j.Action),
		slog.String("cause", Classify(err)),
		slog.String("err", SanitizeError(err)),
		slog.Duration("duration", logger.Took(start)),
	)
	return err
}
