package logger

import (
	"bufio"
	"io"
	"sync"
)

// asyncWriter moves formatting off the hot path: lines are queued and a
// single goroutine writes them to every sink.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}

	// mu is held for reading while a line or flush is handed to the loop,
	// and for writing while the queue is closed.
	mu     sync.RWMutex
	closed bool

	outMu sync.Mutex
	out   *bufio.Writer
	err   error
}

func newAsyncWriter(sinks []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	var live []io.Writer
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	w := &asyncWriter{
		lines:   make(chan []byte, 256),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		out:     bufio.NewWriterSize(io.MultiWriter(live...), bufSize),
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.setErr(w.flushOut())
				return
			}
			w.setErr(w.writeOut(line))
		case ack := <-w.flushes:
			ack <- w.flushOut()
		}
	}
}

// Write queues a copy of p. Once closed it writes synchronously instead.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return w.writeOut(p)
	}
	// Blocks when the queue is full rather than dropping lines.
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush waits until every queued line reached the sinks.
func (w *asyncWriter) Flush() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return w.flushOut()
	}
	ack := make(chan error, 1)
	w.flushes <- ack
	return <-ack
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.done
	return w.Err()
}

// Err returns the first error a sink reported.
func (w *asyncWriter) Err() error {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	return w.err
}

func (w *asyncWriter) writeOut(p []byte) error {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	if _, err := w.out.Write(p); err != nil {
		return err
	}
	return w.out.Flush()
}

func (w *asyncWriter) flushOut() error {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	return w.out.Flush()
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.outMu.Lock()
	defer w.outMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
