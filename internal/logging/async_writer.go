// Package logging provides the client's log sink.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("log writer closed")

// AsyncWriter queues writes and hands them to an underlying writer on a
// background goroutine, so slow disks never stall the UI loop. When the
// queue is full the oldest pending record is dropped.
type AsyncWriter struct {
	out   io.Writer
	queue chan []byte
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64

	closeOnce sync.Once
	closeErr  error
	timeout   time.Duration
}

// NewAsyncWriter starts a writer forwarding to out with room for size
// pending records.
func NewAsyncWriter(out io.Writer, size int) *AsyncWriter {
	if size <= 0 {
		size = 1024
	}
	w := &AsyncWriter{
		out:     out,
		queue:   make(chan []byte, size),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go w.drain()
	return w
}

// Write implements io.Writer. It never blocks on the underlying writer.
func (w *AsyncWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return 0, ErrClosed
	}

	data := make([]byte, len(p))
	copy(data, p)

	select {
	case w.queue <- data:
		return len(p), nil
	default:
	}

	// Full: make room by discarding the oldest record.
	select {
	case <-w.queue:
		w.dropped.Add(1)
	default:
	}
	select {
	case w.queue <- data:
	default:
		w.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped returns how many records were discarded under backpressure.
func (w *AsyncWriter) Dropped() int64 {
	return w.dropped.Load()
}

func (w *AsyncWriter) drain() {
	defer close(w.done)
	for data := range w.queue {
		// A failing sink has nowhere to report to; keep draining.
		_, _ = w.out.Write(data)
	}
}

// Close flushes pending records, stops the background goroutine and closes
// the underlying writer when it is an io.Closer. It waits at most a few
// seconds for a stuck writer. Safe to call more than once.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()

		select {
		case <-w.done:
		case <-time.After(w.timeout):
			w.closeErr = errors.New("log writer flush timed out")
			return
		}
		if c, ok := w.out.(io.Closer); ok {
			w.closeErr = c.Close()
		}
	})
	return w.closeErr
}

// Open appends to the file at path through an AsyncWriter, creating the
// file and its directory when missing.
func Open(path string, size int) (*AsyncWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return NewAsyncWriter(f, size), nil
}
