package runner

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
)

// eventQueueDepth bounds the number of lines buffered between the stream
// reader and the log file before backpressure kicks in.
const eventQueueDepth = 256

// PauseResumer is an upstream byte source that can be paused while a slow
// sink drains. Pause and Resume are only ever called in strict alternation.
type PauseResumer interface {
	Pause()
	Resume()
}

// EventWriter serializes newline-delimited records to a log file without
// blocking the event parsing hot path. When its internal queue fills up the
// upstream source is paused once and resumed when the queue has drained.
//
// A writer constructed with an empty path is a no-op: WriteLine and Close
// cost nothing, which lets the runner stay agnostic about whether event
// logging is enabled.
type EventWriter struct {
	file    *os.File
	queue   chan string
	closing chan struct{}
	done    chan struct{}
	src     PauseResumer

	mu     sync.Mutex
	paused bool
	closed bool

	closeOnce sync.Once
	writeErr  error
}

// NewEventWriter opens path for writing and starts the drain goroutine.
// An empty path yields a no-op writer. src may be nil.
func NewEventWriter(path string, src PauseResumer) (*EventWriter, error) {
	if path == "" {
		return &EventWriter{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &EventWriter{
		file:    f,
		queue:   make(chan string, eventQueueDepth),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		src:     src,
	}
	go w.drain()
	return w, nil
}

// WriteLine appends a newline to text and queues it for the log file. When
// the queue is full the upstream source is paused and the call blocks until
// the drain goroutine makes room.
func (w *EventWriter) WriteLine(text string) {
	if w.file == nil {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	select {
	case w.queue <- text:
		w.mu.Unlock()
		return
	default:
	}
	// Queue full: backpressure. The paused flag guarantees a source is never
	// paused twice without an intervening resume.
	if w.src != nil && !w.paused {
		w.paused = true
		w.src.Pause()
	}
	w.mu.Unlock()
	w.queue <- text
}

// Close flushes pending lines and ends the underlying file exactly once.
// It is safe to call multiple times.
func (w *EventWriter) Close() {
	if w.file == nil {
		return
	}
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.closing)
		<-w.done
	})
}

// Err returns the first write error encountered, if any.
func (w *EventWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeErr
}

func (w *EventWriter) drain() {
	buf := bufio.NewWriter(w.file)
	defer func() {
		if err := buf.Flush(); err != nil {
			w.setErr(err)
		}
		if err := w.file.Close(); err != nil {
			w.setErr(err)
		}
		close(w.done)
	}()

	for {
		select {
		case line := <-w.queue:
			w.writeLine(buf, line)
			w.maybeResume()
		case <-w.closing:
			for {
				select {
				case line := <-w.queue:
					w.writeLine(buf, line)
				default:
					return
				}
			}
		}
	}
}

func (w *EventWriter) writeLine(buf *bufio.Writer, line string) {
	if _, err := buf.WriteString(line); err != nil {
		w.setErr(err)
		return
	}
	if err := buf.WriteByte('\n'); err != nil {
		w.setErr(err)
	}
}

func (w *EventWriter) maybeResume() {
	w.mu.Lock()
	if w.paused && len(w.queue) == 0 {
		w.paused = false
		if w.src != nil {
			w.src.Resume()
		}
	}
	w.mu.Unlock()
}

func (w *EventWriter) setErr(err error) {
	w.mu.Lock()
	if w.writeErr == nil {
		w.writeErr = err
	}
	w.mu.Unlock()
}
