// Package sink provides a flow-controlled byte sink.
//
// A Sink accepts writes into a pending buffer and moves them to the underlying
// io.Writer on a single background goroutine. Write reports whether the pending
// buffer is still under the configured high-water mark; a producer that gets
// false must wait for the drain event before writing again. That keeps memory
// bounded by the high-water mark instead of by the amount of data produced.
//
// Completion is signalled through one-time events (drain, finish, error). Await
// races an event against the error event and always detaches both listeners.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	apperrors "github.com/yourorg/rowstream-kit/pkg/errors"
	"github.com/yourorg/rowstream-kit/pkg/logging"
)

// DefaultHighWaterMark is the pending-buffer size at which Write starts reporting backpressure.
const DefaultHighWaterMark = 16 * 1024

// Options configures a Sink.
type Options struct {
	// HighWaterMark is the number of pending bytes at which Write returns false.
	HighWaterMark int
	// SyncOnFinish fsyncs the underlying writer (when it supports Sync) before finish fires.
	SyncOnFinish bool
	Logger       logging.Logger
}

func (o Options) withDefaults() Options {
	if o.HighWaterMark <= 0 {
		o.HighWaterMark = DefaultHighWaterMark
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Stats is a snapshot of a sink's counters.
type Stats struct {
	BytesAccepted int64
	BytesFlushed  int64
	Pending       int
	PeakPending   int
}

// Sink is a single-destination byte sink with backpressure.
type Sink struct {
	w      io.Writer
	name   string
	opts   Options
	logger logging.Logger

	mu        sync.Mutex
	wake      *sync.Cond
	pending   []byte
	spare     []byte
	needDrain bool
	ending    bool
	finished  bool
	err       error
	stats     Stats

	listeners map[Event]map[uint64]chan error
	nextID    uint64

	closeOnce sync.Once
	done      chan struct{}
}

// Create opens path for writing, truncating or creating it, and returns a sink for it.
func Create(path string, opts Options) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, apperrors.NewSinkUnavailableError(fmt.Sprintf("cannot open %s for writing", path), err)
	}
	return newSink(f, path, opts), nil
}

// New returns a sink writing to w. If w is an io.Closer it is closed when the
// sink finishes or fails.
func New(w io.Writer, opts Options) *Sink {
	return newSink(w, fmt.Sprintf("%T", w), opts)
}

func newSink(w io.Writer, name string, opts Options) *Sink {
	opts = opts.withDefaults()
	s := &Sink{
		w:         w,
		name:      name,
		opts:      opts,
		logger:    opts.Logger.With(logging.NewField("sink", name)),
		listeners: make(map[Event]map[uint64]chan error),
		done:      make(chan struct{}),
	}
	s.wake = sync.NewCond(&s.mu)

	s.logger.Debug("Sink opened", logging.NewField("high_water_mark", opts.HighWaterMark))

	go s.run()
	return s
}

// Write queues a copy of p. It returns false when the pending buffer has reached
// the high-water mark; the bytes are still accepted, but the caller should wait
// for EventDrain before writing more. Writing to a failed or ended sink returns
// an error and accepts nothing.
func (s *Sink) Write(p []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false, s.err
	}
	if s.ending {
		return false, apperrors.NewMisuseError(fmt.Sprintf("write to %s after end", s.name))
	}

	s.pending = append(s.pending, p...)
	s.stats.BytesAccepted += int64(len(p))
	if len(s.pending) > s.stats.PeakPending {
		s.stats.PeakPending = len(s.pending)
	}
	s.wake.Signal()

	if len(s.pending) >= s.opts.HighWaterMark {
		s.needDrain = true
		return false, nil
	}
	return true, nil
}

// End requests that everything pending be flushed and the writer closed.
// EventFinish fires once that has happened. End may be called only once.
func (s *Sink) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if s.ending {
		return apperrors.NewMisuseError(fmt.Sprintf("end called twice on %s", s.name))
	}
	s.ending = true
	s.wake.Signal()
	return nil
}

// Destroy aborts the sink: pending bytes are dropped, the writer is closed and
// EventError fires with cause. It is a no-op on a finished or failed sink.
func (s *Sink) Destroy(cause error) {
	if cause == nil {
		cause = fmt.Errorf("sink destroyed")
	}
	s.fail(cause)
}

// Err returns the error the sink failed with, if any.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a snapshot of the sink's counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Pending = len(s.pending)
	return st
}

// Done is closed when the flusher goroutine has exited.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// run is the flusher loop. It swaps the pending buffer out under the lock and
// writes it without holding the lock, so producers can refill in parallel.
func (s *Sink) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.ending && s.err == nil {
			s.wake.Wait()
		}
		if s.err != nil {
			s.mu.Unlock()
			return
		}
		if len(s.pending) == 0 {
			s.mu.Unlock()
			s.finish()
			return
		}

		chunk := s.pending
		s.pending = s.spare[:0]
		s.spare = nil
		if s.needDrain {
			s.needDrain = false
			s.emitLocked(EventDrain, nil)
		}
		s.mu.Unlock()

		n, err := s.w.Write(chunk)

		s.mu.Lock()
		s.stats.BytesFlushed += int64(n)
		if cap(chunk) <= 4*s.opts.HighWaterMark {
			s.spare = chunk[:0]
		}
		s.mu.Unlock()

		if err == nil && n < len(chunk) {
			err = io.ErrShortWrite
		}
		if err != nil {
			s.fail(err)
			return
		}
	}
}

func (s *Sink) finish() {
	if s.opts.SyncOnFinish {
		if syncer, ok := s.w.(interface{ Sync() error }); ok {
			if err := syncer.Sync(); err != nil {
				s.fail(err)
				return
			}
		}
	}
	if err := s.closeWriter(); err != nil {
		s.fail(err)
		return
	}

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.finished = true
	flushed := s.stats.BytesFlushed
	s.emitLocked(EventFinish, nil)
	s.mu.Unlock()

	s.logger.Debug("Sink finished", logging.NewField("bytes", flushed))
}

func (s *Sink) fail(cause error) {
	s.mu.Lock()
	if s.err != nil || s.finished {
		s.mu.Unlock()
		return
	}
	s.err = apperrors.NewWriteFailureError(fmt.Sprintf("write to %s failed", s.name), cause)
	err := s.err
	s.pending = nil
	s.spare = nil
	s.emitLocked(EventError, err)
	s.wake.Broadcast()
	s.mu.Unlock()

	if closeErr := s.closeWriter(); closeErr != nil {
		s.logger.Debug("Close after failure", logging.NewField("error", closeErr))
	}
	s.logger.Error("Sink failed", logging.NewField("error", cause))
}

func (s *Sink) closeWriter() error {
	var err error
	s.closeOnce.Do(func() {
		if c, ok := s.w.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
