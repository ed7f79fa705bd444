package provider

import (
	"context"
	"sync"
)

// Stream carries one in-flight assistant reply as a sequence of cumulative
// text snapshots: every value on the channel is the full reply so far, not a
// delta. Consumers can therefore render each snapshot as-is and drop
// intermediate ones under backpressure without losing text.
//
// A single producer goroutine owns the send side: it pushes snapshots and
// closes the stream exactly once, on every termination path (normal
// completion, generation failure, caller cancellation). After the channel is
// closed, Final returns the last snapshot pushed.
type Stream struct {
	ch chan string

	mu     sync.Mutex
	closed bool
	final  string
	failed bool
}

// NewStream returns an open stream.
func NewStream() *Stream {
	return &Stream{ch: make(chan string, 16)}
}

// Snapshots returns the receive side of the stream.
func (s *Stream) Snapshots() <-chan string { return s.ch }

// Push publishes the next cumulative snapshot. It blocks while the channel
// buffer is full, so a consumer that stopped draining is detected through
// ctx. Reports whether the snapshot was delivered; on false the producer
// should stop generating and Close.
func (s *Stream) Push(ctx context.Context, snapshot string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.final = snapshot
	s.mu.Unlock()

	select {
	case s.ch <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close terminates the stream. Only the producer goroutine may call it.
// It is idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Fail marks the stream as having ended on a generation error. The terminal
// snapshot (an apology, pushed by the producer) is still delivered normally.
func (s *Stream) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
}

// Final returns the last snapshot pushed. Only meaningful once the snapshot
// channel has been closed.
func (s *Stream) Final() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final
}

// Failed reports whether the stream ended on a generation error.
func (s *Stream) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}
