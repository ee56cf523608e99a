package docstore

import (
	"context"
	"sync"
)

// Stream delivers the snapshots of one live query. Only the latest undelivered
// snapshot is kept, so a slow reader skips intermediate states but never
// observes them out of order.
type Stream struct {
	snapshots chan Snapshot
	errs      chan error
	done      chan struct{}

	mu      sync.Mutex
	closed  bool
	onClose func()
}

// NewStream creates an open stream. It closes itself when ctx is done and calls
// onClose once when released. Store implementations and test doubles feed it
// with Offer and Fail.
func NewStream(ctx context.Context, onClose func()) *Stream {
	s := &Stream{
		snapshots: make(chan Snapshot, 1),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
		onClose:   onClose,
	}

	if ctxDone := ctx.Done(); ctxDone != nil {
		go func() {
			select {
			case <-ctxDone:
				s.Close()
			case <-s.done:
			}
		}()
	}

	return s
}

// Snapshots is closed once the stream is closed.
func (s *Stream) Snapshots() <-chan Snapshot {
	return s.snapshots
}

// Errors reports subscription failures. The stream stays open after an error.
func (s *Stream) Errors() <-chan error {
	return s.errs
}

// Done is closed once the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close releases the subscription. It is safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.snapshots)
	close(s.done)
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

// Offer replaces any undelivered snapshot with snap. It never blocks and
// reports false once the stream is closed.
func (s *Stream) Offer(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.snapshots:
	default:
	}
	s.snapshots <- snap
	return true
}

// Fail reports a subscription error without closing the stream.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.errs:
	default:
	}
	s.errs <- err
}
