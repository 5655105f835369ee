package download

import (
	"sync"

	"github.com/handiism/cloudmusic-downloader/internal/metrics"
)

// DefaultSubscriberBuffer is the number of events buffered per subscriber.
const DefaultSubscriberBuffer = 256

// Subscription is one consumer of the scheduler's event stream.
//
// Each subscription has its own bounded buffer. When a consumer falls
// behind and the buffer is full, the oldest non-terminal event is dropped;
// terminal events are never dropped. Producers never wait on consumers.
type Subscription struct {
	out    chan Event
	notify chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	buf     []Event
	limit   int
	dropped int
	closed  bool
	stop    sync.Once
	onClose func(*Subscription)
}

func newSubscription(limit int, onClose func(*Subscription)) *Subscription {
	if limit <= 0 {
		limit = DefaultSubscriberBuffer
	}
	s := &Subscription{
		out:     make(chan Event),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		limit:   limit,
		onClose: onClose,
	}
	go s.pump()
	return s
}

// Events returns the channel of events. It is closed after the scheduler
// shut down and every buffered event was delivered, or after Close.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Dropped returns the number of events dropped so far.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops delivery and discards buffered events.
func (s *Subscription) Close() {
	s.stop.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// push buffers e without blocking.
func (s *Subscription) push(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.buf) >= s.limit {
		s.dropOldestLocked()
	}
	s.buf = append(s.buf, e)
	s.mu.Unlock()
	s.wake()
}

// dropOldestLocked removes the oldest non-terminal event. A buffer holding
// only terminal events grows instead.
func (s *Subscription) dropOldestLocked() {
	for i, e := range s.buf {
		if !e.Terminal() {
			s.buf = append(s.buf[:i], s.buf[i+1:]...)
			s.dropped++
			metrics.EventsDropped.Inc()
			return
		}
	}
}

// finish marks the end of the stream; buffered events are still delivered.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.buf) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		e := s.buf[0]
		s.buf = s.buf[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
}
