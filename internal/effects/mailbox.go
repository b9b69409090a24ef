package effects

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by send once the worker has exited.
var ErrClosed = errors.New("mailbox closed")

// mailbox is an unbounded FIFO with any number of senders and one receiver.
// Sends never block, so a producer can't be stalled by a long effect.
type mailbox struct {
	mu     sync.Mutex
	queue  []Message
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) send(msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// receive returns the oldest message, waiting up to timeout for one to
// arrive. A non-positive timeout waits indefinitely.
func (m *mailbox) receive(timeout time.Duration) (Message, bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if msg, ok := m.pop(); ok {
			return msg, true
		}
		select {
		case <-m.notify:
		case <-expired:
			return m.pop()
		}
	}
}

func (m *mailbox) pop() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Message{}, false
	}
	msg := m.queue[0]
	m.queue[0] = Message{}
	m.queue = m.queue[1:]
	return msg, true
}

// close rejects further sends and returns whatever was still queued.
func (m *mailbox) close() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	rest := m.queue
	m.queue = nil
	return rest
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
