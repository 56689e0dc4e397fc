package ws

import (
	"sync"

	"convtrainer/internal/metrics"
)

// outboundQueueSize bounds the frames buffered per connection.
const outboundQueueSize = 128

type frame struct {
	critical bool
	data     []byte
}

// outQueue is the per-connection outbound buffer. Publishers push
// without blocking; the writer goroutine drains. On overflow the oldest
// non-critical frame is shed first; a critical frame that still cannot
// fit closes the connection instead of silently vanishing.
type outQueue struct {
	mu     sync.Mutex
	frames []frame
	notify chan struct{}

	closed    bool
	closeCode int
	closeText string
}

func newOutQueue() *outQueue {
	return &outQueue{notify: make(chan struct{}, 1)}
}

// push enqueues one frame, applying the overflow policy. It reports
// false when the queue had to close the connection to avoid dropping a
// critical frame.
func (q *outQueue) push(f frame) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return true
	}
	if len(q.frames) >= outboundQueueSize {
		if !q.shedOldestNonCriticalLocked() {
			if f.critical {
				q.closeLocked(CloseBackpressure, "BACKPRESSURE")
				q.mu.Unlock()
				q.signal()
				return false
			}
			metrics.WSMessagesDropped.Inc()
			q.mu.Unlock()
			return true
		}
		metrics.WSMessagesDropped.Inc()
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *outQueue) shedOldestNonCriticalLocked() bool {
	for i, f := range q.frames {
		if !f.critical {
			q.frames = append(q.frames[:i], q.frames[i+1:]...)
			return true
		}
	}
	return false
}

// pop removes the oldest frame; ok is false when the buffer is empty.
func (q *outQueue) pop() (frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return frame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// close marks the queue for shutdown. The writer drains what is already
// buffered, then sends a close frame with this code.
func (q *outQueue) close(code int, text string) {
	q.mu.Lock()
	q.closeLocked(code, text)
	q.mu.Unlock()
	q.signal()
}

func (q *outQueue) closeLocked(code int, text string) {
	if q.closed {
		return
	}
	q.closed = true
	q.closeCode = code
	q.closeText = text
}

// closeReason returns the pending close, if any.
func (q *outQueue) closeReason() (code int, text string, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeCode, q.closeText, q.closed
}

func (q *outQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
