package registry

import (
	"sync"

	"github.com/SilentByte/aviator5g/internal/protocol"
)

// outboundQueue is an unbounded, non-blocking-enqueue message queue backing
// one connection's outbound direction. No third-party unbounded-channel
// library fits this well, so enqueue-never-blocks is implemented directly
// on a mutex-guarded slice and a condition variable, rather than
// approximated with a large fixed-capacity buffered channel.
type outboundQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []protocol.Message
	closed bool
}

func newOutboundQueue() *outboundQueue {
	q := &outboundQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueue appends msg. It never blocks. Once the queue is closed, the
// frame is discarded silently — a receiver that is already tearing down
// must never backpressure its sender.
func (q *outboundQueue) enqueue(msg protocol.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, msg)
	q.cond.Signal()
}

// dequeue blocks until a message is available or the queue is closed, in
// which case ok is false.
func (q *outboundQueue) dequeue() (msg protocol.Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return protocol.Message{}, false
	}
	msg, q.items = q.items[0], q.items[1:]
	return msg, true
}

// close marks the queue closed and wakes any blocked dequeue, draining
// nothing: messages already enqueued but not yet drained are dropped —
// a connection tearing down does not guarantee delivery of its last
// in-flight frames.
func (q *outboundQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
