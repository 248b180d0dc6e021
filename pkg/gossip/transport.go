package gossip

import "sync"

// Sender delivers a payload to another node on a best-effort basis: no
// acknowledgment, no retry. Implementations must not retain payload.
type Sender interface {
	Send(from, to Address, payload []byte) error
}

// Inbox is the queue between a transport and the gossiper. Transports
// enqueue from their own goroutines; the gossiper drains it on Tick.
// Limit caps the number of queued payloads; 0 means unbounded.
type Inbox struct {
	Limit int

	mu    sync.Mutex
	queue [][]byte
}

// Push enqueues a copy of payload. It reports false, dropping the payload,
// when the inbox is full.
func (q *Inbox) Push(payload []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Limit > 0 && len(q.queue) >= q.Limit {
		return false
	}
	q.queue = append(q.queue, append([]byte(nil), payload...))
	return true
}

// Drain removes and returns everything queued, oldest first.
func (q *Inbox) Drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.queue
	q.queue = nil
	return out
}

func (q *Inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
