package snurl

import (
	"sync"

	"github.com/horazont/metric-relay/internal/serialnum"
)

type sendEntry struct {
	sn      serialnum.SerialNumber
	payload []byte
}

// SendQueue is a fixed-capacity FIFO of pre-encoded outbound frames awaiting
// acknowledgement, evicting the oldest entry on overflow.
type SendQueue struct {
	mu       sync.Mutex
	capacity int
	entries  []sendEntry
	minSN    serialnum.SerialNumber
	nextSN   serialnum.SerialNumber
}

// NewSendQueue allocates a SendQueue starting at sequence number 0.
func NewSendQueue(capacity int) *SendQueue {
	return &SendQueue{capacity: capacity}
}

// Push enqueues payload at the current nextSN, advancing it, and returns the
// sequence number assigned. If the queue is full the oldest entry is
// evicted and minSN is advanced past it.
func (q *SendQueue) Push(payload []byte) serialnum.SerialNumber {
	q.mu.Lock()
	defer q.mu.Unlock()

	sn := q.nextSN
	q.entries = append(q.entries, sendEntry{sn: sn, payload: payload})
	q.nextSN = q.nextSN.Add(1)

	if len(q.entries) > q.capacity {
		q.entries = q.entries[1:]
		q.minSN = q.entries[0].sn
	}
	return sn
}

// Discard removes the specific entry for sn, if present.
func (q *SendQueue) Discard(sn serialnum.SerialNumber) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.discardLocked(func(e sendEntry) bool { return e.sn == sn })
}

// DiscardUpToIncl removes every entry whose sequence number is <= sn under
// the modular ordering.
func (q *SendQueue) DiscardUpToIncl(sn serialnum.SerialNumber) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.discardLocked(func(e sendEntry) bool {
		less, ok := sn.Less(e.sn)
		return ok && !less
	})
}

func (q *SendQueue) discardLocked(drop func(sendEntry) bool) {
	kept := q.entries[:0:0]
	for _, e := range q.entries {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	if len(q.entries) > 0 {
		q.minSN = q.entries[0].sn
	}
}

// Frames returns the newest-first slice of buffered frames, truncated so
// their total encoded size (3-byte per-frame header plus payload) does not
// exceed budget bytes.
func (q *SendQueue) Frames(budget int) []DataFrame {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []DataFrame
	used := 0
	for i := len(q.entries) - 1; i >= 0; i-- {
		e := q.entries[i]
		cost := 3 + len(e.payload)
		if used+cost > budget {
			break
		}
		out = append(out, DataFrame{SN: e.sn, Payload: e.payload})
		used += cost
	}
	return out
}

// Len returns the number of buffered, unacknowledged frames.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// MinSN returns the sequence number of the oldest buffered frame.
func (q *SendQueue) MinSN() serialnum.SerialNumber {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.minSN
}

// NextSN returns the sequence number that will be assigned to the next push.
func (q *SendQueue) NextSN() serialnum.SerialNumber {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextSN
}
