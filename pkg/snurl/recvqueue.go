package snurl

import (
	"sync"

	"github.com/horazont/metric-relay/internal/serialnum"
)

// ResyncMarker names the sentinel RecvQueue.Flush places ahead of the
// drained frames; Flush carries it as a Delivery with Resync set rather than
// as a value of this type. It tells downstream decoders (RTC mappers, stream buffers) to discard any
// state tied to the previous connection's sequence space.
type ResyncMarker struct{}

// Delivery is one item produced by a RecvQueue: either a ResyncMarker or a
// payload, never both.
type Delivery struct {
	Resync  bool
	Payload []byte
}

// RecvQueue is a fixed-capacity ordered buffer of frames awaiting in-order
// delivery to the consumer, modelled on the teacher's condvar-free ring
// buffer but keyed by modular sequence number instead of slot order.
type RecvQueue struct {
	mu       sync.Mutex
	capacity int
	lowestSN serialnum.SerialNumber
	slots    []([]byte)
}

// NewRecvQueue allocates a RecvQueue of the given capacity, initially
// expecting lowestSN.
func NewRecvQueue(capacity int, lowestSN serialnum.SerialNumber) *RecvQueue {
	return &RecvQueue{
		capacity: capacity,
		lowestSN: lowestSN,
		slots:    make([][]byte, capacity),
	}
}

// offset returns the slot index for sn and whether sn lies in the current
// window [lowestSN, lowestSN+capacity).
func (q *RecvQueue) offset(sn serialnum.SerialNumber) (int, bool) {
	diff, ok := sn.Sub(q.lowestSN)
	if !ok || diff < 0 || int(diff) >= q.capacity {
		return 0, false
	}
	return int(diff), true
}

// Set inserts payload at sn if it lies within the window and the slot is
// still empty; duplicates and out-of-window frames are silently dropped,
// mirroring the at-least-once nature of the underlying transport.
func (q *RecvQueue) Set(sn serialnum.SerialNumber, payload []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.offset(sn)
	if !ok || q.slots[i] != nil {
		return false
	}
	q.slots[i] = payload
	return true
}

// TryRead returns the frame at lowestSN if present, advancing the window by
// one.
func (q *RecvQueue) TryRead() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := q.slots[0]
	if p == nil {
		return nil, false
	}
	q.advanceLocked(1)
	return p, true
}

// advanceLocked shifts the window forward by n slots, discarding whatever
// they held.
func (q *RecvQueue) advanceLocked(n int) {
	if n >= q.capacity {
		for i := range q.slots {
			q.slots[i] = nil
		}
		q.lowestSN = q.lowestSN.Add(int32(n) % (1 << 15))
		return
	}
	copy(q.slots, q.slots[n:])
	for i := q.capacity - n; i < q.capacity; i++ {
		q.slots[i] = nil
	}
	q.lowestSN = q.lowestSN.Add(int32(n))
}

// MarkUnreceivableUpTo advances lowestSN to sn, driven by the peer's
// min_avail_sn, discarding any holes that can now never be filled.
func (q *RecvQueue) MarkUnreceivableUpTo(sn serialnum.SerialNumber) {
	q.mu.Lock()
	defer q.mu.Unlock()

	diff, ok := sn.Sub(q.lowestSN)
	if !ok || diff <= 0 {
		return
	}
	q.advanceLocked(int(diff))
}

// Flush drains all buffered frames in sequence-number order (skipping
// holes), resets lowestSN to newLowest, and returns the drained frames
// prefixed by a resync marker.
func (q *RecvQueue) Flush(newLowest serialnum.SerialNumber) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Delivery, 0, len(q.slots)+1)
	out = append(out, Delivery{Resync: true})
	for _, s := range q.slots {
		if s != nil {
			out = append(out, Delivery{Payload: s})
		}
		_ = s
	}
	for i := range q.slots {
		q.slots[i] = nil
	}
	q.lowestSN = newLowest
	return out
}

// LowestSN returns the current window floor.
func (q *RecvQueue) LowestSN() serialnum.SerialNumber {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lowestSN
}
