package state

import "github.com/Jamesd000/crypto-live-dashboard/internal/market"

// ring is a fixed-capacity FIFO; pushing onto a full ring evicts the oldest item.
type ring struct {
	buf   []market.ClassifiedEvent
	start int
	size  int
}

func newRing(capacity int) ring {
	return ring{buf: make([]market.ClassifiedEvent, capacity)}
}

func (r *ring) push(ev market.ClassifiedEvent) {
	if len(r.buf) == 0 {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = ev
		r.size++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int { return r.size }

// items copies the ring out oldest first.
func (r *ring) items() []market.ClassifiedEvent {
	out := make([]market.ClassifiedEvent, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
