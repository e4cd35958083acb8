package vkr

import "sync"

// retireItem is one pending release: a GPU object destroy, an allocation
// free, or a binding slot recycle.
type retireItem func()

// retireRing holds one destruction FIFO per frame slot. Destroys enqueue
// into the slot that is current when the handle is dropped; the scheduler
// drains a slot right after its fence signals, which is the earliest point
// the GPU can no longer reference anything the slot's frame used.
//
// Enqueue may happen from any thread holding a handle; draining is only
// done by the frame scheduler.
type retireRing struct {
	mu     sync.Mutex
	queues [][]retireItem
	active int
}

func newRetireRing(framesInFlight int) *retireRing {
	return &retireRing{queues: make([][]retireItem, framesInFlight)}
}

// advance makes slot the target for subsequent enqueues.
func (r *retireRing) advance(slot int) {
	r.mu.Lock()
	r.active = slot
	r.mu.Unlock()
}

// enqueue adds an item to the active slot's FIFO.
func (r *retireRing) enqueue(item retireItem) {
	r.mu.Lock()
	r.queues[r.active] = append(r.queues[r.active], item)
	r.mu.Unlock()
}

// drain runs and clears the FIFO of one slot, in enqueue order. It returns
// the number of items released.
func (r *retireRing) drain(slot int) int {
	r.mu.Lock()
	items := r.queues[slot]
	r.queues[slot] = nil
	r.mu.Unlock()

	for _, item := range items {
		item()
	}
	return len(items)
}

// drainAll releases everything in every slot. Only valid after the device
// has gone idle.
func (r *retireRing) drainAll() int {
	total := 0
	for slot := range r.queues {
		total += r.drain(slot)
	}
	return total
}

// pending reports the queue length of one slot.
func (r *retireRing) pending(slot int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues[slot])
}
