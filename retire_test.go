package vkr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetireRingDrainsOnlyOwnSlot(t *testing.T) {
	r := newRetireRing(3)

	released := []int{}
	r.advance(0)
	r.enqueue(func() { released = append(released, 0) })
	r.advance(1)
	r.enqueue(func() { released = append(released, 1) })

	assert.Equal(t, 1, r.drain(0))
	assert.Equal(t, []int{0}, released)
	assert.Equal(t, 0, r.drain(0), "drained slot should be empty")

	assert.Equal(t, 1, r.drain(1))
	assert.Equal(t, []int{0, 1}, released)
}

func TestRetireRingEnqueueOrder(t *testing.T) {
	r := newRetireRing(2)
	r.advance(0)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		r.enqueue(func() { order = append(order, i) })
	}
	r.drain(0)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order, "items must release in enqueue order")
}

// A destroy issued during frame N must survive until slot N comes around
// again, a full frames-in-flight cycle later.
func TestRetireRingDestructionLatency(t *testing.T) {
	const framesInFlight = 3
	r := newRetireRing(framesInFlight)

	destroyedAt := -1
	frame := 0
	beginFrame := func() {
		slot := frame % framesInFlight
		if r.drain(slot) > 0 && destroyedAt < 0 {
			destroyedAt = frame
		}
		r.advance(slot)
		frame++
	}

	beginFrame() // frame 0 becomes active
	r.enqueue(func() {})

	for i := 0; i < framesInFlight+2; i++ {
		beginFrame()
	}
	assert.Equal(t, framesInFlight, destroyedAt,
		"release must run exactly frames-in-flight frames after the destroy")
}

func TestRetireRingDrainAll(t *testing.T) {
	r := newRetireRing(2)
	count := 0
	r.advance(0)
	r.enqueue(func() { count++ })
	r.advance(1)
	r.enqueue(func() { count++ })
	r.enqueue(func() { count++ })

	assert.Equal(t, 3, r.drainAll())
	assert.Equal(t, 3, count)
	assert.Equal(t, 0, r.pending(0))
	assert.Equal(t, 0, r.pending(1))
}
