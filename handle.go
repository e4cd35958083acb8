package vkr

import "fmt"

// Handle is a stable identifier for a device-owned resource. It pairs a
// 32-bit slot index with a generation counter so a recycled slot never
// aliases its previous occupant. The zero Handle is the invalid sentinel.
type Handle struct {
	Index      uint32
	Generation uint32
}

// HandleInvalid is the sentinel returned by failed creates and accepted as
// a no-op by destroys.
var HandleInvalid = Handle{}

func (h Handle) IsValid() bool {
	return h != HandleInvalid
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "Handle(invalid)"
	}
	return fmt.Sprintf("Handle(%d:%d)", h.Index, h.Generation)
}

// Typed handles returned by the device create operations. They share the
// Handle representation; the distinct types keep buffers, images, samplers
// and pipelines from being mixed up at call sites.
type (
	BufferHandle          struct{ Handle }
	ImageHandle           struct{ Handle }
	SamplerHandle         struct{ Handle }
	ComputePipelineHandle struct{ Handle }
	RasterPipelineHandle  struct{ Handle }
)

// handlePool hands out slot indices with generation counters. Released
// indices go onto a free list and come back with a bumped generation, so
// stale handles fail validation instead of reaching the new occupant.
// Index 0 is never allocated; it belongs to the invalid sentinel.
type handlePool struct {
	generations []uint32
	free        []uint32
	capacity    uint32
	live        int
}

func newHandlePool(capacity uint32) *handlePool {
	return &handlePool{
		generations: []uint32{0},
		capacity:    capacity,
	}
}

// Allocate returns a fresh handle, or the invalid handle when the pool is
// at capacity.
func (p *handlePool) Allocate() (Handle, bool) {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		p.live++
		return Handle{Index: idx, Generation: p.generations[idx]}, true
	}
	if p.capacity != 0 && uint32(len(p.generations)) > p.capacity {
		return HandleInvalid, false
	}
	idx := uint32(len(p.generations))
	p.generations = append(p.generations, 1)
	p.live++
	return Handle{Index: idx, Generation: 1}, true
}

// Release invalidates h and recycles its index. Releasing an invalid or
// stale handle is a no-op and reports false.
func (p *handlePool) Release(h Handle) bool {
	if !p.Valid(h) {
		return false
	}
	p.generations[h.Index]++
	p.free = append(p.free, h.Index)
	p.live--
	return true
}

// Valid reports whether h refers to a currently allocated slot.
func (p *handlePool) Valid(h Handle) bool {
	if !h.IsValid() || h.Index >= uint32(len(p.generations)) {
		return false
	}
	return p.generations[h.Index] == h.Generation
}

func (p *handlePool) Live() int {
	return p.live
}
