package vkr

import "fmt"

// Allocation is a placed range inside a memory block.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

func alignUp(a uint64, align uint64) uint64 {
	if align == 0 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return a - m + align
}

// LinearAllocator places allocations into a fixed-size range, keeping the
// live set sorted by offset and filling gaps left by frees. First fit, no
// compaction.
type LinearAllocator struct {
	Size   uint64
	allocs []*Allocation
}

// Allocate returns a placed allocation or nil when no gap fits.
func (p *LinearAllocator) Allocate(size uint64, align uint64) *Allocation {
	if size == 0 || size > p.Size {
		return nil
	}
	if len(p.allocs) == 0 {
		na := &Allocation{Offset: 0, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}

	if p.allocs[0].Offset >= size {
		na := &Allocation{Offset: 0, Size: size}
		p.allocs = append([]*Allocation{na}, p.allocs...)
		return na
	}

	for i := 0; i+1 < len(p.allocs); i++ {
		c := p.allocs[i]
		n := p.allocs[i+1]
		lo := alignUp(c.Offset+c.Size, align)
		if n.Offset >= lo && n.Offset-lo >= size {
			na := &Allocation{Offset: lo, Size: size}
			p.allocs = append(p.allocs[:i+1], append([]*Allocation{na}, p.allocs[i+1:]...)...)
			return na
		}
	}

	last := p.allocs[len(p.allocs)-1]
	lo := alignUp(last.Offset+last.Size, align)
	if lo <= p.Size && p.Size-lo >= size {
		na := &Allocation{Offset: lo, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}
	return nil
}

// Free removes an allocation from the live set, making its range available
// again.
func (p *LinearAllocator) Free(fa *Allocation) {
	for i, a := range p.allocs {
		if a == fa {
			p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
			return
		}
	}
}

// Empty reports whether the allocator has no live allocations.
func (p *LinearAllocator) Empty() bool {
	return len(p.allocs) == 0
}

func (p *LinearAllocator) String() string {
	return fmt.Sprintf("%v", p.allocs)
}

// BumpAllocator hands out monotonically increasing offsets from a fixed
// range. Individual allocations cannot be freed; Reset reclaims the whole
// range at once. Used for frame-scoped staging memory.
type BumpAllocator struct {
	Size uint64
	head uint64
}

// Allocate returns the placed offset, or false when the range is full.
func (p *BumpAllocator) Allocate(size uint64, align uint64) (uint64, bool) {
	offset := alignUp(p.head, align)
	if offset > p.Size || p.Size-offset < size {
		return 0, false
	}
	p.head = offset + size
	return offset, true
}

// Reset reclaims the entire range. Only valid once the GPU is done with
// every allocation handed out since the previous reset.
func (p *BumpAllocator) Reset() {
	p.head = 0
}

// Used reports the current high-water mark.
func (p *BumpAllocator) Used() uint64 {
	return p.head
}
