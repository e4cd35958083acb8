package vkr

import "testing"

func TestHandlePoolAllocate(t *testing.T) {
	p := newHandlePool(0)

	a, ok := p.Allocate()
	if !ok || !a.IsValid() {
		t.Fatalf("expected a valid handle, got %v", a)
	}
	b, _ := p.Allocate()
	if a == b {
		t.Fatalf("expected distinct handles, got %v twice", a)
	}
	if !p.Valid(a) || !p.Valid(b) {
		t.Fatalf("freshly allocated handles should validate")
	}
	if p.Live() != 2 {
		t.Fatalf("expected 2 live handles, got %d", p.Live())
	}
}

func TestHandlePoolZeroNeverAllocated(t *testing.T) {
	p := newHandlePool(0)
	for i := 0; i < 64; i++ {
		h, _ := p.Allocate()
		if h == HandleInvalid {
			t.Fatalf("allocation %d returned the invalid sentinel", i)
		}
		if h.Index == 0 {
			t.Fatalf("allocation %d used reserved index 0", i)
		}
	}
}

func TestHandlePoolReuseBumpsGeneration(t *testing.T) {
	p := newHandlePool(0)

	a, _ := p.Allocate()
	if !p.Release(a) {
		t.Fatalf("release of live handle failed")
	}
	if p.Valid(a) {
		t.Fatalf("released handle should not validate")
	}

	b, _ := p.Allocate()
	if b.Index != a.Index {
		t.Fatalf("expected index %d to be recycled, got %d", a.Index, b.Index)
	}
	if b.Generation == a.Generation {
		t.Fatalf("recycled index kept generation %d", a.Generation)
	}
	if p.Valid(a) {
		t.Fatalf("stale handle validates against recycled slot")
	}
	if !p.Valid(b) {
		t.Fatalf("recycled handle should validate")
	}
}

func TestHandlePoolDoubleRelease(t *testing.T) {
	p := newHandlePool(0)
	a, _ := p.Allocate()
	p.Release(a)
	if p.Release(a) {
		t.Fatalf("double release should report false")
	}
	if p.Live() != 0 {
		t.Fatalf("expected 0 live handles, got %d", p.Live())
	}
}

func TestHandlePoolCapacity(t *testing.T) {
	p := newHandlePool(2)
	a, _ := p.Allocate()
	p.Allocate()
	if _, ok := p.Allocate(); ok {
		t.Fatalf("allocation beyond capacity should fail")
	}
	p.Release(a)
	if _, ok := p.Allocate(); !ok {
		t.Fatalf("allocation after release should reuse the freed slot")
	}
}
