package evdisp

import "testing"

func TestPinnedBlockPoolAllocReturnsExactLength(t *testing.T) {
	p := NewPinnedBlockPool()
	blk := p.Alloc(100)
	if blk.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", blk.Len())
	}
	if len(blk.Bytes()) != 100 {
		t.Fatalf("len(Bytes()) = %d, want 100", len(blk.Bytes()))
	}
	p.Free(blk)
}

func TestPinnedBlockPoolAllocZeroReturnsEmptyBlock(t *testing.T) {
	p := NewPinnedBlockPool()
	blk := p.Alloc(0)
	if blk.Len() != 0 {
		t.Fatalf("Alloc(0).Len() = %d, want 0", blk.Len())
	}
}

func TestPinnedBlockPoolReusesFreedSlots(t *testing.T) {
	p := NewPinnedBlockPool()
	var blocks []Block
	for i := 0; i < 64; i++ {
		blocks = append(blocks, p.Alloc(4096))
	}
	for _, b := range blocks {
		p.Free(b)
	}
	// A span group starts with 64 slots; having freed all of them, the
	// next 64 allocations should be served without growing the span.
	for i := 0; i < 64; i++ {
		b := p.Alloc(4096)
		if b.Len() != 4096 {
			t.Fatalf("Len() = %d, want 4096", b.Len())
		}
	}
}

func TestPinnedBlockPoolGrowsWhenExhausted(t *testing.T) {
	p := NewPinnedBlockPool()
	var blocks []Block
	// Allocate more than the initial 64-slot span so the pool must grow.
	for i := 0; i < 200; i++ {
		blocks = append(blocks, p.Alloc(64))
	}
	for i, b := range blocks {
		if b.Len() != 64 {
			t.Fatalf("block %d: Len() = %d, want 64", i, b.Len())
		}
	}
}

func TestPinnedBlockPoolFreeIgnoresForeignBlocks(t *testing.T) {
	p := NewPinnedBlockPool()
	p.Free(NewSliceBlock([]byte("not from this pool"))) // must not panic
}

func TestPBSizeClassRoundsUpToPageThenPowerOfTwo(t *testing.T) {
	if got := pbSizeClass(1); got != 4096 {
		t.Fatalf("pbSizeClass(1) = %d, want 4096", got)
	}
	if got := pbSizeClass(4096); got != 4096 {
		t.Fatalf("pbSizeClass(4096) = %d, want 4096", got)
	}
	if got := pbSizeClass(4097); got != 8192 {
		t.Fatalf("pbSizeClass(4097) = %d, want 8192", got)
	}
}
