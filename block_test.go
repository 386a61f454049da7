package evdisp

import "testing"

func TestMallocBufReturnsRequestedLength(t *testing.T) {
	buf := mallocBuf(100)
	if len(buf) != 100 {
		t.Fatalf("len(buf) = %d, want 100", len(buf))
	}
	freeBuf(buf)
}

func TestMallocBufZeroOrNegativeIsNil(t *testing.T) {
	if mallocBuf(0) != nil {
		t.Fatalf("mallocBuf(0) should be nil")
	}
	if mallocBuf(-5) != nil {
		t.Fatalf("mallocBuf(-5) should be nil")
	}
}

func TestMallocBufReusesFreedBuffer(t *testing.T) {
	buf := mallocBuf(64)
	buf[0] = 0xAB
	freeBuf(buf)

	reused := mallocBuf(64)
	// Not a guarantee of the exact same backing array (sync.Pool may hand
	// out a different one under GC pressure), just that pooling doesn't
	// panic or corrupt lengths across the class boundary.
	if len(reused) != 64 {
		t.Fatalf("len(reused) = %d, want 64", len(reused))
	}
	freeBuf(reused)
}

func TestMallocBufAboveLargestClassAllocatesDirectly(t *testing.T) {
	n := 40 * 1024 * 1024 // larger than the largest size class (32MiB)
	buf := mallocBuf(n)
	if len(buf) != n {
		t.Fatalf("len(buf) = %d, want %d", len(buf), n)
	}
	// freeBuf on a non-class-aligned buffer should be a silent no-op.
	freeBuf(buf)
}

func TestFreeBufIgnoresForeignSlices(t *testing.T) {
	foreign := make([]byte, 10) // not obtained from mallocBuf
	freeBuf(foreign)            // must not panic
}

func TestReleaseBufferReturnsBackingArrayToPool(t *testing.T) {
	b := Buffer{Data: mallocBuf(128)}
	if b.Len() != 128 {
		t.Fatalf("Len() = %d, want 128", b.Len())
	}
	ReleaseBuffer(b) // must not panic
}

func TestSliceBlockWrapsWithoutCopying(t *testing.T) {
	src := []byte("abc")
	blk := NewSliceBlock(src)
	if blk.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", blk.Len())
	}
	src[0] = 'z'
	if blk.Bytes()[0] != 'z' {
		t.Fatalf("NewSliceBlock should not copy its input")
	}
}
