package volatile

import "testing"

func TestReadWriteRoundTrip(t *testing.T) {
	var backing uint32
	rw := New[ReadWrite](&backing)
	Write(rw, 0xCAFEBABE)
	if got := Read(rw); got != 0xCAFEBABE {
		t.Fatalf("got %#x want 0xCAFEBABE", got)
	}
}

func TestCoerceReadOnly(t *testing.T) {
	var backing uint64 = 42
	rw := New[ReadWrite](&backing)
	ro := CoerceReadOnly(rw)
	if got := Read(ro); got != 42 {
		t.Fatalf("got %d want 42", got)
	}
}

func TestAddAdvancesByElementSize(t *testing.T) {
	backing := [4]uint32{10, 20, 30, 40}
	base := New[ReadWrite](&backing[0])
	second := base.Add(1)
	if got := Read(second); got != 20 {
		t.Fatalf("got %d want 20", got)
	}
	Write(second, 99)
	if backing[1] != 99 {
		t.Fatalf("write through Add handle did not reach backing array: %d", backing[1])
	}
}

func TestViewWriteAll(t *testing.T) {
	var backing [4]uint64
	view := NewView[ReadWrite](New[ReadWrite](&backing[0]), 4)
	WriteAll(view, []uint64{1, 2, 3, 4})
	for i, want := range []uint64{1, 2, 3, 4} {
		if backing[i] != want {
			t.Errorf("backing[%d] = %d, want %d", i, backing[i], want)
		}
	}
}
