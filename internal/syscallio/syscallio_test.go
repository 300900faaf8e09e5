package syscallio

import (
	"path/filepath"
	"testing"
)

func TestOpenWriteReadRoundTrip(t *testing.T) {
	b := New()
	path := filepath.Join(t.TempDir(), "scratch.txt")

	h, err := b.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close(h)

	n, err := b.Write(h, []byte("hello"), 0)
	if err != nil || n != 5 {
		t.Fatalf("Write = %d, %v", n, err)
	}

	buf := make([]byte, 5)
	n, err = b.Read(h, buf, 0)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("Read = %d %q, %v", n, buf, err)
	}
}

func TestReadWriteBadHandle(t *testing.T) {
	b := New()
	if _, err := b.Read(999, make([]byte, 1), 0); err != ErrBadHandle {
		t.Fatalf("expected ErrBadHandle, got %v", err)
	}
	if _, err := b.Write(999, []byte("x"), 0); err != ErrBadHandle {
		t.Fatalf("expected ErrBadHandle, got %v", err)
	}
}

func TestCloseStdioIsNoop(t *testing.T) {
	b := New()
	if err := b.Close(StdoutHandle); err != nil {
		t.Fatalf("closing stdout handle should be a no-op, got %v", err)
	}
	n, err := b.Write(StdoutHandle, []byte("still alive\n"), 0)
	if err != nil || n == 0 {
		t.Fatalf("stdout should still be writable after Close, got %d, %v", n, err)
	}
}
