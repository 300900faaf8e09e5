// Package syscallio is the hosted (runs under plain go test, no
// hardware) stand-in for the Read/Write/Open/Close syscalls' VFS
// backend. The real kernel delegates Open to the in-kernel VFS mount
// table (explicitly out of this core's scope, spec.md §1); this
// package backs the same handle-based Read/Write/Open/Close contract
// with real file descriptors via golang.org/x/sys/unix, so
// internal/syscall's dispatcher can be exercised end to end under
// `go test` without a VFS, the hosted conformance harness SPEC_FULL.md
// §11 describes.
package syscallio

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrBadHandle is returned for an operation on a handle this backend
// never opened (or already closed) — the syscall dispatcher maps this
// to EBADF.
var ErrBadHandle = errors.New("syscallio: bad handle")

const (
	// StdoutHandle and StdinHandle are pre-opened handles mirroring
	// the teacher's syscall.go convention of well-known low handle
	// numbers for the console.
	StdoutHandle uint64 = 1
	StdinHandle  uint64 = 0
)

// Backend implements internal/syscall.IO over real file descriptors,
// guarded by a mutex since syscalls may arrive concurrently from
// multiple cores' threads in the hosted harness.
type Backend struct {
	mu      sync.Mutex
	byHand  map[uint64]int
	next    uint64
}

// New constructs a Backend with stdin/stdout pre-registered at their
// conventional handle numbers.
func New() *Backend {
	return &Backend{
		byHand: map[uint64]int{
			StdinHandle:  unix.Stdin,
			StdoutHandle: unix.Stdout,
		},
		next: 2,
	}
}

// Open opens path read-write (creating it if absent) and returns a new
// handle backing it.
func (b *Backend) Open(path string) (uint64, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.next
	b.next++
	b.byHand[h] = fd
	return h, nil
}

// Close closes the file descriptor behind handle and forgets it.
func (b *Backend) Close(handle uint64) error {
	b.mu.Lock()
	fd, ok := b.byHand[handle]
	if ok && handle != StdinHandle && handle != StdoutHandle {
		delete(b.byHand, handle)
	}
	b.mu.Unlock()
	if !ok {
		return ErrBadHandle
	}
	if handle == StdinHandle || handle == StdoutHandle {
		return nil // never actually close the process's own stdio
	}
	return unix.Close(fd)
}

// Read reads len(buf) bytes from handle at offset into buf via pread,
// so repeated reads from different "processes" against the same
// handle don't disturb a shared file position.
func (b *Backend) Read(handle uint64, buf []byte, offset uint64) (int64, error) {
	fd, ok := b.fd(handle)
	if !ok {
		return -1, ErrBadHandle
	}
	n, err := unix.Pread(fd, buf, int64(offset))
	if err != nil {
		return -1, err
	}
	return int64(n), nil
}

// Write writes buf to handle at offset via pwrite. Writing to
// StdoutHandle ignores offset and appends, matching a console's
// semantics.
func (b *Backend) Write(handle uint64, buf []byte, offset uint64) (int64, error) {
	fd, ok := b.fd(handle)
	if !ok {
		return -1, ErrBadHandle
	}
	if handle == StdoutHandle {
		n, err := unix.Write(fd, buf)
		if err != nil {
			return -1, err
		}
		return int64(n), nil
	}
	n, err := unix.Pwrite(fd, buf, int64(offset))
	if err != nil {
		return -1, err
	}
	return int64(n), nil
}

func (b *Backend) fd(handle uint64) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fd, ok := b.byHand[handle]
	return fd, ok
}
