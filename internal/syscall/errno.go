// Package syscall implements the narrow numbered entry point §4.9
// describes: ten syscalls, probe-based pointer validation against the
// calling process's address space, and the negative-errno result
// convention. Grounded on the teacher's
// src/mazboot/golang/main/syscall.go, whose SyscallOpenat/SyscallRead/
// SyscallMmap handlers already follow the "int64 result, negative
// magic number on failure" shape this package generalizes into a
// dispatch table.
package syscall

// Errno is the small fixed negative-int error space syscall dispatch
// maps internal kernel errors onto. Values match the teacher's own
// literals (syscall.go: "-22 // -EINVAL", "-9 // -EBADF", ...), which
// are themselves the standard Linux errno numbers — kept here even
// though nothing in this module talks to Linux, because the teacher's
// own convention already is that numbering. Grounded further by
// original_source/kernel/src/syscall.rs's error-number mapping table
// (SPEC_FULL §12).
type Errno int64

const (
	EBADF  Errno = -9
	EAGAIN Errno = -11
	ENOMEM Errno = -12
	EFAULT Errno = -14
	EINVAL Errno = -22
)
