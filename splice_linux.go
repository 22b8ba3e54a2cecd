//go:build linux
// +build linux

package shiftbuffer

import (
	"golang.org/x/sys/unix"
)

// rawSplice wraps the Linux splice(2) syscall, moving data between two file
// descriptors (at least one of which must be a pipe) without copying it
// through userspace. Pipe uses this as its fast path between two Unix
// sockets; a direct splice rejected with EINVAL is relayed through an
// intermediate pipe, and only an ENOTSUP result makes Pipe fall back to a
// ShiftBuffer[byte]-staged copy.
func rawSplice(rfd int, roff *int64, wfd int, woff *int64, size int, flags int) (int, error) {
	n, err := unix.Splice(rfd, roff, wfd, woff, size, flags)
	return int(n), err
}

// spliceMove is the flag Pipe always passes to rawSplice: the kernel is
// free to move pages between the descriptors rather than copying them.
const spliceMove = unix.SPLICE_F_MOVE
