package shiftbuffer

import (
	"io"
	"net"
	"os"
	"runtime"
	"syscall"
)

// pipeChunk is the amount of data moved per splice(2) or per staged-copy
// iteration: large enough to amortise syscalls, small enough to keep a
// single relay hop's memory and latency bounded.
const pipeChunk = 4 * 1024 * 1024

// maxSpliceRetries bounds how many consecutive EAGAIN results spliceChunk
// will absorb by yielding the scheduler before giving up and reporting the
// error to the caller. A relay leg that never makes progress after this
// many yields is treated as stalled rather than retried forever.
const maxSpliceRetries = 64

// Pipe copies data from src to dst, preferring the kernel-level zero-copy
// path (Linux splice(2)), and falling back to PipeBuffered only when
// rawSplice reports ENOTSUP (every platform other than Linux). A failure to
// obtain either connection's file descriptor is returned as an error. It
// returns the number of bytes transferred.
func Pipe(dst, src *net.UnixConn) (int64, error) {
	if dst == nil || src == nil {
		return 0, io.ErrUnexpectedEOF
	}

	srcFd, err := connFd(src)
	if err != nil {
		return 0, err
	}
	dstFd, err := connFd(dst)
	if err != nil {
		return 0, err
	}

	n, err := spliceRelay(srcFd, dstFd, 0)
	if err == syscall.ENOTSUP {
		return PipeBuffered(dst, src)
	}
	return n, err
}

// connFd extracts the raw file descriptor backing a *net.UnixConn, for use
// with rawSplice.
func connFd(conn *net.UnixConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	if ctrlErr := raw.Control(func(f uintptr) { fd = int(f) }); ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}

// spliceRelay moves all remaining data from srcFd to dstFd, transparently
// hopping through an intermediate OS pipe when called at depth 0: the first
// call always attempts a direct splice, and a direct splice rejected with
// EINVAL recurses through the relay leg instead of duplicating the whole
// copy loop for each strategy. depth is never more than 1 in practice
// (splicing through a pipe we just created ourselves does not itself
// return EINVAL), but is threaded through explicitly rather than assumed,
// so a future third hop would not need another copy of this loop.
func spliceRelay(srcFd, dstFd int, depth int) (int64, error) {
	if srcFd < 0 || dstFd < 0 {
		return 0, syscall.EBADF
	}
	if srcFd == dstFd {
		return 0, syscall.EINVAL
	}

	var total int64
	for {
		n, err := spliceChunk(srcFd, dstFd, pipeChunk)
		if err == syscall.EINVAL && depth == 0 {
			relayed, rerr := spliceViaRelayPipe(srcFd, dstFd)
			return total + relayed, rerr
		}
		if err != nil {
			return total, err
		}
		total += int64(n)
		if n == 0 {
			return total, nil
		}
	}
}

// spliceViaRelayPipe opens a throwaway OS pipe and drives two spliceRelay
// legs through it: src into the pipe's write end, then the pipe's read end
// out to dst. Each leg is a full spliceRelay call in its own right (at
// depth 1, so a second EINVAL is reported rather than retried forever),
// which is what lets the direct and relayed paths share one accounting
// and retry implementation instead of hand-rolling a second drain loop.
func spliceViaRelayPipe(srcFd, dstFd int) (int64, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	defer w.Close()

	staged, err := spliceRelay(srcFd, int(w.Fd()), 1)
	if err != nil {
		return 0, err
	}
	drained, err := spliceRelay(int(r.Fd()), dstFd, 1)
	if err != nil {
		return drained, err
	}
	if drained != staged {
		return drained, io.ErrShortWrite
	}
	return drained, nil
}

// spliceChunk performs one splice(2) call moving up to want bytes from
// rfd to wfd, absorbing EINTR immediately and EAGAIN by yielding the
// scheduler up to maxSpliceRetries times before surfacing it. Unlike a
// tight retry spin, yielding gives the kernel a chance to make progress on
// the other end of a pipe or socket that is temporarily full or empty
// without pegging a CPU core.
func spliceChunk(rfd, wfd, want int) (int, error) {
	for attempt := 0; ; attempt++ {
		n, err := rawSplice(rfd, nil, wfd, nil, want, spliceMove)
		if err == nil {
			return n, nil
		}
		if err == syscall.EINTR {
			continue
		}
		if err == syscall.EAGAIN && attempt < maxSpliceRetries {
			runtime.Gosched()
			continue
		}
		return n, err
	}
}

// PipeBuffered copies from src to dst through a ShiftBuffer[byte] staging
// area: each iteration Writes a chunk of freshly read bytes onto the tail
// and Reads them straight back off the head to hand to dst. It is the
// portable fallback Pipe uses whenever kernel splicing is unavailable, and
// is exported directly for callers that want the staged copy unconditionally
// (for instance in tests, where a real Unix socket pair may not be worth
// setting up).
func PipeBuffered(dst io.Writer, src io.Reader) (int64, error) {
	if dst == nil || src == nil {
		return 0, io.ErrUnexpectedEOF
	}

	staging := New[byte]()
	defer staging.Close()

	chunk := make([]byte, pipeChunk)
	var total int64
	for {
		nr, rerr := src.Read(chunk)
		if nr > 0 {
			if err := staging.Write(chunk[:nr]); err != nil {
				return total, err
			}
			pending := make([]byte, staging.Count())
			if err := staging.Read(pending); err != nil {
				return total, err
			}
			nw, werr := dst.Write(pending)
			total += int64(nw)
			if werr != nil {
				return total, werr
			}
			if nw < len(pending) {
				return total, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}
