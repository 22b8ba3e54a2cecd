package shiftbuffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// readChunkSize is the size of pooled scratch slices used to pull bytes
	// off an io.Reader before they are Written into a Framer's ShiftBuffer.
	// Large enough to amortise syscalls, small enough not to waste memory
	// on short messages.
	readChunkSize = 64 * 1024

	// maxFrameLength bounds a single decoded or encoded frame body; the
	// underlying ShiftBuffer itself has no size limit. Guards against a
	// corrupt or hostile length prefix asking for an implausible allocation.
	maxFrameLength = 64 * 1024 * 1024

	// lengthPrefixSize is the width, in bytes, of the big-endian frame
	// length prefix written and expected by Framer.
	lengthPrefixSize = 4
)

// ErrFrameTooLarge is returned by Next when a length prefix exceeds
// maxFrameLength, or by Encode when the body itself does.
var ErrFrameTooLarge = errors.New("shiftbuffer: frame length exceeds maximum")

// readChunkPool recycles the scratch slices Fill uses to stage bytes off an
// io.Reader, drawn from a shared pool rather than allocated fresh each call.
var readChunkPool = sync.Pool{
	New: func() any {
		return make([]byte, readChunkSize)
	},
}

// Framer decodes a stream of length-prefixed messages out of an io.Reader,
// and encodes them onto an io.Writer, using a ShiftBuffer[byte] as the
// staging area between syscalls and message boundaries. It exists because
// message-oriented protocols built over a byte stream need exactly this
// shape: accumulate whatever arrived, then peel off complete frames as they
// become available, without copying the parts of the stream that were
// already consumed.
//
// A Framer is not safe for concurrent use, matching ShiftBuffer itself.
type Framer struct {
	src *ShiftBuffer[byte]
	dst *ShiftBuffer[byte]
}

// NewFramer creates a Framer with a fresh inbound and outbound staging
// buffer, each starting at the default ShiftBuffer capacity.
func NewFramer() *Framer {
	return &Framer{
		src: New[byte](),
		dst: New[byte](),
	}
}

// Fill reads whatever r has available right now into the Framer's inbound
// staging buffer, using a pooled scratch chunk so a Framer reading many
// short messages off the same connection does not allocate per call. It
// returns the number of bytes staged and stops at the first error,
// including io.EOF.
//
// The pooled chunk is returned via defer, so it goes back to the pool even
// if r.Read panics.
func (f *Framer) Fill(r io.Reader) (n int64, err error) {
	chunk := readChunkPool.Get().([]byte)
	defer readChunkPool.Put(chunk)

	nr, er := r.Read(chunk)
	if nr > 0 {
		if werr := f.src.Write(chunk[:nr]); werr != nil {
			return 0, werr
		}
		n = int64(nr)
	}
	if er != nil {
		return n, er
	}
	return n, nil
}

// Next decodes and removes one complete length-prefixed frame from the
// inbound staging buffer, returning its body. It returns io.ErrNoProgress
// if fewer than a full frame's worth of bytes are currently staged: this is
// the caller's signal to Fill again, not a fatal error.
//
// A length prefix claiming more than maxFrameLength bytes is reported as
// ErrFrameTooLarge and the staging buffer is left untouched, since the
// prefix itself was never consumed.
func (f *Framer) Next() ([]byte, error) {
	if f.src.Count() < lengthPrefixSize {
		return nil, io.ErrNoProgress
	}

	prefix := make([]byte, lengthPrefixSize)
	if err := f.peek(prefix); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix)
	if length > maxFrameLength {
		return nil, ErrFrameTooLarge
	}

	total := lengthPrefixSize + int(length)
	if f.src.Count() < total {
		return nil, io.ErrNoProgress
	}

	frame := make([]byte, total)
	if err := f.src.Read(frame); err != nil {
		return nil, fmt.Errorf("shiftbuffer: decode frame: %w", err)
	}
	return frame[lengthPrefixSize:], nil
}

// peek reads len(dst) bytes without consuming them from the inbound
// buffer, by cloning the buffer, reading from the clone, and discarding it.
// ShiftBuffer has no native peek operation since Read always consumes what
// it reads; CloneBuffer is the way to inspect without consuming.
func (f *Framer) peek(dst []byte) error {
	clone, err := f.src.CloneBuffer()
	if err != nil {
		return err
	}
	defer clone.Close()
	return clone.Read(dst)
}

// Encode appends a length-prefixed frame containing body onto the Framer's
// outbound staging buffer. Returns an error if len(body) exceeds
// maxFrameLength.
func (f *Framer) Encode(body []byte) error {
	if len(body) > maxFrameLength {
		return ErrFrameTooLarge
	}
	frame := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[lengthPrefixSize:], body)
	return f.dst.Write(frame)
}

// Flush drains the outbound staging buffer onto w, returning the number of
// bytes written. Bytes are consumed from the staging buffer as they are
// successfully written; a short write or error leaves the remainder staged
// for a later Flush call.
func (f *Framer) Flush(w io.Writer) (int64, error) {
	pending := f.dst.Count()
	if pending == 0 {
		return 0, nil
	}
	buf := make([]byte, pending)
	if err := f.dst.Read(buf); err != nil {
		return 0, fmt.Errorf("shiftbuffer: flush frame: %w", err)
	}
	written, err := w.Write(buf)
	if written < len(buf) {
		// Restore the unwritten remainder so a caller can retry Flush.
		if werr := f.dst.Shove(buf[written:]); werr != nil && err == nil {
			err = werr
		}
	}
	return int64(written), err
}

// Pending reports the number of undecoded bytes currently staged for
// reading, and the number of unflushed bytes currently staged for writing.
func (f *Framer) Pending() (readBytes, writeBytes int) {
	return f.src.Count(), f.dst.Count()
}

// Close releases both of the Framer's staging buffers.
func (f *Framer) Close() {
	f.src.Close()
	f.dst.Close()
}
