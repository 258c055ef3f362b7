package bsm

import (
	"io"

	"github.com/pkg/errors"
)

// RingBytes and Segments size the sliding window C1 keeps over the
// decompressed input. SegBytes must strictly exceed the largest token
// the framer can ever produce (Invariant C1-R1 in SPEC_FULL.md).
const (
	RingBytes = 32768
	Segments  = 4
	SegBytes  = RingBytes / Segments
)

// TraceDepth is how many recently-seen token ids the Reader remembers
// for diagnostics when an unrecognized id aborts the run.
const TraceDepth = 5

// ErrReadBeyondRing is returned when a single peek would require
// refilling more segments than the ring holds — i.e. a token bigger
// than the window itself.
var ErrReadBeyondRing = errors.New("bsm: token framing requires more bytes than the ring buffer holds")

// Reader is a ring-buffered, random-access view over a forward-only
// byte stream. It exposes peeks relative to a head cursor and only
// advances that cursor on Consume, so the framer (C2) can inspect a
// token's length fields before any bytes are committed.
type Reader struct {
	src io.Reader

	buf    [RingBytes]byte
	bufPtr int // ring index of the next unconsumed byte
	bufSeg int // highest segment index refilled so far (circular)
	eof    bool

	readPos     int64 // total bytes ever delivered by the underlying src
	consumedPos int64 // total bytes ever consumed via Consume

	trace    [TraceDepth]TokenID
	traceLen int
	traceAt  int
}

// NewReader wraps src (already-decompressed bytes) in a Reader.
func NewReader(src io.Reader) *Reader {
	r := &Reader{src: src}
	r.bufSeg = Segments - 1
	return r
}

// Reset seeks the underlying stream back to the start and resets the
// ring cursors. The underlying stream must implement io.Seeker;
// otherwise Reset returns an error and changes nothing. The
// orchestrator does not call it: its startup file-token check only
// peeks, so the head cursor is still at the start of the stream.
func (r *Reader) Reset() error {
	seeker, ok := r.src.(io.Seeker)
	if !ok {
		return errors.New("bsm: underlying stream does not support seeking")
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "bsm: seeking input to start")
	}
	r.bufPtr = 0
	r.bufSeg = Segments - 1
	r.eof = false
	r.traceLen = 0
	r.traceAt = 0
	r.readPos = 0
	r.consumedPos = 0
	return nil
}

// AtEOF reports whether the stream has signaled end and a prior refill
// produced a short read.
func (r *Reader) AtEOF() bool {
	return r.eof
}

// checkBuffer ensures the segment containing ring index pos has been
// refilled, refilling forward one segment at a time as needed. This
// mirrors check_buffer() in the original C source.
func (r *Reader) checkBuffer(pos int) error {
	targetSeg := pos / SegBytes

	if targetSeg <= r.bufSeg && r.bufSeg-targetSeg < Segments-1 {
		return nil
	}
	if targetSeg == Segments-1 && r.bufSeg == 0 {
		return nil
	}

	refills := 0
	for targetSeg != r.bufSeg {
		r.bufSeg = (r.bufSeg + 1) % Segments
		refills++

		n, err := io.ReadFull(r.src, r.buf[r.bufSeg*SegBytes:(r.bufSeg+1)*SegBytes])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return errors.Wrap(err, "bsm: reading input stream")
		}
		r.readPos += int64(n)

		if refills > Segments {
			return ErrReadBeyondRing
		}
		if n != SegBytes {
			r.eof = true
		}
	}
	return nil
}

// PeekU8 returns the byte at logical offset head+delta without
// consuming it.
func (r *Reader) PeekU8(delta int) (byte, error) {
	pos := (r.bufPtr + delta) % RingBytes
	if err := r.checkBuffer(pos); err != nil {
		return 0, err
	}
	return r.buf[pos], nil
}

// PeekU16Native returns the 16-bit value at head+delta, assembled by
// copying successive bytes into the host's native byte order — this
// preserves the source's raw-byte-copy behavior (SPEC_FULL.md §4.1).
func (r *Reader) PeekU16Native(delta int) (uint16, error) {
	var raw [2]byte
	for i := range raw {
		pos := (r.bufPtr + delta + i) % RingBytes
		if err := r.checkBuffer(pos); err != nil {
			return 0, err
		}
		raw[i] = r.buf[pos]
	}
	return nativeOrder.Uint16(raw[:]), nil
}

// PeekU32Native returns the 32-bit value at head+delta, assembled in
// native byte order (see PeekU16Native).
func (r *Reader) PeekU32Native(delta int) (uint32, error) {
	var raw [4]byte
	for i := range raw {
		pos := (r.bufPtr + delta + i) % RingBytes
		if err := r.checkBuffer(pos); err != nil {
			return 0, err
		}
		raw[i] = r.buf[pos]
	}
	return nativeOrder.Uint32(raw[:]), nil
}

// PeekBytes copies n bytes starting at head+delta into out.
func (r *Reader) PeekBytes(delta, n int, out []byte) error {
	for i := 0; i < n; i++ {
		pos := (r.bufPtr + delta + i) % RingBytes
		if err := r.checkBuffer(pos); err != nil {
			return err
		}
		out[i] = r.buf[pos]
	}
	return nil
}

// ReadToken copies the next n bytes (the full token, id byte included)
// into out without consuming them, so callers can rewrite in place
// before deciding whether to Consume.
func (r *Reader) ReadToken(n int, out []byte) error {
	return r.PeekBytes(0, n, out)
}

// Fill forces the segment under the head cursor to be refilled if it
// hasn't been already, so Remaining/Done reflect the current position.
func (r *Reader) Fill() error {
	_, err := r.PeekU8(0)
	return err
}

// Remaining reports how many bytes the underlying stream has delivered
// but the caller has not yet consumed.
func (r *Reader) Remaining() int64 {
	return r.readPos - r.consumedPos
}

// Done reports whether the stream is exhausted: EOF has been observed
// and every delivered byte has been consumed.
func (r *Reader) Done() bool {
	return r.eof && r.Remaining() == 0
}

// Consume advances the head cursor by n bytes and, for the first byte
// consumed, records the token id in the diagnostic trace.
func (r *Reader) Consume(n int, id TokenID) {
	if n > 0 {
		r.trace[r.traceAt] = id
		r.traceAt = (r.traceAt + 1) % TraceDepth
		if r.traceLen < TraceDepth {
			r.traceLen++
		}
	}
	r.bufPtr = (r.bufPtr + n) % RingBytes
	r.consumedPos += int64(n)
}

// Offset returns the absolute stream position of the head cursor, i.e.
// how many bytes have been consumed so far — used to annotate fatal
// framing diagnostics with the byte offset of the offending token.
func (r *Reader) Offset() int64 {
	return r.consumedPos
}

// Trace returns the most recently consumed token ids, oldest first.
func (r *Reader) Trace() []TokenID {
	out := make([]TokenID, r.traceLen)
	start := (r.traceAt - r.traceLen + TraceDepth) % TraceDepth
	for i := 0; i < r.traceLen; i++ {
		out[i] = r.trace[(start+i)%TraceDepth]
	}
	return out
}
