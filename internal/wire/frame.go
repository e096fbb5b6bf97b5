package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest length prefix the reader will honor.
// Anything bigger is treated as a malformed frame, not a legitimate
// record, to bound memory use against a hostile or buggy peer.
const MaxFrameSize = 1 << 30 // 1 GiB

// WriteFrame writes a u64_le length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// FrameReader reads length-prefixed frames off r, reusing a growable
// internal buffer across calls the way the teacher's read-path in
// internal/store reuses its bbolt transaction buffers — here, a
// single []byte re-sliced to each frame's length and reallocated only
// when a frame exceeds its capacity. The returned payload aliases that
// buffer and is valid only until the next ReadFrame.
type FrameReader struct {
	r   io.Reader
	buf []byte
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, buf: make([]byte, 0, 4096)}
}

// ReadFrame reads one length-prefixed frame and returns its payload.
// A nil slice with a nil error means the peer closed cleanly before a
// new frame began. ErrProtocol is returned for a length prefix above
// MaxFrameSize.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(fr.r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("wire: read length prefix: %w", err)
	}

	length := binary.LittleEndian.Uint64(prefix[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d exceeds %d", ErrProtocol, length, MaxFrameSize)
	}

	if cap(fr.buf) < int(length) {
		fr.buf = make([]byte, length)
	} else {
		fr.buf = fr.buf[:length]
	}
	if _, err := io.ReadFull(fr.r, fr.buf); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}
	return fr.buf, nil
}

// WriteHandshake writes a length-prefixed Handshake record.
func WriteHandshake(w io.Writer, h Handshake) error {
	return WriteFrame(w, EncodeHandshake(h))
}

// WriteRequest writes a length-prefixed Request record.
func WriteRequest(w io.Writer, r Request) error {
	return WriteFrame(w, EncodeRequest(r))
}

// WriteResponse writes a length-prefixed Response record.
func WriteResponse(w io.Writer, r Response) error {
	return WriteFrame(w, EncodeResponse(r))
}
