package treehash

import (
	"encoding/binary"
	"errors"
	"io"
)

// Decoder is a streaming reader that consumes a combined encoding and
// emits only verified content bytes, failing as soon as any node or
// leaf hash disagrees with the expected root hash chain. Memory usage
// is O(log2(n/ChunkSize)): the pipe buffer plus one recursion frame
// per tree level, never the whole payload or the whole outboard.
type Decoder struct {
	r          io.Reader
	expected   Hash
	headerRead bool
	size       int64
	pr         *io.PipeReader
	started    bool
	headerErr  error
	finished   chan struct{}
	finishErr  error
}

// NewDecoder returns a Decoder reading the combined encoding from r,
// verified against expectedRoot.
func NewDecoder(r io.Reader, expectedRoot Hash) *Decoder {
	return &Decoder{r: r, expected: expectedRoot}
}

// Size reads (if not already read) the 8-byte declared-length header
// and returns it. Callers that need to know the size before streaming
// the body (e.g. to enforce a maximum, or to know where the next
// record begins on a shared stream) call this before Read.
func (d *Decoder) Size() (int64, error) {
	if !d.headerRead {
		var header [HeaderSize]byte
		if _, err := io.ReadFull(d.r, header[:]); err != nil {
			d.headerErr = truncatedOrIo("read header", err)
			return 0, d.headerErr
		}
		d.size = int64(binary.LittleEndian.Uint64(header[:]))
		d.headerRead = true
	}
	return d.size, d.headerErr
}

func (d *Decoder) ensureStarted() error {
	if d.headerErr != nil {
		return d.headerErr
	}
	if !d.headerRead {
		if _, err := d.Size(); err != nil {
			return err
		}
	}
	if !d.started {
		pr, pw := io.Pipe()
		d.pr = pr
		d.started = true
		d.finished = make(chan struct{})
		go func() {
			err := walkDecode(d.r, d.size, d.expected, pw)
			d.finishErr = err
			pw.CloseWithError(err)
			close(d.finished)
		}()
	}
	return nil
}

// Done returns a channel that closes once the underlying reader r has
// been fully consumed and verified (or decoding has failed). Since the
// decode goroutine writes to an unbuffered pipe, this only happens
// once a consumer has read every verified byte out of the Decoder via
// Read — it is the synchronization point a caller sharing r with
// other logic (e.g. the next record on a multiplexed wire stream)
// needs before it is safe to read from r again. Err returns the
// decode goroutine's result once Done has closed; reading it earlier
// is a race.
func (d *Decoder) Done() <-chan struct{} {
	if err := d.ensureStarted(); err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return d.finished
}

// Err returns the result of the decode goroutine. Only valid after
// Done's channel has closed.
func (d *Decoder) Err() error {
	return d.finishErr
}

// Read implements io.Reader, emitting only already-verified bytes.
func (d *Decoder) Read(p []byte) (int, error) {
	if err := d.ensureStarted(); err != nil {
		return 0, err
	}
	return d.pr.Read(p)
}

// Finish drains any unread verified bytes and confirms no bytes remain
// on the underlying stream beyond the declared length. It reports
// ErrTrailing if extra bytes follow.
func (d *Decoder) Finish() error {
	if err := d.ensureStarted(); err != nil {
		return err
	}
	if _, err := io.Copy(io.Discard, d.pr); err != nil {
		return err
	}
	var probe [1]byte
	n, err := d.r.Read(probe[:])
	if n > 0 {
		return ErrTrailing
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return ioErr("trailing check", err)
	}
	return nil
}

func walkDecode(r io.Reader, size int64, expected Hash, w io.Writer) error {
	return walkDecodeSubtree(r, size, expected, w)
}

func walkDecodeSubtree(r io.Reader, byteLen int64, expected Hash, w io.Writer) error {
	if isLeaf(byteLen) {
		buf := make([]byte, byteLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return truncatedOrIo("read leaf", err)
		}
		if leafHash(buf) != expected {
			return ErrIntegrity
		}
		if _, err := w.Write(buf); err != nil {
			return ioErr("write leaf", err)
		}
		return nil
	}

	leftLen := splitLeft(byteLen)
	rightLen := byteLen - leftLen

	var pair [64]byte
	if _, err := io.ReadFull(r, pair[:]); err != nil {
		return truncatedOrIo("read node pair", err)
	}
	var left, right Hash
	copy(left[:], pair[:32])
	copy(right[:], pair[32:])
	if nodeHash(left, right) != expected {
		return ErrIntegrity
	}

	if err := walkDecodeSubtree(r, leftLen, left, w); err != nil {
		return err
	}
	return walkDecodeSubtree(r, rightLen, right, w)
}

// truncatedOrIo maps an EOF encountered while more tree structure was
// expected to ErrTruncated, and anything else to a wrapped *IoError.
func truncatedOrIo(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return ioErr(op, err)
}

// OutboardDecoder verifies content read from a separate content reader
// against a precomputed outboard read from a separate outboard reader,
// emitting only verified bytes. Used when content and its outboard
// already live separately (e.g. re-verifying a locally stored blob),
// as opposed to Decoder's single interleaved wire stream.
type OutboardDecoder struct {
	content  io.Reader
	outboard io.Reader
	expected Hash
	size     int64
	sizeRead bool
	pr       *io.PipeReader
	started  bool
}

// NewOutboardDecoder returns an OutboardDecoder. outboardReader must be
// positioned at the start of the outboard (its 8-byte header).
func NewOutboardDecoder(contentReader, outboardReader io.Reader, expectedRoot Hash) *OutboardDecoder {
	return &OutboardDecoder{content: contentReader, outboard: outboardReader, expected: expectedRoot}
}

func (d *OutboardDecoder) ensureStarted() error {
	if !d.sizeRead {
		var header [HeaderSize]byte
		if _, err := io.ReadFull(d.outboard, header[:]); err != nil {
			return truncatedOrIo("read outboard header", err)
		}
		d.size = int64(binary.LittleEndian.Uint64(header[:]))
		d.sizeRead = true
	}
	if !d.started {
		pr, pw := io.Pipe()
		d.pr = pr
		d.started = true
		go func() {
			pw.CloseWithError(walkDecodeOutboard(d.content, d.outboard, d.size, d.expected, pw))
		}()
	}
	return nil
}

// Read implements io.Reader.
func (d *OutboardDecoder) Read(p []byte) (int, error) {
	if err := d.ensureStarted(); err != nil {
		return 0, err
	}
	return d.pr.Read(p)
}

func walkDecodeOutboard(content, outboard io.Reader, byteLen int64, expected Hash, w io.Writer) error {
	if isLeaf(byteLen) {
		buf := make([]byte, byteLen)
		if _, err := io.ReadFull(content, buf); err != nil {
			return truncatedOrIo("read leaf", err)
		}
		if leafHash(buf) != expected {
			return ErrIntegrity
		}
		if _, err := w.Write(buf); err != nil {
			return ioErr("write leaf", err)
		}
		return nil
	}

	leftLen := splitLeft(byteLen)
	rightLen := byteLen - leftLen

	var pair [64]byte
	if _, err := io.ReadFull(outboard, pair[:]); err != nil {
		return truncatedOrIo("read node pair", err)
	}
	var left, right Hash
	copy(left[:], pair[:32])
	copy(right[:], pair[32:])
	if nodeHash(left, right) != expected {
		return ErrIntegrity
	}

	if err := walkDecodeOutboard(content, outboard, leftLen, left, w); err != nil {
		return err
	}
	return walkDecodeOutboard(content, outboard, rightLen, right, w)
}
