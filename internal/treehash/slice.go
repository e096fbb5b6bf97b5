package treehash

import (
	"encoding/binary"
	"io"
)

// SliceExtractor returns a synchronous streaming reader that emits the
// combined encoding (interior node hashes interleaved with leaf data,
// in the order a verifier needs) for the byte range [offset,
// offset+length) of a content whose precomputed outboard is read from
// outboardReader (positioned at the start of the outboard, i.e. at its
// 8-byte header).
//
// The reader emits bytes in the same order regardless of how the
// caller chunks its reads, and for offset==0, length==content_size the
// total byte count equals EncodedSize(length).
//
// Leaf granularity is whole-chunk: a request range that only partially
// overlaps a leaf still emits that leaf's full content. The core only
// ever calls this with offset=0 and length equal to the full content
// size (per spec.md's Non-goals: no partial-collection retrieval by
// sub-path, no resumable transfers). For a partial range the header
// carries length while the emitted nodes follow the full content's
// tree shape, so NewDecoder, which derives the shape from the header,
// cannot verify that output.
func SliceExtractor(contentReader, outboardReader io.Reader, offset, length int64) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(extract(contentReader, outboardReader, offset, length, pw))
	}()
	return pr
}

func extract(contentReader, outboardReader io.Reader, offset, length int64, w io.Writer) error {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(outboardReader, header[:]); err != nil {
		return ioErr("read outboard header", err)
	}
	total := int64(binary.LittleEndian.Uint64(header[:]))

	var out [HeaderSize]byte
	binary.LittleEndian.PutUint64(out[:], uint64(length))
	if _, err := w.Write(out[:]); err != nil {
		return ioErr("write header", err)
	}

	return walkExtract(contentReader, outboardReader, 0, total, offset, offset+length, w)
}

// walkExtract walks the subtree spanning [nodeOffset, nodeOffset+byteLen)
// of the full content, emitting the parts that overlap [rangeStart, rangeEnd).
func walkExtract(content, outboard io.Reader, nodeOffset, byteLen, rangeStart, rangeEnd int64, w io.Writer) error {
	nodeEnd := nodeOffset + byteLen

	if nodeEnd <= rangeStart || nodeOffset >= rangeEnd {
		// Entirely outside the requested range: discard without emitting.
		return skipSubtree(content, outboard, byteLen)
	}

	if isLeaf(byteLen) {
		buf := make([]byte, byteLen)
		if _, err := io.ReadFull(content, buf); err != nil {
			return ioErr("read leaf", err)
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
		return ioErr("read node pair", err)
	}
	if _, err := w.Write(pair[:]); err != nil {
		return ioErr("write node pair", err)
	}

	if err := walkExtract(content, outboard, nodeOffset, leftLen, rangeStart, rangeEnd, w); err != nil {
		return err
	}
	return walkExtract(content, outboard, nodeOffset+leftLen, rightLen, rangeStart, rangeEnd, w)
}

func skipSubtree(content, outboard io.Reader, byteLen int64) error {
	if _, err := io.CopyN(io.Discard, content, byteLen); err != nil {
		return ioErr("skip content", err)
	}
	if !isLeaf(byteLen) {
		nodes := numLeaves(byteLen) - 1
		if _, err := io.CopyN(io.Discard, outboard, nodes*64); err != nil {
			return ioErr("skip outboard", err)
		}
	}
	return nil
}
