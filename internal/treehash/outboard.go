package treehash

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Outboard consumes content from r in a single sequential pass and
// returns the root hash together with the outboard encoding: an
// 8-byte little-endian content length followed by the interior node
// hashes in preorder (a node's own pair before either child's
// subtree), which is the order a streaming verifier needs.
//
// size must equal the number of bytes r will actually yield. If r
// yields fewer, the shortfall is reported as an *IoError wrapping
// io.EOF or io.ErrUnexpectedEOF; bytes beyond size are never read, so
// a longer r is not detected here.
func Outboard(r io.Reader, size int64) (Hash, []byte, error) {
	var out bytes.Buffer
	out.Grow(int(OutboardSize(size)))

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint64(header[:], uint64(size))
	out.Write(header[:])

	root, err := buildSubtree(r, size, &out)
	if err != nil {
		return Hash{}, nil, err
	}
	return root, out.Bytes(), nil
}

// buildSubtree reads exactly byteLen bytes from r (in content order)
// and writes this subtree's interior node hashes, in preorder, to out.
func buildSubtree(r io.Reader, byteLen int64, out *bytes.Buffer) (Hash, error) {
	if isLeaf(byteLen) {
		buf := make([]byte, byteLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Hash{}, ioErr("read leaf", err)
		}
		return leafHash(buf), nil
	}

	leftLen := splitLeft(byteLen)
	rightLen := byteLen - leftLen

	var leftNodes, rightNodes bytes.Buffer
	leftHash, err := buildSubtree(r, leftLen, &leftNodes)
	if err != nil {
		return Hash{}, err
	}
	rightHash, err := buildSubtree(r, rightLen, &rightNodes)
	if err != nil {
		return Hash{}, err
	}

	// Preorder: this node's own pair first, then its left subtree's
	// interior nodes, then its right subtree's.
	out.Write(leftHash[:])
	out.Write(rightHash[:])
	out.Write(leftNodes.Bytes())
	out.Write(rightNodes.Bytes())

	return nodeHash(leftHash, rightHash), nil
}

// OutboardHeaderSize decodes the content-length prefix of an outboard
// or combined encoding.
func OutboardHeaderSize(outboard []byte) (int64, error) {
	if len(outboard) < HeaderSize {
		return 0, ioErr("read header", io.ErrUnexpectedEOF)
	}
	return int64(binary.LittleEndian.Uint64(outboard[:HeaderSize])), nil
}
