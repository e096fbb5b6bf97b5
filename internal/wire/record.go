// Package wire implements the protocol's canonical record encoding and
// length-prefixed framing: a fixed, little-endian, varint-prefixed
// binary shape (adapted from the teacher's canonical tagged node
// encoding in internal/filechunk, generalized from one record shape
// to the four record types the wire protocol needs) carried behind a
// 64-bit little-endian length prefix, matching
// original_source/src/provider.rs's postcard + read_lp/write_lp framing.
package wire

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/javanhut/blobtransfer/internal/treehash"
)

// Version is the current protocol major version. Handshakes carrying
// any other value are rejected.
const Version uint64 = 1

// TokenSize is the byte length of an AuthToken.
const TokenSize = 32

// AuthToken is a fixed-width opaque shared secret admitted at handshake.
type AuthToken [TokenSize]byte

// Equal compares two tokens in constant time.
func (t AuthToken) Equal(other AuthToken) bool {
	return subtle.ConstantTimeCompare(t[:], other[:]) == 1
}

// String renders the token in URL-safe base64, for display in a ticket.
func (t AuthToken) String() string {
	return base64.RawURLEncoding.EncodeToString(t[:])
}

var (
	// ErrProtocol covers malformed framing: bad length prefixes,
	// unexpected record tags, and truncated records.
	ErrProtocol = errors.New("wire: protocol error")
	// ErrVersionMismatch names a Handshake carrying a version other
	// than Version. DecodeHandshake does not check the version and
	// does not return it; the provider compares the version itself.
	ErrVersionMismatch = errors.New("wire: version mismatch")
)

// Handshake is the first record sent on every stream.
type Handshake struct {
	Version uint64
	Token   AuthToken
}

// Request asks for the content addressed by Name.
type Request struct {
	ID   uint64
	Name treehash.Hash
}

// ResKind tags the variant of a Res.
type ResKind uint8

const (
	ResFoundCollection ResKind = iota
	ResFound
	ResNotFound
)

// Res is the tagged union carried by a Response.
type Res struct {
	Kind            ResKind
	TotalBlobsSize  uint64 // valid when Kind == ResFoundCollection
}

// Response answers the Request with the same ID.
type Response struct {
	ID   uint64
	Data Res
}

// --- canonical encoding ---

func putUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// EncodeHandshake returns the canonical encoding of h.
func EncodeHandshake(h Handshake) []byte {
	buf := make([]byte, 0, 8+TokenSize)
	buf = putUvarint(buf, h.Version)
	buf = append(buf, h.Token[:]...)
	return buf
}

// DecodeHandshake parses the canonical encoding of a Handshake.
func DecodeHandshake(b []byte) (Handshake, error) {
	version, n := binary.Uvarint(b)
	if n <= 0 {
		return Handshake{}, fmt.Errorf("%w: bad handshake version varint", ErrProtocol)
	}
	b = b[n:]
	if len(b) != TokenSize {
		return Handshake{}, fmt.Errorf("%w: bad handshake token length %d", ErrProtocol, len(b))
	}
	var h Handshake
	h.Version = version
	copy(h.Token[:], b)
	return h, nil
}

// EncodeRequest returns the canonical encoding of r.
func EncodeRequest(r Request) []byte {
	buf := make([]byte, 0, 8+32)
	buf = putUvarint(buf, r.ID)
	buf = append(buf, r.Name[:]...)
	return buf
}

// DecodeRequest parses the canonical encoding of a Request.
func DecodeRequest(b []byte) (Request, error) {
	id, n := binary.Uvarint(b)
	if n <= 0 {
		return Request{}, fmt.Errorf("%w: bad request id varint", ErrProtocol)
	}
	b = b[n:]
	if len(b) != 32 {
		return Request{}, fmt.Errorf("%w: bad request hash length %d", ErrProtocol, len(b))
	}
	var req Request
	req.ID = id
	copy(req.Name[:], b)
	return req, nil
}

// EncodeResponse returns the canonical encoding of r.
func EncodeResponse(r Response) []byte {
	buf := make([]byte, 0, 16)
	buf = putUvarint(buf, r.ID)
	buf = append(buf, byte(r.Data.Kind))
	if r.Data.Kind == ResFoundCollection {
		buf = putUvarint(buf, r.Data.TotalBlobsSize)
	}
	return buf
}

// DecodeResponse parses the canonical encoding of a Response.
func DecodeResponse(b []byte) (Response, error) {
	id, n := binary.Uvarint(b)
	if n <= 0 {
		return Response{}, fmt.Errorf("%w: bad response id varint", ErrProtocol)
	}
	b = b[n:]
	if len(b) < 1 {
		return Response{}, fmt.Errorf("%w: missing response tag", ErrProtocol)
	}
	kind := ResKind(b[0])
	b = b[1:]

	resp := Response{ID: id}
	switch kind {
	case ResFoundCollection:
		size, n := binary.Uvarint(b)
		if n <= 0 {
			return Response{}, fmt.Errorf("%w: bad total_blobs_size varint", ErrProtocol)
		}
		resp.Data = Res{Kind: ResFoundCollection, TotalBlobsSize: size}
	case ResFound:
		resp.Data = Res{Kind: ResFound}
	case ResNotFound:
		resp.Data = Res{Kind: ResNotFound}
	default:
		return Response{}, fmt.Errorf("%w: unknown response tag %d", ErrProtocol, kind)
	}
	return resp, nil
}
