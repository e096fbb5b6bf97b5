// Package ticket implements the opaque single-string bundle of
// everything a getter needs to fetch a collection: a root hash, the
// provider's peer identity, its address, and the shared auth token
// (spec.md §4.6). It reuses the same canonical record encoding as
// internal/wire and internal/collection, wrapped in URL-safe base64 —
// "this keeps exactly one serialization format in the core" (spec.md
// §9).
package ticket

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/javanhut/blobtransfer/internal/identity"
	"github.com/javanhut/blobtransfer/internal/treehash"
	"github.com/javanhut/blobtransfer/internal/wire"
)

// ErrTicket is returned for any malformed ticket string: invalid
// base64, or a truncated/garbled canonical payload.
var ErrTicket = errors.New("ticket: invalid ticket")

// Ticket bundles everything needed to dial a provider and fetch one
// collection from it.
type Ticket struct {
	Hash    treehash.Hash
	PeerId  identity.PeerId
	Address string
	Token   wire.AuthToken
}

func putString(buf []byte, s string) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(s)))
	buf = append(buf, tmp[:n]...)
	return append(buf, s...)
}

func getString(b []byte) (string, []byte, error) {
	length, n := binary.Uvarint(b)
	if n <= 0 {
		return "", nil, fmt.Errorf("%w: bad string length", ErrTicket)
	}
	b = b[n:]
	if uint64(len(b)) < length {
		return "", nil, fmt.Errorf("%w: truncated string", ErrTicket)
	}
	return string(b[:length]), b[length:], nil
}

// encode returns the canonical binary serialization of t.
func (t Ticket) encode() []byte {
	buf := make([]byte, 0, 32+len(identity.PeerId{})+len(t.Address)+wire.TokenSize+8)
	buf = append(buf, t.Hash[:]...)
	buf = append(buf, t.PeerId[:]...)
	buf = putString(buf, t.Address)
	buf = append(buf, t.Token[:]...)
	return buf
}

func decodeTicket(b []byte) (Ticket, error) {
	if len(b) < 32+len(identity.PeerId{}) {
		return Ticket{}, fmt.Errorf("%w: truncated header", ErrTicket)
	}
	var t Ticket
	copy(t.Hash[:], b[:32])
	b = b[32:]
	copy(t.PeerId[:], b[:len(identity.PeerId{})])
	b = b[len(identity.PeerId{}):]

	var err error
	t.Address, b, err = getString(b)
	if err != nil {
		return Ticket{}, err
	}

	if len(b) != wire.TokenSize {
		return Ticket{}, fmt.Errorf("%w: bad token length %d", ErrTicket, len(b))
	}
	copy(t.Token[:], b)
	return t, nil
}

// Encode canonical-encodes t and renders it in URL-safe base64.
func Encode(t Ticket) string {
	return base64.RawURLEncoding.EncodeToString(t.encode())
}

// Decode reverses Encode. Round-trip is exact.
func Decode(s string) (Ticket, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", ErrTicket, err)
	}
	return decodeTicket(raw)
}
