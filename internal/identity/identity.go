// Package identity implements the long-lived PeerId value type used
// for certificate pinning by the getter, and the ed25519 keypair it is
// derived from. The TLS wiring that actually pins a certificate to a
// PeerId is an external collaborator (spec.md §1); this package only
// owns the identity value and its persistence-friendly encoding, the
// way original_source/src/lib.rs re-exports tls::{Keypair, PeerId} as
// a value type separate from the QUIC/TLS transport that uses it.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"lukechampine.com/blake3"
)

// ErrMalformedPeerId is returned when decoding a PeerId from bytes or
// text that isn't a valid ed25519 public key.
var ErrMalformedPeerId = errors.New("identity: malformed peer id")

// PeerId is a stable identifier derived from a long-lived ed25519
// public signing key.
type PeerId [ed25519.PublicKeySize]byte

// String renders the peer id as lowercase hex.
func (p PeerId) String() string {
	return hex.EncodeToString(p[:])
}

// Fingerprint returns a short BLAKE3-derived fingerprint suitable for
// log lines, distinct from the full public key used for pinning.
func (p PeerId) Fingerprint() string {
	sum := blake3.Sum256(p[:])
	return hex.EncodeToString(sum[:8])
}

// PeerIdFromBytes validates and wraps a raw ed25519 public key.
func PeerIdFromBytes(b []byte) (PeerId, error) {
	if len(b) != ed25519.PublicKeySize {
		return PeerId{}, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedPeerId, ed25519.PublicKeySize, len(b))
	}
	var p PeerId
	copy(p[:], b)
	return p, nil
}

// Keypair is a long-lived ed25519 identity. The private key never
// leaves the process; only the PeerId (the public half) is ever
// serialized to a ticket or sent over the wire.
type Keypair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Generate creates a fresh random keypair.
func Generate() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("identity: generate keypair: %w", err)
	}
	return Keypair{public: pub, private: priv}, nil
}

// FromSeed reconstructs a keypair from a persisted 32-byte ed25519 seed.
func FromSeed(seed []byte) (Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, fmt.Errorf("%w: want %d byte seed, got %d", ErrMalformedPeerId, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return Keypair{public: priv.Public().(ed25519.PublicKey), private: priv}, nil
}

// Seed returns the 32-byte seed this keypair was generated from, for
// persistence via internal/keystore.
func (k Keypair) Seed() []byte {
	return k.private.Seed()
}

// PeerId returns the public identity derived from this keypair.
func (k Keypair) PeerId() PeerId {
	var p PeerId
	copy(p[:], k.public)
	return p
}

// Sign signs msg with the keypair's private key.
func (k Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// VerifyPeerId checks sig over msg against the public key embedded in peer.
func VerifyPeerId(peer PeerId, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(peer[:]), msg, sig)
}

// ParsePeerId parses a PeerId from its base64 URL-safe display form,
// as produced by Base64. An encoded Ticket carries the raw 32 bytes
// instead.
func ParsePeerId(s string) (PeerId, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return PeerId{}, fmt.Errorf("%w: %v", ErrMalformedPeerId, err)
	}
	return PeerIdFromBytes(b)
}

// Base64 renders the peer id in the same URL-safe base form used by
// AuthToken and Ticket display strings.
func (p PeerId) Base64() string {
	return base64.RawURLEncoding.EncodeToString(p[:])
}
