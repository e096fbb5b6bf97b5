// Package transport defines the abstract bidirectional-stream surface
// the core needs from its peer-authenticated, TLS-secured,
// datagram-multiplexed transport (spec.md §6): reliable ordered byte
// streams, the ability to open a bidirectional stream, half-close the
// write side, and surface the remote peer's identity. The concrete
// QUIC+TLS adapter that implements this interface in production is an
// external collaborator (spec.md §1) and out of scope for this
// module; internal/transport/pipe.go ships only an in-process
// implementation used by tests and the single-process CLI demo.
package transport

import (
	"context"
	"io"

	"github.com/javanhut/blobtransfer/internal/identity"
)

// Stream is one bidirectional byte stream within a Connection.
type Stream interface {
	io.Reader
	io.Writer

	// CloseWrite half-closes the write side, signaling the peer that
	// no more bytes will be sent on this stream. The read side stays
	// open until the peer does the same.
	CloseWrite() error

	// Close tears the stream down entirely.
	Close() error

	// Connection returns the Connection this stream belongs to.
	Connection() Connection
}

// Connection is one authenticated transport connection, capable of
// carrying many concurrent bidirectional streams.
type Connection interface {
	// RemotePeer returns the identity the transport pinned this
	// connection's certificate to.
	RemotePeer() identity.PeerId

	// OpenStream opens a new bidirectional stream on this connection.
	OpenStream(ctx context.Context) (Stream, error)

	// AcceptStream blocks until the peer opens a new bidirectional
	// stream, or ctx is cancelled.
	AcceptStream(ctx context.Context) (Stream, error)

	// Close tears the connection and all its streams down.
	Close() error
}

// Listener accepts incoming Connections.
type Listener interface {
	Accept(ctx context.Context) (Connection, error)
	Close() error
	// LocalPeer returns the identity this listener presents to peers.
	LocalPeer() identity.PeerId
}

// Dialer opens outgoing Connections, pinned to an expected peer
// identity when one is known in advance (the getter's certificate
// pinning, spec.md §6).
type Dialer interface {
	Dial(ctx context.Context, addr string, expectedPeer identity.PeerId) (Connection, error)
}
