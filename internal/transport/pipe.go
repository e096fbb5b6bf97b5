package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/javanhut/blobtransfer/internal/identity"
)

// ErrListenerClosed is returned by Accept after the listener is closed.
var ErrListenerClosed = errors.New("transport: listener closed")

// ErrPeerMismatch is returned by a pipe Dialer when the listener it
// reached does not present the expected peer identity, simulating the
// real transport's certificate-pinning rejection.
var ErrPeerMismatch = errors.New("transport: peer identity mismatch")

// ErrAddrInUse is returned by PipeListen when the address is already
// registered.
var ErrAddrInUse = errors.New("transport: address already in use")

// registry is the in-process analogue of "listening on a socket
// address": a process-wide map from address string to the listener
// bound there, used only by this test/demo transport.
var (
	registryMu sync.Mutex
	registry   = map[string]*PipeListener{}
)

// PipeListen registers a PipeListener at addr, presenting peer as its
// identity. Mirrors a real transport's bind+listen; addr is a bare
// label here, not resolved to a socket.
func PipeListen(addr string, peer identity.PeerId) (*PipeListener, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[addr]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAddrInUse, addr)
	}
	l := &PipeListener{
		addr:   addr,
		peer:   peer,
		connCh: make(chan Connection, 16),
		done:   make(chan struct{}),
	}
	registry[addr] = l
	return l, nil
}

// PipeListener is an in-process Listener used by tests and the
// single-process CLI demo (SPEC_FULL.md §6): bidirectional streams are
// plumbed with stdlib io.Pipe pairs instead of a real QUIC socket.
type PipeListener struct {
	addr   string
	peer   identity.PeerId
	connCh chan Connection

	closeOnce sync.Once
	done      chan struct{}
}

// Accept implements Listener.
func (l *PipeListener) Accept(ctx context.Context) (Connection, error) {
	select {
	case c, ok := <-l.connCh:
		if !ok {
			return nil, ErrListenerClosed
		}
		return c, nil
	case <-l.done:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Listener.
func (l *PipeListener) Close() error {
	l.closeOnce.Do(func() {
		registryMu.Lock()
		delete(registry, l.addr)
		registryMu.Unlock()
		close(l.done)
	})
	return nil
}

// LocalPeer implements Listener.
func (l *PipeListener) LocalPeer() identity.PeerId {
	return l.peer
}

// PipeDialer is an in-process Dialer that connects to a PipeListener
// registered at the same address via PipeListen.
type PipeDialer struct {
	// Self is the identity this dialer's connections present as their
	// local peer (the getter's own keypair-derived PeerId).
	Self identity.PeerId
}

// Dial implements Dialer. If expectedPeer is non-zero, it must match
// the listener's advertised identity or ErrPeerMismatch is returned,
// emulating certificate pinning.
func (d PipeDialer) Dial(ctx context.Context, addr string, expectedPeer identity.PeerId) (Connection, error) {
	registryMu.Lock()
	l, ok := registry[addr]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transport: no listener at %s", addr)
	}
	if !isZeroPeer(expectedPeer) && expectedPeer != l.peer {
		return nil, ErrPeerMismatch
	}

	client, server := newConnPair(d.Self, l.peer)
	select {
	case l.connCh <- server:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return client, nil
}

func isZeroPeer(p identity.PeerId) bool {
	var zero identity.PeerId
	return p == zero
}

// pipeConn is one side of an in-process connection. OpenStream on one
// side delivers the paired stream to the other side's AcceptStream.
type pipeConn struct {
	local, remote identity.PeerId
	acceptCh      chan Stream
	peer          *pipeConn

	mu     sync.Mutex
	closed bool
}

func newConnPair(clientPeer, serverPeer identity.PeerId) (client, server *pipeConn) {
	client = &pipeConn{local: clientPeer, remote: serverPeer, acceptCh: make(chan Stream, 16)}
	server = &pipeConn{local: serverPeer, remote: clientPeer, acceptCh: make(chan Stream, 16)}
	client.peer = server
	server.peer = client
	return client, server
}

// RemotePeer implements Connection.
func (c *pipeConn) RemotePeer() identity.PeerId {
	return c.remote
}

// OpenStream implements Connection.
func (c *pipeConn) OpenStream(ctx context.Context) (Stream, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("transport: connection closed")
	}

	// Two unidirectional stdlib pipes give one full-duplex stream pair.
	outR, outW := io.Pipe() // this side writes outW, peer reads outR
	inR, inW := io.Pipe()   // peer writes inW, this side reads inR

	mine := &pipeStream{r: inR, w: outW, conn: c}
	theirs := &pipeStream{r: outR, w: inW, conn: c.peer}

	select {
	case c.peer.acceptCh <- theirs:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return mine, nil
}

// AcceptStream implements Connection.
func (c *pipeConn) AcceptStream(ctx context.Context) (Stream, error) {
	select {
	case s, ok := <-c.acceptCh:
		if !ok {
			return nil, fmt.Errorf("transport: connection closed")
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Connection. It marks this side closed and ends its
// AcceptStream; streams already opened are not torn down and stay
// usable until closed on their own, and the peer side is not notified.
func (c *pipeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.acceptCh)
	return nil
}

// pipeStream is one bidirectional stream backed by a pair of stdlib
// io.Pipes, one per direction.
type pipeStream struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	conn *pipeConn
}

func (s *pipeStream) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *pipeStream) Write(p []byte) (int, error) { return s.w.Write(p) }

// CloseWrite half-closes the write side: the peer's next Read past
// any buffered bytes observes io.EOF.
func (s *pipeStream) CloseWrite() error {
	return s.w.Close()
}

// Close tears the stream down in both directions.
func (s *pipeStream) Close() error {
	werr := s.w.Close()
	rerr := s.r.CloseWithError(io.EOF)
	if werr != nil {
		return werr
	}
	return rerr
}

func (s *pipeStream) Connection() Connection {
	return s.conn
}
