package transport

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/javanhut/blobtransfer/internal/identity"
)

func TestPipeStreamRoundTrip(t *testing.T) {
	serverKp, err := identity.Generate()
	require.NoError(t, err)
	clientKp, err := identity.Generate()
	require.NoError(t, err)

	l, err := PipeListen("test-addr-1", serverKp.PeerId())
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	dialer := PipeDialer{Self: clientKp.PeerId()}

	serverConnCh := make(chan Connection, 1)
	go func() {
		conn, err := l.Accept(ctx)
		require.NoError(t, err)
		serverConnCh <- conn
	}()

	clientConn, err := dialer.Dial(ctx, "test-addr-1", serverKp.PeerId())
	require.NoError(t, err)
	serverConn := <-serverConnCh

	require.Equal(t, serverKp.PeerId(), clientConn.RemotePeer())
	require.Equal(t, clientKp.PeerId(), serverConn.RemotePeer())

	serverStreamCh := make(chan Stream, 1)
	go func() {
		s, err := serverConn.AcceptStream(ctx)
		require.NoError(t, err)
		serverStreamCh <- s
	}()

	clientStream, err := clientConn.OpenStream(ctx)
	require.NoError(t, err)
	serverStream := <-serverStreamCh

	go func() {
		_, _ = clientStream.Write([]byte("hello"))
		_ = clientStream.CloseWrite()
	}()

	got, err := io.ReadAll(serverStream)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestPipeDialRejectsMismatchedPeer(t *testing.T) {
	serverKp, err := identity.Generate()
	require.NoError(t, err)
	otherKp, err := identity.Generate()
	require.NoError(t, err)

	l, err := PipeListen("test-addr-2", serverKp.PeerId())
	require.NoError(t, err)
	defer l.Close()

	dialer := PipeDialer{}
	_, err = dialer.Dial(context.Background(), "test-addr-2", otherKp.PeerId())
	require.ErrorIs(t, err, ErrPeerMismatch)
}

func TestPipeListenRejectsDuplicateAddr(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)

	l, err := PipeListen("test-addr-3", kp.PeerId())
	require.NoError(t, err)
	defer l.Close()

	_, err = PipeListen("test-addr-3", kp.PeerId())
	require.ErrorIs(t, err, ErrAddrInUse)
}

func TestPipeListenerCloseUnblocksAccept(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)

	l, err := PipeListen("test-addr-4", kp.PeerId())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := l.Accept(context.Background())
		done <- err
	}()

	require.NoError(t, l.Close())
	require.ErrorIs(t, <-done, ErrListenerClosed)
}
