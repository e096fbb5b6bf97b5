package provider

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/javanhut/blobtransfer/internal/collection"
	"github.com/javanhut/blobtransfer/internal/getter"
	"github.com/javanhut/blobtransfer/internal/identity"
	"github.com/javanhut/blobtransfer/internal/transport"
	"github.com/javanhut/blobtransfer/internal/treehash"
	"github.com/javanhut/blobtransfer/internal/wire"
	"github.com/javanhut/blobtransfer/internal/workerpool"
)

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// fetchAll drives a getter.Run channel to completion, returning every
// Receiving blob's bytes keyed by name (or "" for a top-level blob)
// and the final Done stats. It fails the test on any Error/NotFound.
func fetchAll(t *testing.T, events <-chan getter.Event) (map[string][]byte, getter.Stats) {
	t.Helper()
	received := map[string][]byte{}
	var kinds []getter.Kind
	var stats getter.Stats

	for ev := range events {
		kinds = append(kinds, ev.Kind)
		switch ev.Kind {
		case getter.NotFound:
			t.Fatalf("unexpected NotFound: %v", ev.Err)
		case getter.Error:
			t.Fatalf("unexpected Error: %v", ev.Err)
		case getter.Receiving:
			data, err := io.ReadAll(ev.Reader)
			require.NoError(t, err)
			received[ev.Name] = data
		case getter.Done:
			stats = ev.Stats
		}
	}
	require.Contains(t, kinds, getter.Connected)
	require.Contains(t, kinds, getter.Done)
	return received, stats
}

func newTestProvider(t *testing.T, files map[string][]byte) (addr string, root treehash.Hash, serverKp identity.Keypair, token wire.AuthToken, stop func()) {
	t.Helper()

	dir := t.TempDir()
	var sources []collection.Source
	for name, content := range files {
		path := writeTempFile(t, dir, name, content)
		sources = append(sources, collection.Named(path, name))
	}

	pool := workerpool.New(2)
	db, rootHash, err := collection.Build(context.Background(), pool, sources, "test-collection")
	require.NoError(t, err)

	kp, err := identity.Generate()
	require.NoError(t, err)
	token = wire.AuthToken{1, 2, 3, 4}

	p := New(db, kp, token, Options{})
	addr = "provider-test-" + kp.PeerId().String()[:8]
	listener, err := transport.PipeListen(addr, kp.PeerId())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Serve(ctx, listener) }()

	stop = func() {
		cancel()
		_ = listener.Close()
		p.Close()
		pool.Close()
	}
	return addr, rootHash, kp, token, stop
}

func dial(t *testing.T) transport.Dialer {
	t.Helper()
	self, err := identity.Generate()
	require.NoError(t, err)
	return transport.PipeDialer{Self: self.PeerId()}
}

func TestServeSingleFileCollection(t *testing.T) {
	content := []byte("hello world!")
	addr, root, kp, token, stop := newTestProvider(t, map[string][]byte{"hello.txt": content})
	defer stop()

	events := getter.Run(context.Background(), dial(t), addr, kp.PeerId(), root, token, getter.Options{})
	received, stats := fetchAll(t, events)

	require.Equal(t, content, received["hello.txt"])
	require.EqualValues(t, len(content), stats.DataLen)
}

func TestServeMultiFileCollectionDeliversEveryFile(t *testing.T) {
	files := map[string][]byte{
		"a.bin": bytes.Repeat([]byte{0xAA}, 2000),
		"b.bin": bytes.Repeat([]byte{0xBB}, 3000),
	}
	addr, root, kp, token, stop := newTestProvider(t, files)
	defer stop()

	events := getter.Run(context.Background(), dial(t), addr, kp.PeerId(), root, token, getter.Options{})
	received, _ := fetchAll(t, events)

	require.Equal(t, files["a.bin"], received["a.bin"])
	require.Equal(t, files["b.bin"], received["b.bin"])
}

func TestHandshakeRejectedOnBadToken(t *testing.T) {
	addr, root, kp, _, stop := newTestProvider(t, map[string][]byte{"f": []byte("x")})
	defer stop()

	badToken := wire.AuthToken{0xFF}
	events := getter.Run(context.Background(), dial(t), addr, kp.PeerId(), root, badToken, getter.Options{})

	ev, ok := <-events
	require.True(t, ok)
	require.Equal(t, getter.Connected, ev.Kind)

	// The provider silently closes the stream on a bad handshake
	// (spec.md §4.4); the getter observes this as a failure writing
	// its request, which the provider no longer reads.
	ev, ok = <-events
	require.True(t, ok)
	require.Equal(t, getter.Error, ev.Kind)

	_, ok = <-events
	require.False(t, ok)
}

func TestUnknownHashReturnsNotFound(t *testing.T) {
	addr, _, kp, token, stop := newTestProvider(t, map[string][]byte{"f": []byte("x")})
	defer stop()

	var unknown treehash.Hash
	unknown[0] = 0xFF

	events := getter.Run(context.Background(), dial(t), addr, kp.PeerId(), unknown, token, getter.Options{})

	var sawNotFound bool
	for ev := range events {
		if ev.Kind == getter.NotFound {
			sawNotFound = true
		}
	}
	require.True(t, sawNotFound)
}

// fetchOne runs a single getter session to completion without calling
// into *testing.T, so it is safe to invoke from a spawned goroutine
// (unlike require/t.Fatal, which the testing package forbids off the
// main test goroutine).
func fetchOne(dialer transport.Dialer, addr string, peer identity.PeerId, hash treehash.Hash, token wire.AuthToken) ([]byte, error) {
	events := getter.Run(context.Background(), dialer, addr, peer, hash, token, getter.Options{})
	var data []byte
	for ev := range events {
		switch ev.Kind {
		case getter.NotFound:
			return nil, ev.Err
		case getter.Error:
			return nil, ev.Err
		case getter.Receiving:
			buf, err := io.ReadAll(ev.Reader)
			if err != nil {
				return nil, err
			}
			data = buf
		}
	}
	return data, nil
}

func TestConcurrentGettersFanOut(t *testing.T) {
	content := bytes.Repeat([]byte{0x42}, 50000)
	addr, root, kp, token, stop := newTestProvider(t, map[string][]byte{"big.bin": content})
	defer stop()

	const n = 3
	type outcome struct {
		data []byte
		err  error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		self, err := identity.Generate()
		require.NoError(t, err)
		dialer := transport.PipeDialer{Self: self.PeerId()}
		go func() {
			data, err := fetchOne(dialer, addr, kp.PeerId(), root, token)
			results <- outcome{data: data, err: err}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-results:
			require.NoError(t, got.err)
			require.Equal(t, content, got.data)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for concurrent getter")
		}
	}
}
