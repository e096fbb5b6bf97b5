// Package provider implements the session engine: accept transport
// connections, run the server side of the wire protocol state machine
// on each bidirectional stream, and stream verified slice extractions
// from disk with backpressure bounded by a blocking-worker pool.
//
// Grounded on original_source/src/provider.rs's handle_stream state
// machine (read Handshake, loop reading Request, write_response +
// slice_extractor for a Found blob), generalized to collections, the
// event bus, and the worker-pool boundary described in spec.md §4.4,
// §4.6, and §9.
package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/javanhut/blobtransfer/internal/collection"
	"github.com/javanhut/blobtransfer/internal/events"
	"github.com/javanhut/blobtransfer/internal/identity"
	"github.com/javanhut/blobtransfer/internal/store"
	"github.com/javanhut/blobtransfer/internal/transport"
	"github.com/javanhut/blobtransfer/internal/treehash"
	"github.com/javanhut/blobtransfer/internal/wire"
	"github.com/javanhut/blobtransfer/internal/workerpool"
)

// Defaults from spec.md §4.4.
const (
	DefaultMaxConnections = 1024
	DefaultMaxStreams     = 10
)

// ErrHandshake covers a rejected Handshake: bad version or token.
var ErrHandshake = errors.New("provider: handshake rejected")

// Options configures a Provider. Zero values select the spec's
// defaults.
type Options struct {
	MaxConnections int
	MaxStreams     int
	EventBacklog   int
	Workers        int
	Logger         *slog.Logger
	Registerer     prometheus.Registerer
}

func (o Options) withDefaults() Options {
	if o.MaxConnections <= 0 {
		o.MaxConnections = DefaultMaxConnections
	}
	if o.MaxStreams <= 0 {
		o.MaxStreams = DefaultMaxStreams
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.NewRegistry()
	}
	return o
}

// Provider serves a frozen Database to any getter that completes the
// handshake with the matching token.
type Provider struct {
	db      *store.Frozen
	keypair identity.Keypair
	token   wire.AuthToken

	bus  *events.Bus
	pool *workerpool.Pool
	log  *slog.Logger
	met  *metrics

	maxConns   int
	maxStreams int
	connSem    chan struct{}
}

// New returns a Provider serving db, admitting only streams whose
// Handshake token equals token, and identifying itself as kp's PeerId.
func New(db *store.Frozen, kp identity.Keypair, token wire.AuthToken, opts Options) *Provider {
	opts = opts.withDefaults()
	return &Provider{
		db:         db,
		keypair:    kp,
		token:      token,
		bus:        events.New(opts.EventBacklog),
		pool:       workerpool.New(opts.Workers),
		log:        opts.Logger,
		met:        newMetrics(opts.Registerer),
		maxConns:   opts.MaxConnections,
		maxStreams: opts.MaxStreams,
		connSem:    make(chan struct{}, opts.MaxConnections),
	}
}

// PeerId returns the identity this provider presents to getters.
func (p *Provider) PeerId() identity.PeerId { return p.keypair.PeerId() }

// Token returns the shared auth token getters must present.
func (p *Provider) Token() wire.AuthToken { return p.token }

// Events returns a new subscription to this provider's lifecycle
// event bus (spec.md §4.7).
func (p *Provider) Events() *events.Subscription { return p.bus.Subscribe() }

// Close shuts down the provider's worker pool. It does not close any
// listener; callers own the transport.Listener's lifetime.
func (p *Provider) Close() {
	p.pool.Close()
}

// Serve accepts connections from l until ctx is cancelled or l.Accept
// returns a fatal error (spec.md §4.4: "Fatal errors (listener socket
// failure) terminate the provider task").
func (p *Provider) Serve(ctx context.Context, l transport.Listener) error {
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, transport.ErrListenerClosed) {
				return nil
			}
			return fmt.Errorf("provider: accept: %w", err)
		}

		select {
		case p.connSem <- struct{}{}:
		case <-ctx.Done():
			_ = conn.Close()
			return nil
		}
		p.met.connectionsAccepted.Inc()
		p.met.connectionsActive.Inc()

		go func() {
			defer func() {
				<-p.connSem
				p.met.connectionsActive.Dec()
			}()
			p.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection runs one goroutine per bidirectional stream, up to
// maxStreams concurrently, per spec.md §5.
func (p *Provider) handleConnection(ctx context.Context, conn transport.Connection) {
	defer conn.Close()

	connID := uuid.New()
	streamSem := make(chan struct{}, p.maxStreams)
	done := make(chan struct{}, p.maxStreams)
	var active int

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			break
		}

		select {
		case streamSem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		active++
		p.met.streamsActive.Inc()

		go func() {
			defer func() {
				<-streamSem
				p.met.streamsActive.Dec()
				done <- struct{}{}
			}()
			p.handleStream(ctx, connID, stream)
		}()
	}

	for active > 0 {
		<-done
		active--
	}
}

// handleStream runs the server side of the protocol state machine for
// one bidirectional stream: AwaitHandshake -> AwaitRequest <-> Serving
// -> Closed (spec.md §4.4).
func (p *Provider) handleStream(ctx context.Context, connID uuid.UUID, stream transport.Stream) {
	defer stream.Close()

	fr := wire.NewFrameReader(stream)

	frame, err := fr.ReadFrame()
	if err != nil || frame == nil {
		return
	}
	hs, err := wire.DecodeHandshake(frame)
	if err != nil {
		p.log.Warn("malformed handshake", "error", err)
		return
	}
	if hs.Version != wire.Version {
		p.log.Warn("handshake version mismatch", "got", hs.Version, "want", wire.Version)
		return
	}
	if !hs.Token.Equal(p.token) {
		p.log.Warn("handshake token mismatch", "conn", connID)
		return
	}

	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			p.log.Warn("read request", "error", err)
			return
		}
		if frame == nil {
			return // peer half-closed cleanly
		}
		req, err := wire.DecodeRequest(frame)
		if err != nil {
			p.log.Warn("malformed request", "error", err)
			return
		}

		p.bus.Publish(events.Event{Kind: events.RequestReceived, ConnectionID: connID, RequestID: req.ID, Hash: req.Name, At: now()})
		start := now()
		err = p.serveRequest(ctx, stream, req)
		p.met.transferDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			p.log.Warn("transfer aborted", "request", req.ID, "error", err)
			p.met.transfersAborted.Inc()
			p.bus.Publish(events.Event{Kind: events.TransferAborted, ConnectionID: connID, RequestID: req.ID, Hash: req.Name, Err: err, At: now()})
			return
		}
		p.met.transfersCompleted.Inc()
		p.bus.Publish(events.Event{Kind: events.TransferCompleted, ConnectionID: connID, RequestID: req.ID, Hash: req.Name, At: now()})
	}
}

func now() time.Time { return time.Now() }

// serveRequest answers one Request, writing a Response and any
// combined-encoding payload that follows it.
func (p *Provider) serveRequest(ctx context.Context, stream transport.Stream, req wire.Request) error {
	entry, ok := p.db.Get(req.Name)
	if !ok {
		return wire.WriteResponse(stream, wire.Response{ID: req.ID, Data: wire.Res{Kind: wire.ResNotFound}})
	}

	switch {
	case entry.Collection != nil:
		return p.serveCollection(ctx, stream, req, *entry.Collection)
	case entry.Blob != nil:
		if err := wire.WriteResponse(stream, wire.Response{ID: req.ID, Data: wire.Res{Kind: wire.ResFound}}); err != nil {
			return err
		}
		return p.sendBlob(ctx, stream, *entry.Blob)
	default:
		return wire.WriteResponse(stream, wire.Response{ID: req.ID, Data: wire.Res{Kind: wire.ResNotFound}})
	}
}

// serveCollection streams a FoundCollection response, the manifest's
// own combined encoding, and then every child blob in manifest order
// (spec.md §4.4). The first missing child stops the collection.
func (p *Provider) serveCollection(ctx context.Context, stream transport.Stream, req wire.Request, entry store.CollectionEntry) error {
	if err := wire.WriteResponse(stream, wire.Response{
		ID:   req.ID,
		Data: wire.Res{Kind: wire.ResFoundCollection, TotalBlobsSize: manifestTotalSize(entry.Serialized)},
	}); err != nil {
		return err
	}

	if err := p.sendEncoded(ctx, stream, bytes.NewReader(entry.Serialized), bytes.NewReader(entry.Outboard), int64(len(entry.Serialized))); err != nil {
		return fmt.Errorf("provider: send manifest: %w", err)
	}

	manifest, err := collection.DecodeManifest(entry.Serialized)
	if err != nil {
		return fmt.Errorf("provider: decode own manifest: %w", err)
	}

	for _, ref := range manifest.Blobs {
		child, ok := p.db.Get(ref.Hash)
		if !ok || child.Blob == nil {
			return wire.WriteResponse(stream, wire.Response{ID: req.ID, Data: wire.Res{Kind: wire.ResNotFound}})
		}
		if err := wire.WriteResponse(stream, wire.Response{ID: req.ID, Data: wire.Res{Kind: wire.ResFound}}); err != nil {
			return err
		}
		if err := p.sendBlob(ctx, stream, *child.Blob); err != nil {
			return fmt.Errorf("provider: send child %s: %w", ref.Hash, err)
		}
	}
	return nil
}

func manifestTotalSize(serialized []byte) uint64 {
	m, err := collection.DecodeManifest(serialized)
	if err != nil {
		return 0
	}
	return m.TotalBlobsSize
}

// sendBlob re-opens the blob's backing file and streams its combined
// encoding using the blob's precomputed outboard.
func (p *Provider) sendBlob(ctx context.Context, stream transport.Stream, desc store.BlobDescriptor) error {
	f, err := os.Open(desc.Path)
	if err != nil {
		return fmt.Errorf("provider: open %s: %w", desc.Path, err)
	}
	defer f.Close()
	return p.sendEncoded(ctx, stream, f, bytes.NewReader(desc.Outboard), desc.Size)
}

// sendEncoded runs the synchronous SliceExtractor-to-network copy on
// the blocking-worker pool, the Go analogue of "the writer threaded
// through a blocking worker" (spec.md §9): the network goroutine stays
// free to service other streams while disk reads happen on a bounded
// pool.
func (p *Provider) sendEncoded(ctx context.Context, w io.Writer, content, outboard io.Reader, size int64) error {
	extractor := treehash.SliceExtractor(content, outboard, 0, size)
	n, err := workerpool.Submit(ctx, p.pool, func() (int64, error) {
		return io.Copy(w, extractor)
	})
	if err == nil {
		p.met.bytesServed.Add(float64(n))
	}
	return err
}
