// Package getter implements the client side of the protocol state
// machine: dial a provider, run the handshake/request exchange, and
// surface a verified byte stream of each blob as an event sequence.
//
// Grounded on original_source/src/get.rs's run()/Event shape
// (Connected, Requested/Receiving, Done), reformulated per spec.md §9
// as a Go channel of Event plus a context.Context for cancellation
// instead of an async_stream, and extended from a single blob to the
// collection fan-out spec.md §4.5 adds.
package getter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/javanhut/blobtransfer/internal/collection"
	"github.com/javanhut/blobtransfer/internal/identity"
	"github.com/javanhut/blobtransfer/internal/transport"
	"github.com/javanhut/blobtransfer/internal/treehash"
	"github.com/javanhut/blobtransfer/internal/wire"
)

// DefaultSizeLimit is the default maximum declared size the getter
// will accept before reading it (spec.md §4.5: "refuse any declared
// size above a configured maximum (default 1 GiB)").
const DefaultSizeLimit = 1 << 30

// ErrNotFound is emitted when the provider reports the requested root
// hash does not exist.
var ErrNotFound = errors.New("getter: not found")

// ErrSizeLimit is emitted when a declared size exceeds Options.SizeLimit.
var ErrSizeLimit = errors.New("getter: declared size exceeds limit")

// ErrProtocolDesync is emitted when the stream could not be advanced
// to the next record: the provider closed mid-collection, sent an
// unexpected response kind, or ctx was cancelled while the getter was
// still waiting for a reader to be drained. A Receiving reader that is
// left part-read is not detected as such; the getter keeps waiting for
// it until ctx is cancelled.
var ErrProtocolDesync = errors.New("getter: protocol desync")

// Kind tags the variant of an Event.
type Kind int

const (
	Connected Kind = iota
	FoundCollection
	NotFound
	Receiving
	Done
	Error
)

func (k Kind) String() string {
	switch k {
	case Connected:
		return "Connected"
	case FoundCollection:
		return "FoundCollection"
	case NotFound:
		return "NotFound"
	case Receiving:
		return "Receiving"
	case Done:
		return "Done"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Stats summarizes a completed transfer.
type Stats struct {
	DataLen int64
	Elapsed time.Duration
	Mbps    float64
}

// Event is one item in the lazy, finite event sequence a Run call
// produces (spec.md §4.5).
type Event struct {
	Kind Kind

	TotalBlobsSize uint64 // FoundCollection

	Name   string        // Receiving
	Hash   treehash.Hash // Receiving
	Reader *treehash.Decoder // Receiving; caller MUST read it to completion

	Stats Stats // Done

	Err error // Error (and NotFound, for convenience)
}

// Options configures a Run call. Zero values select spec defaults.
type Options struct {
	SizeLimit int64
}

func (o Options) withDefaults() Options {
	if o.SizeLimit <= 0 {
		o.SizeLimit = DefaultSizeLimit
	}
	return o
}

// Run dials addr (pinned to peerID when non-zero), requests hash, and
// returns a channel of events. The channel closes after a Done,
// NotFound or Error event; dropping it before then (by the caller abandoning the
// receive loop and cancelling ctx) cancels the transfer.
func Run(ctx context.Context, dialer transport.Dialer, addr string, peerID identity.PeerId, hash treehash.Hash, token wire.AuthToken, opts Options) <-chan Event {
	opts = opts.withDefaults()
	out := make(chan Event)

	go func() {
		defer close(out)
		runSession(ctx, dialer, addr, peerID, hash, token, opts, out)
	}()

	return out
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func runSession(ctx context.Context, dialer transport.Dialer, addr string, peerID identity.PeerId, hash treehash.Hash, token wire.AuthToken, opts Options, out chan<- Event) {
	start := time.Now()

	conn, err := dialer.Dial(ctx, addr, peerID)
	if err != nil {
		send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: dial %s: %w", addr, err)})
		return
	}
	defer conn.Close()

	stream, err := conn.OpenStream(ctx)
	if err != nil {
		send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: open stream: %w", err)})
		return
	}
	defer stream.Close()

	if !send(ctx, out, Event{Kind: Connected}) {
		return
	}

	if err := wire.WriteHandshake(stream, wire.Handshake{Version: wire.Version, Token: token}); err != nil {
		send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: write handshake: %w", err)})
		return
	}
	if err := wire.WriteRequest(stream, wire.Request{ID: 1, Name: hash}); err != nil {
		send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: write request: %w", err)})
		return
	}

	fr := wire.NewFrameReader(stream)
	frame, err := fr.ReadFrame()
	if err != nil {
		send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: read response: %w", err)})
		return
	}
	if frame == nil {
		send(ctx, out, Event{Kind: Error, Err: errors.New("getter: provider closed before responding")})
		return
	}
	resp, err := wire.DecodeResponse(frame)
	if err != nil {
		send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: decode response: %w", err)})
		return
	}

	var dataLen int64

	switch resp.Data.Kind {
	case wire.ResNotFound:
		send(ctx, out, Event{Kind: NotFound, Hash: hash, Err: ErrNotFound})
		return

	case wire.ResFoundCollection:
		if !send(ctx, out, Event{Kind: FoundCollection, TotalBlobsSize: resp.Data.TotalBlobsSize}) {
			return
		}

		manifestBytes, dec, err := readVerified(stream, hash, opts.SizeLimit)
		if err != nil {
			send(ctx, out, Event{Kind: Error, Err: err})
			return
		}
		if !waitDrained(ctx, dec) {
			send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("%w: manifest reader not drained", ErrProtocolDesync)})
			return
		}

		manifest, err := collection.DecodeManifest(manifestBytes)
		if err != nil {
			send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: decode manifest: %w", err)})
			return
		}
		for _, ref := range manifest.Blobs {
			frame, err := fr.ReadFrame()
			if err != nil {
				send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: read child response: %w", err)})
				return
			}
			if frame == nil {
				send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("%w: provider closed mid-collection", ErrProtocolDesync)})
				return
			}
			childResp, err := wire.DecodeResponse(frame)
			if err != nil {
				send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: decode child response: %w", err)})
				return
			}
			switch childResp.Data.Kind {
			case wire.ResNotFound:
				send(ctx, out, Event{Kind: NotFound, Name: ref.Name, Hash: ref.Hash, Err: ErrNotFound})
				return
			case wire.ResFound:
				childDec := treehash.NewDecoder(stream, ref.Hash)
				size, err := childDec.Size()
				if err != nil {
					send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: read child size: %w", err)})
					return
				}
				if size > opts.SizeLimit {
					send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("%w: child %s declares %d bytes", ErrSizeLimit, ref.Hash, size)})
					return
				}
				if !send(ctx, out, Event{Kind: Receiving, Name: ref.Name, Hash: ref.Hash, Reader: childDec}) {
					return
				}
				if !waitDrained(ctx, childDec) {
					send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("%w: child %s reader not drained", ErrProtocolDesync, ref.Hash)})
					return
				}
				if err := childDec.Err(); err != nil {
					send(ctx, out, Event{Kind: Error, Err: err})
					return
				}
				dataLen += size
			default:
				send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("%w: unexpected child response kind", ErrProtocolDesync)})
				return
			}
		}

	case wire.ResFound:
		dec := treehash.NewDecoder(stream, hash)
		size, err := dec.Size()
		if err != nil {
			send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("getter: read size: %w", err)})
			return
		}
		if size > opts.SizeLimit {
			send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("%w: declares %d bytes", ErrSizeLimit, size)})
			return
		}
		if !send(ctx, out, Event{Kind: Receiving, Hash: hash, Reader: dec}) {
			return
		}
		if !waitDrained(ctx, dec) {
			send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("%w: reader not drained", ErrProtocolDesync)})
			return
		}
		if err := dec.Err(); err != nil {
			send(ctx, out, Event{Kind: Error, Err: err})
			return
		}
		dataLen = size

	default:
		send(ctx, out, Event{Kind: Error, Err: fmt.Errorf("%w: unexpected top-level response kind", ErrProtocolDesync)})
		return
	}

	_ = stream.CloseWrite()

	elapsed := time.Since(start)
	mbps := 0.0
	if elapsed > 0 {
		mbps = float64(dataLen*8) / (1000 * 1000) / elapsed.Seconds()
	}
	send(ctx, out, Event{Kind: Done, Stats: Stats{DataLen: dataLen, Elapsed: elapsed, Mbps: mbps}})
}

// readVerified reads a combined-encoding payload of an a-priori
// unknown size (the manifest's own encoding) off stream, enforcing the
// size guardrail before reading the body, and returns both the
// verified bytes and the Decoder (already drained) for synchronization
// via waitDrained.
func readVerified(stream io.Reader, expected treehash.Hash, sizeLimit int64) ([]byte, *treehash.Decoder, error) {
	dec := treehash.NewDecoder(stream, expected)
	size, err := dec.Size()
	if err != nil {
		return nil, nil, fmt.Errorf("getter: read manifest size: %w", err)
	}
	if size > sizeLimit {
		return nil, dec, fmt.Errorf("%w: manifest declares %d bytes", ErrSizeLimit, size)
	}
	buf, err := io.ReadAll(dec)
	if err != nil {
		return nil, dec, err
	}
	return buf, dec, nil
}

// waitDrained blocks until dec's decode goroutine has finished, which
// only happens once every verified byte has been read out of dec —
// the synchronization point required before the shared stream can be
// read again for the next record. It returns false only when ctx is
// cancelled first; a reader abandoned part-way keeps it waiting until
// then.
func waitDrained(ctx context.Context, dec *treehash.Decoder) bool {
	select {
	case <-dec.Done():
		return true
	case <-ctx.Done():
		return false
	}
}
