// Package collection builds a Database and content-addressed
// collection manifest from a list of file sources. Grounded on
// original_source/src/provider.rs's create_db (per-source hashing,
// ensure!(path.is_file()), Bytes::from(outboard)) generalized from a
// flat hash->Data map to an ordered, named manifest per spec.md §4.3,
// and on the teacher's internal/pack.CompressionPool pattern for
// running the CPU-bound hash on a worker and awaiting it so the
// caller's own goroutine stays free.
package collection

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/javanhut/blobtransfer/internal/store"
	"github.com/javanhut/blobtransfer/internal/treehash"
	"github.com/javanhut/blobtransfer/internal/workerpool"
)

// ErrInvalidSource is returned when a source path does not refer to a
// regular file.
var ErrInvalidSource = errors.New("collection: source is not a regular file")

// ErrSourceChanged is returned when a file's content length observed
// during hashing disagrees with the length captured before hashing
// began — the file changed under us mid-build.
var ErrSourceChanged = errors.New("collection: source content changed during build")

// Source is one file to include in a collection. Name is an optional
// explicit display name; when empty, the file's basename is used
// instead. An explicit empty string (Name set via NameSet) is distinct
// from "no name given" and means "unnamed" (spec.md §4.3 step 3).
type Source struct {
	Path    string
	Name    string
	NameSet bool
}

// Named returns a Source with an explicit display name, including the
// empty string (which means "unnamed", not "use the basename").
func Named(path, name string) Source {
	return Source{Path: path, Name: name, NameSet: true}
}

// FromPath returns a Source whose display name is derived from the
// file's basename.
func FromPath(path string) Source {
	return Source{Path: path}
}

// BlobRef is one {name, hash} entry in a manifest.
type BlobRef struct {
	Name string
	Hash treehash.Hash
}

// Manifest is the ordered list of blobs that make up a collection.
type Manifest struct {
	Name           string
	Blobs          []BlobRef
	TotalBlobsSize uint64
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
		return "", nil, fmt.Errorf("collection: bad string length varint")
	}
	b = b[n:]
	if uint64(len(b)) < length {
		return "", nil, fmt.Errorf("collection: truncated string")
	}
	return string(b[:length]), b[length:], nil
}

// Encode returns the canonical serialization of m, using the same
// uvarint-length-prefixed shape as the wire protocol's records
// (spec.md §9: "this keeps exactly one serialization format in the
// core").
func (m Manifest) Encode() []byte {
	buf := make([]byte, 0, 64+32*len(m.Blobs))
	buf = putString(buf, m.Name)

	var countBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(countBuf[:], uint64(len(m.Blobs)))
	buf = append(buf, countBuf[:n]...)

	for _, b := range m.Blobs {
		buf = putString(buf, b.Name)
		buf = append(buf, b.Hash[:]...)
	}

	var sizeBuf [binary.MaxVarintLen64]byte
	n = binary.PutUvarint(sizeBuf[:], m.TotalBlobsSize)
	buf = append(buf, sizeBuf[:n]...)
	return buf
}

// DecodeManifest parses the canonical encoding produced by Encode.
func DecodeManifest(b []byte) (Manifest, error) {
	var m Manifest
	var err error
	m.Name, b, err = getString(b)
	if err != nil {
		return Manifest{}, err
	}

	count, n := binary.Uvarint(b)
	if n <= 0 {
		return Manifest{}, fmt.Errorf("collection: bad blob count varint")
	}
	b = b[n:]

	m.Blobs = make([]BlobRef, 0, count)
	for i := uint64(0); i < count; i++ {
		var name string
		name, b, err = getString(b)
		if err != nil {
			return Manifest{}, err
		}
		if len(b) < 32 {
			return Manifest{}, fmt.Errorf("collection: truncated blob hash")
		}
		var h treehash.Hash
		copy(h[:], b[:32])
		b = b[32:]
		m.Blobs = append(m.Blobs, BlobRef{Name: name, Hash: h})
	}

	size, n := binary.Uvarint(b)
	if n <= 0 {
		return Manifest{}, fmt.Errorf("collection: bad total_blobs_size varint")
	}
	m.TotalBlobsSize = size
	return m, nil
}

// Build implements spec.md §4.3: hashes every source, inserts each as
// a blob descriptor, assembles and inserts the collection manifest,
// and returns the frozen database plus the collection's root hash.
//
// Hashing runs on pool (a worker-pool boundary, spec.md §4.3: "the
// builder executes it on a worker thread and awaits its completion,
// keeping the caller's scheduling loop free"); pass workerpool.New(0)
// for a sensible default if the caller has no pool of its own.
func Build(ctx context.Context, pool *workerpool.Pool, sources []Source, manifestName string) (*store.Frozen, treehash.Hash, error) {
	db := store.New()
	refs := make([]BlobRef, 0, len(sources))
	var total uint64

	for _, src := range sources {
		hash, size, outboard, err := hashSource(ctx, pool, src)
		if err != nil {
			return nil, treehash.Hash{}, err
		}
		if err := db.PutBlob(hash, store.BlobDescriptor{Outboard: outboard, Path: src.Path, Size: size}); err != nil {
			return nil, treehash.Hash{}, err
		}

		name := src.Name
		if !src.NameSet {
			name = filepath.Base(src.Path)
		}
		refs = append(refs, BlobRef{Name: name, Hash: hash})
		total += uint64(size)
	}

	manifest := Manifest{Name: manifestName, Blobs: refs, TotalBlobsSize: total}
	serialized := manifest.Encode()

	encoded, err := workerpool.Submit(ctx, pool, func() (manifestEncodeResult, error) {
		root, outboard, err := treehash.Outboard(bytes.NewReader(serialized), int64(len(serialized)))
		return manifestEncodeResult{root: root, outboard: outboard}, err
	})
	if err != nil {
		return nil, treehash.Hash{}, fmt.Errorf("collection: hash manifest: %w", err)
	}

	if err := db.PutCollection(encoded.root, store.CollectionEntry{Outboard: encoded.outboard, Serialized: serialized}); err != nil {
		return nil, treehash.Hash{}, err
	}

	return db.Freeze(), encoded.root, nil
}

type manifestEncodeResult struct {
	root     treehash.Hash
	outboard []byte
}

// hashSource opens src.Path, validates it is a regular file, and
// computes its outboard hash on the worker pool. It fails with
// ErrSourceChanged if the bytes actually read disagree with the
// length stat'd before hashing began (spec.md §4.3 step 2).
func hashSource(ctx context.Context, pool *workerpool.Pool, src Source) (treehash.Hash, int64, []byte, error) {
	info, err := os.Stat(src.Path)
	if err != nil {
		return treehash.Hash{}, 0, nil, fmt.Errorf("collection: stat %s: %w", src.Path, err)
	}
	if !info.Mode().IsRegular() {
		return treehash.Hash{}, 0, nil, fmt.Errorf("%w: %s", ErrInvalidSource, src.Path)
	}
	size := info.Size()

	type result struct {
		hash     treehash.Hash
		outboard []byte
	}
	r, err := workerpool.Submit(ctx, pool, func() (result, error) {
		f, err := os.Open(src.Path)
		if err != nil {
			return result{}, fmt.Errorf("collection: open %s: %w", src.Path, err)
		}
		defer f.Close()

		hash, outboard, err := treehash.Outboard(f, size)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return result{}, fmt.Errorf("%w: %s", ErrSourceChanged, src.Path)
			}
			return result{}, fmt.Errorf("collection: hash %s: %w", src.Path, err)
		}

		after, statErr := f.Stat()
		if statErr == nil && after.Size() != size {
			return result{}, fmt.Errorf("%w: %s", ErrSourceChanged, src.Path)
		}
		return result{hash: hash, outboard: outboard}, nil
	})
	if err != nil {
		return treehash.Hash{}, 0, nil, err
	}
	return r.hash, size, r.outboard, nil
}
