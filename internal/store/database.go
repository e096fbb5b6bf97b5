// Package store implements the in-memory, content-addressed database:
// a mapping from a root Hash to either a blob descriptor or a
// collection entry. Adapted from the teacher's internal/cas.MemoryCAS
// (mutex-guarded map) but storing descriptors rather than raw bytes:
// insertion checks a blob's outboard length header against its size
// instead of re-hashing content, reads return the stored descriptor
// pointers rather than copies, and it splits
// a mutable build phase from a lock-free frozen serving phase per
// spec.md §3's "no mutation locks" invariant once the database is
// built.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/javanhut/blobtransfer/internal/treehash"
)

// ErrUnknownHash is the error for a hash that was never inserted.
// Frozen.Get does not return it; it reports absence with ok=false.
var ErrUnknownHash = errors.New("store: hash not found")

// BlobDescriptor describes a single file entry: its precomputed
// outboard, the path to its content, and the content's size. The file
// at Path must not change while the descriptor is live; the provider
// surfaces any violation it detects as a transfer error, it does not
// re-verify on every read.
type BlobDescriptor struct {
	Outboard []byte
	Path     string
	Size     int64
}

// CollectionEntry is a collection manifest stored under its own root
// hash: the manifest's outboard plus its canonically serialized bytes.
type CollectionEntry struct {
	Outboard   []byte
	Serialized []byte
}

// Entry is exactly one of Blob or Collection.
type Entry struct {
	Blob       *BlobDescriptor
	Collection *CollectionEntry
}

// Database is the mutable build-phase view: an insertion map guarded
// by a mutex, used only while a collection is being built. Inserted
// hashes are not recomputed from content.
type Database struct {
	mu      sync.Mutex
	entries map[treehash.Hash]Entry
}

// New returns an empty, mutable Database.
func New() *Database {
	return &Database{entries: make(map[treehash.Hash]Entry)}
}

// PutBlob inserts a blob descriptor under hash, after checking that
// the outboard's own length header agrees with desc.Size (spec.md §3:
// "decode(outboard_header(b.outboard)) == b.size").
func (d *Database) PutBlob(hash treehash.Hash, desc BlobDescriptor) error {
	declared, err := treehash.OutboardHeaderSize(desc.Outboard)
	if err != nil {
		return fmt.Errorf("store: read outboard header for %s: %w", hash, err)
	}
	if declared != desc.Size {
		return fmt.Errorf("store: outboard header size %d disagrees with descriptor size %d for %s", declared, desc.Size, hash)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[hash] = Entry{Blob: &desc}
	return nil
}

// PutCollection inserts a collection entry under hash. hash must equal
// the root hash recomputed over entry.Serialized (checked by the
// caller, internal/collection, which is the only place a collection
// hash is ever computed); PutCollection only records it here.
func (d *Database) PutCollection(hash treehash.Hash, entry CollectionEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[hash] = Entry{Collection: &entry}
	return nil
}

// Len returns the number of entries currently stored.
func (d *Database) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Freeze returns a read-only snapshot shared by all concurrent
// sessions with no further locking — the database is built once and
// served forever, per spec.md §3's lifecycle.
func (d *Database) Freeze() *Frozen {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := make(map[treehash.Hash]Entry, len(d.entries))
	for h, e := range d.entries {
		snapshot[h] = e
	}
	return &Frozen{entries: snapshot}
}

// Frozen is an immutable, lock-free database handle shared by every
// provider session.
type Frozen struct {
	entries map[treehash.Hash]Entry
}

// Get looks up hash, reporting ok=false if absent.
func (f *Frozen) Get(hash treehash.Hash) (Entry, bool) {
	e, ok := f.entries[hash]
	return e, ok
}

// Len returns the number of entries.
func (f *Frozen) Len() int {
	return len(f.entries)
}
