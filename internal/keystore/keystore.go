// Package keystore persists a provider's long-lived identity (ed25519
// keypair seed and auth token) across process restarts, in a single
// bbolt bucket. Adapted from the teacher's internal/store.DB (a
// bucket-per-concern bbolt wrapper with CreateBucketIfNotExists on
// open and Update/View helpers), narrowed from five buckets (hash
// mappings, git interop, config) to one "identity" bucket holding
// exactly the two values spec.md §3 calls long-lived: the keypair and
// the auth token.
package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/javanhut/blobtransfer/internal/identity"
	"github.com/javanhut/blobtransfer/internal/wire"
)

var bucketIdentity = []byte("identity")

const (
	keySeed  = "seed"
	keyToken = "token"
)

// ErrNotFound is returned by Load when no identity has been saved yet.
var ErrNotFound = errors.New("keystore: no identity saved")

// Store wraps a single bbolt database file holding the provider's
// persisted identity.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the keystore at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdentity)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keystore: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists kp's seed and the provider's auth token, overwriting
// any previously saved identity.
func (s *Store) Save(kp identity.Keypair, token wire.AuthToken) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIdentity)
		if err := b.Put([]byte(keySeed), kp.Seed()); err != nil {
			return err
		}
		return b.Put([]byte(keyToken), token[:])
	})
}

// Load reads back a previously saved identity. Returns ErrNotFound if
// nothing has been saved to this keystore yet.
func (s *Store) Load() (identity.Keypair, wire.AuthToken, error) {
	var seed, tokenBytes []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIdentity)
		seedVal := b.Get([]byte(keySeed))
		tokenVal := b.Get([]byte(keyToken))
		if seedVal == nil || tokenVal == nil {
			return ErrNotFound
		}
		seed = append([]byte(nil), seedVal...)
		tokenBytes = append([]byte(nil), tokenVal...)
		return nil
	})
	if err != nil {
		return identity.Keypair{}, wire.AuthToken{}, err
	}

	kp, err := identity.FromSeed(seed)
	if err != nil {
		return identity.Keypair{}, wire.AuthToken{}, fmt.Errorf("keystore: decode seed: %w", err)
	}
	var token wire.AuthToken
	copy(token[:], tokenBytes)
	return kp, token, nil
}

// LoadOrGenerate loads the saved identity, or generates and persists a
// fresh one if none exists yet.
func LoadOrGenerate(path string) (identity.Keypair, wire.AuthToken, error) {
	s, err := Open(path)
	if err != nil {
		return identity.Keypair{}, wire.AuthToken{}, err
	}
	defer s.Close()

	kp, token, err := s.Load()
	if err == nil {
		return kp, token, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return identity.Keypair{}, wire.AuthToken{}, err
	}

	kp, err = identity.Generate()
	if err != nil {
		return identity.Keypair{}, wire.AuthToken{}, err
	}
	if _, err := rand.Read(token[:]); err != nil {
		return identity.Keypair{}, wire.AuthToken{}, fmt.Errorf("keystore: generate token: %w", err)
	}
	if err := s.Save(kp, token); err != nil {
		return identity.Keypair{}, wire.AuthToken{}, err
	}
	return kp, token, nil
}
