package collection

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/javanhut/blobtransfer/internal/treehash"
	"github.com/javanhut/blobtransfer/internal/workerpool"
)

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestBuildSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "hello.txt", []byte("hello world!"))

	pool := workerpool.New(2)
	defer pool.Close()

	db, root, err := Build(context.Background(), pool, []Source{FromPath(path)}, "")
	require.NoError(t, err)
	require.False(t, root.IsZero())

	entry, ok := db.Get(root)
	require.True(t, ok)
	require.NotNil(t, entry.Collection)

	manifest, err := DecodeManifest(entry.Collection.Serialized)
	require.NoError(t, err)
	require.Len(t, manifest.Blobs, 1)
	require.Equal(t, "hello.txt", manifest.Blobs[0].Name)
	require.EqualValues(t, 12, manifest.TotalBlobsSize)

	blobEntry, ok := db.Get(manifest.Blobs[0].Hash)
	require.True(t, ok)
	require.NotNil(t, blobEntry.Blob)
	require.Equal(t, path, blobEntry.Blob.Path)
}

func TestBuildNamedFilesPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "a.bin", []byte("AAAA"))
	b := writeTempFile(t, dir, "b.bin", []byte("BBBBBB"))

	pool := workerpool.New(2)
	defer pool.Close()

	sources := []Source{
		Named(a, "first"),
		Named(b, "second"),
	}
	db, root, err := Build(context.Background(), pool, sources, "my-collection")
	require.NoError(t, err)

	entry, _ := db.Get(root)
	manifest, err := DecodeManifest(entry.Collection.Serialized)
	require.NoError(t, err)

	require.Equal(t, "my-collection", manifest.Name)
	require.Len(t, manifest.Blobs, 2)
	require.Equal(t, "first", manifest.Blobs[0].Name)
	require.Equal(t, "second", manifest.Blobs[1].Name)
	require.EqualValues(t, 10, manifest.TotalBlobsSize)
}

func TestBuildRejectsNonRegularFile(t *testing.T) {
	dir := t.TempDir()
	pool := workerpool.New(2)
	defer pool.Close()

	_, _, err := Build(context.Background(), pool, []Source{FromPath(dir)}, "")
	require.ErrorIs(t, err, ErrInvalidSource)
}

func TestManifestEncodeDecodeRoundTrip(t *testing.T) {
	m := Manifest{
		Name: "demo",
		Blobs: []BlobRef{
			{Name: "one", Hash: [32]byte{1}},
			{Name: "", Hash: [32]byte{2}}, // unnamed blob
		},
		TotalBlobsSize: 99,
	}
	got, err := DecodeManifest(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestBuildEmptyContentWithExplicitUnnamedAlias(t *testing.T) {
	dir := t.TempDir()
	empty := writeTempFile(t, dir, "empty.bin", nil)

	pool := workerpool.New(2)
	defer pool.Close()

	sources := []Source{Named(empty, "")}
	db, root, err := Build(context.Background(), pool, sources, "")
	require.NoError(t, err)

	entry, ok := db.Get(root)
	require.True(t, ok)
	manifest, err := DecodeManifest(entry.Collection.Serialized)
	require.NoError(t, err)

	require.Len(t, manifest.Blobs, 1)
	require.Equal(t, "", manifest.Blobs[0].Name)
	require.EqualValues(t, 0, manifest.TotalBlobsSize)

	wantHash, _, err := treehash.Outboard(bytes.NewReader(nil), 0)
	require.NoError(t, err)
	require.Equal(t, wantHash, manifest.Blobs[0].Hash)

	blobEntry, ok := db.Get(manifest.Blobs[0].Hash)
	require.True(t, ok)
	require.NotNil(t, blobEntry.Blob)
	require.EqualValues(t, 0, blobEntry.Blob.Size)
}

func TestBuildIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "x.bin", []byte("deterministic content"))

	pool := workerpool.New(2)
	defer pool.Close()

	_, root1, err := Build(context.Background(), pool, []Source{FromPath(path)}, "coll")
	require.NoError(t, err)
	_, root2, err := Build(context.Background(), pool, []Source{FromPath(path)}, "coll")
	require.NoError(t, err)
	require.Equal(t, root1, root2)
}
