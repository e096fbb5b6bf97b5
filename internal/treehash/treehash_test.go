package treehash

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, content []byte) {
	t.Helper()

	root, outboard, err := Outboard(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	encoded := new(bytes.Buffer)
	slice := SliceExtractor(bytes.NewReader(content), bytes.NewReader(outboard), 0, int64(len(content)))
	n, err := io.Copy(encoded, slice)
	require.NoError(t, err)
	require.EqualValues(t, EncodedSize(int64(len(content))), n)

	dec := NewDecoder(bytes.NewReader(encoded.Bytes()), root)
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, content, got)
	require.NoError(t, dec.Finish())
}

func TestRoundTripBoundarySizes(t *testing.T) {
	// Boundary sizes from spec.md §8 scenario 2, reproduced exactly
	// from original_source/src/lib.rs's `sizes` test.
	sizes := []int{0, 1, 10, 100, 1024, 102400, 512000, 1048576, 1048586}
	for _, n := range sizes {
		content := make([]byte, n)
		_, err := rand.Read(content)
		require.NoError(t, err)
		roundTrip(t, content)
	}
}

func TestRoundTripTrivial(t *testing.T) {
	roundTrip(t, []byte("hello world!"))
}

func TestOutboardSizeLaw(t *testing.T) {
	for _, n := range []int64{0, 1, 1023, 1024, 1025, 2049, 1 << 20} {
		content := make([]byte, n)
		_, outboard, err := Outboard(bytes.NewReader(content), n)
		require.NoError(t, err)
		require.EqualValues(t, OutboardSize(n), len(outboard))

		declared, err := OutboardHeaderSize(outboard)
		require.NoError(t, err)
		require.Equal(t, n, declared)
	}
}

func TestEncodedSizeLaw(t *testing.T) {
	// "encoded_size(n) equals the byte count produced by
	// slice_extractor(..., 0, n) for all n" — spec.md §8.
	for _, n := range []int64{0, 1, 1023, 1024, 1025, 5000, 1 << 16} {
		content := make([]byte, n)
		_, outboard, err := Outboard(bytes.NewReader(content), n)
		require.NoError(t, err)

		out := SliceExtractor(bytes.NewReader(content), bytes.NewReader(outboard), 0, n)
		written, err := io.Copy(io.Discard, out)
		require.NoError(t, err)
		require.Equal(t, EncodedSize(n), written)
	}
}

func TestIntegrityBitFlip(t *testing.T) {
	content := make([]byte, 1048586)
	_, err := rand.Read(content)
	require.NoError(t, err)

	root, outboard, err := Outboard(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	encoded := new(bytes.Buffer)
	slice := SliceExtractor(bytes.NewReader(content), bytes.NewReader(outboard), 0, int64(len(content)))
	_, err = io.Copy(encoded, slice)
	require.NoError(t, err)

	corrupted := append([]byte(nil), encoded.Bytes()...)
	flipPos := len(corrupted) / 2
	corrupted[flipPos] ^= 0x01

	dec := NewDecoder(bytes.NewReader(corrupted), root)
	_, err = io.Copy(io.Discard, dec)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestTruncatedStream(t *testing.T) {
	content := make([]byte, 102400)
	_, err := rand.Read(content)
	require.NoError(t, err)

	root, outboard, err := Outboard(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	encoded := new(bytes.Buffer)
	slice := SliceExtractor(bytes.NewReader(content), bytes.NewReader(outboard), 0, int64(len(content)))
	_, err = io.Copy(encoded, slice)
	require.NoError(t, err)

	truncated := encoded.Bytes()[:encoded.Len()-100]
	dec := NewDecoder(bytes.NewReader(truncated), root)
	_, err = io.Copy(io.Discard, dec)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestTrailingBytes(t *testing.T) {
	content := []byte("hello world!")
	root, outboard, err := Outboard(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	encoded := new(bytes.Buffer)
	slice := SliceExtractor(bytes.NewReader(content), bytes.NewReader(outboard), 0, int64(len(content)))
	_, err = io.Copy(encoded, slice)
	require.NoError(t, err)
	encoded.WriteString("trailing garbage")

	dec := NewDecoder(bytes.NewReader(encoded.Bytes()), root)
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, content, got)
	require.ErrorIs(t, dec.Finish(), ErrTrailing)
}

func TestOutboardDecoderSeparateReaders(t *testing.T) {
	content := make([]byte, 5000)
	_, err := rand.Read(content)
	require.NoError(t, err)

	root, outboard, err := Outboard(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	dec := NewOutboardDecoder(bytes.NewReader(content), bytes.NewReader(outboard), root)
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, content, got)
}
