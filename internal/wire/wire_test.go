package wire

import (
	"bytes"
	"testing"

	"github.com/javanhut/blobtransfer/internal/treehash"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundTrip(t *testing.T) {
	h := Handshake{Version: Version, Token: AuthToken{1, 2, 3}}
	var buf bytes.Buffer
	require.NoError(t, WriteHandshake(&buf, h))

	fr := NewFrameReader(&buf)
	payload, err := fr.ReadFrame()
	require.NoError(t, err)

	got, err := DecodeHandshake(payload)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestRequestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{ID: 7, Name: treehash.Hash{9, 9, 9}}
	require.NoError(t, WriteRequest(&buf, req))

	resp := Response{ID: 7, Data: Res{Kind: ResFoundCollection, TotalBlobsSize: 4096}}
	require.NoError(t, WriteResponse(&buf, resp))

	fr := NewFrameReader(&buf)

	p1, err := fr.ReadFrame()
	require.NoError(t, err)
	gotReq, err := DecodeRequest(p1)
	require.NoError(t, err)
	require.Equal(t, req, gotReq)

	p2, err := fr.ReadFrame()
	require.NoError(t, err)
	gotResp, err := DecodeResponse(p2)
	require.NoError(t, err)
	require.Equal(t, resp, gotResp)
}

func TestReadFrameCleanClose(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader(nil))
	payload, err := fr.ReadFrame()
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestReadFrameOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	var prefix [8]byte
	// MaxFrameSize + 1, little-endian.
	big := uint64(MaxFrameSize) + 1
	for i := 0; i < 8; i++ {
		prefix[i] = byte(big >> (8 * i))
	}
	buf.Write(prefix[:])

	fr := NewFrameReader(&buf)
	_, err := fr.ReadFrame()
	require.ErrorIs(t, err, ErrProtocol)
}

func TestAuthTokenConstantTimeEqual(t *testing.T) {
	a := AuthToken{1, 2, 3}
	b := AuthToken{1, 2, 3}
	c := AuthToken{1, 2, 4}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}
