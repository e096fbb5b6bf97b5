package ticket

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/javanhut/blobtransfer/internal/identity"
	"github.com/javanhut/blobtransfer/internal/treehash"
	"github.com/javanhut/blobtransfer/internal/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)

	want := Ticket{
		Hash:    treehash.Hash{1, 2, 3},
		PeerId:  kp.PeerId(),
		Address: "127.0.0.1:4433",
		Token:   wire.AuthToken{9, 8, 7},
	}

	s := Encode(want)
	got, err := Decode(s)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("not-valid-base64-!!!")
	require.ErrorIs(t, err, ErrTicket)
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)
	want := Ticket{Hash: treehash.Hash{1}, PeerId: kp.PeerId(), Address: "x", Token: wire.AuthToken{2}}
	s := Encode(want)

	_, err = Decode(s[:len(s)/2])
	require.Error(t, err)
}
