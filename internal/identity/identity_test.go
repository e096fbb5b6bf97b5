package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSignVerify(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	msg := []byte("content-addressed")
	sig := kp.Sign(msg)
	require.True(t, VerifyPeerId(kp.PeerId(), msg, sig))
	require.False(t, VerifyPeerId(kp.PeerId(), []byte("tampered"), sig))
}

func TestFromSeedRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	restored, err := FromSeed(kp.Seed())
	require.NoError(t, err)
	require.Equal(t, kp.PeerId(), restored.PeerId())
}

func TestPeerIdBase64RoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	s := kp.PeerId().Base64()
	got, err := ParsePeerId(s)
	require.NoError(t, err)
	require.Equal(t, kp.PeerId(), got)
}

func TestPeerIdFromBytesRejectsWrongLength(t *testing.T) {
	_, err := PeerIdFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformedPeerId)
}

func TestFromSeedRejectsWrongLength(t *testing.T) {
	_, err := FromSeed([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformedPeerId)
}
