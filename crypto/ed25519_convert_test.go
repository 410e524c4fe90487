package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestEd25519ToX25519RoundTrip(t *testing.T) {
	edPublic, edPrivate, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var signPublic [32]byte
	copy(signPublic[:], edPublic)
	var seed [32]byte
	copy(seed[:], edPrivate.Seed())

	xPublicFromConversion, err := Ed25519PublicKeyToX25519(signPublic)
	require.NoError(t, err)

	xSecret := Ed25519SecretKeyToX25519(seed)

	var xPublicFromScalar [32]byte
	curve25519.ScalarBaseMult(&xPublicFromScalar, &xSecret)

	require.Equal(t, xPublicFromScalar, xPublicFromConversion,
		"public key derived from the Edwards conversion must match the public key derived from the converted secret scalar")
}

func TestEd25519PublicKeyToX25519RejectsOutOfRangeY(t *testing.T) {
	var bad [32]byte
	for i := range bad {
		bad[i] = 0xFF
	}
	bad[31] &= 0x7F

	_, err := Ed25519PublicKeyToX25519(bad)
	require.Error(t, err)
}
