package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExtendedKeyPair(t *testing.T) {
	kp, err := NewExtendedKeyPair()
	require.NoError(t, err)
	require.NoError(t, validateExtendedPublicKey(kp.Public))

	// Encryption half must be derivable and stable across calls.
	enc1 := kp.Public.EncryptionPublic()
	enc2 := kp.Public.EncryptionPublic()
	assert.Equal(t, enc1, enc2)

	sig := kp.Public.SignaturePublic()
	assert.NotEqual(t, [32]byte{}, sig)
	assert.NotEqual(t, [32]byte{}, enc1)

	// Secret halves must round trip the same split.
	assert.NotEqual(t, [32]byte{}, kp.Secret.EncryptionSecret())
	assert.NotEqual(t, [32]byte{}, kp.Secret.SignatureSeed())
}

func TestNewExtendedKeyPair_Unique(t *testing.T) {
	a, err := NewExtendedKeyPair()
	require.NoError(t, err)
	b, err := NewExtendedKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, a.Public, b.Public)
}

func TestValidateExtendedPublicKey_Zero(t *testing.T) {
	var zero ExtendedPublicKey
	err := validateExtendedPublicKey(zero)
	assert.ErrorIs(t, err, errZeroExtendedKey)
}

func TestJenkinsOneAtATime_Deterministic(t *testing.T) {
	data := []byte("a sample chat identity key material")
	h1 := jenkinsOneAtATime(data)
	h2 := jenkinsOneAtATime(data)
	assert.Equal(t, h1, h2)
}

func TestJenkinsOneAtATime_DifferentInputsDiffer(t *testing.T) {
	h1 := jenkinsOneAtATime([]byte("peer-one"))
	h2 := jenkinsOneAtATime([]byte("peer-two"))
	assert.NotEqual(t, h1, h2)
}

func TestChatIDHash_MatchesJenkins(t *testing.T) {
	var id [32]byte
	copy(id[:], []byte("0123456789abcdef0123456789abcdef"))
	assert.Equal(t, jenkinsOneAtATime(id[:]), ChatIDHash(id))
}

func TestPeerKeyHash_MatchesJenkins(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("peer-encryption-public-key-bytes"))
	assert.Equal(t, jenkinsOneAtATime(key[:]), PeerKeyHash(key))
}

func TestExtendedKeyPair_EncryptionAndSignatureHalvesMatch(t *testing.T) {
	kp, err := NewExtendedKeyPair()
	require.NoError(t, err)

	var reconstructed ExtendedPublicKey
	enc := kp.Public.EncryptionPublic()
	sig := kp.Public.SignaturePublic()
	copy(reconstructed[:32], enc[:])
	copy(reconstructed[32:], sig[:])
	assert.Equal(t, kp.Public, reconstructed)
}
