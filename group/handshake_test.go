package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakePayload_PackUnpackRoundTrip(t *testing.T) {
	p := handshakePayload{
		Type:                  HandshakeRequest,
		SenderHash:            0xcafebabe,
		RequestKind:           RequestKindInvite,
		JoinKind:              PrivacyPrivate,
		LastKnownStateVersion: 7,
	}
	copy(p.SenderSessionPublic[:], []byte("session-public-key-material-32b"))
	copy(p.SenderSignPublic[:], []byte("signature-public-key-material32"))

	packed := p.pack()
	got, err := unpackHandshakePayload(packed)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestUnpackHandshakePayload_TooShort(t *testing.T) {
	_, err := unpackHandshakePayload(make([]byte, minHandshakePayload-1))
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestResolveHandshakeTiebreak_HigherVersionWins(t *testing.T) {
	var a, b [32]byte
	a[0], b[0] = 1, 2
	assert.True(t, resolveHandshakeTiebreak(5, 3, a, b))
	assert.False(t, resolveHandshakeTiebreak(3, 5, a, b))
}

func TestResolveHandshakeTiebreak_UnsetVersionLosesToReal(t *testing.T) {
	var a, b [32]byte
	a[0], b[0] = 1, 2
	assert.False(t, resolveHandshakeTiebreak(sharedStateVersionUnset, 0, a, b))
	assert.True(t, resolveHandshakeTiebreak(0, sharedStateVersionUnset, a, b))
}

func TestResolveHandshakeTiebreak_EqualVersionFallsBackToKeyOrder(t *testing.T) {
	var lower, higher [32]byte
	lower[0] = 0x01
	higher[0] = 0xFF
	assert.True(t, resolveHandshakeTiebreak(5, 5, higher, lower))
	assert.False(t, resolveHandshakeTiebreak(5, 5, lower, higher))
}

func TestResolveHandshakeTiebreak_BothUnsetIsDeterministicByKey(t *testing.T) {
	var lower, higher [32]byte
	lower[0] = 0x01
	higher[0] = 0xFF
	assert.True(t, resolveHandshakeTiebreak(sharedStateVersionUnset, sharedStateVersionUnset, higher, lower))
}

func TestVersionRank(t *testing.T) {
	assert.Equal(t, int64(-1), versionRank(sharedStateVersionUnset))
	assert.Equal(t, int64(42), versionRank(42))
	assert.Greater(t, versionRank(0), versionRank(sharedStateVersionUnset))
}

func TestConnectionMeter_AllowsUpToMaxThenBlocks(t *testing.T) {
	var m connectionMeter
	for i := 0; i < newConnectionMeterMax; i++ {
		require.True(t, m.allow(), "iteration %d", i)
		m.increment()
	}
	assert.False(t, m.allow())
}

func TestConnectionMeter_DecayFreesCapacity(t *testing.T) {
	var m connectionMeter
	for i := 0; i < newConnectionMeterMax; i++ {
		m.increment()
	}
	require.False(t, m.allow())
	m.decay()
	assert.True(t, m.allow())
}

func TestConnectionMeter_DecayNeverGoesNegative(t *testing.T) {
	var m connectionMeter
	m.decay()
	m.decay()
	assert.Equal(t, 0, m.tokens)
}
