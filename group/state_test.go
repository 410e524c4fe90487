package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxcore/crypto"
)

func newTestFounder(t *testing.T) (*ExtendedKeyPair, [32]byte) {
	t.Helper()
	kp, err := NewExtendedKeyPair()
	require.NoError(t, err)
	return kp, kp.Secret.SignatureSeed()
}

func TestSignAsFounder_StartsAtVersionOne(t *testing.T) {
	founder, seed := newTestFounder(t)
	state, err := signAsFounder(nil, func(s *SharedState) {
		s.Founder = founder.Public
		s.Name = "test group"
	}, seed)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), state.Version)
	require.NoError(t, state.verify())
}

func TestSignAsFounder_IncrementsVersion(t *testing.T) {
	founder, seed := newTestFounder(t)
	first, err := signAsFounder(nil, func(s *SharedState) { s.Founder = founder.Public }, seed)
	require.NoError(t, err)

	second, err := signAsFounder(&first, func(s *SharedState) { s.Name = "renamed" }, seed)
	require.NoError(t, err)
	assert.Equal(t, first.Version+1, second.Version)
	assert.Equal(t, "renamed", second.Name)
}

func TestSharedState_Verify_RejectsTamperedSignature(t *testing.T) {
	founder, seed := newTestFounder(t)
	state, err := signAsFounder(nil, func(s *SharedState) { s.Founder = founder.Public }, seed)
	require.NoError(t, err)

	state.Name = "tampered-after-signing"
	assert.ErrorIs(t, state.verify(), errStateBadSignature)
}

func TestSharedState_Verify_RejectsOversizedFields(t *testing.T) {
	founder, seed := newTestFounder(t)
	longName := make([]byte, MaxGroupNameLength+1)
	state, err := signAsFounder(nil, func(s *SharedState) {
		s.Founder = founder.Public
		s.Name = string(longName)
	}, seed)
	require.NoError(t, err)
	assert.ErrorIs(t, state.verify(), errStateNameTooLong)
}

func TestSharedState_PackUnpackRoundTrip(t *testing.T) {
	founder, seed := newTestFounder(t)
	state, err := signAsFounder(nil, func(s *SharedState) {
		s.Founder = founder.Public
		s.Name = "packable"
		s.MaxPeers = 50
		s.Privacy = PrivacyPrivate
		s.Password = "hunter2"
	}, seed)
	require.NoError(t, err)

	packed := state.pack()
	got, err := unpackSharedState(packed)
	require.NoError(t, err)
	assert.Equal(t, state.Name, got.Name)
	assert.Equal(t, state.MaxPeers, got.MaxPeers)
	assert.Equal(t, state.Privacy, got.Privacy)
	assert.Equal(t, state.Password, got.Password)
	assert.Equal(t, state.Version, got.Version)
	require.NoError(t, got.verify())
}

func TestUnpackSharedState_TooShort(t *testing.T) {
	_, err := unpackSharedState(make([]byte, 10))
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestAcceptIncoming_RejectsStaleVersion(t *testing.T) {
	founder, seed := newTestFounder(t)
	v1, err := signAsFounder(nil, func(s *SharedState) { s.Founder = founder.Public }, seed)
	require.NoError(t, err)
	v2, err := signAsFounder(&v1, func(s *SharedState) { s.Name = "v2" }, seed)
	require.NoError(t, err)

	_, err = acceptIncoming(&v2, v1)
	assert.ErrorIs(t, err, errStateStale)
}

func TestAcceptIncoming_RejectsBadSignature(t *testing.T) {
	founder, seed := newTestFounder(t)
	v1, err := signAsFounder(nil, func(s *SharedState) { s.Founder = founder.Public }, seed)
	require.NoError(t, err)
	v1.Name = "forged"

	_, err = acceptIncoming(nil, v1)
	assert.Error(t, err)
}

func TestAcceptIncoming_AcceptsNewerVerifiedState(t *testing.T) {
	founder, seed := newTestFounder(t)
	v1, err := signAsFounder(nil, func(s *SharedState) { s.Founder = founder.Public }, seed)
	require.NoError(t, err)
	v2, err := signAsFounder(&v1, func(s *SharedState) { s.Name = "v2" }, seed)
	require.NoError(t, err)

	accepted, err := acceptIncoming(&v1, v2)
	require.NoError(t, err)
	assert.Equal(t, "v2", accepted.Name)
}

func TestSharedState_Verify_RejectsWrongSigner(t *testing.T) {
	founder, _ := newTestFounder(t)

	state, err := signAsFounder(nil, func(s *SharedState) { s.Founder = founder.Public }, founder.Secret.SignatureSeed())
	require.NoError(t, err)

	// Re-sign the same body under a different seed entirely (impersonation
	// attempt) and confirm it fails verification against the embedded
	// founder key.
	_, otherSeed, err := crypto.GenerateSignatureSeed()
	require.NoError(t, err)
	sig, err := crypto.Sign(state.signedBytes(), otherSeed)
	require.NoError(t, err)
	state.Signature = sig
	assert.ErrorIs(t, state.verify(), errStateBadSignature)
}

func TestHashModeratorList_ChangesWithContent(t *testing.T) {
	empty := &ModeratorList{}
	h1 := hashModeratorList(empty)

	withOne, err := empty.withAdded([32]byte{1})
	require.NoError(t, err)
	h2 := hashModeratorList(withOne)
	assert.NotEqual(t, h1, h2)
}
