package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxcore/transport"
)

func TestInviteRequest_PackUnpackRoundTrip(t *testing.T) {
	r := inviteRequest{Nick: "alice", Password: "hunter2"}
	got, err := unpackInviteRequest(r.pack())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestInviteRequest_EmptyPassword(t *testing.T) {
	r := inviteRequest{Nick: "bob"}
	got, err := unpackInviteRequest(r.pack())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestUnpackInviteRequest_TooShort(t *testing.T) {
	_, err := unpackInviteRequest(nil)
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestInviteResponseReject_PackUnpackRoundTrip(t *testing.T) {
	r := inviteResponseReject{Reason: RejectGroupFull}
	got, err := unpackInviteResponseReject(r.pack())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestUnpackInviteResponseReject_TooShort(t *testing.T) {
	_, err := unpackInviteResponseReject(nil)
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestPeerInfoResponse_PackUnpackRoundTrip(t *testing.T) {
	r := peerInfoResponse{Nick: "carol", Status: PeerStatusOnline, Password: "secret"}
	got, err := unpackPeerInfoResponse(r.pack())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestUnpackPeerInfoResponse_TooShort(t *testing.T) {
	_, err := unpackPeerInfoResponse([]byte{0})
	assert.ErrorIs(t, err, errFrameTooShort)
}

func relayNodeForTest(seed byte) RelayNode {
	return RelayNode{
		PublicKey: [32]byte{seed},
		Address:   transport.NetworkAddress{Type: transport.AddressTypeIPv4, Data: []byte{1, 2, 3, 4}, Port: 443, Network: "udp"},
	}
}

func TestSyncResponse_PackUnpackRoundTrip(t *testing.T) {
	r := syncResponse{Peers: []syncPeerEntry{
		{PeerEncKey: [32]byte{1}, Relay: relayNodeForTest(11)},
		{PeerEncKey: [32]byte{2}, Relay: relayNodeForTest(22)},
	}}
	got, err := unpackSyncResponse(r.pack())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestSyncResponse_EmptyRoster(t *testing.T) {
	r := syncResponse{}
	got, err := unpackSyncResponse(r.pack())
	require.NoError(t, err)
	assert.Empty(t, got.Peers)
}

func TestUnpackSyncResponse_TooShort(t *testing.T) {
	_, err := unpackSyncResponse([]byte{0})
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestPeerAnnounce_PackUnpackRoundTrip(t *testing.T) {
	a := peerAnnounce{
		PeerEncKey:  [32]byte{1},
		PeerSignKey: [32]byte{2},
		Relay:       relayNodeForTest(33),
	}
	got, err := unpackPeerAnnounce(a.pack())
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestUnpackPeerAnnounce_TooShort(t *testing.T) {
	_, err := unpackPeerAnnounce(make([]byte, 10))
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestCheckPassword_MatchingSucceeds(t *testing.T) {
	assert.True(t, checkPassword("hunter2", "hunter2"))
}

func TestCheckPassword_DifferentLengthFails(t *testing.T) {
	assert.False(t, checkPassword("hunter2", "hunter"))
}

func TestCheckPassword_SameLengthDifferentContentFails(t *testing.T) {
	assert.False(t, checkPassword("hunter2", "hunterX"))
}

func TestCheckPassword_BothEmptySucceeds(t *testing.T) {
	assert.True(t, checkPassword("", ""))
}
