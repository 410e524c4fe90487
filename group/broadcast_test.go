package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastFrame_PackUnpackRoundTrip(t *testing.T) {
	b := broadcastFrame{
		Type:       BroadcastPlainMessage,
		SenderHash: 0xAABBCCDD,
		Timestamp:  1234567890,
		Payload:    []byte("hello group"),
	}
	got, err := unpackBroadcastFrame(b.pack())
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestBroadcastFrame_EmptyPayloadRoundTrip(t *testing.T) {
	b := broadcastFrame{Type: BroadcastPeerExit, SenderHash: 1, Timestamp: 2}
	got, err := unpackBroadcastFrame(b.pack())
	require.NoError(t, err)
	assert.Equal(t, BroadcastPeerExit, got.Type)
	assert.Empty(t, got.Payload)
}

func TestUnpackBroadcastFrame_TooShort(t *testing.T) {
	_, err := unpackBroadcastFrame(make([]byte, broadcastHeaderSize-1))
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestRemovePeerPayload_PackUnpackRoundTrip(t *testing.T) {
	p := removePeerPayload{TargetEncKey: [32]byte{1, 2, 3}, SetBan: true}
	got, err := unpackRemovePeerPayload(p.pack())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestRemovePeerPayload_KickNotBan(t *testing.T) {
	p := removePeerPayload{TargetEncKey: [32]byte{4}, SetBan: false}
	got, err := unpackRemovePeerPayload(p.pack())
	require.NoError(t, err)
	assert.False(t, got.SetBan)
}

func TestUnpackRemovePeerPayload_TooShort(t *testing.T) {
	_, err := unpackRemovePeerPayload(make([]byte, 32))
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestSetModPayload_PackUnpackRoundTrip(t *testing.T) {
	p := setModPayload{TargetSignKey: [32]byte{5}, IsModerator: true}
	got, err := unpackSetModPayload(p.pack())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestUnpackSetModPayload_TooShort(t *testing.T) {
	_, err := unpackSetModPayload(make([]byte, 10))
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestSetObserverPayload_PackUnpackRoundTrip(t *testing.T) {
	p := setObserverPayload{TargetEncKey: [32]byte{6}, IsObserver: true}
	got, err := unpackSetObserverPayload(p.pack())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestUnpackSetObserverPayload_TooShort(t *testing.T) {
	_, err := unpackSetObserverPayload(make([]byte, 10))
	assert.ErrorIs(t, err, errFrameTooShort)
}
