package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxcore/transport"
)

func TestMessageAck_PackUnpackRoundTrip(t *testing.T) {
	a := messageAck{Kind: AckRequest, MessageID: 1234567890}
	got, err := unpackMessageAck(a.pack())
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestUnpackMessageAck_TooShort(t *testing.T) {
	_, err := unpackMessageAck(make([]byte, 8))
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestNewConnection_StartsFreshWithSentinelVersions(t *testing.T) {
	c := newConnection()
	assert.Equal(t, ConnFresh, c.State)
	assert.Equal(t, sharedStateVersionUnset, c.SelfSentSharedStateVersion)
	assert.Equal(t, sharedStateVersionUnset, c.PeerSentSharedStateVersion)
	require.NotNil(t, c.stream)
}

func TestConnection_DirectPathReachable(t *testing.T) {
	c := newConnection()
	now := time.Now()

	assert.False(t, c.directPathReachable(now), "no address known yet")

	addr := &transport.NetworkAddress{Type: transport.AddressTypeIPv4, Data: []byte{1, 2, 3, 4}, Port: 1}
	c.LastDirectAddr = addr
	assert.False(t, c.directPathReachable(now), "address known but never received from directly")

	c.LastDirectRecv = now
	assert.True(t, c.directPathReachable(now))

	assert.False(t, c.directPathReachable(now.Add(directPathStaleAfter+time.Second)), "stale receive timestamp")
}

func TestConnection_RememberTCPContact_BoundedRing(t *testing.T) {
	c := newConnection()
	for i := 0; i < recentTCPContactsRingSize+5; i++ {
		c.rememberTCPContact(RelayNode{PublicKey: [32]byte{byte(i)}})
	}
	assert.Len(t, c.RecentTCPContacts, recentTCPContactsRingSize)
	// The oldest entries should have been evicted; the last remembered
	// contact survives.
	last := c.RecentTCPContacts[len(c.RecentTCPContacts)-1]
	assert.Equal(t, byte(recentTCPContactsRingSize+4), last.PublicKey[0])
}

func TestPutGetUint64_RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	putUint64(buf, 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), getUint64(buf))
}

func TestReliableStream_QueueSendAssignsIncreasingIDs(t *testing.T) {
	s := newReliableStream()
	now := time.Now()
	id1 := s.queueSend([]byte("a"), now)
	id2 := s.queueSend([]byte("b"), now)
	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)
}

func TestReliableStream_AckReadClearsUpToID(t *testing.T) {
	s := newReliableStream()
	now := time.Now()
	s.queueSend([]byte("a"), now)
	s.queueSend([]byte("b"), now)
	s.queueSend([]byte("c"), now)

	s.ackRead(2)
	assert.Nil(t, s.entryFor(1))
	assert.Nil(t, s.entryFor(2))
	assert.NotNil(t, s.entryFor(3))
}

func TestReliableStream_EntryForMissingID(t *testing.T) {
	s := newReliableStream()
	assert.Nil(t, s.entryFor(999))
}

func TestReliableStream_DuePendingRespectsInterval(t *testing.T) {
	s := newReliableStream()
	base := time.Now()
	s.queueSend([]byte("frame"), base)

	// Not due yet within the same second and before the interval elapses.
	assert.Empty(t, s.duePending(base))

	later := base.Add(retransmitInterval + time.Second)
	due := s.duePending(later)
	require.Len(t, due, 1)
	assert.Equal(t, uint64(1), due[0].messageID)
}

func TestReliableStream_Accept_InOrderDeliversImmediately(t *testing.T) {
	s := newReliableStream()
	now := time.Now()

	delivered, ack := s.accept(1, InnerBroadcast, []byte("one"), now)
	require.Len(t, delivered, 1)
	assert.Equal(t, []byte("one"), delivered[0].payload)
	require.NotNil(t, ack)
	assert.Equal(t, AckRead, ack.Kind)
	assert.Equal(t, uint64(1), ack.MessageID)
}

func TestReliableStream_Accept_OutOfOrderBuffersAndRequestsGap(t *testing.T) {
	s := newReliableStream()
	now := time.Now()

	delivered, ack := s.accept(3, InnerBroadcast, []byte("three"), now)
	assert.Empty(t, delivered)
	require.NotNil(t, ack)
	assert.Equal(t, AckRequest, ack.Kind)
	assert.Equal(t, uint64(1), ack.MessageID)
}

func TestReliableStream_Accept_FillingGapDeliversBufferedRun(t *testing.T) {
	s := newReliableStream()
	now := time.Now()

	_, _ = s.accept(2, InnerBroadcast, []byte("two"), now)
	_, _ = s.accept(3, InnerBroadcast, []byte("three"), now)

	delivered, ack := s.accept(1, InnerBroadcast, []byte("one"), now)
	require.Len(t, delivered, 3)
	assert.Equal(t, []byte("one"), delivered[0].payload)
	assert.Equal(t, []byte("two"), delivered[1].payload)
	assert.Equal(t, []byte("three"), delivered[2].payload)
	assert.Equal(t, uint64(3), ack.MessageID)
}

func TestReliableStream_Accept_BelowExpectedIsDuplicateAck(t *testing.T) {
	s := newReliableStream()
	now := time.Now()

	_, _ = s.accept(1, InnerBroadcast, []byte("one"), now)
	delivered, ack := s.accept(1, InnerBroadcast, []byte("one-again"), now)
	assert.Empty(t, delivered)
	require.NotNil(t, ack)
	assert.Equal(t, AckRead, ack.Kind)
	assert.Equal(t, uint64(1), ack.MessageID)
}

func TestReliableStream_Accept_DuplicateGapRequestThrottled(t *testing.T) {
	s := newReliableStream()
	now := time.Now()

	_, ack1 := s.accept(5, InnerBroadcast, []byte("five"), now)
	require.NotNil(t, ack1)

	// Same out-of-order id again immediately after: throttled, no new ack.
	_, ack2 := s.accept(5, InnerBroadcast, []byte("five-again"), now)
	assert.Nil(t, ack2)

	// After the retransmit interval elapses, a fresh gap request is allowed.
	_, ack3 := s.accept(5, InnerBroadcast, []byte("five-again"), now.Add(retransmitInterval+time.Second))
	require.NotNil(t, ack3)
	assert.Equal(t, AckRequest, ack3.Kind)
}
