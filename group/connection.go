package group

import (
	"time"

	"github.com/opd-ai/toxcore/transport"
)

// ConnState is a connection's position in the small per-connection state
// machine of spec.md §9 ("Coroutine-style flow"): Fresh -> Handshaking ->
// Handshaked -> PeerInfoSent -> Confirmed.
type ConnState uint8

const (
	ConnFresh ConnState = iota
	ConnHandshaking
	ConnHandshaked
	ConnPeerInfoSent
	ConnConfirmed
)

// AckKind distinguishes the two uses of a MessageAck packet (spec.md §4.3).
type AckKind byte

const (
	AckRequest AckKind = iota + 1 // ask for retransmission of a missing id
	AckRead                       // cumulative read receipt up to an id
)

// messageAck is the lossy packet used to drive the reliable stream.
type messageAck struct {
	Kind      AckKind
	MessageID uint64
}

func (a messageAck) pack() []byte {
	buf := make([]byte, 9)
	buf[0] = byte(a.Kind)
	putUint64(buf[1:], a.MessageID)
	return buf
}

func unpackMessageAck(data []byte) (messageAck, error) {
	if len(data) < 9 {
		return messageAck{}, errFrameTooShort
	}
	return messageAck{Kind: AckKind(data[0]), MessageID: getUint64(data[1:])}, nil
}

// sendRingEntry is an unacknowledged outbound frame (spec.md §3,
// "Connection record").
type sendRingEntry struct {
	messageID   uint64
	frame       []byte
	dataLen     int
	timeAdded   time.Time
	lastSendTry time.Time
}

// recvRingEntry is a received, out-of-order, not-yet-delivered frame.
type recvRingEntry struct {
	messageID uint64
	typ       InnerType
	payload   []byte
}

// deliveredMessage is one message handed to the application/dispatch layer
// in send order.
type deliveredMessage struct {
	typ     InnerType
	payload []byte
}

// reliableStream implements the send/receive windows of spec.md §4.3: a
// per-direction 64-bit monotonic message id stream, a bounded ring of
// unacknowledged outbound frames, and a receive window that only delivers
// strictly in order.
type reliableStream struct {
	nextSendID uint64 // next id to assign on send; starts at 1
	sendRing   [ringSize]*sendRingEntry

	nextExpected     uint64 // next id the receiver will accept and deliver
	highestDelivered uint64
	recvRing         [ringSize]*recvRingEntry
	lastGapRequestAt time.Time
}

func newReliableStream() *reliableStream {
	return &reliableStream{nextSendID: 1, nextExpected: 1}
}

// queueSend assigns the next strictly increasing message id to frame and
// records it in the send ring, per invariant 6.
func (s *reliableStream) queueSend(frame []byte, now time.Time) uint64 {
	id := s.nextSendID
	s.nextSendID++
	s.sendRing[id%ringSize] = &sendRingEntry{
		messageID:   id,
		frame:       frame,
		dataLen:     len(frame),
		timeAdded:   now,
		lastSendTry: now,
	}
	return id
}

// ackRead removes every ring entry at or below the cumulatively
// acknowledged id.
func (s *reliableStream) ackRead(id uint64) {
	for i := range s.sendRing {
		e := s.sendRing[i]
		if e != nil && e.messageID <= id {
			s.sendRing[i] = nil
		}
	}
}

// entryFor returns the frame to retransmit immediately for a peer's
// explicit gap request, if still held.
func (s *reliableStream) entryFor(id uint64) *sendRingEntry {
	e := s.sendRing[id%ringSize]
	if e != nil && e.messageID == id {
		return e
	}
	return nil
}

// duePending returns ring entries whose lastSendTry predates the
// retransmission interval and which were not added in the current
// wall-clock second (spec.md §4.3 "Retransmission").
func (s *reliableStream) duePending(now time.Time) []*sendRingEntry {
	var due []*sendRingEntry
	for _, e := range s.sendRing {
		if e == nil {
			continue
		}
		if now.Truncate(time.Second).Equal(e.timeAdded.Truncate(time.Second)) {
			continue
		}
		if now.Sub(e.lastSendTry) >= retransmitInterval {
			due = append(due, e)
		}
	}
	return due
}

// accept processes an inbound message id on the receive side, returning
// any messages now deliverable in order and the ack action (if any) to
// send back, per spec.md §4.3 and testable property 5.
func (s *reliableStream) accept(id uint64, typ InnerType, payload []byte, now time.Time) ([]deliveredMessage, *messageAck) {
	if id < s.nextExpected {
		return nil, &messageAck{Kind: AckRead, MessageID: s.highestDelivered}
	}

	if id == s.nextExpected {
		delivered := []deliveredMessage{{typ: typ, payload: payload}}
		s.nextExpected++
		s.highestDelivered = id

		for {
			slot := s.recvRing[s.nextExpected%ringSize]
			if slot == nil || slot.messageID != s.nextExpected {
				break
			}
			delivered = append(delivered, deliveredMessage{typ: slot.typ, payload: slot.payload})
			s.recvRing[s.nextExpected%ringSize] = nil
			s.highestDelivered = s.nextExpected
			s.nextExpected++
		}
		return delivered, &messageAck{Kind: AckRead, MessageID: s.highestDelivered}
	}

	// id > nextExpected: out of order.
	existing := s.recvRing[id%ringSize]
	if existing != nil && existing.messageID == id {
		// Already buffered duplicate; only re-request the gap at most once
		// per retransmission interval.
		if s.lastGapRequestAt.IsZero() || now.Sub(s.lastGapRequestAt) >= retransmitInterval {
			s.lastGapRequestAt = now
			return nil, &messageAck{Kind: AckRequest, MessageID: s.nextExpected}
		}
		return nil, nil
	}

	s.recvRing[id%ringSize] = &recvRingEntry{messageID: id, typ: typ, payload: payload}
	if s.lastGapRequestAt.IsZero() || now.Sub(s.lastGapRequestAt) >= retransmitInterval {
		s.lastGapRequestAt = now
		return nil, &messageAck{Kind: AckRequest, MessageID: s.nextExpected}
	}
	return nil, nil
}

// Connection is the per-peer transport state of spec.md §3 ("Connection
// record").
type Connection struct {
	State ConnState

	SessionPublic  [32]byte
	SessionPrivate [32]byte
	SharedKey      [32]byte

	PeerEncPublic  [32]byte
	PeerSignPublic [32]byte
	PeerKeyHash    uint32

	TCPChannel string
	UseTCP     bool

	LastDirectAddr  *transport.NetworkAddress
	LastDirectRecv  time.Time

	PendingHandshakeAt   time.Time
	PendingHandshakeKind RequestKind
	PendingHandshakeSet  bool

	LastPing time.Time

	RecentTCPContacts []RelayNode

	SelfSentSharedStateVersion uint32
	PeerSentSharedStateVersion uint32
	PendingStateSync           bool

	stream *reliableStream
}

// newConnection starts a fresh connection record in state Fresh, with the
// shared-state version sentinel unset (spec.md §9 open question).
func newConnection() *Connection {
	return &Connection{
		State:                      ConnFresh,
		SelfSentSharedStateVersion: sharedStateVersionUnset,
		PeerSentSharedStateVersion: sharedStateVersionUnset,
		stream:                     newReliableStream(),
	}
}

// directPathReachable reports whether the direct UDP path should be
// preferred over the TCP relay: an address is known and we have heard
// directly from the peer recently enough to trust the path (spec.md §4.3
// "Dual transport").
func (c *Connection) directPathReachable(now time.Time) bool {
	if c.LastDirectAddr == nil {
		return false
	}
	return !c.LastDirectRecv.IsZero() && now.Sub(c.LastDirectRecv) < directPathStaleAfter
}

// rememberTCPContact appends a relay contact to the bounded recency ring
// (spec.md §3).
func (c *Connection) rememberTCPContact(node RelayNode) {
	c.RecentTCPContacts = append(c.RecentTCPContacts, node)
	if len(c.RecentTCPContacts) > recentTCPContactsRingSize {
		c.RecentTCPContacts = c.RecentTCPContacts[len(c.RecentTCPContacts)-recentTCPContactsRingSize:]
	}
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
