package group

import (
	"bytes"
	"encoding/binary"
)

// HandshakeType distinguishes the two messages of the handshake exchange
// (spec.md §4.2).
type HandshakeType byte

const (
	HandshakeRequest HandshakeType = iota + 1
	HandshakeResponse
)

// RequestKind conveys the initiator's intent once the session key is
// established (spec.md §4.2).
type RequestKind byte

const (
	RequestKindInvite RequestKind = iota + 1
	RequestKindPeerInfoExchange
)

// handshakePayload is the plaintext carried inside a Handshake frame
// (spec.md §4.2):
//
//	(1-byte handshake type, 4-byte sender hash, 32-byte sender session
//	 public key, 32-byte sender signature public key, 1-byte request kind,
//	 1-byte join kind, 4-byte sender's last-known shared-state version,
//	 one packed TCP relay node)
type handshakePayload struct {
	Type                HandshakeType
	SenderHash          uint32
	SenderSessionPublic [32]byte
	SenderSignPublic    [32]byte
	RequestKind         RequestKind
	JoinKind            Privacy
	LastKnownStateVersion uint32
	Relay               RelayNode
}

func (p handshakePayload) pack() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(p.Type))
	var hashBuf [4]byte
	binary.BigEndian.PutUint32(hashBuf[:], p.SenderHash)
	buf.Write(hashBuf[:])
	buf.Write(p.SenderSessionPublic[:])
	buf.Write(p.SenderSignPublic[:])
	buf.WriteByte(byte(p.RequestKind))
	buf.WriteByte(byte(p.JoinKind))
	var verBuf [4]byte
	binary.BigEndian.PutUint32(verBuf[:], p.LastKnownStateVersion)
	buf.Write(verBuf[:])
	buf.Write(p.Relay.pack())
	return buf.Bytes()
}

// minHandshakePayload is the payload size with an empty (all-zero, no
// address data) relay node.
const minHandshakePayload = 1 + 4 + 32 + 32 + 1 + 1 + 4 + 32 + 5

func unpackHandshakePayload(data []byte) (handshakePayload, error) {
	if len(data) < minHandshakePayload {
		return handshakePayload{}, errFrameTooShort
	}
	var p handshakePayload
	p.Type = HandshakeType(data[0])
	p.SenderHash = binary.BigEndian.Uint32(data[1:5])
	copy(p.SenderSessionPublic[:], data[5:37])
	copy(p.SenderSignPublic[:], data[37:69])
	p.RequestKind = RequestKind(data[69])
	p.JoinKind = Privacy(data[70])
	p.LastKnownStateVersion = binary.BigEndian.Uint32(data[71:75])
	relay, _, err := unpackRelayNode(data[75:])
	if err != nil {
		return handshakePayload{}, err
	}
	p.Relay = relay
	return p, nil
}

// resolveHandshakeTiebreak decides whether the local side should be the
// one to initiate an invite request when both sides of a handshake
// discover they may hold divergent shared-state versions (spec.md §4.2
// "Version tiebreak"). Only the side with the strictly higher locally-sent
// version initiates; on equality the higher public key (lexicographic)
// does, so exactly one side ever acts and a reconnecting pair never both
// reset each other.
func resolveHandshakeTiebreak(selfSentVersion, peerSentVersion uint32, selfSignPublic, peerSignPublic [32]byte) bool {
	selfRank := versionRank(selfSentVersion)
	peerRank := versionRank(peerSentVersion)
	if selfRank != peerRank {
		return selfRank > peerRank
	}
	return bytes.Compare(selfSignPublic[:], peerSignPublic[:]) > 0
}

// versionRank maps the "none yet" sentinel to a rank lower than any real
// version so an unset side never wins the tiebreak against a side that
// has sent a real version.
func versionRank(v uint32) int64 {
	if v == sharedStateVersionUnset {
		return -1
	}
	return int64(v)
}

// connectionMeter is the per-group "new-connection meter" rate limiter
// (spec.md §4.2): incremented on each accepted handshake request, decayed
// by one each wall-clock second, blocking further acceptance above the
// threshold.
type connectionMeter struct {
	tokens int
}

func (m *connectionMeter) allow() bool {
	return m.tokens < newConnectionMeterMax
}

func (m *connectionMeter) increment() {
	m.tokens++
}

func (m *connectionMeter) decay() {
	if m.tokens > 0 {
		m.tokens--
	}
}
