package group

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
)

// inviteRequest carries the joiner's nick and (optional) password
// (spec.md §4.5).
type inviteRequest struct {
	Nick     string
	Password string
}

func (r inviteRequest) pack() []byte {
	var buf bytes.Buffer
	nickBytes := []byte(r.Nick)
	buf.WriteByte(byte(len(nickBytes)))
	buf.Write(nickBytes)
	pwBytes := []byte(r.Password)
	buf.WriteByte(byte(len(pwBytes)))
	buf.Write(pwBytes)
	return buf.Bytes()
}

func unpackInviteRequest(data []byte) (inviteRequest, error) {
	if len(data) < 1 {
		return inviteRequest{}, errFrameTooShort
	}
	nickLen := int(data[0])
	off := 1
	if len(data) < off+nickLen+1 {
		return inviteRequest{}, errFrameTooShort
	}
	nick := string(data[off : off+nickLen])
	off += nickLen
	pwLen := int(data[off])
	off++
	if len(data) < off+pwLen {
		return inviteRequest{}, errFrameTooShort
	}
	return inviteRequest{Nick: nick, Password: string(data[off : off+pwLen])}, nil
}

// inviteResponse is the bare acceptance reply; rejection travels instead
// as an InnerInviteResponseReject packet carrying a RejectReason.
type inviteResponse struct{}

func (inviteResponse) pack() []byte { return nil }

// inviteResponseReject carries the typed policy-violation reason
// (spec.md §7 "Policy violation").
type inviteResponseReject struct {
	Reason RejectReason
}

func (r inviteResponseReject) pack() []byte { return []byte{byte(r.Reason)} }

func unpackInviteResponseReject(data []byte) (inviteResponseReject, error) {
	if len(data) < 1 {
		return inviteResponseReject{}, errFrameTooShort
	}
	return inviteResponseReject{Reason: RejectReason(data[0])}, nil
}

// peerInfoRequest triggers a peer-info exchange; it carries no payload.
type peerInfoRequest struct{}

func (peerInfoRequest) pack() []byte { return nil }

// peerInfoResponse answers a peer-info request, and like inviteRequest
// must carry the literal password when the group has one set (spec.md
// §4.5 "Password").
type peerInfoResponse struct {
	Nick     string
	Status   PeerStatus
	Password string
}

func (r peerInfoResponse) pack() []byte {
	var buf bytes.Buffer
	nickBytes := []byte(r.Nick)
	buf.WriteByte(byte(len(nickBytes)))
	buf.Write(nickBytes)
	buf.WriteByte(byte(r.Status))
	pwBytes := []byte(r.Password)
	buf.WriteByte(byte(len(pwBytes)))
	buf.Write(pwBytes)
	return buf.Bytes()
}

func unpackPeerInfoResponse(data []byte) (peerInfoResponse, error) {
	if len(data) < 2 {
		return peerInfoResponse{}, errFrameTooShort
	}
	nickLen := int(data[0])
	off := 1
	if len(data) < off+nickLen+2 {
		return peerInfoResponse{}, errFrameTooShort
	}
	nick := string(data[off : off+nickLen])
	off += nickLen
	status := PeerStatus(data[off])
	off++
	pwLen := int(data[off])
	off++
	if len(data) < off+pwLen {
		return peerInfoResponse{}, errFrameTooShort
	}
	return peerInfoResponse{Nick: nick, Status: status, Password: string(data[off : off+pwLen])}, nil
}

// syncRequest asks the receiver to replay shared state, mod list,
// sanctions, topic and the confirmed-peer roster; it carries no payload.
type syncRequest struct{}

func (syncRequest) pack() []byte { return nil }

// syncPeerEntry is one (TCP-relay node, encryption key) triple of the
// sync response roster (spec.md §4.5 item 5).
type syncPeerEntry struct {
	PeerEncKey [32]byte
	Relay      RelayNode
}

func (e syncPeerEntry) pack() []byte {
	relayBytes := e.Relay.pack()
	out := make([]byte, 32+len(relayBytes))
	copy(out[:32], e.PeerEncKey[:])
	copy(out[32:], relayBytes)
	return out
}

// syncResponse is the final message of the sync sequence: the roster of
// currently-confirmed peers other than self and the joiner.
type syncResponse struct {
	Peers []syncPeerEntry
}

func (r syncResponse) pack() []byte {
	var buf bytes.Buffer
	var count [2]byte
	binary.BigEndian.PutUint16(count[:], uint16(len(r.Peers)))
	buf.Write(count[:])
	for _, p := range r.Peers {
		buf.Write(p.pack())
	}
	return buf.Bytes()
}

func unpackSyncResponse(data []byte) (syncResponse, error) {
	if len(data) < 2 {
		return syncResponse{}, errFrameTooShort
	}
	count := int(binary.BigEndian.Uint16(data[:2]))
	off := 2
	var out syncResponse
	for i := 0; i < count; i++ {
		if len(data) < off+32 {
			return syncResponse{}, errFrameTooShort
		}
		var entry syncPeerEntry
		copy(entry.PeerEncKey[:], data[off:off+32])
		off += 32
		relay, n, err := unpackRelayNode(data[off:])
		if err != nil {
			return syncResponse{}, err
		}
		off += n
		entry.Relay = relay
		out.Peers = append(out.Peers, entry)
	}
	return out, nil
}

// peerAnnounce tells already-confirmed peers about a newly joined peer so
// they can proactively connect (spec.md §4.5, §9 open question: this may
// arrive before the joiner's own relay is known to the joiner itself —
// tolerated because the announcement carries the relay hint).
type peerAnnounce struct {
	PeerEncKey  [32]byte
	PeerSignKey [32]byte
	Relay       RelayNode
}

func (a peerAnnounce) pack() []byte {
	relayBytes := a.Relay.pack()
	out := make([]byte, 64+len(relayBytes))
	copy(out[:32], a.PeerEncKey[:])
	copy(out[32:64], a.PeerSignKey[:])
	copy(out[64:], relayBytes)
	return out
}

func unpackPeerAnnounce(data []byte) (peerAnnounce, error) {
	if len(data) < 64 {
		return peerAnnounce{}, errFrameTooShort
	}
	var a peerAnnounce
	copy(a.PeerEncKey[:], data[:32])
	copy(a.PeerSignKey[:], data[32:64])
	relay, _, err := unpackRelayNode(data[64:])
	if err != nil {
		return peerAnnounce{}, err
	}
	a.Relay = relay
	return a, nil
}

// checkPassword compares length and content in constant time (spec.md
// §4.5: responders compare length and prefix).
func checkPassword(configured, supplied string) bool {
	if len(configured) != len(supplied) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(supplied)) == 1
}
